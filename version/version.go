package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Name is the program name reported by the CLI and the monitor.
const Name = "dwiflow"

// Info represents version information.
type Info struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit,omitempty"`
	BuildTime time.Time `json:"build_time,omitzero"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty"`
}

// Get returns the version information of the running binary.
func Get() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			info.BuildTime = t
		}
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		info.Version = buildInfo.Main.Version
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = setting.Value
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = t
				}
			}
		}
	}
	return info
}

// IsRelease reports whether the binary was built from a tagged, clean tree.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !i.Dirty && !strings.Contains(i.Version, "dirty")
}

// Short returns "version[-commit][-dirty]" with the commit shortened to 7 characters.
func (i Info) Short() string {
	parts := []string{i.Version}
	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		parts = append(parts, commit)
	}
	if i.Dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "-")
}

// String returns a one-line description suitable for `dwiflow version`.
func (i Info) String() string {
	s := fmt.Sprintf("%s %s (%s, %s)", i.Name, i.Short(), i.GoVersion, i.Platform)
	if !i.BuildTime.IsZero() {
		s += " built " + i.BuildTime.UTC().Format(time.RFC3339)
	}
	return s
}
