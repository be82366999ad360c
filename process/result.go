package process

import (
	"strings"
	"time"
)

// stderrTail bounds the stderr excerpt attached to failures.
const stderrTail = 2048

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed or never started.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// StderrTail returns the trimmed end of the captured stderr.
func (r *Result) StderrTail() string {
	b := r.Stderr
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return strings.TrimSpace(string(b))
}
