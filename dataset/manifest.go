package dataset

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/validation"
)

// Package keys set on every manifest item.
const (
	KeySubject     = "subject"
	KeySubjectName = "subject_name"
	KeyRepetition  = "repetition"
)

// Manifest lists the subjects of a study.
type Manifest struct {
	Subjects []Subject `yaml:"subjects" validate:"min=1,dive"`

	dir string
}

// Subject is one scanned subject.
type Subject struct {
	Name string `yaml:"name" validate:"required"`
	// Repetitions is the number of acquisitions; zero means one.
	Repetitions int `yaml:"repetitions,omitempty" validate:"gte=0"`
	// Files maps package keys to paths.
	Files map[string]string `yaml:"files,omitempty"`
	// Values are extra package entries, such as acquisition parameters.
	Values map[string]any `yaml:"values,omitempty"`
}

func (s Subject) repetitions() int {
	return max(s.Repetitions, 1)
}

// LoadManifest reads the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound("manifest", path).WithCause(err)
		}
		return nil, errors.Internal(err).WithDetail("path", path)
	}
	return ParseManifest(data, filepath.Dir(path))
}

// ParseManifest decodes a manifest whose relative paths are resolved
// against dir.
func ParseManifest(data []byte, dir string) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.InvalidInput("manifest", err.Error()).WithCause(err)
	}
	m.dir = dir
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest structure.
func (m *Manifest) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(m))
	names := make([]string, len(m.Subjects))
	for i, s := range m.Subjects {
		names[i] = s.Name
		for key := range s.Files {
			_, reserved := s.Values[key]
			v.Custom(!reserved, fmt.Sprintf("subjects[%d].values.%s", i, key), "is also declared as a file")
		}
	}
	v.Unique("subjects", names)
	return v.Err()
}

// Len returns the number of items the manifest yields.
func (m *Manifest) Len() int {
	n := 0
	for _, s := range m.Subjects {
		n += s.repetitions()
	}
	return n
}

// Packages returns one package per subject and repetition. With several
// repetitions the subject label gets a _rep<N> suffix, so per-subject
// output paths stay distinct.
func (m *Manifest) Packages() []comm.Package {
	pkgs := make([]comm.Package, 0, m.Len())
	for _, s := range m.Subjects {
		reps := s.repetitions()
		for r := 1; r <= reps; r++ {
			label := s.Name
			if reps > 1 {
				label = fmt.Sprintf("%s_rep%d", s.Name, r)
			}
			pkg := comm.Package{
				KeySubject:     label,
				KeySubjectName: s.Name,
				KeyRepetition:  r,
			}
			maps.Copy(pkg, s.Values)
			for _, key := range slices.Sorted(maps.Keys(s.Files)) {
				pkg[key] = m.resolve(s.Files[key])
			}
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

// Source returns a Slice over the manifest's packages.
func (m *Manifest) Source() *Slice {
	return NewSlice(m.Packages()...)
}

// Missing returns the resolved file paths that do not exist.
func (m *Manifest) Missing() []string {
	var missing []string
	for _, s := range m.Subjects {
		for _, key := range slices.Sorted(maps.Keys(s.Files)) {
			path := m.resolve(s.Files[key])
			if _, err := os.Stat(path); err != nil {
				missing = append(missing, path)
			}
		}
	}
	return missing
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) || m.dir == "" {
		return path
	}
	return filepath.Join(m.dir, path)
}
