package blueprint

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dwiflow/errors"
)

// Loader loads blueprints by name.
type Loader interface {
	Load(name string) (*Blueprint, error)
}

// FileLoader loads blueprints from YAML files on disk.
type FileLoader struct {
	dirs []string
}

var _ Loader = (*FileLoader)(nil)

// NewFileLoader creates a loader searching dirs for {name}.yaml or {name}.yml.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load returns the first matching file in directory order. Each directory
// is tried directly before its subdirectories are searched.
func (l *FileLoader) Load(name string) (*Blueprint, error) {
	candidates := []string{name + ".yaml", name + ".yml"}
	for _, dir := range l.dirs {
		for _, file := range candidates {
			path := filepath.Join(dir, file)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		var found string
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			for _, file := range candidates {
				if d.Name() == file {
					found = path
					return fs.SkipAll
				}
			}
			return nil
		})
		if found != "" {
			return LoadFile(found)
		}
	}
	return nil, errors.NotFound("blueprint", name).WithDetail("dirs", l.dirs)
}

// LoadFile reads and parses one blueprint file.
func LoadFile(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound("blueprint", path).WithCause(err)
		}
		return nil, errors.Internal(err).WithDetail("path", path)
	}
	bp, err := Parse(data)
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			return nil, appErr.WithDetail("path", path)
		}
		return nil, err
	}
	return bp, nil
}

// Parse decodes a blueprint. Unknown keys are rejected.
func Parse(data []byte) (*Blueprint, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var bp Blueprint
	if err := dec.Decode(&bp); err != nil {
		return nil, errors.InvalidInput("blueprint", err.Error()).WithCause(err)
	}
	return &bp, nil
}

// Resolve flattens the includes of bp recursively. Included layers, stages
// and processes come before those of the including blueprint; when a name
// appears twice, the first one wins, so a blueprint included along two paths
// is only added once. A circular include is INVALID_INPUT.
func Resolve(bp *Blueprint, loader Loader) (*Blueprint, error) {
	out := &Blueprint{Name: bp.Name}
	r := resolver{
		loader:   loader,
		stack:    make(map[string]bool),
		resolved: make(map[string]bool),
		seen:     make(map[string]bool),
	}
	if err := r.resolve(bp, out); err != nil {
		return nil, err
	}
	return out, nil
}

type resolver struct {
	loader   Loader
	stack    map[string]bool // current include path
	resolved map[string]bool // blueprints already merged
	seen     map[string]bool // merged layer, stage and process names
}

func (r *resolver) resolve(bp *Blueprint, out *Blueprint) error {
	if r.stack[bp.Name] {
		return errors.InvalidInput("includes", fmt.Sprintf("circular include of blueprint %s", bp.Name))
	}
	r.stack[bp.Name] = true
	defer delete(r.stack, bp.Name)

	for _, name := range bp.Includes {
		if r.resolved[name] {
			continue
		}
		if r.loader == nil {
			return errors.InvalidInput("includes", fmt.Sprintf("blueprint %s includes %s but no loader is configured", bp.Name, name))
		}
		sub, err := r.loader.Load(name)
		if err != nil {
			return err
		}
		if err := r.resolve(sub, out); err != nil {
			return err
		}
	}

	for _, p := range bp.Processes {
		if r.first("process:" + p.Name) {
			out.Processes = append(out.Processes, p)
		}
	}
	for _, l := range bp.Layers {
		if r.first("layer:" + l.Name) {
			out.Layers = append(out.Layers, l)
		}
	}
	for _, s := range bp.Stages {
		if r.first("stage:" + s.Name) {
			out.Stages = append(out.Stages, s)
		}
	}
	r.resolved[bp.Name] = true
	return nil
}

func (r *resolver) first(key string) bool {
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

// Open loads the blueprint at path and resolves its includes from the
// file's own directory, then from dirs.
func Open(path string, dirs ...string) (*Blueprint, error) {
	bp, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Resolve(bp, NewFileLoader(append([]string{filepath.Dir(path)}, dirs...)...))
}
