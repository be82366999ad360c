package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/dwiflow/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dti.yaml")
	writeFile(t, path, `
name: dti
layers:
  - name: prep
    units:
      - process: denoise
      - name: eddy
        process: eddy-correct
        outputs: [{channel: mask, include: [brain_mask]}]
      - process: fit
        inputs: [{channel: mask}]
stages:
  - {name: qc, process: qc}
`)

	bp, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bp.Name != "dti" {
		t.Errorf("expected dti, got %q", bp.Name)
	}
	if len(bp.Layers) != 1 || len(bp.Layers[0].Units) != 3 {
		t.Fatalf("unexpected layers %+v", bp.Layers)
	}
	eddy := bp.Layers[0].Units[1]
	if eddy.UnitName() != "eddy" || len(eddy.Outputs) != 1 || eddy.Outputs[0].Include[0] != "brain_mask" {
		t.Errorf("unexpected unit %+v", eddy)
	}
	if bp.Layers[0].Units[0].UnitName() != "denoise" {
		t.Errorf("unit name should default to the process")
	}
	if len(bp.Stages) != 1 {
		t.Errorf("expected 1 stage, got %d", len(bp.Stages))
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("name: x\nlayerz: []\n"))
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "direct.yaml"), "name: direct\n")
	writeFile(t, filepath.Join(dir, "nested", "deep", "inner.yml"), "name: inner\n")

	loader := NewFileLoader(dir)
	for _, name := range []string{"direct", "inner"} {
		bp, err := loader.Load(name)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if bp.Name != name {
			t.Errorf("expected %s, got %s", name, bp.Name)
		}
	}
	if _, err := loader.Load("absent"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

// mapLoader serves blueprints from memory.
type mapLoader map[string]*Blueprint

func (m mapLoader) Load(name string) (*Blueprint, error) {
	bp, ok := m[name]
	if !ok {
		return nil, errors.NotFound("blueprint", name)
	}
	return bp, nil
}

func layer(name string, processes ...string) LayerDef {
	l := LayerDef{Name: name}
	for _, p := range processes {
		l.Units = append(l.Units, UnitDef{Process: p})
	}
	return l
}

func layerNames(bp *Blueprint) []string {
	var out []string
	for _, l := range bp.Layers {
		out = append(out, l.Name)
	}
	return out
}

func TestResolve_Includes(t *testing.T) {
	loader := mapLoader{
		"base": {Name: "base", Layers: []LayerDef{layer("load", "read")}},
		"prep": {Name: "prep", Includes: []string{"base"}, Layers: []LayerDef{layer("denoise", "dwidenoise")}},
		"qc":   {Name: "qc", Includes: []string{"base"}, Stages: []StageDef{{Name: "snr", Process: "snr"}}},
	}
	root := &Blueprint{Name: "root", Includes: []string{"prep", "qc"}, Layers: []LayerDef{layer("fit", "dtifit")}}

	got, err := Resolve(root, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"load", "denoise", "fit"}
	if names := layerNames(got); len(names) != len(want) {
		t.Fatalf("expected layers %v, got %v", want, names)
	} else {
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("layer %d: expected %s, got %s", i, want[i], names[i])
			}
		}
	}
	if len(got.Stages) != 1 {
		t.Errorf("expected 1 stage, got %d", len(got.Stages))
	}
	if len(got.Includes) != 0 {
		t.Errorf("resolved blueprint should have no includes")
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		root   *Blueprint
		loader Loader
		code   errors.ErrorCode
	}{
		{
			name: "circular",
			root: &Blueprint{Name: "a", Includes: []string{"b"}},
			loader: mapLoader{
				"b": {Name: "b", Includes: []string{"a"}},
				"a": {Name: "a", Includes: []string{"b"}},
			},
			code: errors.ErrCodeInvalidInput,
		},
		{
			name:   "missing include",
			root:   &Blueprint{Name: "a", Includes: []string{"ghost"}},
			loader: mapLoader{},
			code:   errors.ErrCodeNotFound,
		},
		{
			name: "no loader",
			root: &Blueprint{Name: "a", Includes: []string{"b"}},
			code: errors.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.root, tt.loader)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared", "base.yaml"), `
name: base
layers:
  - {name: load, units: [{process: read}]}
`)
	path := filepath.Join(dir, "main.yaml")
	writeFile(t, path, `
name: main
includes: [base]
layers:
  - {name: fit, units: [{process: dtifit}]}
`)

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names := layerNames(bp); len(names) != 2 || names[0] != "load" {
		t.Errorf("unexpected layers %v", names)
	}
}
