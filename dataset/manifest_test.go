package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/dwiflow/errors"
)

const study = `
subjects:
  - name: sub-01
    files:
      dwi: sub-01/dwi.nii.gz
      bval: /data/shared.bval
    values:
      b0_threshold: 50
  - name: sub-02
    repetitions: 2
    files:
      dwi: sub-02/dwi.nii.gz
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yaml")
	if err := os.WriteFile(path, []byte(study), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", m.Len())
	}

	pkgs := m.Packages()
	first := pkgs[0]
	if first[KeySubject] != "sub-01" || first[KeyRepetition] != 1 {
		t.Errorf("unexpected first package %v", first)
	}
	if first["dwi"] != filepath.Join(dir, "sub-01/dwi.nii.gz") {
		t.Errorf("relative path not resolved: %v", first["dwi"])
	}
	if first["bval"] != "/data/shared.bval" {
		t.Errorf("absolute path changed: %v", first["bval"])
	}
	if first["b0_threshold"] != 50 {
		t.Errorf("expected values to be copied, got %v", first["b0_threshold"])
	}

	for i, want := range []string{"sub-02_rep1", "sub-02_rep2"} {
		pkg := pkgs[i+1]
		if pkg[KeySubject] != want || pkg[KeySubjectName] != "sub-02" || pkg[KeyRepetition] != i+1 {
			t.Errorf("repetition %d: unexpected package %v", i+1, pkg)
		}
	}

	if src := m.Source(); src.Len() != 3 {
		t.Errorf("expected a source of 3 items, got %d", src.Len())
	}
}

func TestManifest_Missing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.nii")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ParseManifest([]byte(`
subjects:
  - name: s
    files: {dwi: a.nii, mask: b.nii}
`), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing := m.Missing()
	if len(missing) != 1 || missing[0] != filepath.Join(dir, "b.nii") {
		t.Errorf("unexpected missing files %v", missing)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no subjects", "subjects: []\n"},
		{"unnamed subject", "subjects: [{files: {dwi: x}}]\n"},
		{"negative repetitions", "subjects: [{name: s, repetitions: -1}]\n"},
		{"duplicate subject", "subjects: [{name: s}, {name: s}]\n"},
		{"unknown key", "subjects: [{name: s, filez: {}}]\n"},
		{"value shadows file", "subjects: [{name: s, files: {dwi: x}, values: {dwi: 1}}]\n"},
		{"malformed", "subjects: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml), "")
			if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestLoadManifest_NotFound(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
