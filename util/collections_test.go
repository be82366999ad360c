package util

import (
	"slices"
	"testing"
)

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"dwi": 1, "bvals": 2, "mask": 3})
	if !slices.Equal(got, []string{"bvals", "dwi", "mask"}) {
		t.Errorf("expected sorted keys, got %v", got)
	}
	if len(SortedKeys(map[string]int{})) != 0 {
		t.Error("expected no keys for empty map")
	}
}

func TestMissing(t *testing.T) {
	m := map[string]any{"dwi": "a.nii", "bvals": "a.bval"}
	tests := []struct {
		name     string
		required []string
		want     []string
	}{
		{"all present", []string{"dwi", "bvals"}, nil},
		{"one missing", []string{"dwi", "mask"}, []string{"mask"}},
		{"order kept", []string{"z", "dwi", "a"}, []string{"z", "a"}},
		{"none required", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Missing(m, tc.required); !slices.Equal(got, tc.want) {
				t.Errorf("Missing() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "", "c", "d"); got != "c" {
		t.Errorf("expected 'c', got %q", got)
	}
	if got := Coalesce(0, 0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
