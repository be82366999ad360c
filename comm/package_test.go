package comm

import (
	"reflect"
	"testing"
)

func TestPackage_Merge(t *testing.T) {
	var nilPkg Package
	got := nilPkg.Merge(Package{"a": 1})
	if got["a"] != 1 {
		t.Errorf("merge into nil package lost data: %v", got)
	}

	p := Package{"a": 1, "b": 1}
	p.Merge(Package{"b": 2})
	if p["b"] != 2 {
		t.Errorf("later value must win, got %v", p["b"])
	}
}

func TestPackage_Project(t *testing.T) {
	p := Package{"a": 1, "b": 2}
	got := p.Project([]string{"b", "c"})
	if !reflect.DeepEqual(got, Package{"b": 2}) {
		t.Errorf("unexpected projection %v", got)
	}
}

func TestPackage_CloneIsIndependent(t *testing.T) {
	p := Package{"a": 1}
	c := p.Clone()
	c["a"] = 2
	if p["a"] != 1 {
		t.Error("clone shares storage with the original")
	}
}

func TestPackage_HasAndMissing(t *testing.T) {
	p := Package{"dwi": "x", "bval": "y"}
	if !p.Has("dwi") || p.Has("dwi", "mask") {
		t.Error("unexpected Has result")
	}
	if got := p.Missing([]string{"mask", "dwi", "bvec"}); !reflect.DeepEqual(got, []string{"mask", "bvec"}) {
		t.Errorf("unexpected missing keys %v", got)
	}
	if got := p.Keys(); !reflect.DeepEqual(got, []string{"bval", "dwi"}) {
		t.Errorf("unexpected keys %v", got)
	}
}

func TestFilter_Apply(t *testing.T) {
	p := Package{"a": 1, "b": 2, "c": 3}
	tests := []struct {
		name   string
		filter Filter
		want   Package
	}{
		{"zero", Filter{}, p},
		{"include", Filter{Include: []string{"a", "c"}}, Package{"a": 1, "c": 3}},
		{"exclude", Filter{Exclude: []string{"b"}}, Package{"a": 1, "c": 3}},
		{"both", Filter{Include: []string{"a", "b"}, Exclude: []string{"b"}}, Package{"a": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Apply(p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestID_RoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil || parsed != id {
		t.Fatalf("ParseID(%s) = %s, %v", id, parsed, err)
	}
	if id.IsZero() || !(ID{}).IsZero() {
		t.Error("unexpected IsZero result")
	}
	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("expected parse error")
	}
}

func TestCloseCondition(t *testing.T) {
	c := NewCloseCondition()
	if c.IsSet() {
		t.Fatal("new condition must be unset")
	}
	c.Set()
	c.Set()
	if !c.IsSet() {
		t.Fatal("expected set condition")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done must be closed once set")
	}
}
