package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/dwiflow/errors"
)

type sampleStep struct {
	Name    string   `yaml:"name" validate:"required,identifier"`
	Kind    string   `yaml:"kind" validate:"omitempty,oneof=sequence parallel"`
	Retries int      `yaml:"retries" validate:"gte=0"`
	Keys    []string `yaml:"keys" validate:"min=1"`
}

type sampleConfig struct {
	Pipeline struct {
		MaxConcurrentProcesses int `mapstructure:"max_concurrent_processes" validate:"gte=0"`
	} `mapstructure:"pipeline"`
}

func fieldsOf(t *testing.T, err error) []FieldError {
	t.Helper()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("expected field details, got %v", appErr.Details)
	}
	return fields
}

func TestValidate_Valid(t *testing.T) {
	s := sampleStep{Name: "bet", Kind: "sequence", Keys: []string{"dwi"}}
	if err := Validate(s); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_FieldNamesFromYAMLTags(t *testing.T) {
	s := sampleStep{Name: "", Kind: "diagonal", Retries: -1}
	fields := fieldsOf(t, Validate(s))

	got := map[string]string{}
	for _, f := range fields {
		got[f.Field] = f.Message
	}
	if got["name"] != "is required" {
		t.Errorf("expected name required, got %q", got["name"])
	}
	if !strings.HasPrefix(got["kind"], "must be one of") {
		t.Errorf("expected kind oneof, got %q", got["kind"])
	}
	if got["retries"] == "" {
		t.Error("expected retries error")
	}
	if !strings.Contains(got["keys"], "at least 1 entries") {
		t.Errorf("expected keys min error, got %q", got["keys"])
	}
}

func TestValidate_IdentifierTag(t *testing.T) {
	s := sampleStep{Name: "1-bad name", Keys: []string{"dwi"}}
	fields := fieldsOf(t, Validate(s))
	if len(fields) != 1 || fields[0].Field != "name" {
		t.Fatalf("expected single name error, got %v", fields)
	}
}

func TestValidate_NestedPath(t *testing.T) {
	var cfg sampleConfig
	cfg.Pipeline.MaxConcurrentProcesses = -2
	fields := fieldsOf(t, Validate(cfg))
	if fields[0].Field != "pipeline.max_concurrent_processes" {
		t.Errorf("expected nested path, got %q", fields[0].Field)
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"eddy", true},
		{"layer_0.unit-a", true},
		{"", false},
		{"0abc", false},
		{"has space", false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := IsIdentifier(tc.in); got != tc.want {
				t.Errorf("IsIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidator_Collects(t *testing.T) {
	v := New()
	v.Required("name", "  ").
		Identifier("unit", "ok_name").
		Min("workers", 0, 1).
		OneOf("kind", "tree", []string{"sequence", "parallel"}).
		Unique("units", []string{"a", "b", "a"}).
		Custom(false, "process", "unknown process")

	if len(v.Errors()) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(v.Errors()), v.Errors())
	}
	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `duplicate name "a"`) {
		t.Errorf("expected duplicate message, got %v", err)
	}
}

func TestValidator_NoErrors(t *testing.T) {
	v := New().Required("name", "x").OneOf("kind", "", []string{"a"})
	if v.HasErrors() {
		t.Fatalf("unexpected errors %v", v.Errors())
	}
	if v.Validate() != nil || v.Err() != nil {
		t.Error("expected nil results")
	}
}

func TestValidator_Merge(t *testing.T) {
	inner := New()
	inner.AddError("name", "is required")

	v := New().
		Merge("layers[0]", inner.Err()).
		Merge("layers[1]", errors.NotFound("process", "eddy")).
		Merge("layers[2]", nil)

	fields := v.Errors()
	if len(fields) != 2 {
		t.Fatalf("expected 2 errors, got %v", fields)
	}
	if fields[0].Field != "layers[0].name" {
		t.Errorf("expected prefixed field, got %q", fields[0].Field)
	}
	if fields[1].Field != "layers[1]" {
		t.Errorf("expected whole-prefix field, got %q", fields[1].Field)
	}
}
