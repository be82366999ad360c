// Package validation provides struct-tag and programmatic validation for
// dwiflow configuration, blueprints and manifests.
//
// Struct tag validation uses go-playground/validator with field names taken
// from the yaml tag, so messages name the key a user wrote:
//
//	type UnitDef struct {
//	    Name    string `yaml:"name" validate:"required,identifier"`
//	    Process string `yaml:"process" validate:"required"`
//	}
//	err := validation.Validate(def)
//
// Programmatic validation collects errors for cross-field rules:
//
//	v := validation.New()
//	v.Custom(registry.Has(name), "layers[0].units[1].process", "unknown process")
//	err := v.Err()
package validation
