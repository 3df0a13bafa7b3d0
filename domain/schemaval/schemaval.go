// Package schemaval validates resource payloads against JSON Schema
// documents. Schemas are runtime data (declared per app), so documents are
// compiled when a type is loaded, not generated as static Go types.
package schemaval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Mode selects how strictly a payload is checked.
type Mode int

const (
	// Full enforces the schema completely, including required properties.
	Full Mode = iota

	// Partial validates only the properties present in the payload;
	// required-ness of absent properties is not enforced.
	Partial
)

// Errors maps property paths to human-readable messages.
type Errors map[string]string

// Error renders the map as a single sorted message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// Schema wraps a JSON Schema compiled in full and partial forms.
type Schema struct {
	full    *gojsonschema.Schema
	partial *gojsonschema.Schema
}

// Compile compiles a JSON Schema document. The partial form is the same
// document with top-level required stripped.
func Compile(doc map[string]any) (*Schema, error) {
	full, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	partial, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(withoutRequired(doc)))
	if err != nil {
		return nil, fmt.Errorf("compile partial schema: %w", err)
	}

	return &Schema{full: full, partial: partial}, nil
}

// Validate checks payload against the schema in the given mode.
// A nil return means the payload is valid.
func (s *Schema) Validate(payload map[string]any, mode Mode) Errors {
	sch := s.full
	if mode == Partial {
		sch = s.partial
	}

	result, err := sch.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return Errors{"(root)": err.Error()}
	}
	if result.Valid() {
		return nil
	}

	errs := make(Errors, len(result.Errors()))
	for _, e := range result.Errors() {
		errs[e.Field()] = e.Description()
	}
	return errs
}

// withoutRequired returns a shallow copy of doc with the top-level
// required keyword removed.
func withoutRequired(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "required" {
			continue
		}
		out[k] = v
	}
	return out
}
