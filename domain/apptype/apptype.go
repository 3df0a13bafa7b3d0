// Package apptype models the resource types an app declares: JSON schema,
// identity field, expiration default, history policy and named views.
// Definitions are runtime data parsed from app YAML files.
package apptype

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamostudio/restack/domain/schemaval"
)

// DefaultIDField is the identity property exposed to clients unless the type
// declares its own.
const DefaultIDField = "id"

// HistoryPolicy controls whether a mutation records the prior state.
//
// YAML forms: absent (no history), `true` (record prior data),
// `{data: false}` (record that a change happened, without data).
type HistoryPolicy struct {
	Enabled bool
	Data    bool
}

// UnmarshalYAML accepts the boolean and mapping forms.
func (p *HistoryPolicy) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		p.Enabled = b
		p.Data = b
		return nil
	case yaml.MappingNode:
		var raw struct {
			Data *bool `yaml:"data"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		p.Enabled = true
		p.Data = raw.Data == nil || *raw.Data
		return nil
	default:
		return fmt.Errorf("history: expected boolean or mapping")
	}
}

// ViewDef is a named output transform. The remap definition maps output
// properties to remapper expressions evaluated against each resource.
type ViewDef struct {
	Remap map[string]string `yaml:"remap"`
}

// ResourceType is a named, schema-validated entity kind declared by an app.
// Immutable at request time.
type ResourceType struct {
	Name           string
	Schema         map[string]any
	IDField        string
	ExpiresDefault time.Duration // zero = resources never expire by default
	History        HistoryPolicy
	Views          map[string]ViewDef

	compiled *schemaval.Schema
}

// Validate checks a payload against the type's schema.
func (t *ResourceType) Validate(payload map[string]any, mode schemaval.Mode) schemaval.Errors {
	return t.compiled.Validate(payload, mode)
}

// View returns the named view definition, if declared.
func (t *ResourceType) View(name string) (ViewDef, bool) {
	v, ok := t.Views[name]
	return v, ok
}

// Definition is one app's declaration: its name (the tenant id) and the
// resource types it owns.
type Definition struct {
	Name      string
	Resources map[string]*ResourceType
}

type rawType struct {
	Schema  map[string]any     `yaml:"schema"`
	ID      string             `yaml:"id"`
	Expires string             `yaml:"expires"`
	History *HistoryPolicy     `yaml:"history"`
	Views   map[string]ViewDef `yaml:"views"`
}

type rawDefinition struct {
	Name      string             `yaml:"name"`
	Resources map[string]rawType `yaml:"resources"`
}

// Parse parses and validates an app definition document.
func Parse(b []byte) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse app definition: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("app definition missing name")
	}

	def := &Definition{
		Name:      raw.Name,
		Resources: make(map[string]*ResourceType, len(raw.Resources)),
	}

	for name, rt := range raw.Resources {
		t, err := buildType(name, rt)
		if err != nil {
			return nil, fmt.Errorf("app %q resource %q: %w", raw.Name, name, err)
		}
		def.Resources[name] = t
	}

	return def, nil
}

func buildType(name string, raw rawType) (*ResourceType, error) {
	if raw.Schema == nil {
		return nil, fmt.Errorf("missing schema")
	}

	compiled, err := schemaval.Compile(raw.Schema)
	if err != nil {
		return nil, err
	}

	t := &ResourceType{
		Name:     name,
		Schema:   raw.Schema,
		IDField:  raw.ID,
		Views:    raw.Views,
		compiled: compiled,
	}
	if t.IDField == "" {
		t.IDField = DefaultIDField
	}
	if raw.History != nil {
		t.History = *raw.History
	}

	if raw.Expires != "" {
		d, err := time.ParseDuration(raw.Expires)
		if err != nil {
			return nil, fmt.Errorf("invalid expires duration %q", raw.Expires)
		}
		if d <= 0 {
			return nil, fmt.Errorf("expires duration must be positive, got %q", raw.Expires)
		}
		t.ExpiresDefault = d
	}

	for viewName, view := range raw.Views {
		if len(view.Remap) == 0 {
			return nil, fmt.Errorf("view %q has an empty remap", viewName)
		}
	}

	return t, nil
}
