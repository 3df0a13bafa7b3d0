// Package remap provides the default Remapper implementation used for views
// and action body transforms.
//
// A remap definition maps output properties to template expressions. A
// template substitutes `{path}` placeholders with values looked up in the
// input document (gjson path syntax, so nested paths like `address.city`
// work). An expression that consists of exactly one placeholder carries the
// looked-up value over with its original type; anything else renders as a
// string.
package remap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kamostudio/restack/ports"
)

// Template is the built-in remapper.
type Template struct{}

// New creates a template remapper.
func New() Template {
	return Template{}
}

// Remap evaluates def against input and returns the produced document.
func (Template) Remap(def map[string]string, input map[string]any) (map[string]any, error) {
	doc, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("remap input: %w", err)
	}

	out := make(map[string]any, len(def))
	for field, expr := range def {
		v, err := eval(doc, expr)
		if err != nil {
			return nil, fmt.Errorf("remap %q: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func eval(doc []byte, expr string) (any, error) {
	// Single-placeholder expressions preserve the value's type.
	if path, ok := singlePlaceholder(expr); ok {
		res := gjson.GetBytes(doc, path)
		if !res.Exists() {
			return nil, nil
		}
		return res.Value(), nil
	}

	var b strings.Builder
	rest := expr
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", expr)
		}

		b.WriteString(rest[:open])
		path := rest[open+1 : open+end]
		if path == "" {
			return nil, fmt.Errorf("empty placeholder in %q", expr)
		}
		b.WriteString(gjson.GetBytes(doc, path).String())
		rest = rest[open+end+1:]
	}
}

// singlePlaceholder reports whether expr is exactly one `{path}`.
func singlePlaceholder(expr string) (string, bool) {
	if len(expr) < 3 || expr[0] != '{' || expr[len(expr)-1] != '}' {
		return "", false
	}
	inner := expr[1 : len(expr)-1]
	if strings.ContainsAny(inner, "{}") {
		return "", false
	}
	return inner, true
}

// Ensure interface compliance.
var _ ports.Remapper = Template{}
