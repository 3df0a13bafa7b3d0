package remap_test

import (
	"testing"

	"github.com/kamostudio/restack/adapters/remap"
)

func TestTemplate_Remap(t *testing.T) {
	r := remap.New()

	input := map[string]any{
		"firstName": "Spongebob",
		"lastName":  "Squarepants",
		"age":       float64(37),
		"address":   map[string]any{"city": "Bikini Bottom"},
	}

	out, err := r.Remap(map[string]string{
		"fullName": "{firstName} {lastName}",
		"age":      "{age}",
		"city":     "{address.city}",
		"label":    "resident",
	}, input)
	if err != nil {
		t.Fatalf("remap: %v", err)
	}

	if got := out["fullName"]; got != "Spongebob Squarepants" {
		t.Errorf("fullName = %v, want Spongebob Squarepants", got)
	}
	if got := out["age"]; got != float64(37) {
		t.Errorf("age = %v (%T), want 37 (float64)", got, got)
	}
	if got := out["city"]; got != "Bikini Bottom" {
		t.Errorf("city = %v, want Bikini Bottom", got)
	}
	if got := out["label"]; got != "resident" {
		t.Errorf("label = %v, want resident", got)
	}
}

func TestTemplate_Remap_MissingPath(t *testing.T) {
	r := remap.New()

	out, err := r.Remap(map[string]string{
		"gone":  "{nope}",
		"mixed": "x{nope}y",
	}, map[string]any{"present": true})
	if err != nil {
		t.Fatalf("remap: %v", err)
	}

	if out["gone"] != nil {
		t.Errorf("gone = %v, want nil", out["gone"])
	}
	if out["mixed"] != "xy" {
		t.Errorf("mixed = %v, want xy", out["mixed"])
	}
}

func TestTemplate_Remap_Unterminated(t *testing.T) {
	r := remap.New()

	if _, err := r.Remap(map[string]string{"bad": "{oops"}, map[string]any{}); err == nil {
		t.Error("expected error for unterminated placeholder")
	}
}
