// Package resource provides the persisted resource value types and the
// default output envelope. This package has NO dependencies on I/O or
// external packages.
package resource

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Reserved top-level payload fields. They are stripped from a write payload
// before schema validation and never stored inside the data document.
const (
	FieldExpires  = "$expires"
	FieldClonable = "$clonable"
	FieldCreated  = "$created"
	FieldUpdated  = "$updated"
)

// Resource is one persisted instance of a resource type (value type).
type Resource struct {
	ID        int64
	AppID     string // owning tenant; every operation is scoped to one app
	Type      string
	Data      map[string]any
	Created   time.Time
	Updated   time.Time
	Expires   *time.Time // nil = never expires
	Clonable  bool
	CreatorID string // empty = no principal
	EditorID  string // most recent mutator only; empty = no principal
}

// Version is an append-only snapshot of a resource's prior state.
type Version struct {
	ID         string // globally unique (UUIDv4)
	ResourceID int64
	Data       map[string]any // nil when the policy records only that a change happened
	EditorID   string
	Created    time.Time
}

// Expired reports whether the resource is expired at time now.
func (r Resource) Expired(now time.Time) bool {
	return r.Expires != nil && !r.Expires.After(now)
}

// WriteFields holds the reserved top-level fields a caller may supply on any
// write. A nil pointer means the field was absent from the payload.
type WriteFields struct {
	Expires  any   // raw $expires value, nil if absent
	Clonable *bool // nil if absent
}

// SplitReserved returns a copy of payload without the reserved top-level
// fields, together with the reserved values that were present. The id field
// (under idField) is stripped as well; identity is carried out of band.
func SplitReserved(payload map[string]any, idField string) (map[string]any, WriteFields, error) {
	data := make(map[string]any, len(payload))
	var fields WriteFields

	for k, v := range payload {
		switch k {
		case idField, FieldCreated, FieldUpdated:
			// server-managed, ignored on input
		case FieldExpires:
			fields.Expires = v
		case FieldClonable:
			b, ok := v.(bool)
			if !ok {
				return nil, WriteFields{}, fmt.Errorf("%s must be a boolean", FieldClonable)
			}
			fields.Clonable = &b
		default:
			data[k] = v
		}
	}

	return data, fields, nil
}

// Envelope serializes a resource into the default output shape:
// the data document plus id, $created, $updated and, when set, $expires.
// The identity key is the type's declared id field.
func Envelope(r Resource, idField string) map[string]any {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out[idField] = r.ID
	out[FieldCreated] = r.Created.UTC().Format(time.RFC3339)
	out[FieldUpdated] = r.Updated.UTC().Format(time.RFC3339)
	if r.Expires != nil {
		out[FieldExpires] = r.Expires.UTC().Format(time.RFC3339)
	}
	return out
}

// ParseID extracts a resource id from a payload value. JSON decoding hands
// numbers over as float64; string ids are accepted for path parameters.
func ParseID(v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	case float64:
		if id != math.Trunc(id) {
			return 0, fmt.Errorf("invalid id %v", id)
		}
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", id)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid id type %T", v)
	}
}
