// Package expiry derives resource expiration timestamps from type defaults
// and explicit overrides. Pure functions over an injected "now" so tests can
// freeze time.
package expiry

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFuture is returned when an explicit $expires does not lie strictly
// after the write's timestamp.
var ErrNotFuture = errors.New("expiration must be in the future")

// Compute derives the $expires timestamp for a write.
//
// An explicit override always wins and must be strictly after now. Without an
// override, a configured type default yields now + default; otherwise the
// resource never expires (nil).
func Compute(typeDefault time.Duration, override any, now time.Time) (*time.Time, error) {
	if override != nil {
		t, err := parseOverride(override)
		if err != nil {
			return nil, err
		}
		if !t.After(now) {
			return nil, ErrNotFuture
		}
		t = t.UTC()
		return &t, nil
	}

	if typeDefault > 0 {
		t := now.Add(typeDefault).UTC()
		return &t, nil
	}

	return nil, nil
}

func parseOverride(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expiration timestamp %q", ts)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("invalid expiration value type %T", v)
	}
}
