package status

import "time"

// Instant is an optional point in time. The zero value means "none", which
// orders after every concrete instant.
type Instant struct {
	t   time.Time
	set bool
}

// At returns a concrete Instant.
func At(t time.Time) Instant { return Instant{t: t, set: true} }

// None returns the empty Instant.
func None() Instant { return Instant{} }

// IsSet reports whether the Instant holds a time.
func (i Instant) IsSet() bool { return i.set }

// Time returns the held time and whether it is set.
func (i Instant) Time() (time.Time, bool) { return i.t, i.set }

// Before reports whether i sorts strictly before o.
func (i Instant) Before(o Instant) bool {
	switch {
	case !i.set:
		return false
	case !o.set:
		return true
	default:
		return i.t.Before(o.t)
	}
}

// Equal reports whether both are none or both hold the same instant.
func (i Instant) Equal(o Instant) bool {
	if i.set != o.set {
		return false
	}
	return !i.set || i.t.Equal(o.t)
}

// Min returns the earlier of i and o.
func (i Instant) Min(o Instant) Instant {
	if o.Before(i) {
		return o
	}
	return i
}

// Format renders the instant with layout in loc, or "" when none. A nil loc
// keeps the instant's own location.
func (i Instant) Format(layout string, loc *time.Location) string {
	if !i.set {
		return ""
	}
	t := i.t
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(layout)
}

// MarshalText implements encoding.TextMarshaler using RFC 3339.
func (i Instant) MarshalText() ([]byte, error) {
	return []byte(i.Format(time.RFC3339, nil)), nil
}
