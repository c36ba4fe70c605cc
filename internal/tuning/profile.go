package tuning

import (
	"encoding/json"
	"math"
)

// Value is one resolved tuning value.
type Value struct {
	Kind Kind
	Num  float64
	Bool bool
	Str  string
}

// Profile is a resolved, read-only set of tuning values for one strategy.
// Lookups of unknown names return the zero value.
type Profile struct {
	values map[string]Value
}

func newProfile(n int) Profile {
	return Profile{values: make(map[string]Value, n)}
}

func (p Profile) set(name string, v Value) {
	p.values[name] = v
}

// Num returns a numeric field.
func (p Profile) Num(name string) float64 {
	return p.values[name].Num
}

// Int returns a numeric field rounded to the nearest integer.
func (p Profile) Int(name string) int {
	return int(math.Round(p.values[name].Num))
}

// Bool returns a boolean field.
func (p Profile) Bool(name string) bool {
	return p.values[name].Bool
}

// Str returns a string field.
func (p Profile) Str(name string) string {
	return p.values[name].Str
}

// Has reports whether name is part of the profile.
func (p Profile) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// With returns a copy of p with a numeric field replaced.
func (p Profile) With(name string, v float64) Profile {
	out := newProfile(len(p.values))
	for k, val := range p.values {
		out.values[k] = val
	}
	out.values[name] = Value{Kind: Number, Num: v}
	return out
}

// Equal reports whether two profiles hold the same values.
func (p Profile) Equal(o Profile) bool {
	if len(p.values) != len(o.values) {
		return false
	}
	for k, v := range p.values {
		if ov, ok := o.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Map returns the profile as plain values keyed by field name.
func (p Profile) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		switch v.Kind {
		case Bool:
			out[k] = v.Bool
		case String:
			out[k] = v.Str
		default:
			out[k] = v.Num
		}
	}
	return out
}

// MarshalJSON encodes the profile as an object with sorted keys.
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON decodes the object form written by MarshalJSON.
func (p *Profile) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = newProfile(len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case bool:
			p.values[k] = Value{Kind: Bool, Bool: x}
		case string:
			p.values[k] = Value{Kind: String, Str: x}
		case float64:
			p.values[k] = Value{Kind: Number, Num: x}
		}
	}
	return nil
}
