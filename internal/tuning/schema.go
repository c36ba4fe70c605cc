// Package tuning resolves per-strategy parameter profiles from typed field
// schemas, user overrides, rigidity levels and named presets.
package tuning

import "math"

// Kind is the value type of a tuning field.
type Kind int

const (
	Number Kind = iota
	Bool
	String
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case String:
		return "string"
	}
	return "number"
}

// RelaxKey tags a field as a threshold that relax mode may loosen.
type RelaxKey string

const (
	RelaxNone   RelaxKey = ""
	RelaxSlope  RelaxKey = "slope"
	RelaxGap    RelaxKey = "gap"
	RelaxVolume RelaxKey = "volume"
)

// Field describes one tuning parameter.
//
// A numeric field may carry a default, a loose/strict band, an allowed
// [Min, Max] range and a rounding step. Fields with a band and a default
// interpolate around the default; fields with a band and no default
// interpolate straight from loose to strict.
type Field struct {
	Name  string
	Kind  Kind
	Relax RelaxKey

	Default    float64
	HasDefault bool
	Loose      float64
	Strict     float64
	HasBand    bool
	Min        float64
	Max        float64
	HasRange   bool
	Step       float64

	BoolDefault bool
	StrDefault  string
}

// Num declares a numeric field with a default and a loose/strict band.
func Num(name string, def, loose, strict float64) Field {
	return Field{Name: name, Kind: Number, Default: def, HasDefault: true, Loose: loose, Strict: strict, HasBand: true}
}

// Fixed declares a numeric field that rigidity does not move.
func Fixed(name string, def float64) Field {
	return Field{Name: name, Kind: Number, Default: def, HasDefault: true}
}

// Span declares a numeric field without a default that interpolates
// linearly from loose at level 0 to strict at level 100.
func Span(name string, loose, strict float64) Field {
	return Field{Name: name, Kind: Number, Loose: loose, Strict: strict, HasBand: true}
}

// Flag declares a boolean field.
func Flag(name string, def bool) Field {
	return Field{Name: name, Kind: Bool, BoolDefault: def}
}

// Text declares a string field.
func Text(name, def string) Field {
	return Field{Name: name, Kind: String, StrDefault: def}
}

// Range sets the allowed value range.
func (f Field) Range(min, max float64) Field {
	f.Min, f.Max, f.HasRange = min, max, true
	return f
}

// Round sets the rounding step.
func (f Field) Round(step float64) Field {
	f.Step = step
	return f
}

// Relaxed tags the field for relax-mode substitution.
func (f Field) Relaxed(k RelaxKey) Field {
	f.Relax = k
	return f
}

// LooserIsLower reports whether smaller values loosen the threshold.
func (f Field) LooserIsLower() bool {
	return !f.HasBand || f.Loose <= f.Strict
}

// Looser returns whichever of a and b is the looser threshold.
func (f Field) Looser(a, b float64) float64 {
	if f.LooserIsLower() {
		return math.Min(a, b)
	}
	return math.Max(a, b)
}

// baseValue is the value at the baseline level.
func (f Field) baseValue(baseline int) float64 {
	if f.HasDefault || !f.HasBand {
		return f.Default
	}
	return lerp(f.Loose, f.Strict, float64(baseline)/100)
}

// sanitize clamps v to the field range and rounds it to the step.
func (f Field) sanitize(v float64) float64 {
	if f.HasRange {
		v = math.Max(f.Min, math.Min(f.Max, v))
	}
	if f.Step > 0 {
		v = math.Round(v/f.Step) * f.Step
		v = math.Round(v*1e10) / 1e10
		if f.HasRange {
			v = math.Max(f.Min, math.Min(f.Max, v))
		}
	}
	return v
}

// Schema is the ordered list of a strategy's tuning fields.
type Schema []Field

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the profile of field defaults at the baseline level.
func (s Schema) Defaults() Profile {
	p := newProfile(len(s))
	for _, f := range s {
		switch f.Kind {
		case Bool:
			p.set(f.Name, Value{Kind: Bool, Bool: f.BoolDefault})
		case String:
			p.set(f.Name, Value{Kind: String, Str: f.StrDefault})
		default:
			p.set(f.Name, Value{Kind: Number, Num: f.baseValue(Baseline)})
		}
	}
	return p
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
