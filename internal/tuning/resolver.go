package tuning

import (
	"math"
	"sort"
	"strconv"
)

// Overrides are user-supplied field values keyed by strategy then field.
type Overrides map[string]map[string]any

// Presets are fixed field values keyed by strategy, anchor label, then
// field. A preset applies only when the strategy's level is exactly the
// anchor of that label.
type Presets map[string]map[string]map[string]any

// Resolver merges schema defaults, user overrides, rigidity interpolation
// and presets into a Profile. It holds no mutable state; Resolve is a pure
// function of its configuration and arguments.
type Resolver struct {
	schemas   map[string]Schema
	overrides Overrides
	presets   Presets
}

// NewResolver creates a resolver. Inputs are read, never modified.
func NewResolver(schemas map[string]Schema, overrides Overrides, presets Presets) *Resolver {
	return &Resolver{schemas: schemas, overrides: overrides, presets: presets}
}

// Schema returns the schema registered for a strategy.
func (r *Resolver) Schema(id string) (Schema, bool) {
	s, ok := r.schemas[id]
	return s, ok
}

// Resolve computes the profile for one strategy at its rigidity level.
// Unknown strategies resolve to an empty profile.
func (r *Resolver) Resolve(id string, rig Rigidity) Profile {
	schema := r.schemas[id]
	level := rig.Level(id)
	userVals := r.overrides[id]

	var preset map[string]any
	if AnchorIndex(level) >= 0 {
		preset = r.presets[id][Label(level)]
	}

	p := newProfile(len(schema))
	for _, f := range schema {
		v := resolveField(f, level, userVals[f.Name])
		if raw, ok := preset[f.Name]; ok {
			v = applyRaw(f, v, raw)
		}
		p.set(f.Name, v)
	}
	return p
}

// ResolveAll resolves every registered strategy.
func (r *Resolver) ResolveAll(rig Rigidity) map[string]Profile {
	out := make(map[string]Profile, len(r.schemas))
	for _, id := range r.IDs() {
		out[id] = r.Resolve(id, rig)
	}
	return out
}

// IDs returns the registered strategy ids in sorted order.
func (r *Resolver) IDs() []string {
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func resolveField(f Field, level int, user any) Value {
	switch f.Kind {
	case Bool:
		v := Value{Kind: Bool, Bool: f.BoolDefault}
		if b, ok := user.(bool); ok {
			v.Bool = b
		}
		return v
	case String:
		v := Value{Kind: String, Str: f.StrDefault}
		if s, ok := user.(string); ok {
			v.Str = s
		}
		return v
	}

	base := f.baseValue(Baseline)
	overridden := false
	if u, ok := toFloat(user); ok {
		base = f.sanitize(u)
		overridden = true
	}

	var v float64
	switch {
	case !f.HasBand:
		v = base
	case !f.HasDefault && !overridden:
		v = lerp(f.Loose, f.Strict, float64(level)/100)
	case level == Baseline:
		v = base
	case level < Baseline:
		v = lerp(base, f.Loose, float64(Baseline-level)/float64(Baseline))
	default:
		v = lerp(base, f.Strict, float64(level-Baseline)/float64(100-Baseline))
	}
	if v != base || overridden {
		v = f.sanitize(v)
	}
	return Value{Kind: Number, Num: v}
}

func applyRaw(f Field, cur Value, raw any) Value {
	switch f.Kind {
	case Bool:
		if b, ok := raw.(bool); ok {
			cur.Bool = b
		}
	case String:
		if s, ok := raw.(string); ok {
			cur.Str = s
		}
	default:
		if n, ok := toFloat(raw); ok {
			cur.Num = f.sanitize(n)
		}
	}
	return cur
}

// toFloat converts a decoded config value to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
