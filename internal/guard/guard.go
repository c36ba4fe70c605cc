// Package guard evaluates the ordered, named eligibility conditions each
// strategy declares, with manual overrides and relax-mode substitution.
package guard

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Outcome is the raw result of one condition check.
type Outcome struct {
	Pass       bool
	Actual     *float64
	Expected   *float64
	Comparator string
}

// Condition is one named check over the context and resolved tuning.
type Condition struct {
	Label string
	Check func(ctx *evalctx.Context, p tuning.Profile) Outcome
}

// ConditionResult is the evaluated form of a Condition.
// Disabled means the condition was force-passed by a manual override.
type ConditionResult struct {
	Label      string   `json:"label"`
	Pass       bool     `json:"pass"`
	Actual     *float64 `json:"actual,omitempty"`
	Expected   *float64 `json:"expected,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
	Disabled   bool     `json:"disabled"`
}

// Result is the guard outcome of one strategy.
type Result struct {
	OK           bool              `json:"ok"`
	Conditions   []ConditionResult `json:"conditions"`
	RelaxApplied bool              `json:"relax_applied"`
	Tuning       tuning.Profile    `json:"tuning"`
}

// Toggles are manual overrides keyed by strategy then condition index.
type Toggles map[string]map[int]bool

// Relax describes relax-mode threshold substitution for one evaluation.
type Relax struct {
	Active bool
	// Values are the configured relax thresholds; a missing key disables
	// substitution for that kind of field.
	Values map[tuning.RelaxKey]float64
	// Exempt strategies are evaluated without substitution.
	Exempt map[string]bool
}

// Evaluator holds the declared conditions and schemas of every strategy.
type Evaluator struct {
	conditions map[string][]Condition
	schemas    map[string]tuning.Schema
}

// NewEvaluator creates an evaluator.
func NewEvaluator(conditions map[string][]Condition, schemas map[string]tuning.Schema) *Evaluator {
	return &Evaluator{conditions: conditions, schemas: schemas}
}

// Evaluate runs every strategy's conditions in declaration order.
func (e *Evaluator) Evaluate(ctx *evalctx.Context, relax Relax, profiles map[string]tuning.Profile, toggles Toggles) map[string]Result {
	out := make(map[string]Result, len(e.conditions))
	for id, conds := range e.conditions {
		out[id] = e.evaluateOne(id, conds, ctx, relax, profiles[id], toggles[id])
	}
	return out
}

// EvaluateOne runs a single strategy's conditions.
func (e *Evaluator) EvaluateOne(id string, ctx *evalctx.Context, relax Relax, profile tuning.Profile, toggles map[int]bool) Result {
	return e.evaluateOne(id, e.conditions[id], ctx, relax, profile, toggles)
}

func (e *Evaluator) evaluateOne(id string, conds []Condition, ctx *evalctx.Context, relax Relax, profile tuning.Profile, toggles map[int]bool) Result {
	res := Result{OK: true, Tuning: profile}
	if relax.Active && !relax.Exempt[id] {
		res.Tuning, res.RelaxApplied = Substitute(e.schemas[id], profile, relax.Values)
	}
	res.Conditions = make([]ConditionResult, len(conds))
	for i, c := range conds {
		o := c.Check(ctx, res.Tuning)
		cr := ConditionResult{
			Label:      c.Label,
			Pass:       o.Pass,
			Actual:     o.Actual,
			Expected:   o.Expected,
			Comparator: o.Comparator,
		}
		if toggles[i] {
			cr.Pass = true
			cr.Disabled = true
		}
		res.Conditions[i] = cr
		if !cr.Pass {
			res.OK = false
		}
	}
	return res
}

// Substitute replaces every relax-tagged field of profile with the looser of
// its resolved value and the configured relax value. It never tightens a
// threshold. applied reports whether any relax-tagged field had a value.
func Substitute(schema tuning.Schema, profile tuning.Profile, values map[tuning.RelaxKey]float64) (out tuning.Profile, applied bool) {
	out = profile
	for _, f := range schema {
		if f.Relax == tuning.RelaxNone || f.Kind != tuning.Number {
			continue
		}
		rv, ok := values[f.Relax]
		if !ok || math.IsNaN(rv) || math.IsInf(rv, 0) {
			continue
		}
		applied = true
		cur := profile.Num(f.Name)
		if v := f.Looser(rv, cur); v != cur {
			out = out.With(f.Name, v)
		}
	}
	return out, applied
}
