// Package strategy provides the static registry of pattern detectors.
//
// A Detector declares its tuning schema, its guard conditions and the EMA
// periods it reads, and turns a shared evaluation context into a signal, a
// diagnostic reason, or nothing. Detectors are stateless and never modify
// their inputs.
package strategy

import (
	"sort"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Strategy ids in default priority order.
const (
	IDORB            = "orb"
	IDLiquiditySweep = "liquiditySweep"
	IDDoubleTop      = "doubleTop"
	IDRetest         = "retest"
	IDRangeBreakout  = "rangeBreakout"
	IDATRSqueeze     = "atrSqueeze"
	IDVWAPBounce     = "vwapBounce"
	IDEMAPullback    = "emaPullback"
	IDEMACross       = "emaCross"
)

// Input is everything a detector may read.
type Input struct {
	Symbol  string
	Ctx     *evalctx.Context
	Candles []model.Candle
	Tuning  tuning.Profile
	// Gate reports whether the directional gate would allow a side.
	Gate func(model.Side) bool
}

// Outcome is a detector's result: a signal, a diagnostic, or neither.
// Err marks a fault; the signal is ignored when Err is set.
type Outcome struct {
	Signal     *model.Signal
	Diagnostic string
	Err        error
}

// Detector is one strategy.
type Detector interface {
	// ID returns the unique strategy id.
	ID() string

	// Schema returns the tuning fields with defaults and bands.
	Schema() tuning.Schema

	// Guards returns the ordered eligibility conditions.
	Guards() []guard.Condition

	// Periods returns the EMA periods read under a resolved profile.
	Periods(p tuning.Profile) []int

	// Detect evaluates the pattern on the last closed candle.
	Detect(in Input) Outcome
}

// Registry is an ordered, immutable set of detectors.
type Registry struct {
	detectors []Detector
	byID      map[string]Detector
}

// NewRegistry creates a registry; order is the default priority.
// A later detector with a duplicate id is ignored.
func NewRegistry(ds ...Detector) *Registry {
	r := &Registry{byID: make(map[string]Detector, len(ds))}
	for _, d := range ds {
		if _, dup := r.byID[d.ID()]; dup {
			continue
		}
		r.detectors = append(r.detectors, d)
		r.byID[d.ID()] = d
	}
	return r
}

// Default returns the built-in detectors in default priority order.
func Default() *Registry {
	return NewRegistry(
		ORB{},
		LiquiditySweep{},
		DoubleTop{},
		Retest{},
		RangeBreakout{},
		ATRSqueeze{},
		VWAPBounce{},
		EMAPullback{},
		EMACross{},
	)
}

// Get looks up a detector.
func (r *Registry) Get(id string) (Detector, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns the ids in default priority order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		out[i] = d.ID()
	}
	return out
}

// Schemas returns every detector's schema keyed by id.
func (r *Registry) Schemas() map[string]tuning.Schema {
	out := make(map[string]tuning.Schema, len(r.detectors))
	for _, d := range r.detectors {
		out[d.ID()] = d.Schema()
	}
	return out
}

// Conditions returns every detector's guard conditions keyed by id.
func (r *Registry) Conditions() map[string][]guard.Condition {
	out := make(map[string][]guard.Condition, len(r.detectors))
	for _, d := range r.detectors {
		out[d.ID()] = d.Guards()
	}
	return out
}

// Periods returns the sorted union of EMA periods under the given profiles.
func (r *Registry) Periods(profiles map[string]tuning.Profile) []int {
	seen := make(map[int]bool)
	for _, d := range r.detectors {
		for _, p := range d.Periods(profiles[d.ID()]) {
			if p > 0 {
				seen[p] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Order returns ids following priority first, then any registered ids the
// list omits in default order. Unknown and repeated ids are dropped.
func (r *Registry) Order(priority []string) []string {
	out := make([]string, 0, len(r.detectors))
	seen := make(map[string]bool, len(r.detectors))
	for _, id := range priority {
		if _, ok := r.byID[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, d := range r.detectors {
		if !seen[d.ID()] {
			out = append(out, d.ID())
		}
	}
	return out
}
