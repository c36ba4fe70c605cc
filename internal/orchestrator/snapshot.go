package orchestrator

import (
	"encoding/json"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/gate"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Strategy report outcomes.
const (
	OutcomeSignal       = "signal"
	OutcomeVeto         = "gate_veto"
	OutcomeDiagnostic   = "diagnostic"
	OutcomeNone         = "none"
	OutcomeFault        = "fault"
	OutcomeInactive     = "inactive"
	OutcomeDisabled     = "disabled"
	OutcomeNotEvaluated = "not_evaluated"
)

// ReasonSideDisabled is the veto reason when allow_buy/allow_sell is off.
const ReasonSideDisabled = "side_disabled"

// Result is the outcome of one Evaluate call. Signal is nil when no
// strategy produced an allowed signal. Both pointers may be shared with
// the engine's cache and must be treated as read-only.
type Result struct {
	Signal   *model.Signal `json:"signal"`
	Snapshot *Snapshot     `json:"snapshot"`
}

// Snapshot is the read-only analysis of one evaluation.
type Snapshot struct {
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
	Ready  bool   `json:"ready"`
	// Reason explains a not-ready snapshot.
	Reason string `json:"reason,omitempty"`
	Bars   int    `json:"bars"`
	// BarTime is the open time of the last closed bar; Time its close time.
	BarTime int64 `json:"bar_time,omitempty"`
	Time    int64 `json:"time,omitempty"`
	BarKey  int64 `json:"bar_key,omitempty"`

	Relax       RelaxReport      `json:"relax"`
	Indicators  *evalctx.Metrics `json:"indicators,omitempty"`
	SceneActive []string         `json:"scene_active"`
	FinalActive []string         `json:"final_active"`
	Strategies  []Report         `json:"strategies"`
	Chosen      string           `json:"chosen,omitempty"`
}

// RelaxReport is the relax state after the evaluation.
type RelaxReport struct {
	Active            bool    `json:"active"`
	ActiveSince       int64   `json:"active_since,omitempty"`
	LastSceneActiveAt int64   `json:"last_scene_active_at"`
	IdleMinutes       float64 `json:"idle_minutes"`
	// Transition is "entered", "exited" or "none" for this evaluation.
	Transition string `json:"transition"`
	// Applied reports whether relax substitution was in effect for the
	// guards of this evaluation.
	Applied bool `json:"applied"`
}

// Report is the per-strategy entry of a snapshot, in priority order.
type Report struct {
	ID         string         `json:"id"`
	Priority   int            `json:"priority"`
	Enabled    bool           `json:"enabled"`
	Rigidity   int            `json:"rigidity"`
	Label      string         `json:"label"`
	Guard      guard.Result   `json:"guard"`
	Outcome    string         `json:"outcome"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	Error      string         `json:"error,omitempty"`
	Signal     *model.Signal  `json:"signal,omitempty"`
	Gate       *gate.Decision `json:"gate,omitempty"`
}

// Report returns the entry of strategy id.
func (s *Snapshot) Report(id string) (Report, bool) {
	for _, r := range s.Strategies {
		if r.ID == id {
			return r, true
		}
	}
	return Report{}, false
}

// JSON encodes the snapshot. The encoding is deterministic.
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
