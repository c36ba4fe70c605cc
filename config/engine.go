package config

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/gate"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/markethours"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/relax"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Engine is the evaluation engine configuration. A published *Engine is
// treated as an immutable snapshot; every accessor builds fresh maps.
type Engine struct {
	Version int `yaml:"version" json:"version" default:"3"`

	// ExecutionTF is the execution timeframe in seconds.
	ExecutionTF int `yaml:"execution_tf" json:"execution_tf" default:"60" validate:"gt=0"`
	// RegimeTFs are higher timeframes summarised for trend agreement.
	RegimeTFs     []int `yaml:"regime_tfs" json:"regime_tfs" validate:"dive,gt=0"`
	MinHistory    int   `yaml:"min_history" json:"min_history" default:"60" validate:"gte=1"`
	SlopeLookback int   `yaml:"slope_lookback" json:"slope_lookback" default:"3" validate:"gte=1"`

	Priority  []string `yaml:"priority" json:"priority"`
	AllowBuy  bool     `yaml:"allow_buy" json:"allow_buy" default:"true"`
	AllowSell bool     `yaml:"allow_sell" json:"allow_sell" default:"true"`

	Rigidity   Rigidity                  `yaml:"rigidity" json:"rigidity"`
	Presets    tuning.Presets            `yaml:"presets" json:"presets,omitempty"`
	Strategies map[string]StrategyConfig `yaml:"strategies" json:"strategies,omitempty" validate:"dive"`

	Relax   Relax               `yaml:"relax" json:"relax"`
	Gate    gate.Config         `yaml:"gate" json:"gate"`
	Session markethours.Session `yaml:"session" json:"session"`
}

// Rigidity holds the global rigidity level; per-strategy levels live on
// StrategyConfig.
type Rigidity struct {
	Global int `yaml:"global" json:"global" default:"50" validate:"gte=0,lte=100"`
}

// StrategyConfig is the operator configuration of one strategy.
type StrategyConfig struct {
	// Enabled defaults to true when unset.
	Enabled  *bool `yaml:"enabled" json:"enabled,omitempty"`
	Rigidity *int  `yaml:"rigidity" json:"rigidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	// Tuning overrides replace the interpolation pivot of a field.
	Tuning map[string]any `yaml:"tuning" json:"tuning,omitempty"`
	// DisabledGuards lists guard condition indices forced to pass.
	DisabledGuards []int `yaml:"disabled_guards" json:"disabled_guards,omitempty" validate:"dive,gte=0"`
}

// Relax configures relax mode. Nil thresholds disable substitution for
// that kind of field.
type Relax struct {
	Auto         bool    `yaml:"auto" json:"auto" default:"true"`
	AfterMinutes float64 `yaml:"after_minutes" json:"after_minutes" default:"30" validate:"gte=0"`
	// Exempt strategies skip substitution and idle accounting. Nil means
	// relax.DefaultExempt; an explicit empty list exempts nothing.
	Exempt     []string `yaml:"exempt" json:"exempt"`
	SlopeMin   *float64 `yaml:"slope_min" json:"slope_min,omitempty" default:"0.00005"`
	GapMin     *float64 `yaml:"gap_min" json:"gap_min,omitempty" default:"0.05"`
	VolumeMult *float64 `yaml:"volume_mult" json:"volume_mult,omitempty" default:"0.9"`
}

// Enabled reports whether strategy id is externally enabled.
func (e *Engine) Enabled(id string) bool {
	sc, ok := e.Strategies[id]
	if !ok || sc.Enabled == nil {
		return true
	}
	return *sc.Enabled
}

// RigidityState returns the global and per-strategy rigidity levels.
func (e *Engine) RigidityState() tuning.Rigidity {
	r := tuning.Rigidity{Global: e.Rigidity.Global, Overrides: map[string]int{}}
	for id, sc := range e.Strategies {
		if sc.Rigidity != nil {
			r.Overrides[id] = *sc.Rigidity
		}
	}
	return r
}

// Overrides returns the per-strategy tuning overrides.
func (e *Engine) Overrides() tuning.Overrides {
	out := make(tuning.Overrides, len(e.Strategies))
	for id, sc := range e.Strategies {
		if len(sc.Tuning) > 0 {
			out[id] = sc.Tuning
		}
	}
	return out
}

// Toggles returns the manual guard overrides keyed by strategy and index.
func (e *Engine) Toggles() guard.Toggles {
	out := make(guard.Toggles)
	for id, sc := range e.Strategies {
		if len(sc.DisabledGuards) == 0 {
			continue
		}
		m := make(map[int]bool, len(sc.DisabledGuards))
		for _, i := range sc.DisabledGuards {
			m[i] = true
		}
		out[id] = m
	}
	return out
}

// RelaxConfig returns the state machine configuration.
func (e *Engine) RelaxConfig() relax.Config {
	return relax.Config{Auto: e.Relax.Auto, AfterMinutes: e.Relax.AfterMinutes}
}

// RelaxExempt returns the exempt strategy set.
func (e *Engine) RelaxExempt() map[string]bool {
	if e.Relax.Exempt == nil {
		return relax.ExemptSet(relax.DefaultExempt)
	}
	return relax.ExemptSet(e.Relax.Exempt)
}

// RelaxValues returns the configured relax thresholds by kind.
func (e *Engine) RelaxValues() map[tuning.RelaxKey]float64 {
	out := make(map[tuning.RelaxKey]float64, 3)
	if e.Relax.SlopeMin != nil {
		out[tuning.RelaxSlope] = *e.Relax.SlopeMin
	}
	if e.Relax.GapMin != nil {
		out[tuning.RelaxGap] = *e.Relax.GapMin
	}
	if e.Relax.VolumeMult != nil {
		out[tuning.RelaxVolume] = *e.Relax.VolumeMult
	}
	return out
}

// DefaultExecutionTF replaces a non-positive execution timeframe.
const DefaultExecutionTF = 60

// BarMs returns the execution bar duration in milliseconds.
func (e *Engine) BarMs() int64 {
	if e.ExecutionTF <= 0 {
		return DefaultExecutionTF * 1000
	}
	return int64(e.ExecutionTF) * 1000
}
