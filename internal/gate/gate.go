// Package gate implements the directional filter that may veto a signal
// after its strategy fired: price must sit beyond a long EMA by a minimum ATR
// distance and a shorter EMA must slope the same way.
package gate

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Config is the directional gate configuration.
type Config struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	DivisorPeriod     int     `yaml:"divisor_period" json:"divisor_period" default:"200" validate:"gte=2"`
	DirectionalPeriod int     `yaml:"directional_period" json:"directional_period" default:"50" validate:"gte=2"`
	MinDistATR        float64 `yaml:"min_dist_atr" json:"min_dist_atr" validate:"gte=0"`
	SlopeMin          float64 `yaml:"slope_min" json:"slope_min" validate:"gte=0"`
	SlopeLookback     int     `yaml:"slope_lookback" json:"slope_lookback" default:"3" validate:"gte=1"`
}

// Veto reasons.
const (
	ReasonDisabled    = "disabled"
	ReasonAllowed     = "ok"
	ReasonNotReady    = "not_ready"
	ReasonPrice       = "price_vs_divisor"
	ReasonSlope       = "directional_slope"
	ReasonInvalidSide = "invalid_side"
)

// Decision is the gate verdict for one side.
type Decision struct {
	Side      model.Side `json:"side"`
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason"`
	Price     float64    `json:"price,omitempty"`
	Divisor   float64    `json:"divisor,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	Slope     float64    `json:"slope,omitempty"`
}

// Periods returns the EMA periods the gate reads.
func Periods(cfg Config) []int {
	if !cfg.Enabled {
		return nil
	}
	return []int{cfg.DivisorPeriod, cfg.DirectionalPeriod}
}

// Allows evaluates the gate for side. A disabled gate always allows;
// an enabled gate vetoes when its inputs are not ready.
func Allows(side model.Side, ctx *evalctx.Context, cfg Config) Decision {
	d := Decision{Side: side}
	if !cfg.Enabled {
		d.Allowed, d.Reason = true, ReasonDisabled
		return d
	}
	if !side.Valid() {
		d.Reason = ReasonInvalidSide
		return d
	}
	lookback := cfg.SlopeLookback
	if lookback <= 0 {
		lookback = ctx.SlopeLookback()
	}
	div, ok1 := ctx.EMA(cfg.DivisorPeriod)
	atr, ok2 := ctx.ATR()
	slope, ok3 := ctx.SlopeOver(cfg.DirectionalPeriod, lookback)
	price, ok4 := ctx.Price()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		d.Reason = ReasonNotReady
		return d
	}

	d.Price, d.Divisor, d.Slope = price, div, slope
	if side == model.Buy {
		d.Threshold = div + cfg.MinDistATR*atr
		switch {
		case d.Price < d.Threshold:
			d.Reason = ReasonPrice
		case slope < cfg.SlopeMin:
			d.Reason = ReasonSlope
		default:
			d.Allowed, d.Reason = true, ReasonAllowed
		}
		return d
	}
	d.Threshold = div - cfg.MinDistATR*atr
	switch {
	case d.Price > d.Threshold:
		d.Reason = ReasonPrice
	case slope > -cfg.SlopeMin:
		d.Reason = ReasonSlope
	default:
		d.Allowed, d.Reason = true, ReasonAllowed
	}
	return d
}
