package model

import "encoding/json"

// Side is the direction of a trade signal.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Signal is the engine's trade recommendation for one closed bar.
// Once returned by the engine a Signal is never modified.
type Signal struct {
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	StrategyID     string    `json:"strategy_id"`
	Reason         string    `json:"reason"`
	Entry          float64   `json:"entry"`
	Stop           float64   `json:"stop"`
	Targets        []float64 `json:"targets,omitempty"`
	SizeMultiplier float64   `json:"size_multiplier,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	BarTime        int64     `json:"bar_time"`
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
