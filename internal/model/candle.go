package model

import (
	"encoding/json"
	"strconv"
)

// Candle is one OHLCV bar of a (symbol, timeframe) series.
// Times are Unix milliseconds; OpenTime identifies the bar within its series.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Closed    bool    `json:"closed"`
}

// Range returns High-Low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body returns |Close-Open|.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the bar closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// StreamKey returns the Redis stream key for a series: "candle:{tf}s:{symbol}".
func StreamKey(symbol string, tf int) string {
	return "candle:" + strconv.Itoa(tf) + "s:" + symbol
}

// ClosedOnly returns the prefix of candles up to the last closed bar.
// Trailing forming bars are dropped; the input is not modified.
func ClosedOnly(candles []Candle) []Candle {
	n := len(candles)
	for n > 0 && !candles[n-1].Closed {
		n--
	}
	return candles[:n:n]
}
