package model

import "context"

// ── Collaborator Port Interfaces ──
// These interfaces decouple the engine from concrete market-data and delivery
// implementations (in-memory store, Redis, SQLite, Kafka).

// CandleSource provides candle series for evaluation.
type CandleSource interface {
	// ClosedCandles returns the closed candles of (symbol, tf), oldest first.
	// The returned slice is owned by the caller.
	ClosedCandles(symbol string, tf int) []Candle
}

// CandleReader reads historical candles for backfill and replay.
type CandleReader interface {
	// ReadCandles returns candles of (symbol, tf) with OpenTime > afterMs, oldest first.
	ReadCandles(symbol string, tf int, afterMs int64) ([]Candle, error)

	// Symbols lists the symbols that have candles for tf.
	Symbols(tf int) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// CandleFeed delivers live candle updates for a set of series.
type CandleFeed interface {
	// Run blocks until ctx is cancelled, pushing every update to out.
	Run(ctx context.Context, out chan<- CandleUpdate) error
}

// CandleUpdate is one candle upsert for a (symbol, tf) series.
type CandleUpdate struct {
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
	Candle Candle `json:"candle"`
}
