// Package marketdata holds the in-memory candle series the engine reads.
// Each (symbol, timeframe) series is a bounded ring updated by upserts from
// the live feed and by backfill from history.
package marketdata

import (
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/ringbuf"
)

// DefaultCapacity is the per-series window used when none is configured.
const DefaultCapacity = 1024

type seriesKey struct {
	symbol string
	tf     int
}

// Store is a concurrent set of candle series. It implements
// model.CandleSource.
type Store struct {
	mu       sync.RWMutex
	series   map[seriesKey]*ringbuf.Ring
	capacity int

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Event describes what one Apply did.
type Event struct {
	Op ringbuf.Op
	// Closed holds the bars that became closed by this update, oldest
	// first: a forming predecessor sealed by a newer bar and the updated
	// bar itself when it arrived closed.
	Closed []model.Candle
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store logger.
func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// WithStoreMetrics enables ingestion metrics.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store keeping up to capacity bars per series.
func NewStore(capacity int, opts ...StoreOption) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		series:   make(map[seriesKey]*ringbuf.Ring),
		capacity: capacity,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply upserts one candle. A candle older than the series tail is dropped;
// a newer one seals a still-forming predecessor.
func (s *Store) Apply(u model.CandleUpdate) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := seriesKey{u.Symbol, u.TF}
	r, ok := s.series[k]
	if !ok {
		r = ringbuf.New(s.capacity)
		s.series[k] = r
	}

	prev, hadPrev := r.Last()
	var ev Event
	if hadPrev && u.Candle.OpenTime > prev.OpenTime {
		if sealed, ok := r.SealLast(); ok {
			ev.Closed = append(ev.Closed, sealed)
		}
	}

	ev.Op = r.Upsert(u.Candle)
	switch ev.Op {
	case ringbuf.Stale:
		s.log.Debug().Str("symbol", u.Symbol).Int("tf", u.TF).
			Int64("open_time", u.Candle.OpenTime).Int64("tail", prev.OpenTime).Msg("stale candle dropped")
		if s.metrics != nil {
			s.metrics.StaleCandlesRejected.Inc()
		}
		return ev
	case ringbuf.Replaced:
		if u.Candle.Closed && !prev.Closed {
			ev.Closed = append(ev.Closed, u.Candle)
		}
	case ringbuf.Appended:
		if u.Candle.Closed {
			ev.Closed = append(ev.Closed, u.Candle)
		}
	}
	if s.metrics != nil {
		s.metrics.CandlesIngested.WithLabelValues(strconv.Itoa(u.TF)).Inc()
	}
	return ev
}

// Load backfills a series with historical closed candles, oldest first.
// It returns the number of candles accepted.
func (s *Store) Load(symbol string, tf int, candles []model.Candle) int {
	n := 0
	for _, c := range candles {
		c.Closed = true
		if ev := s.Apply(model.CandleUpdate{Symbol: symbol, TF: tf, Candle: c}); ev.Op != ringbuf.Stale {
			n++
		}
	}
	return n
}

// ClosedCandles returns the closed bars of (symbol, tf), oldest first.
// A forming tail bar is omitted.
func (s *Store) ClosedCandles(symbol string, tf int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.series[seriesKey{symbol, tf}]
	if !ok {
		return nil
	}
	return model.ClosedOnly(r.Snapshot())
}

// Last returns the newest bar of (symbol, tf), closed or not.
func (s *Store) Last(symbol string, tf int) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.series[seriesKey{symbol, tf}]
	if !ok {
		return model.Candle{}, false
	}
	return r.Last()
}

// Symbols returns the symbols with a series for tf, sorted.
func (s *Store) Symbols(tf int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.series {
		if k.tf == tf {
			out = append(out, k.symbol)
		}
	}
	sort.Strings(out)
	return out
}
