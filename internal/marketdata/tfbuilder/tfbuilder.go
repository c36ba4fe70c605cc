// Package tfbuilder resamples closed execution-timeframe bars into higher
// timeframes. Each (symbol, TF) pair holds one forming bucket updated in O(1)
// per input bar; the bucket is emitted closed once an input bar reaches its
// end or a bar from a later bucket arrives.
package tfbuilder

import (
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

type tfState struct {
	bucket int64 // bucket open time, Unix ms
	candle model.Candle
}

// Builder is not safe for concurrent use; run it on the goroutine that owns
// the candle stream.
type Builder struct {
	tfs    []int
	states []map[string]*tfState
	log    zerolog.Logger

	// OnStale is called when an input bar falls behind the forming bucket.
	OnStale func(symbol string, tf int)
}

// New creates a builder for the given timeframes in seconds.
func New(tfs []int, log zerolog.Logger) *Builder {
	b := &Builder{log: log}
	b.SetTFs(tfs)
	return b
}

// SetTFs replaces the target timeframes. State of timeframes that remain is
// kept; forming buckets of removed timeframes are discarded.
func (b *Builder) SetTFs(tfs []int) {
	old := make(map[int]map[string]*tfState, len(b.tfs))
	for i, tf := range b.tfs {
		old[tf] = b.states[i]
	}
	b.tfs = append([]int(nil), tfs...)
	b.states = make([]map[string]*tfState, len(tfs))
	for i, tf := range tfs {
		if st, ok := old[tf]; ok {
			b.states[i] = st
		} else {
			b.states[i] = make(map[string]*tfState, 16)
		}
	}
}

// TFs returns the current target timeframes.
func (b *Builder) TFs() []int { return b.tfs }

// Process merges one closed bar into every target timeframe and returns the
// resulting updates: a forming snapshot per timeframe, or a closed bar when
// the input completes its bucket. Forming input bars are ignored.
func (b *Builder) Process(symbol string, c model.Candle) []model.CandleUpdate {
	if !c.Closed {
		return nil
	}
	out := make([]model.CandleUpdate, 0, len(b.tfs))
	for i := range b.tfs {
		out = b.step(i, symbol, c, out)
	}
	return out
}

func (b *Builder) step(i int, symbol string, c model.Candle, out []model.CandleUpdate) []model.CandleUpdate {
	tf := b.tfs[i]
	tfMs := int64(tf) * 1000
	bucket := c.OpenTime - c.OpenTime%tfMs
	end := bucket + tfMs - 1

	st, ok := b.states[i][symbol]
	if ok && bucket < st.bucket {
		if b.OnStale != nil {
			b.OnStale(symbol, tf)
		}
		b.log.Debug().Str("symbol", symbol).Int("tf", tf).Int64("open_time", c.OpenTime).Msg("stale bar skipped")
		return out
	}
	if ok && bucket > st.bucket {
		// The previous bucket never saw its last bar; close it as is.
		st.candle.Closed = true
		out = append(out, model.CandleUpdate{Symbol: symbol, TF: tf, Candle: st.candle})
		ok = false
	}

	if !ok {
		st = &tfState{bucket: bucket, candle: model.Candle{
			OpenTime: bucket, CloseTime: end,
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
			Volume: c.Volume,
		}}
		b.states[i][symbol] = st
	} else {
		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume
	}

	if c.CloseTime >= end {
		st.candle.Closed = true
		delete(b.states[i], symbol)
	}
	return append(out, model.CandleUpdate{Symbol: symbol, TF: tf, Candle: st.candle})
}

// Seed primes the forming buckets of symbol from closed history, typically
// the execution bars loaded at backfill. Only bars inside each timeframe's
// current bucket are merged; nothing is emitted.
func (b *Builder) Seed(symbol string, history []model.Candle) {
	history = model.ClosedOnly(history)
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	for i, tf := range b.tfs {
		tfMs := int64(tf) * 1000
		bucket := last.OpenTime - last.OpenTime%tfMs
		delete(b.states[i], symbol)
		start := len(history)
		for start > 0 && history[start-1].OpenTime >= bucket {
			start--
		}
		for _, c := range history[start:] {
			if c.Closed {
				b.step(i, symbol, c, nil)
			}
		}
	}
}
