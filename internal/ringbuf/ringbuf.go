// Package ringbuf provides a fixed-capacity candle ring that keeps the most
// recent bars of one series in open-time order. When full, appending a new
// bar evicts the oldest one.
//
// A Ring is not safe for concurrent use; callers guard it.
package ringbuf

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// Op is the effect of an Upsert.
type Op int

const (
	// Stale means the candle is older than the last bar and was dropped.
	Stale Op = iota
	// Appended means the candle started a new bar.
	Appended
	// Replaced means the candle updated the last bar in place.
	Replaced
)

func (o Op) String() string {
	switch o {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	}
	return "stale"
}

// Ring is a bounded candle window. Capacity is a power of two for bitwise
// modulo.
type Ring struct {
	buf  []model.Candle
	mask uint64
	head uint64 // total bars ever appended
	n    int

	evicted uint64
}

// New creates a ring. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Ring{
		buf:  make([]model.Candle, c),
		mask: uint64(c - 1),
	}
}

// Upsert applies c to the window. A candle with the last bar's open time
// replaces it, a later one is appended, an earlier one is rejected.
func (r *Ring) Upsert(c model.Candle) Op {
	if last, ok := r.Last(); ok {
		switch {
		case c.OpenTime < last.OpenTime:
			return Stale
		case c.OpenTime == last.OpenTime:
			r.buf[(r.head-1)&r.mask] = c
			return Replaced
		}
	}
	if r.n == len(r.buf) {
		r.evicted++
	} else {
		r.n++
	}
	r.buf[r.head&r.mask] = c
	r.head++
	return Appended
}

// SealLast marks the last bar closed. It reports whether the bar was
// forming before the call.
func (r *Ring) SealLast() (model.Candle, bool) {
	if r.n == 0 {
		return model.Candle{}, false
	}
	i := (r.head - 1) & r.mask
	if r.buf[i].Closed {
		return r.buf[i], false
	}
	r.buf[i].Closed = true
	return r.buf[i], true
}

// Last returns the newest bar.
func (r *Ring) Last() (model.Candle, bool) {
	if r.n == 0 {
		return model.Candle{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Snapshot copies the window oldest first.
func (r *Ring) Snapshot() []model.Candle {
	out := make([]model.Candle, r.n)
	start := r.head - uint64(r.n)
	for i := range out {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Len returns the current number of bars in the window.
func (r *Ring) Len() int { return r.n }

// Cap returns the window capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Evicted returns the number of bars dropped off the front of a full window.
func (r *Ring) Evicted() uint64 { return r.evicted }

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
