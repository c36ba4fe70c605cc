package gateway

import (
	"sort"
	"sync"
)

// ReplayEntry is one broadcast envelope kept for gap backfill.
type ReplayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel. Sequence
// numbers are pushed in increasing order. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []ReplayEntry
	head int // index of the oldest entry once full
	size int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayDepth
	}
	return &ReplayBuffer{buf: make([]ReplayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest when full. data is
// copied.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.size < len(rb.buf) {
		rb.buf[rb.size] = ReplayEntry{Seq: seq, Data: cp}
		rb.size++
		return
	}
	rb.buf[rb.head] = ReplayEntry{Seq: seq, Data: cp}
	rb.head = (rb.head + 1) % len(rb.buf)
}

// Range returns the entries with from <= Seq <= to, oldest first.
func (rb *ReplayBuffer) Range(from, to int64) []ReplayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	at := func(i int) ReplayEntry { return rb.buf[(rb.head+i)%len(rb.buf)] }
	lo := sort.Search(rb.size, func(i int) bool { return at(i).Seq >= from })
	var out []ReplayEntry
	for i := lo; i < rb.size && at(i).Seq <= to; i++ {
		out = append(out, at(i))
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
