package ringbuf

import (
	"testing"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

func bar(openMin int64, close float64, closed bool) model.Candle {
	return model.Candle{OpenTime: openMin * 60_000, CloseTime: openMin*60_000 + 59_999, Close: close, Closed: closed}
}

func TestRing_AppendReplaceStale(t *testing.T) {
	r := New(4)

	if op := r.Upsert(bar(1, 100, false)); op != Appended {
		t.Fatalf("expected appended, got %s", op)
	}
	if op := r.Upsert(bar(1, 101, true)); op != Replaced {
		t.Fatalf("expected replaced, got %s", op)
	}
	if op := r.Upsert(bar(0, 99, true)); op != Stale {
		t.Fatalf("expected stale, got %s", op)
	}
	if r.Len() != 1 {
		t.Fatalf("expected len=1, got %d", r.Len())
	}
	last, ok := r.Last()
	if !ok || last.Close != 101 || !last.Closed {
		t.Fatalf("unexpected last bar %+v", last)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)
	for i := int64(0); i < 10; i++ {
		r.Upsert(bar(i, float64(i), true))
	}
	if r.Len() != 4 {
		t.Fatalf("expected len=4, got %d", r.Len())
	}
	if r.Evicted() != 6 {
		t.Fatalf("expected evicted=6, got %d", r.Evicted())
	}
	snap := r.Snapshot()
	for i, c := range snap {
		if want := float64(6 + i); c.Close != want {
			t.Fatalf("index %d: expected close=%v, got %v", i, want, c.Close)
		}
	}
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := New(2)
	r.Upsert(bar(1, 100, true))
	snap := r.Snapshot()
	snap[0].Close = -1
	if last, _ := r.Last(); last.Close != 100 {
		t.Fatalf("snapshot aliased ring storage")
	}
}

func TestRing_SealLast(t *testing.T) {
	r := New(2)
	if _, ok := r.SealLast(); ok {
		t.Fatal("seal on empty ring should report false")
	}
	r.Upsert(bar(1, 100, false))
	c, ok := r.SealLast()
	if !ok || !c.Closed {
		t.Fatalf("expected sealed bar, got %+v ok=%v", c, ok)
	}
	if _, ok := r.SealLast(); ok {
		t.Fatal("second seal should report false")
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
