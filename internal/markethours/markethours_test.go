package markethours

import (
	"strings"
	"testing"
	"time"
)

func TestSession_OpenUTCMidnight(t *testing.T) {
	var s Session
	ts := time.Date(2026, 3, 10, 14, 37, 0, 0, time.UTC)
	got := s.Open(ts)
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Open = %v, want %v", got, want)
	}
	if m := s.MinutesSinceOpen(ts.UnixMilli()); m != 14*60+37 {
		t.Errorf("MinutesSinceOpen = %d", m)
	}
}

func TestSession_OpenBeforeTodayOpenUsesYesterday(t *testing.T) {
	s := Session{OffsetMinutes: 330, OpenHour: 9, OpenMinute: 15} // IST
	// 03:00 UTC = 08:30 IST, before 09:15 IST
	ts := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	got := s.Open(ts)
	want := time.Date(2026, 3, 9, 9, 15, 0, 0, s.Location())
	if !got.Equal(want) {
		t.Errorf("Open = %v, want %v", got, want)
	}
}

func TestSession_AnchorMsIdempotent(t *testing.T) {
	s := Session{OffsetMinutes: -300, OpenHour: 9, OpenMinute: 30}
	ms := time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC).UnixMilli()
	a := s.AnchorMs(ms)
	if a > ms {
		t.Fatalf("anchor %d after t %d", a, ms)
	}
	if s.AnchorMs(a) != a {
		t.Error("anchor of an anchor must be itself")
	}
}

func TestSession_StatusString(t *testing.T) {
	var s Session
	out := s.StatusString(time.Date(2026, 1, 2, 1, 5, 0, 0, time.UTC))
	if !strings.Contains(out, "1h5m") {
		t.Errorf("StatusString = %q", out)
	}
}
