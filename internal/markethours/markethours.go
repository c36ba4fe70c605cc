// Package markethours computes trading-session boundaries used to anchor
// session indicators (anchored VWAP, opening range).
package markethours

import (
	"fmt"
	"time"
)

// Session describes a daily session open in a fixed-offset zone.
// Crypto venues typically use UTC midnight (the zero value).
type Session struct {
	OffsetMinutes int `yaml:"timezone_offset_minutes" json:"timezone_offset_minutes" validate:"gte=-840,lte=840"`
	OpenHour      int `yaml:"open_hour" json:"open_hour" validate:"gte=0,lte=23"`
	OpenMinute    int `yaml:"open_minute" json:"open_minute" validate:"gte=0,lte=59"`
}

// Location returns the session's fixed zone.
func (s Session) Location() *time.Location {
	if s.OffsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", s.OffsetMinutes/60, abs(s.OffsetMinutes%60)), s.OffsetMinutes*60)
}

// Open returns the most recent session open at or before t.
func (s Session) Open(t time.Time) time.Time {
	loc := s.Location()
	lt := t.In(loc)
	open := time.Date(lt.Year(), lt.Month(), lt.Day(), s.OpenHour, s.OpenMinute, 0, 0, loc)
	if open.After(lt) {
		open = open.AddDate(0, 0, -1)
	}
	return open
}

// AnchorMs returns Open for a Unix-millisecond timestamp, in milliseconds.
func (s Session) AnchorMs(ms int64) int64 {
	return s.Open(time.UnixMilli(ms)).UnixMilli()
}

// MinutesSinceOpen returns the whole minutes elapsed since the session open.
func (s Session) MinutesSinceOpen(ms int64) int {
	return int((ms - s.AnchorMs(ms)) / 60_000)
}

// StatusString returns a human-readable session position for t.
func (s Session) StatusString(t time.Time) string {
	open := s.Open(t)
	return fmt.Sprintf("session opened %s (%s ago)", open.Format("Mon 15:04 MST"), fmtDur(t.Sub(open)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
