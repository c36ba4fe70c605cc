// Package relax implements the per-symbol relax-mode hysteresis: thresholds
// loosen after a configurable idle period with no scene-active strategy and
// tighten again the moment one becomes active.
package relax

// DefaultExempt lists strategies without meaningful threshold slack. They
// are evaluated normally but do not count toward idle-time accounting.
var DefaultExempt = []string{"orb", "doubleTop", "liquiditySweep"}

// Config controls automatic relax mode.
type Config struct {
	Auto         bool    `yaml:"auto" json:"auto"`
	AfterMinutes float64 `yaml:"after_minutes" json:"after_minutes" validate:"gte=0"`
}

// Transition is the state change produced by one step.
type Transition int

const (
	None Transition = iota
	Entered
	Exited
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	}
	return "none"
}

// State is the relax state of one symbol. Times are Unix ms; ActiveSince is
// 0 while not relaxed.
type State struct {
	Active            bool  `json:"active"`
	LastSceneActiveAt int64 `json:"last_scene_active_at"`
	ActiveSince       int64 `json:"active_since,omitempty"`
}

// Advance enters RELAXED when auto mode is on and no relax-eligible strategy
// has been scene-active for at least cfg.AfterMinutes. The first call only
// starts the idle clock.
func (s *State) Advance(now int64, cfg Config) Transition {
	if s.LastSceneActiveAt == 0 {
		s.LastSceneActiveAt = now
		return None
	}
	if s.Active || !cfg.Auto {
		return None
	}
	idleMs := float64(now - s.LastSceneActiveAt)
	if idleMs >= cfg.AfterMinutes*60_000 {
		s.Active = true
		s.ActiveSince = now
		return Entered
	}
	return None
}

// Observe records whether any relax-eligible strategy is scene-active.
// Activity resets the idle clock in any state and exits RELAXED at once.
func (s *State) Observe(now int64, anyActive bool) Transition {
	if !anyActive {
		return None
	}
	s.LastSceneActiveAt = now
	if s.Active {
		s.Active = false
		s.ActiveSince = 0
		return Exited
	}
	return None
}

// IdleMinutes returns the minutes since the last scene-active observation.
func (s State) IdleMinutes(now int64) float64 {
	if s.LastSceneActiveAt == 0 || now < s.LastSceneActiveAt {
		return 0
	}
	return float64(now-s.LastSceneActiveAt) / 60_000
}

// ExemptSet converts a strategy list to a lookup set.
func ExemptSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
