package tuning

// Baseline is the rigidity level at which every field takes its default.
const Baseline = 50

// Anchors are the six evenly spaced named levels.
var Anchors = [6]int{0, 20, 40, 60, 80, 100}

var labels = [6]string{"ultraLoose", "loose", "flexible", "firm", "strict", "ultraStrict"}

// Rigidity is the global 0..100 level plus per-strategy overrides.
type Rigidity struct {
	Global    int            `yaml:"global" json:"global"`
	Overrides map[string]int `yaml:"overrides" json:"overrides,omitempty"`
}

// Level returns the clamped level that applies to a strategy.
func (r Rigidity) Level(strategyID string) int {
	if v, ok := r.Overrides[strategyID]; ok {
		return ClampLevel(v)
	}
	return ClampLevel(r.Global)
}

// ClampLevel clamps to [0, 100].
func ClampLevel(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	}
	return level
}

// Label names the band a level falls in. The six bands partition 0..100
// evenly; each anchor lies in the band of the same name.
func Label(level int) string {
	idx := ClampLevel(level) * len(labels) / 100
	if idx >= len(labels) {
		idx = len(labels) - 1
	}
	return labels[idx]
}

// AnchorIndex returns the position of level in Anchors, or -1.
func AnchorIndex(level int) int {
	for i, a := range Anchors {
		if a == level {
			return i
		}
	}
	return -1
}
