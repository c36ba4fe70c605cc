package tuning

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		Num("slopeMin", 0.0002, 0.00005, 0.0005).Relaxed(RelaxSlope),
		Num("volumeMult", 1.2, 0.8, 2.0).Range(0.1, 10).Relaxed(RelaxVolume),
		Num("atrMax", 0.03, 0.05, 0.015),
		Num("stepped", 1.0, 0.5, 2.0).Round(0.25),
		Span("lookback", 10, 30).Round(1),
		Fixed("fast", 20),
		Flag("reverse", false),
		Text("mode", "close"),
	}
}

func newTestResolver(ov Overrides, pr Presets) *Resolver {
	return NewResolver(map[string]Schema{"emaCross": testSchema(), "other": {Num("k", 3, 1, 5)}}, ov, pr)
}

func TestResolve_BaselineReturnsDefaults(t *testing.T) {
	r := newTestResolver(nil, nil)
	for _, id := range r.IDs() {
		s, _ := r.Schema(id)
		got := r.Resolve(id, Rigidity{Global: 50})
		assert.True(t, got.Equal(s.Defaults()), "strategy %s at baseline must equal defaults", id)
	}
	p := r.Resolve("emaCross", Rigidity{Global: 50})
	assert.Equal(t, 0.0002, p.Num("slopeMin"))
	assert.Equal(t, 20, p.Int("fast"))
	assert.Equal(t, 20.0, p.Num("lookback"), "span midpoint")
	assert.False(t, p.Bool("reverse"))
	assert.Equal(t, "close", p.Str("mode"))
}

func TestResolve_Idempotent(t *testing.T) {
	r := newTestResolver(Overrides{"emaCross": {"volumeMult": 1.5}}, nil)
	rig := Rigidity{Global: 37, Overrides: map[string]int{"other": 81}}
	a := r.ResolveAll(rig)
	b := r.ResolveAll(rig)
	require.Len(t, a, 2)
	for id := range a {
		assert.True(t, a[id].Equal(b[id]), id)
	}
}

func TestResolve_Interpolation(t *testing.T) {
	r := newTestResolver(nil, nil)

	loose := r.Resolve("emaCross", Rigidity{Global: 0})
	assert.InDelta(t, 0.00005, loose.Num("slopeMin"), 1e-12)
	assert.InDelta(t, 0.05, loose.Num("atrMax"), 1e-12)
	assert.Equal(t, 10.0, loose.Num("lookback"))

	strict := r.Resolve("emaCross", Rigidity{Global: 100})
	assert.InDelta(t, 0.0005, strict.Num("slopeMin"), 1e-12)
	assert.InDelta(t, 0.015, strict.Num("atrMax"), 1e-12)
	assert.Equal(t, 30.0, strict.Num("lookback"))

	// level 25: halfway from default (1.2) to loose (0.8)
	quarter := r.Resolve("emaCross", Rigidity{Global: 25})
	assert.InDelta(t, 1.0, quarter.Num("volumeMult"), 1e-12)
	// level 75: halfway from default (1.2) to strict (2.0)
	three := r.Resolve("emaCross", Rigidity{Global: 75})
	assert.InDelta(t, 1.6, three.Num("volumeMult"), 1e-12)

	// fixed fields never move
	assert.Equal(t, 20.0, loose.Num("fast"))
	assert.Equal(t, 20.0, strict.Num("fast"))
}

func TestResolve_LevelClampedAndPerStrategyOverride(t *testing.T) {
	r := newTestResolver(nil, nil)
	a := r.Resolve("other", Rigidity{Global: 250})
	assert.Equal(t, 5.0, a.Num("k"))
	b := r.Resolve("other", Rigidity{Global: 100, Overrides: map[string]int{"other": -10}})
	assert.Equal(t, 1.0, b.Num("k"))
}

func TestResolve_StepRounding(t *testing.T) {
	r := newTestResolver(nil, nil)
	// level 30: 1.0 + (0.5-1.0)*0.4 = 0.8 -> rounded to 0.75
	p := r.Resolve("emaCross", Rigidity{Global: 30})
	assert.Equal(t, 0.75, p.Num("stepped"))
	// span at 33: 10 + 20*0.33 = 16.6 -> 17
	p = r.Resolve("emaCross", Rigidity{Global: 33})
	assert.Equal(t, 17.0, p.Num("lookback"))
}

func TestResolve_UserOverrides(t *testing.T) {
	r := newTestResolver(Overrides{"emaCross": {
		"volumeMult": 1.5,
		"slopeMin":   math.NaN(),
		"atrMax":     "not a number",
		"reverse":    true,
		"mode":       "wick",
		"fast":       21,
	}}, nil)
	p := r.Resolve("emaCross", Rigidity{Global: 50})
	assert.Equal(t, 1.5, p.Num("volumeMult"))
	assert.Equal(t, 0.0002, p.Num("slopeMin"), "non-finite override falls back to default")
	assert.Equal(t, 0.03, p.Num("atrMax"), "malformed override falls back to default")
	assert.True(t, p.Bool("reverse"))
	assert.Equal(t, "wick", p.Str("mode"))
	assert.Equal(t, 21, p.Int("fast"))

	// override is the new interpolation pivot
	p = r.Resolve("emaCross", Rigidity{Global: 100})
	assert.InDelta(t, 2.0, p.Num("volumeMult"), 1e-12)
	p = r.Resolve("emaCross", Rigidity{Global: 75})
	assert.InDelta(t, 1.75, p.Num("volumeMult"), 1e-12)
}

func TestResolve_OverrideClampedToRange(t *testing.T) {
	r := newTestResolver(Overrides{"emaCross": {"volumeMult": 99.0}}, nil)
	p := r.Resolve("emaCross", Rigidity{Global: 50})
	assert.Equal(t, 10.0, p.Num("volumeMult"))
}

func TestResolve_PresetsOnlyAtAnchors(t *testing.T) {
	pr := Presets{"other": {"loose": {"k": 1.7}, "firm": {"k": 4.4}}}
	r := newTestResolver(nil, pr)

	assert.Equal(t, 1.7, r.Resolve("other", Rigidity{Global: 20}).Num("k"))
	assert.Equal(t, 4.4, r.Resolve("other", Rigidity{Global: 60}).Num("k"))

	off := r.Resolve("other", Rigidity{Global: 21})
	assert.InDelta(t, 3+(1-3)*(29.0/50), off.Num("k"), 1e-12, "interpolated off-anchor")
	assert.Equal(t, 3.0, r.Resolve("other", Rigidity{Global: 50}).Num("k"), "baseline is not an anchor")
}

func TestResolve_UnknownStrategy(t *testing.T) {
	r := newTestResolver(nil, nil)
	p := r.Resolve("missing", Rigidity{Global: 50})
	assert.False(t, p.Has("k"))
	assert.Equal(t, 0.0, p.Num("k"))
}

func TestLabel(t *testing.T) {
	cases := map[int]string{
		-5: "ultraLoose", 0: "ultraLoose", 16: "ultraLoose", 17: "loose", 20: "loose",
		33: "loose", 34: "flexible", 40: "flexible", 50: "firm", 60: "firm",
		66: "firm", 67: "strict", 80: "strict", 84: "ultraStrict",
		100: "ultraStrict", 130: "ultraStrict",
	}
	for level, want := range cases {
		assert.Equal(t, want, Label(level), "level %d", level)
	}
	for i, a := range Anchors {
		assert.Equal(t, labels[i], Label(a))
	}
}

func TestField_Looser(t *testing.T) {
	s := testSchema()
	slope, _ := s.Field("slopeMin")
	assert.Equal(t, 0.0001, slope.Looser(0.0001, 0.0002))
	atrMax, _ := s.Field("atrMax")
	assert.Equal(t, 0.04, atrMax.Looser(0.04, 0.03), "higher is looser for a max bound")
}

func TestProfile_WithAndJSON(t *testing.T) {
	r := newTestResolver(nil, nil)
	p := r.Resolve("other", Rigidity{Global: 50})
	q := p.With("k", 9)
	assert.Equal(t, 3.0, p.Num("k"), "With must not mutate the receiver")
	assert.Equal(t, 9.0, q.Num("k"))

	b, err := q.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":9}`, string(b))
}

func TestProfile_UnmarshalJSON(t *testing.T) {
	p := newTestResolver(nil, nil).Resolve("emaCross", Rigidity{Global: 50})
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var q Profile
	require.NoError(t, json.Unmarshal(b, &q))
	assert.True(t, p.Equal(q), "%s", b)
	assert.Equal(t, "close", q.Str("mode"))
}
