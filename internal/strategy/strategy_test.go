package strategy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// ────────────────────────────────────────────────────────────
// Registry
// ────────────────────────────────────────────────────────────

func TestDefaultRegistry_Order(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{
		IDORB, IDLiquiditySweep, IDDoubleTop, IDRetest, IDRangeBreakout,
		IDATRSqueeze, IDVWAPBounce, IDEMAPullback, IDEMACross,
	}, r.IDs())
	assert.Len(t, r.Schemas(), 9)
	assert.Len(t, r.Conditions(), 9)
}

func TestRegistry_OrderFollowsPriority(t *testing.T) {
	r := Default()
	got := r.Order([]string{IDEMACross, "unknown", IDORB, IDEMACross})
	require.Len(t, got, 9)
	assert.Equal(t, IDEMACross, got[0])
	assert.Equal(t, IDORB, got[1])
	assert.Equal(t, IDLiquiditySweep, got[2], "omitted ids follow in default order")
}

func TestRegistry_DuplicateIgnored(t *testing.T) {
	r := NewRegistry(EMACross{}, EMACross{})
	assert.Equal(t, []string{IDEMACross}, r.IDs())
}

func TestRegistry_PeriodsUnion(t *testing.T) {
	r := Default()
	res := tuning.NewResolver(r.Schemas(), nil, nil)
	got := r.Periods(res.ResolveAll(tuning.Rigidity{Global: 50}))
	assert.Equal(t, []int{9, 20, 21, 50}, got)
}

func TestDetectors_ShortInputNeverPanics(t *testing.T) {
	for n := 0; n < 8; n++ {
		cs := minuteBars(day, alternating(n, 99, 101, 0.5))
		for _, id := range Default().IDs() {
			d, _ := Default().Get(id)
			assert.NotPanics(t, func() {
				r := evaluate(t, d, cs, nil)
				assert.Nil(t, r.out.Signal, "%s with %d bars", id, n)
				assert.False(t, r.guard.OK, "%s with %d bars", id, n)
			}, id)
		}
	}
}

// ────────────────────────────────────────────────────────────
// emaCross
// ────────────────────────────────────────────────────────────

func TestEMACross_BuyOnFreshCross(t *testing.T) {
	cs := crossUpSeries(t)
	r := evaluate(t, EMACross{}, cs, nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)

	sig := r.out.Signal
	atr, _ := r.ctx.ATR()
	assert.Equal(t, model.Buy, sig.Side)
	assert.Equal(t, IDEMACross, sig.StrategyID)
	assert.Equal(t, cs[len(cs)-1].Close, sig.Entry)
	assert.InDelta(t, sig.Entry-1.5*atr, sig.Stop, 1e-9)
	require.Len(t, sig.Targets, 2)
	assert.InDelta(t, sig.Entry+1.5*atr, sig.Targets[0], 1e-9)
	assert.InDelta(t, sig.Entry+3*atr, sig.Targets[1], 1e-9)
}

func TestEMACross_NoCrossGivesDiagnostic(t *testing.T) {
	cs := crossUpSeries(t)
	cs = cs[:len(cs)-10]
	r := evaluate(t, EMACross{}, cs, nil)
	assert.Nil(t, r.out.Signal)
	assert.Contains(t, r.out.Diagnostic, "no cross")
}

// ────────────────────────────────────────────────────────────
// retest
// ────────────────────────────────────────────────────────────

func TestRetest_BuyAfterBreakout(t *testing.T) {
	bs := alternating(40, 99.5, 100.5, 0)
	for i := range bs {
		bs[i].h, bs[i].l = 101, 99
	}
	bs = append(bs,
		bar{o: 100.5, h: 103.5, l: 100.4, c: 103},
		bar{o: 103, h: 104.5, l: 102.8, c: 104},
		bar{o: 104, h: 104.3, l: 103.2, c: 103.5},
		bar{o: 103.5, h: 103.7, l: 102.7, c: 103},
		bar{o: 103, h: 103.2, l: 102.5, c: 102.8},
		bar{o: 101.6, h: 102.7, l: 101.2, c: 102.5},
	)
	r := evaluate(t, Retest{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	atr, _ := r.ctx.ATR()
	assert.Equal(t, model.Buy, r.out.Signal.Side)
	assert.InDelta(t, 101-atr, r.out.Signal.Stop, 1e-9)
	assert.Len(t, r.out.Signal.Targets, 2)
}

func TestRetest_WaitingDiagnostic(t *testing.T) {
	bs := alternating(40, 99.5, 100.5, 0)
	for i := range bs {
		bs[i].h, bs[i].l = 101, 99
	}
	bs = append(bs,
		bar{o: 100.5, h: 103.5, l: 100.4, c: 103},
		bar{o: 103, h: 104.5, l: 102.8, c: 104},
		bar{o: 104, h: 104.3, l: 103.2, c: 103.5},
		bar{o: 103.5, h: 103.7, l: 102.7, c: 103},
		bar{o: 103, h: 103.2, l: 102.5, c: 102.8},
		bar{o: 102.8, h: 104, l: 102.6, c: 103.8},
	)
	r := evaluate(t, Retest{}, minuteBars(day, bs), nil)
	assert.Nil(t, r.out.Signal)
	assert.Contains(t, r.out.Diagnostic, "waiting for retest")
}

// ────────────────────────────────────────────────────────────
// liquiditySweep
// ────────────────────────────────────────────────────────────

func sweepBase() []bar {
	bs := alternating(30, 99.7, 100.3, 0)
	for i := range bs {
		bs[i].h, bs[i].l = 100.8, 99.2
	}
	return bs
}

func TestLiquiditySweep_BuyOnReclaim(t *testing.T) {
	bs := append(sweepBase(), bar{o: 99.6, h: 100.0, l: 98.6, c: 99.9})
	r := evaluate(t, LiquiditySweep{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Buy, r.out.Signal.Side)
	require.Len(t, r.out.Signal.Targets, 2)
	assert.Equal(t, 100.8, r.out.Signal.Targets[1], "second target is the opposite extreme")
	assert.Less(t, r.out.Signal.Stop, 98.6)
}

func TestLiquiditySweep_SellOnRejection(t *testing.T) {
	bs := append(sweepBase(), bar{o: 100.4, h: 101.4, l: 100.0, c: 100.1})
	r := evaluate(t, LiquiditySweep{}, minuteBars(day, bs), nil)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Sell, r.out.Signal.Side)
	assert.Greater(t, r.out.Signal.Stop, 101.4)
}

func TestLiquiditySweep_ShortWick(t *testing.T) {
	bs := append(sweepBase(), bar{o: 98.9, h: 100.0, l: 98.6, c: 99.9})
	r := evaluate(t, LiquiditySweep{}, minuteBars(day, bs), nil)
	assert.Nil(t, r.out.Signal)
	assert.Equal(t, "low swept but wick too short", r.out.Diagnostic)
}

// ────────────────────────────────────────────────────────────
// doubleTop
// ────────────────────────────────────────────────────────────

func TestDoubleTop_SellOnNecklineBreak(t *testing.T) {
	var closes []float64
	for i := 0; i < 10; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i <= 40; i++ {
		closes = append(closes, 100+9.7*float64(i)/40)
	}
	for i := 1; i <= 5; i++ {
		closes = append(closes, 109.7-0.88*float64(i))
	}
	for i := 1; i <= 5; i++ {
		closes = append(closes, 105.3+0.9*float64(i))
	}
	for i := 1; i <= 6; i++ {
		closes = append(closes, 109.8-0.9*float64(i))
	}
	bs := make([]bar, len(closes))
	for i, c := range closes {
		bs[i] = bar{o: c, h: c + 0.3, l: c - 0.3, c: c}
	}
	r := evaluate(t, DoubleTop{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	sig := r.out.Signal
	assert.Equal(t, model.Sell, sig.Side)
	assert.Greater(t, sig.Stop, 110.1)
	require.Len(t, sig.Targets, 2)
	assert.InDelta(t, sig.Entry-(110.1-105.0), sig.Targets[0], 1e-6)
}

// ────────────────────────────────────────────────────────────
// rangeBreakout
// ────────────────────────────────────────────────────────────

func rangeBase() []bar { return alternating(40, 99.7, 100.3, 0.4) }

func TestRangeBreakout_BuyOnVolume(t *testing.T) {
	bs := append(rangeBase(), bar{o: 100.4, h: 102.0, l: 100.3, c: 101.8, v: 2000})
	r := evaluate(t, RangeBreakout{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Buy, r.out.Signal.Side)
	assert.InDelta(t, 101.8+1.4, r.out.Signal.Targets[0], 1e-9)
}

func TestRangeBreakout_NoVolume(t *testing.T) {
	bs := append(rangeBase(), bar{o: 100.4, h: 102.0, l: 100.3, c: 101.8, v: 1000})
	r := evaluate(t, RangeBreakout{}, minuteBars(day, bs), nil)
	assert.Nil(t, r.out.Signal)
	assert.Contains(t, r.out.Diagnostic, "without volume")
}

func TestRangeBreakout_ReverseFadesFailedBreakout(t *testing.T) {
	bs := append(rangeBase(),
		bar{o: 100.4, h: 102.0, l: 100.3, c: 101.8, v: 2000},
		bar{o: 101.6, h: 101.7, l: 100.0, c: 100.2},
	)
	r := evaluate(t, RangeBreakout{}, minuteBars(day, bs), map[string]any{"reverse": true})
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Sell, r.out.Signal.Side)
	assert.Greater(t, r.out.Signal.Stop, 102.0)
	require.Len(t, r.out.Signal.Targets, 2)
	assert.InDelta(t, 100, r.out.Signal.Targets[0], 1e-9)
	assert.InDelta(t, 99.3, r.out.Signal.Targets[1], 1e-9)
}

// ────────────────────────────────────────────────────────────
// atrSqueeze
// ────────────────────────────────────────────────────────────

func TestATRSqueeze_BuyOnRelease(t *testing.T) {
	bs := alternating(100, 98, 102, 0.5)
	bs = append(bs, alternating(25, 99.9, 100.1, 0.1)...)
	bs = append(bs, bar{o: 100, h: 103.4, l: 99.9, c: 103.3})
	r := evaluate(t, ATRSqueeze{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Buy, r.out.Signal.Side)
	assert.Less(t, r.out.Signal.Stop, r.out.Signal.Entry)
}

func TestATRSqueeze_NoSqueezeInWideMarket(t *testing.T) {
	bs := alternating(100, 99.9, 100.1, 0.1)
	bs = append(bs, alternating(25, 98, 102, 0.5)...)
	bs = append(bs, bar{o: 100, h: 106, l: 99.9, c: 105.5})
	r := evaluate(t, ATRSqueeze{}, minuteBars(day, bs), nil)
	assert.False(t, r.guard.OK)
	assert.Nil(t, r.out.Signal)
	assert.True(t, strings.HasPrefix(r.out.Diagnostic, "no squeeze"), r.out.Diagnostic)
}

// ────────────────────────────────────────────────────────────
// vwapBounce
// ────────────────────────────────────────────────────────────

func TestVWAPBounce_BuyOnTouch(t *testing.T) {
	bs := make([]bar, 60)
	for i := range bs {
		c := 100 + 0.2*float64(i)
		bs[i] = bar{o: c - 0.1, h: c + 0.2, l: c - 0.2, c: c}
	}
	head := minuteBars(day, bs)
	v0 := sessionVWAP(head)
	bs = append(bs, bar{o: v0 + 0.1, h: v0 + 0.6, l: v0, c: v0 + 0.5, v: 1})
	r := evaluate(t, VWAPBounce{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Buy, r.out.Signal.Side)
}

func sessionVWAP(cs []model.Candle) float64 {
	var pv, v float64
	for _, c := range cs {
		pv += (c.High + c.Low + c.Close) / 3 * c.Volume
		v += c.Volume
	}
	return pv / v
}

// ────────────────────────────────────────────────────────────
// emaPullback
// ────────────────────────────────────────────────────────────

func TestEMAPullback_BuyOnFastEMAHold(t *testing.T) {
	bs := make([]bar, 40)
	for i := range bs {
		c := 100 + 0.3*float64(i)
		bs[i] = bar{o: c - 0.1, h: c + 0.2, l: c - 0.2, c: c}
	}
	bs = append(bs, bar{o: 110.9, h: 111.3, l: 110.4, c: 111.2})
	r := evaluate(t, EMAPullback{}, minuteBars(day, bs), nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	assert.Equal(t, model.Buy, r.out.Signal.Side)
	assert.Contains(t, r.out.Signal.Reason, "EMA9")
}

func TestEMAPullback_RSIFilter(t *testing.T) {
	bs := make([]bar, 40)
	for i := range bs {
		c := 100 + 0.3*float64(i)
		bs[i] = bar{o: c - 0.1, h: c + 0.2, l: c - 0.2, c: c}
	}
	bs = append(bs, bar{o: 110.9, h: 111.3, l: 110.4, c: 111.2})
	r := evaluate(t, EMAPullback{}, minuteBars(day, bs), map[string]any{"rsiBuyMin": 99})
	assert.Nil(t, r.out.Signal)
	assert.Contains(t, r.out.Diagnostic, "RSI")
}

// ────────────────────────────────────────────────────────────
// orb
// ────────────────────────────────────────────────────────────

func orbBase() []model.Candle {
	prior := minuteBars(day-30*minuteMs, withRange(alternating(30, 99.5, 100.5, 0)))
	session := withRange(alternating(18, 99.5, 100.5, 0))
	return append(prior, minuteBars(day, session)...)
}

func withRange(bs []bar) []bar {
	for i := range bs {
		bs[i].h, bs[i].l = 101, 99
	}
	return bs
}

func appendSession(cs []model.Candle, extra ...bar) []model.Candle {
	n := 0
	for _, c := range cs {
		if c.OpenTime >= day {
			n++
		}
	}
	return append(cs, minuteBars(day+int64(n)*minuteMs, extra)...)
}

func TestORB_BuyBreakoutWithConfidence(t *testing.T) {
	cs := appendSession(orbBase(), bar{o: 100.5, h: 102.1, l: 100.4, c: 102, v: 3000})
	r := evaluate(t, ORB{}, cs, nil)
	require.True(t, r.guard.OK, "%+v", r.guard.Conditions)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	sig := r.out.Signal
	assert.Equal(t, model.Buy, sig.Side)
	assert.GreaterOrEqual(t, sig.Confidence, 55.0)
	assert.LessOrEqual(t, sig.Confidence, 100.0)
	assert.Equal(t, sizeFromConfidence(sig.Confidence), sig.SizeMultiplier)
	assert.Equal(t, 100.0, sig.Stop)
	assert.Equal(t, []float64{104, 106}, sig.Targets)
}

func TestORB_GateBlockedBreakout(t *testing.T) {
	cs := appendSession(orbBase(), bar{o: 100.5, h: 102.1, l: 100.4, c: 102, v: 3000})
	r := evaluateWithGate(t, ORB{}, cs, nil, func(model.Side) bool { return false })
	assert.Nil(t, r.out.Signal)
	assert.Contains(t, r.out.Diagnostic, "blocked by gate")
}

func TestORB_FadeFromVWAP(t *testing.T) {
	base := minuteBars(day-30*minuteMs, withRange(alternating(30, 99.5, 100.5, 0)))
	base = append(base, minuteBars(day, withRange(alternating(15, 99.5, 100.5, 0)))...)
	var climb []bar
	for _, c := range []float64{102.2, 103.4, 104.6, 105.8, 107.0} {
		climb = append(climb, bar{o: c - 1, h: c + 0.2, l: c - 1.2, c: c})
	}
	climb = append(climb, bar{o: 107.3, h: 107.6, l: 106.2, c: 106.5})
	cs := appendSession(base, climb...)

	r := evaluate(t, ORB{}, cs, nil)
	require.NotNil(t, r.out.Signal, r.out.Diagnostic)
	sig := r.out.Signal
	assert.Equal(t, model.Sell, sig.Side)
	assert.Contains(t, sig.Reason, "AVWAP fade")
	vwap, _ := r.ctx.VWAP()
	assert.Equal(t, []float64{vwap}, sig.Targets)
	assert.Equal(t, 0.5, sig.SizeMultiplier)
}

func TestORB_FadeDisabled(t *testing.T) {
	base := minuteBars(day, withRange(alternating(40, 99.5, 100.5, 0)))
	r := evaluate(t, ORB{}, base, map[string]any{"fadeEnabled": false})
	assert.Nil(t, r.out.Signal)
	assert.Equal(t, "no fresh opening-range break", r.out.Diagnostic)
}
