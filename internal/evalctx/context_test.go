package evalctx

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

const minute = int64(60_000)

func ramp(n int, start, step float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = model.Candle{
			OpenTime:  int64(i) * minute,
			CloseTime: int64(i+1)*minute - 1,
			Open:      c - step/2,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100 + float64(i),
			Closed:    true,
		}
	}
	return out
}

func TestBuild_EMAAndSlope(t *testing.T) {
	cs := ramp(60, 100, 1)
	ctx := Build(cs, Requirements{EMAPeriods: []int{20, 50, 20}})

	want := indicator.EMASeries(indicator.Closes(cs), 20)
	wantLast, _ := want.Last()
	got, ok := ctx.EMA(20)
	require.True(t, ok)
	assert.Equal(t, wantLast, got)

	s, ok := ctx.Slope(20)
	require.True(t, ok)
	prev, _ := want.At(len(cs) - 1 - 3)
	assert.InDelta(t, (wantLast-prev)/math.Abs(prev), s, 1e-12)
	assert.Greater(t, s, 0.0)

	s5, ok := ctx.SlopeOver(20, 5)
	require.True(t, ok)
	assert.Greater(t, s5, s, "longer lookback on a ramp gives a larger slope")

	assert.Equal(t, []int{20, 50}, ctx.EMAPeriods())
	_, ok = ctx.EMA(9)
	assert.False(t, ok, "period not requested")
}

func TestBuild_EMANotReadyBeforePeriod(t *testing.T) {
	ctx := Build(ramp(30, 100, 1), Requirements{EMAPeriods: []int{20, 50}})
	_, ok := ctx.EMA(20)
	assert.True(t, ok)
	_, ok = ctx.EMA(50)
	assert.False(t, ok)
	_, ok = ctx.Slope(50)
	assert.False(t, ok)
	_, ok = ctx.Distance(50)
	assert.False(t, ok)
}

func TestBuild_ATRDistanceVolume(t *testing.T) {
	cs := ramp(40, 100, 1)
	ctx := Build(cs, Requirements{EMAPeriods: []int{10}})

	atr, ok := ctx.ATR()
	require.True(t, ok)
	// TR = max(h-l=1, |h-prevClose|=1.5, |l-prevClose|=0.5) = 1.5
	assert.InDelta(t, 1.5, atr, 1e-12)

	norm, ok := ctx.ATRNorm()
	require.True(t, ok)
	assert.InDelta(t, 1.5/ctx.Close(), norm, 1e-12)

	ema, _ := ctx.EMA(10)
	d, ok := ctx.Distance(10)
	require.True(t, ok)
	assert.InDelta(t, math.Abs(ctx.Close()-ema)/1.5, d, 1e-12)

	// volumes 100+i; the 20 bars before the last (i=19..38) average 128.5
	avg, ok := ctx.VolumeAvg()
	require.True(t, ok)
	assert.InDelta(t, 128.5, avg, 1e-12)
	now, _ := ctx.VolumeNow()
	assert.Equal(t, 139.0, now)
	r, ok := ctx.VolumeRatio()
	require.True(t, ok)
	assert.InDelta(t, 139.0/128.5, r, 1e-12)
}

func TestBuild_VolumeAverageNeedsWindow(t *testing.T) {
	ctx := Build(ramp(20, 100, 1), Requirements{})
	_, ok := ctx.VolumeAvg()
	assert.False(t, ok)
	ctx = Build(ramp(21, 100, 1), Requirements{})
	_, ok = ctx.VolumeAvg()
	assert.True(t, ok)
}

func TestBuild_IgnoresFormingCandleAndDoesNotMutate(t *testing.T) {
	cs := ramp(30, 100, 1)
	forming := cs[len(cs)-1]
	forming.Closed = false
	forming.Close = 999
	cs[len(cs)-1] = forming
	orig := append([]model.Candle(nil), cs...)

	ctx := Build(cs, Requirements{EMAPeriods: []int{5}})
	assert.Equal(t, 29, ctx.Len())
	assert.Equal(t, cs[28].Close, ctx.Close())
	assert.Equal(t, cs[28].CloseTime, ctx.Now())
	assert.Equal(t, orig, cs)
}

func TestBuild_Idempotent(t *testing.T) {
	cs := ramp(80, 50, 0.25)
	req := Requirements{EMAPeriods: []int{9, 21, 50}}
	a := Build(cs, req).Metrics()
	b := Build(cs, req).Metrics()
	assert.Equal(t, a, b)
}

func TestBuild_Empty(t *testing.T) {
	ctx := Build(nil, Requirements{EMAPeriods: []int{20}})
	assert.False(t, ctx.Ready())
	_, ok := ctx.ATR()
	assert.False(t, ok)
	_, ok = ctx.VolumeNow()
	assert.False(t, ok)
	_, ok = ctx.VWAP()
	assert.False(t, ok)
	assert.Equal(t, 0, ctx.Metrics().Candles)
}

func TestBuild_NonFiniteLastClose(t *testing.T) {
	cs := ramp(60, 100, 1)
	cs[len(cs)-1].Close = math.NaN()
	ctx := Build(cs, Requirements{EMAPeriods: []int{20, 50}})

	assert.False(t, ctx.Ready())
	assert.Equal(t, 60, ctx.Len())
	for name, get := range map[string]func() (float64, bool){
		"price":    ctx.Price,
		"atr_norm": ctx.ATRNorm,
		"distance": func() (float64, bool) { return ctx.Distance(50) },
	} {
		v, ok := get()
		assert.False(t, ok, name)
		assert.Zero(t, v, name)
	}

	m := ctx.Metrics()
	assert.Nil(t, m.Close)
	_, err := json.Marshal(m)
	assert.NoError(t, err)
}

func TestBuild_NonFiniteVolumeIsAbsent(t *testing.T) {
	cs := ramp(30, 100, 1)
	cs[len(cs)-1].Volume = math.Inf(1)
	ctx := Build(cs, Requirements{EMAPeriods: []int{5}})

	require.True(t, ctx.Ready())
	_, ok := ctx.VolumeNow()
	assert.False(t, ok)
	_, ok = ctx.VolumeRatio()
	assert.False(t, ok)
	_, ok = ctx.ATRNorm()
	assert.True(t, ok)

	_, err := json.Marshal(ctx.Metrics())
	assert.NoError(t, err)
}

func TestBuild_SessionVWAPAndRegime(t *testing.T) {
	cs := ramp(60, 100, 1)
	ctx := Build(cs, Requirements{
		Regime: map[int][]model.Candle{300: ramp(80, 10, 1), 900: ramp(10, 10, 1)},
	})
	assert.Equal(t, int64(0), ctx.SessionAnchor())
	v, ok := ctx.VWAP()
	require.True(t, ok)
	want, _ := indicator.AnchoredVWAP(cs, 0)
	assert.Equal(t, want, v)

	r, ok := ctx.Regime(300)
	require.True(t, ok)
	assert.Equal(t, 1, r.Trend)
	assert.True(t, r.ADXReady)

	short, ok := ctx.Regime(900)
	require.True(t, ok)
	assert.Equal(t, 0, short.Trend, "not enough bars for the slow EMA")

	_, ok = ctx.Regime(60)
	assert.False(t, ok)
}
