package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

func trend(n int, step float64) []model.Candle {
	cs := make([]model.Candle, n)
	for i := range cs {
		c := 1000 + step*float64(i)
		cs[i] = model.Candle{
			OpenTime: int64(i) * 60_000, CloseTime: int64(i+1)*60_000 - 1,
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10, Closed: true,
		}
	}
	return cs
}

func cfg() Config {
	return Config{Enabled: true, DivisorPeriod: 50, DirectionalPeriod: 20, MinDistATR: 0.5, SlopeMin: 0.0001, SlopeLookback: 3}
}

func build(cs []model.Candle, c Config) *evalctx.Context {
	return evalctx.Build(cs, evalctx.Requirements{EMAPeriods: Periods(c)})
}

func TestAllows_Disabled(t *testing.T) {
	c := cfg()
	c.Enabled = false
	d := Allows(model.Sell, build(trend(10, 1), c), c)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonDisabled, d.Reason)
	assert.Nil(t, Periods(c))
}

func TestAllows_Uptrend(t *testing.T) {
	c := cfg()
	ctx := build(trend(120, 2), c)

	buy := Allows(model.Buy, ctx, c)
	assert.True(t, buy.Allowed, buy.Reason)
	assert.Equal(t, ReasonAllowed, buy.Reason)
	assert.Greater(t, buy.Price, buy.Threshold)

	sell := Allows(model.Sell, ctx, c)
	assert.False(t, sell.Allowed)
	assert.Equal(t, ReasonPrice, sell.Reason)
}

func TestAllows_Downtrend(t *testing.T) {
	c := cfg()
	ctx := build(trend(120, -2), c)
	assert.True(t, Allows(model.Sell, ctx, c).Allowed)
	assert.False(t, Allows(model.Buy, ctx, c).Allowed)
}

func TestAllows_SlopeVeto(t *testing.T) {
	c := cfg()
	c.MinDistATR = 0
	c.SlopeMin = 0.5 // unreachable relative slope
	d := Allows(model.Buy, build(trend(120, 2), c), c)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSlope, d.Reason)
}

func TestAllows_NotReadyVetoes(t *testing.T) {
	c := cfg()
	d := Allows(model.Buy, build(trend(30, 2), c), c)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotReady, d.Reason)
}

func TestAllows_NonFinitePriceVetoes(t *testing.T) {
	c := cfg()
	cs := trend(120, 2)
	cs[len(cs)-1].Close = math.NaN()
	for _, side := range []model.Side{model.Buy, model.Sell} {
		d := Allows(side, build(cs, c), c)
		assert.False(t, d.Allowed, side)
		assert.Equal(t, ReasonNotReady, d.Reason)
	}
}

func TestAllows_InvalidSide(t *testing.T) {
	c := cfg()
	d := Allows(model.Side("HOLD"), build(trend(120, 2), c), c)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInvalidSide, d.Reason)
}
