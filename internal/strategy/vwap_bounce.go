package strategy

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// VWAPBounce trades a precise touch of the session VWAP that holds in the
// direction of the trend EMA's slope.
type VWAPBounce struct{}

func (VWAPBounce) ID() string { return IDVWAPBounce }

func (VWAPBounce) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("trendPeriod", 50).Range(2, 400).Round(1),
		tuning.Num("touchTolAtr", 0.15, 0.3, 0.08).Range(0, 5),
		tuning.Num("slopeMin", 0.0001, 0.00002, 0.0003).Range(0, 0.01).Relaxed(tuning.RelaxSlope),
		tuning.Fixed("stopAtr", 0.5).Range(0, 10),
	}
}

func (VWAPBounce) Guards() []guard.Condition {
	return []guard.Condition{
		{Label: "session VWAP ready", Check: func(ctx *evalctx.Context, _ tuning.Profile) guard.Outcome {
			_, ok := ctx.VWAP()
			return guard.Ready(ok)
		}},
		emasReady("trend EMA ready", "trendPeriod"),
		absSlopeAtLeast("|slope trend| >= slopeMin", "trendPeriod", "slopeMin"),
		atrReady(),
	}
}

func (VWAPBounce) Periods(p tuning.Profile) []int { return []int{p.Int("trendPeriod")} }

func (s VWAPBounce) Detect(in Input) Outcome {
	p := in.Tuning
	vwap, ok1 := in.Ctx.VWAP()
	slope, ok2 := in.Ctx.Slope(p.Int("trendPeriod"))
	atr, ok3 := in.Ctx.ATR()
	if !ok1 || !ok2 || !ok3 || atr <= 0 {
		return Outcome{Diagnostic: "inputs not ready"}
	}
	last := in.Ctx.Last()
	tol := p.Num("touchTolAtr") * atr
	stopDist := p.Num("stopAtr") * atr

	switch {
	case slope > 0 && math.Abs(last.Low-vwap) <= tol && last.Close > vwap && last.Bullish():
		return Outcome{Signal: newSignal(in, s.ID(), model.Buy,
			"bounce off VWAP "+f4(vwap)+" in uptrend", last.Close,
			stopAt(model.Buy, math.Min(vwap, last.Low), stopDist), 1.5, 3)}
	case slope < 0 && math.Abs(last.High-vwap) <= tol && last.Close < vwap && last.Bearish():
		return Outcome{Signal: newSignal(in, s.ID(), model.Sell,
			"rejection at VWAP "+f4(vwap)+" in downtrend", last.Close,
			stopAt(model.Sell, math.Max(vwap, last.High), stopDist), 1.5, 3)}
	}
	return Outcome{Diagnostic: "no VWAP touch, distance " + f4((last.Close-vwap)/atr) + " ATR"}
}
