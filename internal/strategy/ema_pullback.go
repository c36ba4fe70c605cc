package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// EMAPullback scalps a pullback into the fast EMA while the fast EMA holds
// above (below) the trend EMA, confirmed by RSI.
type EMAPullback struct{}

func (EMAPullback) ID() string { return IDEMAPullback }

func (EMAPullback) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("fast", 9).Range(2, 200).Round(1),
		tuning.Fixed("trend", 21).Range(3, 400).Round(1),
		tuning.Num("pullbackTolAtr", 0.25, 0.5, 0.1).Range(0, 5),
		tuning.Num("rsiBuyMin", 50, 45, 55).Range(0, 100),
		tuning.Num("rsiSellMax", 50, 55, 45).Range(0, 100),
		tuning.Num("slopeMin", 0.0001, 0.00002, 0.0003).Range(0, 0.01).Relaxed(tuning.RelaxSlope),
		tuning.Flag("regimeFilter", false),
		tuning.Fixed("stopAtr", 1.0).Range(0.1, 10),
	}
}

func (EMAPullback) Guards() []guard.Condition {
	return []guard.Condition{
		emasReady("EMA fast/trend ready", "fast", "trend"),
		absSlopeAtLeast("|slope trend| >= slopeMin", "trend", "slopeMin"),
		{Label: "RSI ready", Check: func(ctx *evalctx.Context, _ tuning.Profile) guard.Outcome {
			_, ok := ctx.RSI()
			return guard.Ready(ok)
		}},
		{Label: "higher timeframes agree", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			if !p.Bool("regimeFilter") {
				return guard.Pass()
			}
			s, ok := ctx.Slope(p.Int("trend"))
			return guard.Ready(ok && regimeAgrees(ctx, sign(s)))
		}},
		atrReady(),
	}
}

func (EMAPullback) Periods(p tuning.Profile) []int { return []int{p.Int("fast"), p.Int("trend")} }

// regimeAgrees reports whether no higher timeframe trends against dir.
func regimeAgrees(ctx *evalctx.Context, dir int) bool {
	if dir == 0 {
		return false
	}
	for _, tf := range ctx.RegimeTFs() {
		r, _ := ctx.Regime(tf)
		if r.Trend == -dir {
			return false
		}
	}
	return true
}

func (s EMAPullback) Detect(in Input) Outcome {
	p := in.Tuning
	fast, ok1 := in.Ctx.EMA(p.Int("fast"))
	trend, ok2 := in.Ctx.EMA(p.Int("trend"))
	slope, ok3 := in.Ctx.Slope(p.Int("trend"))
	rsi, ok4 := in.Ctx.RSI()
	atr, ok5 := in.Ctx.ATR()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || atr <= 0 {
		return Outcome{Diagnostic: "inputs not ready"}
	}
	last := in.Ctx.Last()
	tol := p.Num("pullbackTolAtr") * atr
	stopDist := p.Num("stopAtr") * atr

	switch {
	case fast > trend && slope > 0:
		if last.Low > fast+tol {
			return Outcome{Diagnostic: "uptrend, no pullback to EMA" + itoa(p.Int("fast"))}
		}
		if last.Close <= fast || !last.Bullish() {
			return Outcome{Diagnostic: "pullback not rejected"}
		}
		if rsi < p.Num("rsiBuyMin") {
			return Outcome{Diagnostic: "RSI " + f4(rsi) + " < " + f4(p.Num("rsiBuyMin"))}
		}
		return Outcome{Signal: newSignal(in, s.ID(), model.Buy,
			"pullback to EMA"+itoa(p.Int("fast"))+" held, RSI "+f4(rsi),
			last.Close, stopAt(model.Buy, last.Close, stopDist), 1, 2)}
	case fast < trend && slope < 0:
		if last.High < fast-tol {
			return Outcome{Diagnostic: "downtrend, no pullback to EMA" + itoa(p.Int("fast"))}
		}
		if last.Close >= fast || !last.Bearish() {
			return Outcome{Diagnostic: "pullback not rejected"}
		}
		if rsi > p.Num("rsiSellMax") {
			return Outcome{Diagnostic: "RSI " + f4(rsi) + " > " + f4(p.Num("rsiSellMax"))}
		}
		return Outcome{Signal: newSignal(in, s.ID(), model.Sell,
			"pullback to EMA"+itoa(p.Int("fast"))+" rejected, RSI "+f4(rsi),
			last.Close, stopAt(model.Sell, last.Close, stopDist), 1, 2)}
	}
	return Outcome{Diagnostic: "EMAs not aligned with slope"}
}
