package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// LiquiditySweep trades a reversal after the last bar runs the stops beyond
// the prior lookback extreme and closes back inside with a long wick.
type LiquiditySweep struct{}

func (LiquiditySweep) ID() string { return IDLiquiditySweep }

func (LiquiditySweep) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("lookback", 20).Range(3, 500).Round(1),
		tuning.Num("sweepAtr", 0.1, 0.05, 0.25).Range(0, 5),
		tuning.Num("wickRatio", 0.5, 0.35, 0.65).Range(0, 1),
		tuning.Fixed("stopAtr", 0.25).Range(0, 10),
	}
}

func (LiquiditySweep) Guards() []guard.Condition {
	return []guard.Condition{
		historyAtLeast("history >= lookback+1", func(p tuning.Profile) int { return p.Int("lookback") + 1 }),
		atrReady(),
	}
}

func (LiquiditySweep) Periods(tuning.Profile) []int { return nil }

func (s LiquiditySweep) Detect(in Input) Outcome {
	p := in.Tuning
	cs := in.Candles
	t := len(cs) - 1
	lookback := p.Int("lookback")
	if t < lookback {
		return Outcome{Diagnostic: "not enough history"}
	}
	atr, ok := in.Ctx.ATR()
	if !ok || atr <= 0 {
		return Outcome{Diagnostic: "ATR not ready"}
	}
	prior := bars(cs, t-lookback, t)
	lo, _ := indicator.Lowest(prior)
	hi, _ := indicator.Highest(prior)
	last := cs[t]
	rng := last.Range()
	if rng <= 0 {
		return Outcome{Diagnostic: "zero-range bar"}
	}
	depth := p.Num("sweepAtr") * atr
	stopDist := p.Num("stopAtr") * atr

	if last.Low <= lo-depth && last.Close > lo {
		if ratio := lowerWick(last) / rng; ratio >= p.Num("wickRatio") {
			sig := newSignal(in, s.ID(), model.Buy,
				"swept low "+f4(lo)+" and reclaimed, wick "+f4(ratio),
				last.Close, stopAt(model.Buy, last.Low, stopDist), 1.5)
			sig.Targets = append(sig.Targets, hi)
			return Outcome{Signal: sig}
		}
		return Outcome{Diagnostic: "low swept but wick too short"}
	}
	if last.High >= hi+depth && last.Close < hi {
		if ratio := upperWick(last) / rng; ratio >= p.Num("wickRatio") {
			sig := newSignal(in, s.ID(), model.Sell,
				"swept high "+f4(hi)+" and rejected, wick "+f4(ratio),
				last.Close, stopAt(model.Sell, last.High, stopDist), 1.5)
			sig.Targets = append(sig.Targets, lo)
			return Outcome{Signal: sig}
		}
		return Outcome{Diagnostic: "high swept but wick too short"}
	}
	return Outcome{}
}
