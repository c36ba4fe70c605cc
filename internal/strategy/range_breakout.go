package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// RangeBreakout trades a close out of a tight, low-ADX box on volume.
// With reverse set it fades a failed breakout instead: the previous bar
// closed outside the box and the last bar closed back inside.
type RangeBreakout struct{}

func (RangeBreakout) ID() string { return IDRangeBreakout }

func (RangeBreakout) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("rangeBars", 30).Range(5, 500).Round(1),
		tuning.Num("maxRangeAtr", 4, 6, 3).Range(0.5, 50),
		tuning.Num("breakoutAtr", 0.15, 0.05, 0.3).Range(0, 5).Relaxed(tuning.RelaxGap),
		tuning.Num("volumeMult", 1.2, 0.9, 1.8).Range(0, 20).Relaxed(tuning.RelaxVolume),
		tuning.Num("adxMax", 25, 30, 20).Range(0, 100),
		tuning.Flag("reverse", false),
		tuning.Fixed("stopAtr", 0.5).Range(0, 10),
	}
}

func (RangeBreakout) Guards() []guard.Condition {
	return []guard.Condition{
		historyAtLeast("history >= rangeBars+2", func(p tuning.Profile) int { return p.Int("rangeBars") + 2 }),
		atrReady(),
		{Label: "ADX <= adxMax", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			d, ok := ctx.ADX()
			return guard.AtMost(d.ADX, ok, p.Num("adxMax"))
		}},
		{Label: "box height <= maxRangeAtr x ATR", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			hi, lo, ok := box(ctx.Candles(), p)
			atr, atrOK := ctx.ATR()
			if !ok || !atrOK || atr <= 0 {
				return guard.AtMost(0, false, p.Num("maxRangeAtr"))
			}
			return guard.AtMost((hi-lo)/atr, true, p.Num("maxRangeAtr"))
		}},
	}
}

func (RangeBreakout) Periods(tuning.Profile) []int { return nil }

// box returns the range the strategy measures against. In reverse mode the
// box ends one bar earlier so the failed breakout bar is outside it.
func box(cs []model.Candle, p tuning.Profile) (hi, lo float64, ok bool) {
	end := len(cs) - 1
	if p.Bool("reverse") {
		end--
	}
	n := p.Int("rangeBars")
	if end-n < 0 {
		return 0, 0, false
	}
	b := bars(cs, end-n, end)
	hi, _ = indicator.Highest(b)
	lo, _ = indicator.Lowest(b)
	return hi, lo, true
}

func (s RangeBreakout) Detect(in Input) Outcome {
	p := in.Tuning
	cs := in.Candles
	hi, lo, ok := box(cs, p)
	atr, atrOK := in.Ctx.ATR()
	if !ok || !atrOK || atr <= 0 {
		return Outcome{Diagnostic: "box not ready"}
	}
	t := len(cs) - 1
	last := cs[t]
	brk := p.Num("breakoutAtr") * atr
	stopDist := p.Num("stopAtr") * atr
	height := hi - lo

	if p.Bool("reverse") {
		prev := cs[t-1]
		switch {
		case prev.Close > hi+brk && last.Close < hi:
			sig := newSignal(in, s.ID(), model.Sell, "failed breakout above "+f4(hi),
				last.Close, stopAt(model.Sell, prev.High, stopDist))
			sig.Targets = []float64{(hi + lo) / 2, lo}
			return Outcome{Signal: sig}
		case prev.Close < lo-brk && last.Close > lo:
			sig := newSignal(in, s.ID(), model.Buy, "failed breakout below "+f4(lo),
				last.Close, stopAt(model.Buy, prev.Low, stopDist))
			sig.Targets = []float64{(hi + lo) / 2, hi}
			return Outcome{Signal: sig}
		}
		return Outcome{Diagnostic: "no failed breakout"}
	}

	var side model.Side
	switch {
	case last.Close > hi+brk:
		side = model.Buy
	case last.Close < lo-brk:
		side = model.Sell
	default:
		return Outcome{}
	}
	if r, ok := in.Ctx.VolumeRatio(); !ok || r < p.Num("volumeMult") {
		return Outcome{Diagnostic: "breakout " + string(side) + " without volume"}
	}
	ref := hi
	if side == model.Sell {
		ref = lo
	}
	sig := newSignal(in, s.ID(), side, "range "+f4(lo)+"-"+f4(hi)+" broken "+crossWord(side),
		last.Close, stopAt(side, ref, stopDist))
	sig.Targets = []float64{
		stopAt(side.Opposite(), last.Close, height),
		stopAt(side.Opposite(), last.Close, 2*height),
	}
	return Outcome{Signal: sig}
}
