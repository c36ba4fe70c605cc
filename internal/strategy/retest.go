package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Retest trades the first pullback to a level broken within the last few
// bars: the last bar must touch the broken level and close beyond it.
type Retest struct{}

func (Retest) ID() string { return IDRetest }

func (Retest) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("lookback", 20).Range(5, 500).Round(1),
		tuning.Fixed("breakoutWindow", 5).Range(2, 50).Round(1),
		tuning.Num("breakoutAtr", 0.2, 0.1, 0.4).Range(0, 5).Relaxed(tuning.RelaxGap),
		tuning.Num("retestTolAtr", 0.3, 0.6, 0.15).Range(0, 5),
		tuning.Fixed("stopAtr", 1.0).Range(0.1, 10),
	}
}

func (Retest) Guards() []guard.Condition {
	return []guard.Condition{
		historyAtLeast("history >= lookback+window+1", func(p tuning.Profile) int {
			return p.Int("lookback") + p.Int("breakoutWindow") + 1
		}),
		atrReady(),
	}
}

func (Retest) Periods(tuning.Profile) []int { return nil }

func (s Retest) Detect(in Input) Outcome {
	p := in.Tuning
	cs := in.Candles
	t := len(cs) - 1
	lookback, window := p.Int("lookback"), p.Int("breakoutWindow")
	if t < lookback+window {
		return Outcome{Diagnostic: "not enough history"}
	}
	atr, ok := in.Ctx.ATR()
	if !ok || atr <= 0 {
		return Outcome{Diagnostic: "ATR not ready"}
	}
	base := bars(cs, t-window-lookback, t-window)
	res, _ := indicator.Highest(base)
	sup, _ := indicator.Lowest(base)
	brk := p.Num("breakoutAtr") * atr
	tol := p.Num("retestTolAtr") * atr
	last := cs[t]

	brokeUp, brokeDown := false, false
	for _, c := range bars(cs, t-window, t) {
		if c.Close > res+brk {
			brokeUp = true
		}
		if c.Close < sup-brk {
			brokeDown = true
		}
	}

	switch {
	case brokeUp && last.Low <= res+tol && last.Low >= res-tol && last.Close > res && last.Bullish():
		stop := stopAt(model.Buy, res, p.Num("stopAtr")*atr)
		return Outcome{Signal: newSignal(in, s.ID(), model.Buy,
			"retest of broken resistance "+f4(res)+" held", last.Close, stop, 1.5, 3)}
	case brokeDown && last.High >= sup-tol && last.High <= sup+tol && last.Close < sup && last.Bearish():
		stop := stopAt(model.Sell, sup, p.Num("stopAtr")*atr)
		return Outcome{Signal: newSignal(in, s.ID(), model.Sell,
			"retest of broken support "+f4(sup)+" held", last.Close, stop, 1.5, 3)}
	case brokeUp:
		return Outcome{Diagnostic: "resistance " + f4(res) + " broken, waiting for retest"}
	case brokeDown:
		return Outcome{Diagnostic: "support " + f4(sup) + " broken, waiting for retest"}
	}
	return Outcome{}
}
