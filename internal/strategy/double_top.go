package strategy

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// DoubleTop detects two swing highs (lows) of near-equal price and trades
// the first close through the neckline between them.
type DoubleTop struct{}

func (DoubleTop) ID() string { return IDDoubleTop }

func (DoubleTop) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("swingStrength", 3).Range(1, 20).Round(1),
		tuning.Num("peakTolPct", 0.002, 0.004, 0.001).Range(0, 0.1),
		tuning.Fixed("minSeparation", 5).Range(2, 200).Round(1),
		tuning.Fixed("window", 60).Range(10, 1000).Round(1),
		tuning.Num("breakAtr", 0.05, 0, 0.2).Range(0, 5),
		tuning.Fixed("stopAtr", 0.2).Range(0, 10),
	}
}

func (DoubleTop) Guards() []guard.Condition {
	return []guard.Condition{
		historyAtLeast("history >= window", func(p tuning.Profile) int { return p.Int("window") }),
		atrReady(),
	}
}

func (DoubleTop) Periods(tuning.Profile) []int { return nil }

// twin is a pair of matching swing points and the neckline between them.
type twin struct {
	first, second int
	extreme       float64
	neckline      float64
}

func (s DoubleTop) Detect(in Input) Outcome {
	p := in.Tuning
	cs := in.Candles
	t := len(cs) - 1
	if t < 2 {
		return Outcome{Diagnostic: "not enough history"}
	}
	atr, ok := in.Ctx.ATR()
	if !ok || atr <= 0 {
		return Outcome{Diagnostic: "ATR not ready"}
	}
	buf := p.Num("breakAtr") * atr
	last, prev := cs[t], cs[t-1]

	if top, ok := s.findTwin(cs, p, true); ok {
		line := top.neckline - buf
		if last.Close < line && prev.Close >= line {
			height := top.extreme - top.neckline
			sig := newSignal(in, s.ID(), model.Sell,
				"double top "+f4(top.extreme)+" neckline "+f4(top.neckline)+" broken",
				last.Close, stopAt(model.Sell, top.extreme, p.Num("stopAtr")*atr))
			sig.Targets = []float64{last.Close - height, last.Close - 2*height}
			return Outcome{Signal: sig}
		}
		if last.Close >= line {
			return Outcome{Diagnostic: "double top formed, neckline " + f4(top.neckline) + " intact"}
		}
	}
	if bot, ok := s.findTwin(cs, p, false); ok {
		line := bot.neckline + buf
		if last.Close > line && prev.Close <= line {
			height := bot.neckline - bot.extreme
			sig := newSignal(in, s.ID(), model.Buy,
				"double bottom "+f4(bot.extreme)+" neckline "+f4(bot.neckline)+" broken",
				last.Close, stopAt(model.Buy, bot.extreme, p.Num("stopAtr")*atr))
			sig.Targets = []float64{last.Close + height, last.Close + 2*height}
			return Outcome{Signal: sig}
		}
		if last.Close <= line {
			return Outcome{Diagnostic: "double bottom formed, neckline " + f4(bot.neckline) + " intact"}
		}
	}
	return Outcome{}
}

// findTwin looks for the two most recent matching swing points within the
// window that are still unbroken by any later bar.
func (DoubleTop) findTwin(cs []model.Candle, p tuning.Profile, tops bool) (twin, bool) {
	t := len(cs) - 1
	strength := p.Int("swingStrength")
	from := t - p.Int("window")
	var idx []int
	if tops {
		idx = pivotHighs(cs, from, t, strength)
	} else {
		idx = pivotLows(cs, from, t, strength)
	}
	if len(idx) < 2 {
		return twin{}, false
	}
	a, b := idx[len(idx)-2], idx[len(idx)-1]
	if b-a < p.Int("minSeparation") {
		return twin{}, false
	}
	var pa, pb float64
	if tops {
		pa, pb = cs[a].High, cs[b].High
	} else {
		pa, pb = cs[a].Low, cs[b].Low
	}
	ref := math.Max(math.Abs(pa), math.Abs(pb))
	if ref == 0 || math.Abs(pa-pb)/ref > p.Num("peakTolPct") {
		return twin{}, false
	}
	between := cs[a+1 : b]
	after := cs[b+1:]
	tw := twin{first: a, second: b}
	if tops {
		tw.extreme = math.Max(pa, pb)
		tw.neckline, _ = indicator.Lowest(between)
		if h, ok := indicator.Highest(after); ok && h > tw.extreme {
			return twin{}, false
		}
	} else {
		tw.extreme = math.Min(pa, pb)
		tw.neckline, _ = indicator.Highest(between)
		if l, ok := indicator.Lowest(after); ok && l < tw.extreme {
			return twin{}, false
		}
	}
	return tw, true
}
