package strategy

import (
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// ORB trades a fresh break of the session's opening range, scored 0..100
// for confidence. When no breakout qualifies it falls back to fading an
// overextension from the session VWAP on a reversal candle.
type ORB struct{}

func (ORB) ID() string { return IDORB }

func (ORB) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("rangeBars", 15).Range(1, 240).Round(1),
		tuning.Fixed("maxBarsAfterRange", 120).Range(1, 1440).Round(1),
		tuning.Num("breakoutAtr", 0.1, 0.05, 0.25).Range(0, 5),
		tuning.Num("volumeMult", 1.3, 1.0, 2.0).Range(0, 20),
		tuning.Num("minConfidence", 55, 40, 75).Range(0, 100).Round(1),
		tuning.Flag("fadeEnabled", true),
		tuning.Num("fadeDistAtr", 1.5, 1.0, 2.5).Range(0.1, 10),
		tuning.Fixed("fadeSize", 0.5).Range(0.1, 2),
	}
}

func (ORB) Guards() []guard.Condition {
	return []guard.Condition{
		{Label: "opening range complete", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			n := len(sessionBars(ctx.Candles(), ctx.SessionAnchor()))
			return guard.Within(float64(n), ctx.Ready(), float64(p.Int("rangeBars")+1), float64(p.Int("rangeBars")+p.Int("maxBarsAfterRange")))
		}},
		atrReady(),
		{Label: "session VWAP ready", Check: func(ctx *evalctx.Context, _ tuning.Profile) guard.Outcome {
			_, ok := ctx.VWAP()
			return guard.Ready(ok)
		}},
	}
}

func (ORB) Periods(tuning.Profile) []int { return nil }

func (s ORB) Detect(in Input) Outcome {
	p := in.Tuning
	session := sessionBars(in.Candles, in.Ctx.SessionAnchor())
	rangeBars := p.Int("rangeBars")
	if len(session) <= rangeBars {
		return Outcome{Diagnostic: "opening range still forming"}
	}
	atr, ok := in.Ctx.ATR()
	if !ok || atr <= 0 {
		return Outcome{Diagnostic: "ATR not ready"}
	}
	hi, _ := indicator.Highest(session[:rangeBars])
	lo, _ := indicator.Lowest(session[:rangeBars])
	last := session[len(session)-1]
	prev := session[len(session)-2]
	buffer := p.Num("breakoutAtr") * atr

	var side model.Side
	var level float64
	switch {
	case last.Close > hi+buffer && prev.Close <= hi+buffer:
		side, level = model.Buy, hi
	case last.Close < lo-buffer && prev.Close >= lo-buffer:
		side, level = model.Sell, lo
	}

	diag := "no fresh opening-range break"
	if side != "" {
		conf := s.confidence(in.Ctx, last, side, level, atr, p)
		switch {
		case conf < p.Num("minConfidence"):
			diag = "breakout " + string(side) + " confidence " + f4(conf) + " < " + f4(p.Num("minConfidence"))
		case in.Gate != nil && !in.Gate(side):
			diag = "breakout " + string(side) + " blocked by gate"
		default:
			height := hi - lo
			stop := (hi + lo) / 2
			if (side == model.Buy && stop >= last.Close) || (side == model.Sell && stop <= last.Close) {
				stop = stopAt(side, last.Close, atr)
			}
			sig := newSignal(in, s.ID(), side,
				"opening range "+f4(lo)+"-"+f4(hi)+" broken "+crossWord(side)+", confidence "+f4(conf),
				last.Close, stop)
			sig.Targets = []float64{
				stopAt(side.Opposite(), last.Close, height),
				stopAt(side.Opposite(), last.Close, 2*height),
			}
			sig.Confidence = conf
			sig.SizeMultiplier = sizeFromConfidence(conf)
			return Outcome{Signal: sig}
		}
	}

	if p.Bool("fadeEnabled") {
		if sig := s.fade(in, last, atr); sig != nil {
			return Outcome{Signal: sig}
		}
	}
	return Outcome{Diagnostic: diag}
}

// confidence scores a breakout 0..100 from volume (35), distance beyond the
// level (25), close location in the bar (20) and VWAP agreement (20).
func (ORB) confidence(ctx *evalctx.Context, last model.Candle, side model.Side, level, atr float64, p tuning.Profile) float64 {
	var score float64
	if r, ok := ctx.VolumeRatio(); ok && p.Num("volumeMult") > 0 {
		score += 35 * math.Min(r/p.Num("volumeMult"), 2) / 2
	}
	dist := math.Abs(last.Close-level) / atr
	score += 25 * math.Min(dist/(p.Num("breakoutAtr")+1), 1)
	if rng := last.Range(); rng > 0 {
		loc := (last.Close - last.Low) / rng
		if side == model.Sell {
			loc = 1 - loc
		}
		score += 20 * loc
	}
	if vwap, ok := ctx.VWAP(); ok {
		if (side == model.Buy && last.Close > vwap) || (side == model.Sell && last.Close < vwap) {
			score += 20
		}
	}
	return math.Round(math.Max(0, math.Min(100, score))*100) / 100
}

// fade returns a VWAP reversion signal when price is stretched at least
// fadeDistAtr from VWAP and the last bar reverses toward it.
func (s ORB) fade(in Input, last model.Candle, atr float64) *model.Signal {
	vwap, ok := in.Ctx.VWAP()
	if !ok {
		return nil
	}
	p := in.Tuning
	dist := (last.Close - vwap) / atr
	var side model.Side
	switch {
	case dist >= p.Num("fadeDistAtr") && last.Bearish():
		side = model.Sell
	case dist <= -p.Num("fadeDistAtr") && last.Bullish():
		side = model.Buy
	default:
		return nil
	}
	extreme := last.Low
	if side == model.Sell {
		extreme = last.High
	}
	sig := newSignal(in, s.ID(), side,
		"AVWAP fade: "+f4(math.Abs(dist))+" ATR from VWAP "+f4(vwap),
		last.Close, stopAt(side, extreme, 0.5*atr))
	sig.Targets = []float64{vwap}
	sig.Confidence = 50
	sig.SizeMultiplier = p.Num("fadeSize")
	return sig
}

// sessionBars returns candles opened at or after the session anchor.
func sessionBars(cs []model.Candle, anchor int64) []model.Candle {
	i := len(cs)
	for i > 0 && cs[i-1].OpenTime >= anchor {
		i--
	}
	return cs[i:]
}

// sizeFromConfidence maps 0..100 to a 0.5..1.5 size multiplier.
func sizeFromConfidence(conf float64) float64 {
	return math.Round((0.5+math.Max(0, math.Min(100, conf))/100)*100) / 100
}
