package strategy

import (
	"fmt"
	"math"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// newSignal builds a signal with targets at the given reward/risk multiples.
func newSignal(in Input, id string, side model.Side, reason string, entry, stop float64, rr ...float64) *model.Signal {
	return &model.Signal{
		Symbol:         in.Symbol,
		Side:           side,
		StrategyID:     id,
		Reason:         reason,
		Entry:          entry,
		Stop:           stop,
		Targets:        targetsAtR(side, entry, stop, rr...),
		SizeMultiplier: 1,
		BarTime:        in.Ctx.Last().OpenTime,
	}
}

func targetsAtR(side model.Side, entry, stop float64, rr ...float64) []float64 {
	risk := math.Abs(entry - stop)
	out := make([]float64, 0, len(rr))
	for _, m := range rr {
		if side == model.Buy {
			out = append(out, entry+risk*m)
		} else {
			out = append(out, entry-risk*m)
		}
	}
	return out
}

// stopAt places a stop dist below (BUY) or above (SELL) ref.
func stopAt(side model.Side, ref, dist float64) float64 {
	if side == model.Buy {
		return ref - dist
	}
	return ref + dist
}

// bars returns candles[from:to] clamped to the slice bounds.
func bars(cs []model.Candle, from, to int) []model.Candle {
	if from < 0 {
		from = 0
	}
	if to > len(cs) {
		to = len(cs)
	}
	if from >= to {
		return nil
	}
	return cs[from:to]
}

// pivotHighs returns indices in [from, to) whose High is strictly greater
// than the strength highs on each side.
func pivotHighs(cs []model.Candle, from, to, strength int) []int {
	return pivots(cs, from, to, strength, func(a, b model.Candle) bool { return a.High > b.High })
}

// pivotLows mirrors pivotHighs on Low.
func pivotLows(cs []model.Candle, from, to, strength int) []int {
	return pivots(cs, from, to, strength, func(a, b model.Candle) bool { return a.Low < b.Low })
}

func pivots(cs []model.Candle, from, to, strength int, beats func(a, b model.Candle) bool) []int {
	if from < strength {
		from = strength
	}
	if to > len(cs)-strength {
		to = len(cs) - strength
	}
	var out []int
	for i := from; i < to; i++ {
		ok := true
		for k := 1; k <= strength && ok; k++ {
			ok = beats(cs[i], cs[i-k]) && beats(cs[i], cs[i+k])
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func lowerWick(c model.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }

func upperWick(c model.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }

func f4(v float64) string { return fmt.Sprintf("%.4f", v) }

// ── shared guard conditions ──

func atrReady() guard.Condition {
	return guard.Condition{Label: "ATR ready", Check: func(ctx *evalctx.Context, _ tuning.Profile) guard.Outcome {
		v, ok := ctx.ATR()
		return guard.Ready(ok && v > 0)
	}}
}

func historyAtLeast(label string, need func(p tuning.Profile) int) guard.Condition {
	return guard.Condition{Label: label, Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
		return guard.AtLeast(float64(ctx.Len()), true, float64(need(p)))
	}}
}

func emasReady(label string, fields ...string) guard.Condition {
	return guard.Condition{Label: label, Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
		flags := make([]bool, len(fields))
		for i, f := range fields {
			_, flags[i] = ctx.EMA(p.Int(f))
		}
		return guard.Ready(flags...)
	}}
}

func absSlopeAtLeast(label, periodField, minField string) guard.Condition {
	return guard.Condition{Label: label, Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
		s, ok := ctx.Slope(p.Int(periodField))
		return guard.AbsAtLeast(s, ok, p.Num(minField))
	}}
}

func volumeAtLeast(label, multField string) guard.Condition {
	return guard.Condition{Label: label, Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
		r, ok := ctx.VolumeRatio()
		return guard.AtLeast(r, ok, p.Num(multField))
	}}
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
