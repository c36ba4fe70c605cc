package strategy

import (
	"testing"
	"time"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

const minuteMs = int64(60_000)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()

type bar struct{ o, h, l, c, v float64 }

// minuteBars lays bars out as consecutive closed one-minute candles.
func minuteBars(start int64, bs []bar) []model.Candle {
	out := make([]model.Candle, len(bs))
	for i, b := range bs {
		v := b.v
		if v == 0 {
			v = 1000
		}
		open := start + int64(i)*minuteMs
		out[i] = model.Candle{
			OpenTime: open, CloseTime: open + minuteMs - 1,
			Open: b.o, High: b.h, Low: b.l, Close: b.c, Volume: v, Closed: true,
		}
	}
	return out
}

// alternating returns n bars whose close flips between lo and hi.
// Each bar opens at the other value; h/l extend pad beyond the close.
func alternating(n int, lo, hi, pad float64) []bar {
	out := make([]bar, n)
	for i := range out {
		c, o := lo, hi
		if i%2 == 1 {
			c, o = hi, lo
		}
		out[i] = bar{o: o, h: c + pad, l: c - pad, c: c}
	}
	return out
}

type run struct {
	out   Outcome
	guard guard.Result
	ctx   *evalctx.Context
	prof  tuning.Profile
}

// evaluate resolves d at the baseline with overrides, builds a context and
// runs guards and Detect with an always-open gate.
func evaluate(t *testing.T, d Detector, cs []model.Candle, overrides map[string]any) run {
	t.Helper()
	return evaluateWithGate(t, d, cs, overrides, func(model.Side) bool { return true })
}

func evaluateWithGate(t *testing.T, d Detector, cs []model.Candle, overrides map[string]any, gateFn func(model.Side) bool) run {
	t.Helper()
	res := tuning.NewResolver(map[string]tuning.Schema{d.ID(): d.Schema()}, tuning.Overrides{d.ID(): overrides}, nil)
	p := res.Resolve(d.ID(), tuning.Rigidity{Global: tuning.Baseline})
	ctx := evalctx.Build(cs, evalctx.Requirements{EMAPeriods: d.Periods(p)})
	ev := guard.NewEvaluator(map[string][]guard.Condition{d.ID(): d.Guards()}, map[string]tuning.Schema{d.ID(): d.Schema()})
	g := ev.EvaluateOne(d.ID(), ctx, guard.Relax{}, p, nil)
	out := d.Detect(Input{Symbol: "TEST", Ctx: ctx, Candles: ctx.Candles(), Tuning: p, Gate: gateFn})
	return run{out: out, guard: g, ctx: ctx, prof: p}
}

// crossUpSeries returns a flat, declining then rising series truncated at
// the first bar where EMA(20) closes above EMA(50). The last bar carries
// three times the average volume.
func crossUpSeries(t *testing.T) []model.Candle {
	t.Helper()
	var bs []bar
	for i := 0; i < 150; i++ {
		bs = append(bs, bar{o: 130, h: 130.5, l: 129.5, c: 130})
	}
	for i := 1; i <= 80; i++ {
		c := 130 - 30*float64(i)/80
		bs = append(bs, bar{o: c + 0.2, h: c + 0.5, l: c - 0.5, c: c})
	}
	for i := 0; i < 200; i++ {
		c := 103 + 0.5*float64(i)
		bs = append(bs, bar{o: c - 0.2, h: c + 0.5, l: c - 0.5, c: c})
	}
	closes := make([]float64, len(bs))
	for i, b := range bs {
		closes[i] = b.c
	}
	fast := indicator.EMASeries(closes, 20)
	slow := indicator.EMASeries(closes, 50)
	for i := 231; i < len(bs); i++ {
		if fast.Values[i] > slow.Values[i] && fast.Values[i-1] <= slow.Values[i-1] {
			bs = bs[:i+1]
			bs[i].v = 3000
			return minuteBars(day, bs)
		}
	}
	t.Fatal("fixture never crosses")
	return nil
}
