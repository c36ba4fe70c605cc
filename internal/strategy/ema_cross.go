package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// EMACross trades a recent fast/slow EMA cross in the direction of the fast
// EMA's slope, inside an ATR volatility band and on above-average volume.
//
// Buy: fast EMA crossed above slow EMA within crossLookback bars and slopes up.
// Sell: fast EMA crossed below slow EMA within crossLookback bars and slopes down.
type EMACross struct{}

func (EMACross) ID() string { return IDEMACross }

func (EMACross) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("fast", 20).Range(2, 400).Round(1),
		tuning.Fixed("slow", 50).Range(3, 800).Round(1),
		tuning.Num("slopeMin", 0.0002, 0.00005, 0.0005).Range(0, 0.01).Relaxed(tuning.RelaxSlope),
		tuning.Num("atrMin", 0.0005, 0.0002, 0.001).Range(0, 1),
		tuning.Num("atrMax", 0.03, 0.05, 0.015).Range(0, 1),
		tuning.Num("volumeMult", 1.2, 0.8, 2.0).Range(0, 20).Relaxed(tuning.RelaxVolume),
		tuning.Fixed("crossLookback", 3).Range(1, 20).Round(1),
		tuning.Fixed("stopAtr", 1.5).Range(0.1, 10),
		tuning.Fixed("target1Atr", 1.5).Range(0.1, 20),
		tuning.Fixed("target2Atr", 3).Range(0.1, 40),
	}
}

func (EMACross) Guards() []guard.Condition {
	return []guard.Condition{
		emasReady("EMA fast/slow ready", "fast", "slow"),
		absSlopeAtLeast("|slope fast| >= slopeMin", "fast", "slopeMin"),
		{Label: "ATR% within [atrMin, atrMax]", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			v, ok := ctx.ATRNorm()
			return guard.Within(v, ok, p.Num("atrMin"), p.Num("atrMax"))
		}},
		volumeAtLeast("volume >= volumeMult x avg20", "volumeMult"),
	}
}

func (EMACross) Periods(p tuning.Profile) []int {
	return []int{p.Int("fast"), p.Int("slow")}
}

func (s EMACross) Detect(in Input) Outcome {
	p := in.Tuning
	fast, slow := p.Int("fast"), p.Int("slow")
	lookback := p.Int("crossLookback")

	dir, ago, ok := recentCross(in.Ctx, fast, slow, lookback)
	if !ok {
		return Outcome{Diagnostic: "EMA not ready"}
	}
	if dir == 0 {
		return Outcome{Diagnostic: "no cross within " + itoa(lookback) + " bars"}
	}
	slope, ok := in.Ctx.Slope(fast)
	if !ok {
		return Outcome{Diagnostic: "slope not ready"}
	}
	atr, _ := in.Ctx.ATR()
	entry := in.Ctx.Close()

	side := model.Buy
	if dir < 0 {
		side = model.Sell
	}
	if (side == model.Buy && slope <= 0) || (side == model.Sell && slope >= 0) {
		return Outcome{Diagnostic: "cross " + string(side) + " against fast slope " + f4(slope)}
	}

	sig := newSignal(in, s.ID(), side,
		"EMA"+itoa(fast)+" crossed "+crossWord(side)+" EMA"+itoa(slow)+" "+itoa(ago)+" bars ago, slope "+f4(slope),
		entry, stopAt(side, entry, p.Num("stopAtr")*atr))
	sig.Targets = []float64{
		stopAt(side.Opposite(), entry, p.Num("target1Atr")*atr),
		stopAt(side.Opposite(), entry, p.Num("target2Atr")*atr),
	}
	return Outcome{Signal: sig}
}

// recentCross finds the most recent fast/slow cross within lookback bars.
// dir is +1 for a cross up, -1 for a cross down, 0 when none; ago is the
// number of bars since the crossing bar (0 = last bar). The current
// relation must still match the cross direction.
func recentCross(ctx *evalctx.Context, fast, slow, lookback int) (dir, ago int, ok bool) {
	f0, ok1 := ctx.EMAAt(fast, 0)
	s0, ok2 := ctx.EMAAt(slow, 0)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	now := sign(f0 - s0)
	if now == 0 {
		return 0, 0, true
	}
	for k := 0; k < lookback; k++ {
		fp, okF := ctx.EMAAt(fast, k+1)
		sp, okS := ctx.EMAAt(slow, k+1)
		if !okF || !okS {
			return 0, 0, true
		}
		if sign(fp-sp) != now {
			return now, k, true
		}
	}
	return 0, 0, true
}

func crossWord(side model.Side) string {
	if side == model.Buy {
		return "above"
	}
	return "below"
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
