package strategy

import (
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/indicator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// ATRSqueeze trades the first wide-range bar closing outside the Bollinger
// Bands right after the band width sat in the low percentiles of its history.
type ATRSqueeze struct{}

func (ATRSqueeze) ID() string { return IDATRSqueeze }

func (ATRSqueeze) Schema() tuning.Schema {
	return tuning.Schema{
		tuning.Fixed("bbPeriod", 20).Range(2, 400).Round(1),
		tuning.Fixed("bbMult", 2).Range(0.5, 5),
		tuning.Fixed("lookback", 100).Range(10, 2000).Round(1),
		tuning.Num("squeezePct", 20, 30, 10).Range(0, 100),
		tuning.Num("expansionAtr", 1.2, 1.0, 1.6).Range(0, 10),
		tuning.Fixed("stopAtr", 0.5).Range(0, 10),
	}
}

func (ATRSqueeze) Guards() []guard.Condition {
	return []guard.Condition{
		historyAtLeast("history >= bbPeriod+lookback", func(p tuning.Profile) int {
			return p.Int("bbPeriod") + p.Int("lookback")
		}),
		atrReady(),
		{Label: "prior width percentile <= squeezePct", Check: func(ctx *evalctx.Context, p tuning.Profile) guard.Outcome {
			rank, ok := squeezeRank(ctx.Candles(), p)
			return guard.AtMost(rank, ok, p.Num("squeezePct"))
		}},
	}
}

func (ATRSqueeze) Periods(tuning.Profile) []int { return nil }

// squeezeRank returns the percentile rank of the previous bar's band width
// among the widths of the lookback bars before the last one.
func squeezeRank(cs []model.Candle, p tuning.Profile) (float64, bool) {
	t := len(cs) - 1
	if t < 1 {
		return 0, false
	}
	widths := indicator.BollingerWidthSeries(cs[:t], p.Int("bbPeriod"), p.Num("bbMult"))
	prev, ok := widths.Last()
	if !ok {
		return 0, false
	}
	hist := widths.Tail(p.Int("lookback"))
	if len(hist) < p.Int("lookback") {
		return 0, false
	}
	return indicator.PercentileRank(hist, prev)
}

func (s ATRSqueeze) Detect(in Input) Outcome {
	p := in.Tuning
	cs := in.Candles
	t := len(cs) - 1
	rank, ok := squeezeRank(cs, p)
	if !ok {
		return Outcome{Diagnostic: "band width history not ready"}
	}
	if rank > p.Num("squeezePct") {
		return Outcome{Diagnostic: "no squeeze, width rank " + f4(rank)}
	}
	prevATR, ok := in.Ctx.ATRSeries().At(t - 1)
	if !ok || prevATR <= 0 {
		return Outcome{Diagnostic: "ATR not ready"}
	}
	last := cs[t]
	if last.Range() < p.Num("expansionAtr")*prevATR {
		return Outcome{Diagnostic: "squeeze on, waiting for expansion"}
	}
	bands, ok := indicator.BollingerWidth(cs, p.Int("bbPeriod"), p.Num("bbMult"))
	if !ok {
		return Outcome{Diagnostic: "bands not ready"}
	}
	atr, _ := in.Ctx.ATR()
	var side model.Side
	switch {
	case last.Close > bands.Upper:
		side = model.Buy
	case last.Close < bands.Lower:
		side = model.Sell
	default:
		return Outcome{Diagnostic: "expansion inside the bands"}
	}
	stop := stopAt(side, bands.Basis, p.Num("stopAtr")*atr)
	return Outcome{Signal: newSignal(in, s.ID(), side,
		"squeeze release "+crossWord(side)+" band, width rank "+f4(rank),
		last.Close, stop, 1.5, 3)}
}
