package service

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/logger"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/notification"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

// symbols returns the configured symbols, or the ones SQLite has history
// for when none are configured.
func (svc *Service) symbols() []string {
	if len(svc.cfg.App.Symbols) > 0 {
		return svc.cfg.App.Symbols
	}
	if svc.sqlReader == nil {
		return nil
	}
	syms, err := svc.sqlReader.Symbols(svc.engine.Config().ExecutionTF)
	if err != nil {
		svc.log.Warn().Err(err).Msg("discover symbols")
		return nil
	}
	return syms
}

// tfs returns the execution timeframe followed by the regime timeframes,
// without duplicates.
func (svc *Service) tfs() []int {
	cfg := svc.engine.Config()
	seen := map[int]bool{cfg.ExecutionTF: true}
	out := []int{cfg.ExecutionTF}
	for _, tf := range cfg.RegimeTFs {
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out
}

// feedTFs returns the timeframes consumed from the feed. With resampling
// only the execution timeframe is read.
func (svc *Service) feedTFs() []int {
	if svc.resampler != nil {
		return []int{svc.engine.Config().ExecutionTF}
	}
	return svc.tfs()
}

// regimeTFs returns the distinct regime timeframes above the execution one.
func regimeTFs(cfg *config.Engine) []int {
	var out []int
	for _, tf := range cfg.RegimeTFs {
		if tf > cfg.ExecutionTF && !slices.Contains(out, tf) {
			out = append(out, tf)
		}
	}
	return out
}

// backfill warms the store with the most recent closed bars from SQLite.
func (svc *Service) backfill(symbols []string) {
	n := svc.cfg.Feed.BackfillBars
	if svc.sqlReader == nil || n <= 0 {
		return
	}
	total := 0
	for _, sym := range symbols {
		for _, tf := range svc.tfs() {
			candles, err := svc.sqlReader.ReadLatest(sym, tf, n)
			if err != nil {
				svc.log.Warn().Err(err).Str("symbol", sym).Int("tf", tf).Msg("backfill read failed")
				continue
			}
			total += svc.store.Load(sym, tf, candles)
			if svc.resampler != nil && tf == svc.engine.Config().ExecutionTF {
				svc.resampler.Seed(sym, candles)
			}
		}
	}
	if total > 0 {
		svc.log.Info().Int("candles", total).Int("symbols", len(symbols)).Msg("backfilled from sqlite")
	}
}

// processLoop applies every candle update and evaluates on each closed
// execution bar.
func (svc *Service) processLoop(ctx context.Context) {
	defer close(svc.resCh)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-svc.updates:
			res, ok := svc.handle(u)
			if !ok {
				continue
			}
			select {
			case svc.resCh <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handle applies one update. It returns the evaluation result when the
// update closed a bar of the execution timeframe.
func (svc *Service) handle(u model.CandleUpdate) (orchestrator.Result, bool) {
	ev := svc.store.Apply(u)
	if len(ev.Closed) == 0 {
		return orchestrator.Result{}, false
	}
	last := ev.Closed[len(ev.Closed)-1]
	svc.health.SetLastCandleTime(time.UnixMilli(last.CloseTime))

	svc.archive(u.Symbol, u.TF, ev.Closed)
	cfg := svc.engine.Config()
	if u.TF != cfg.ExecutionTF {
		return orchestrator.Result{}, false
	}
	if svc.resampler != nil {
		svc.resample(cfg, u.Symbol, ev.Closed)
	}

	ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(u.Symbol, time.UnixMilli(last.CloseTime)))
	res := svc.engine.Evaluate(u.Symbol)
	if res.Signal != nil {
		lg := logger.Ctx(ctx, svc.log)
		lg.Info().
			Str("symbol", u.Symbol).
			Str("strategy", res.Signal.StrategyID).
			Str("side", string(res.Signal.Side)).
			Float64("entry", res.Signal.Entry).
			Msg("signal")
	}
	return res, true
}

func (svc *Service) archive(symbol string, tf int, closed []model.Candle) {
	if len(closed) == 0 {
		return
	}
	if svc.chSink != nil {
		svc.chSink.ArchiveCandles(symbol, tf, closed)
	}
	if svc.sqlWriter == nil {
		return
	}
	if err := svc.sqlWriter.InsertCandles(symbol, tf, closed); err != nil {
		svc.log.Warn().Err(err).Str("symbol", symbol).Int("tf", tf).Msg("archive candles")
	}
}

// resample folds closed execution bars into the regime series so they are
// current before the evaluation of the same bar.
func (svc *Service) resample(cfg *config.Engine, symbol string, closed []model.Candle) {
	if want := regimeTFs(cfg); !slices.Equal(want, svc.resampler.TFs()) {
		svc.resampler.SetTFs(want)
	}
	for _, c := range closed {
		for _, ru := range svc.resampler.Process(symbol, c) {
			ev := svc.store.Apply(ru)
			svc.archive(ru.Symbol, ru.TF, ev.Closed)
		}
	}
}

// notifyLoop sends an alert for every chosen signal.
func (svc *Service) notifyLoop(ctx context.Context, ch <-chan orchestrator.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			if res.Signal == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			_ = svc.notify.Send(sendCtx, notification.SignalAlert(res.Signal))
			cancel()
		}
	}
}

// Summary is the per-strategy tally of a backtest.
type Summary struct {
	Bars      int            `json:"bars"`
	Evaluated int            `json:"evaluated"`
	Signals   map[string]int `json:"signals"`
	Vetoes    map[string]int `json:"vetoes"`
	Faults    map[string]int `json:"faults"`
}

func newSummary() *Summary {
	return &Summary{Signals: map[string]int{}, Vetoes: map[string]int{}, Faults: map[string]int{}}
}

func (s *Summary) add(res orchestrator.Result) {
	s.Evaluated++
	if res.Snapshot == nil {
		return
	}
	for _, r := range res.Snapshot.Strategies {
		switch r.Outcome {
		case orchestrator.OutcomeSignal:
			if res.Snapshot.Chosen == r.ID {
				s.Signals[r.ID]++
			}
		case orchestrator.OutcomeVeto:
			s.Vetoes[r.ID]++
		case orchestrator.OutcomeFault:
			s.Faults[r.ID]++
		}
	}
}

// IDs returns the strategy ids present in the summary, sorted.
func (s *Summary) IDs() []string {
	seen := map[string]bool{}
	for _, m := range []map[string]int{s.Signals, s.Vetoes, s.Faults} {
		for id := range m {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
