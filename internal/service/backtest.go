package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/logger"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/marketdata"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/marketdata/replay"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

// BacktestConfig configures a historical replay.
type BacktestConfig struct {
	Engine  *config.Engine
	Symbols []string
	FromMs  int64
	// Speed paces the replay; 0 runs as fast as possible.
	Speed      float64
	BufferBars int
	Logger     zerolog.Logger
	// OnResult, when set, receives every evaluation in replay order.
	OnResult func(orchestrator.Result)
}

// Backtest replays the history of reader through a fresh engine and tallies
// the outcome of every evaluation.
func Backtest(ctx context.Context, reader model.CandleReader, cfg BacktestConfig) (*Summary, error) {
	store := marketdata.NewStore(cfg.BufferBars, marketdata.WithStoreLogger(logger.Component(cfg.Logger, "store")))
	eng := orchestrator.New(store, cfg.Engine, orchestrator.WithLogger(logger.Component(cfg.Logger, "orchestrator")))

	tfs := []int{cfg.Engine.ExecutionTF}
	for _, tf := range cfg.Engine.RegimeTFs {
		if tf != cfg.Engine.ExecutionTF {
			tfs = append(tfs, tf)
		}
	}

	ch := make(chan model.CandleUpdate, 1024)
	errCh := make(chan error, 1)
	rp := replay.New(reader, logger.Component(cfg.Logger, "replay"))
	go func() {
		errCh <- rp.Run(ctx, cfg.Symbols, tfs, cfg.FromMs, cfg.Speed, ch)
		close(ch)
	}()

	sum := newSummary()
	for u := range ch {
		ev := store.Apply(u)
		if u.TF != cfg.Engine.ExecutionTF {
			continue
		}
		sum.Bars++
		if len(ev.Closed) == 0 {
			continue
		}
		res := eng.Evaluate(u.Symbol)
		if res.Snapshot != nil && !res.Snapshot.Ready {
			continue
		}
		sum.add(res)
		if cfg.OnResult != nil {
			cfg.OnResult(res)
		}
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return sum, err
	}
	return sum, nil
}
