package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

// SinkConfig configures the analytics sink.
type SinkConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Logger        zerolog.Logger
}

// Sink batches evaluation results into the evaluations and signals tables.
type Sink struct {
	c       *Client
	batch   int
	every   time.Duration
	log     zerolog.Logger
	candles chan candleBatch
}

type candleBatch struct {
	symbol  string
	tf      int
	candles []model.Candle
}

// NewSink creates a sink on c.
func NewSink(c *Client, cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Sink{
		c:       c,
		batch:   cfg.BatchSize,
		every:   cfg.FlushInterval,
		log:     cfg.Logger,
		candles: make(chan candleBatch, 1024),
	}
}

// ArchiveCandles queues closed candles for the candles table. It never
// blocks; a full queue drops the batch and returns false.
func (s *Sink) ArchiveCandles(symbol string, tf int, candles []model.Candle) bool {
	if len(candles) == 0 {
		return true
	}
	select {
	case s.candles <- candleBatch{symbol: symbol, tf: tf, candles: append([]model.Candle(nil), candles...)}:
		return true
	default:
		s.log.Warn().Str("symbol", symbol).Int("tf", tf).Msg("candle archive queue full")
		return false
	}
}

// evaluationRow is one strategy outcome of one evaluation.
type evaluationRow struct {
	TS       time.Time
	Symbol   string
	BarTime  int64
	Strategy string
	Outcome  string
	Rigidity uint8
	Relax    uint8
	Chosen   uint8
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// evaluationRows flattens a ready snapshot into one row per strategy.
func evaluationRows(s *orchestrator.Snapshot, now time.Time) []evaluationRow {
	if s == nil || !s.Ready {
		return nil
	}
	rows := make([]evaluationRow, 0, len(s.Strategies))
	for _, r := range s.Strategies {
		rows = append(rows, evaluationRow{
			TS:       now,
			Symbol:   s.Symbol,
			BarTime:  s.BarTime,
			Strategy: r.ID,
			Outcome:  r.Outcome,
			Rigidity: uint8(r.Rigidity),
			Relax:    boolU8(s.Relax.Active),
			Chosen:   boolU8(s.Chosen == r.ID),
		})
	}
	return rows
}

// Run consumes results until ctx is cancelled or ch is closed, flushing
// every BatchSize results or FlushInterval.
func (s *Sink) Run(ctx context.Context, ch <-chan orchestrator.Result) {
	pending := make([]orchestrator.Result, 0, s.batch)
	var bars []candleBatch
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 && len(bars) == 0 {
			return
		}
		// The parent context may already be done on shutdown.
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if len(pending) > 0 {
			if err := s.Write(fctx, pending...); err != nil {
				s.log.Error().Err(err).Int("results", len(pending)).Msg("clickhouse flush failed")
			}
			pending = pending[:0]
		}
		if len(bars) > 0 {
			if err := s.insertCandles(fctx, bars); err != nil {
				s.log.Error().Err(err).Int("batches", len(bars)).Msg("clickhouse candle flush failed")
			}
			bars = bars[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case res, ok := <-ch:
			if !ok {
				flush()
				return
			}
			if res.Snapshot == nil || !res.Snapshot.Ready {
				continue
			}
			pending = append(pending, res)
			if len(pending) >= s.batch {
				flush()
			}
		case cb := <-s.candles:
			bars = append(bars, cb)
			if len(bars) >= s.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Write inserts the outcomes and signals of results in one batch per table.
func (s *Sink) Write(ctx context.Context, results ...orchestrator.Result) error {
	now := time.Now().UTC()
	var evals []evaluationRow
	var sigs []*model.Signal
	for _, r := range results {
		evals = append(evals, evaluationRows(r.Snapshot, now)...)
		if r.Signal != nil {
			sigs = append(sigs, r.Signal)
		}
	}
	if len(evals) > 0 {
		if err := s.insertEvaluations(ctx, evals); err != nil {
			return err
		}
	}
	if len(sigs) > 0 {
		if err := s.insertSignals(ctx, now, sigs); err != nil {
			return err
		}
	}
	s.log.Debug().Int("evaluations", len(evals)).Int("signals", len(sigs)).Msg("clickhouse batch written")
	return nil
}

func (s *Sink) insertEvaluations(ctx context.Context, rows []evaluationRow) error {
	tx, err := s.c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.c.database+`.evaluations
		(ts, symbol, bar_time, strategy, outcome, rigidity, relax, chosen)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clickhouse prepare evaluations: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.TS, r.Symbol, r.BarTime, r.Strategy, r.Outcome, r.Rigidity, r.Relax, r.Chosen); err != nil {
			tx.Rollback()
			return fmt.Errorf("clickhouse append evaluation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Sink) insertSignals(ctx context.Context, now time.Time, sigs []*model.Signal) error {
	tx, err := s.c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.c.database+`.signals
		(ts, symbol, strategy, side, entry, stop, targets, confidence, bar_time, reason)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clickhouse prepare signals: %w", err)
	}
	defer stmt.Close()
	for _, sig := range sigs {
		targets := sig.Targets
		if targets == nil {
			targets = []float64{}
		}
		if _, err := stmt.ExecContext(ctx, now, sig.Symbol, sig.StrategyID, string(sig.Side),
			sig.Entry, sig.Stop, targets, sig.Confidence, sig.BarTime, sig.Reason); err != nil {
			tx.Rollback()
			return fmt.Errorf("clickhouse append signal: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Sink) insertCandles(ctx context.Context, batches []candleBatch) error {
	tx, err := s.c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.c.database+`.candles
		(symbol, tf, open_time, close_time, open, high, low, close, volume)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clickhouse prepare candles: %w", err)
	}
	defer stmt.Close()
	for _, b := range batches {
		for _, c := range b.candles {
			if _, err := stmt.ExecContext(ctx, b.symbol, uint32(b.tf), c.OpenTime, c.CloseTime,
				c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
				tx.Rollback()
				return fmt.Errorf("clickhouse append candle: %w", err)
			}
		}
	}
	return tx.Commit()
}
