// Package sqlite persists candle history and the engine journal (chosen
// signals and evaluation snapshots) in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	dsnOptions        = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/hermes.db"
	// KeepSnapshots is the number of snapshots kept per symbol; 0 keeps all.
	KeepSnapshots int
	Logger        zerolog.Logger
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db   *sql.DB
	keep int
	log  zerolog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a Writer, opening the database in WAL mode and creating the
// schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	cfg.Logger.Info().Str("path", cfg.DBPath).Msg("sqlite opened")
	return &Writer{db: db, keep: cfg.KeepSnapshots, log: cfg.Logger}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles_tf (
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, open_time)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			strategy    TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			entry       REAL    NOT NULL,
			stop        REAL    NOT NULL,
			bar_time    INTEGER NOT NULL,
			data        TEXT    NOT NULL,
			created_at  INTEGER NOT NULL,
			UNIQUE (symbol, bar_time)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			bar_time    INTEGER NOT NULL,
			chosen      TEXT    NOT NULL DEFAULT '',
			data        TEXT    NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_symbol ON snapshots (symbol, id);
	`)
	return err
}

// InsertCandles upserts closed candles of one series in a single transaction.
func (w *Writer) InsertCandles(symbol string, tf int, candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles_tf (symbol, tf, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(symbol, tf, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Run reads evaluation results from resultCh and journals them in batched
// transactions. Flushes every batchSize results or every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or resultCh is closed.
func (w *Writer) Run(ctx context.Context, resultCh <-chan orchestrator.Result) {
	batch := make([]orchestrator.Result, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.Journal(batch...); err != nil {
			w.log.Error().Err(err).Int("results", len(batch)).Msg("journal batch failed")
		} else {
			w.log.Debug().Int("results", len(batch)).Dur("took", time.Since(start)).Msg("journal committed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case res, ok := <-resultCh:
			if !ok {
				flush()
				return
			}
			if res.Snapshot == nil || !res.Snapshot.Ready {
				continue
			}
			batch = append(batch, res)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Journal stores the snapshots and chosen signals of results in one
// transaction, then prunes old snapshots.
func (w *Writer) Journal(results ...orchestrator.Result) error {
	now := time.Now().UnixMilli()
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	snapStmt, err := tx.Prepare(`INSERT INTO snapshots (symbol, bar_time, chosen, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer snapStmt.Close()

	sigStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO signals (symbol, strategy, side, entry, stop, bar_time, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer sigStmt.Close()

	symbols := make(map[string]bool)
	for _, r := range results {
		if r.Snapshot == nil {
			continue
		}
		s := r.Snapshot
		if _, err := snapStmt.Exec(s.Symbol, s.BarTime, s.Chosen, string(s.JSON()), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert snapshot: %w", err)
		}
		symbols[s.Symbol] = true
		if sig := r.Signal; sig != nil {
			if _, err := sigStmt.Exec(sig.Symbol, sig.StrategyID, string(sig.Side), sig.Entry, sig.Stop, sig.BarTime, string(sig.JSON()), now); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert signal: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if w.keep > 0 {
		for sym := range symbols {
			if _, err := w.db.Exec(`
				DELETE FROM snapshots WHERE symbol = ? AND id NOT IN (
					SELECT id FROM snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?
				)`, sym, sym, w.keep); err != nil {
				w.log.Warn().Err(err).Str("symbol", sym).Msg("prune snapshots")
			}
		}
	}
	return nil
}

// Signals returns the most recent journaled signals of symbol, newest first.
// An empty symbol returns signals of every symbol.
func (w *Writer) Signals(symbol string, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.db.Query(`
		SELECT data FROM signals
		WHERE (? = '' OR symbol = ?)
		ORDER BY bar_time DESC, id DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return nil, fmt.Errorf("unmarshal signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
