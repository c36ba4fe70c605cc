package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

// Reader provides read-only access to SQLite for backfill, replay and the
// journal API. It implements model.CandleReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadCandles reads closed candles of (symbol, tf) with open time after
// afterMs, ordered by open time ascending.
func (r *Reader) ReadCandles(symbol string, tf int, afterMs int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles_tf
		WHERE symbol = ? AND tf = ? AND open_time > ?
		ORDER BY open_time ASC
	`, symbol, tf, afterMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_tf: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Closed: true}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_tf: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadLatest returns the last n candles of (symbol, tf), oldest first.
func (r *Reader) ReadLatest(symbol string, tf, n int) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles_tf
		WHERE symbol = ? AND tf = ?
		ORDER BY open_time DESC
		LIMIT ?
	`, symbol, tf, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query latest candles_tf: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Closed: true}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_tf: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Symbols lists the symbols that have candles for tf.
func (r *Reader) Symbols(tf int) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM candles_tf WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot loads the most recent journaled snapshot of symbol.
// It returns nil, nil when none exists.
func (r *Reader) LatestSnapshot(symbol string) (*orchestrator.Snapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM snapshots
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap orchestrator.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
