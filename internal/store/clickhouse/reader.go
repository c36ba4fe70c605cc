package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

const queryTimeout = 30 * time.Second

// Reader reads archived candles. It satisfies model.CandleReader.
type Reader struct {
	c *Client
}

// NewReader returns a candle reader on c.
func NewReader(c *Client) *Reader { return &Reader{c: c} }

// ReadCandles returns candles of (symbol, tf) with OpenTime > afterMs,
// oldest first. Archived candles are closed by definition.
func (r *Reader) ReadCandles(symbol string, tf int, afterMs int64) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM `+r.c.database+`.candles FINAL
		WHERE symbol = ? AND tf = ? AND open_time > ?
		ORDER BY open_time ASC`, symbol, uint32(tf), afterMs)
	if err != nil {
		return nil, fmt.Errorf("clickhouse read candles: %w", err)
	}
	defer rows.Close()

	out := make([]model.Candle, 0, 1024)
	for rows.Next() {
		c := model.Candle{Closed: true}
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Symbols lists the symbols with candles of tf.
func (r *Reader) Symbols(tf int) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	rows, err := r.c.db.QueryContext(ctx, `
		SELECT DISTINCT symbol FROM `+r.c.database+`.candles
		WHERE tf = ? ORDER BY symbol`, uint32(tf))
	if err != nil {
		return nil, fmt.Errorf("clickhouse symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying client.
func (r *Reader) Close() error { return r.c.Close() }
