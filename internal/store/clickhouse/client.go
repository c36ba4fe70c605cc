// Package clickhouse exports per-strategy evaluation outcomes and signals to
// ClickHouse for analytics, and reads archived candles for backtests.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	UseHTTP     bool
	AsyncInsert bool
	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxOpen     int
}

// Client manages the ClickHouse connection pool.
type Client struct {
	db       *sql.DB
	database string
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("clickhouse: host is required")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 4
	}

	db, err := sql.Open("clickhouse", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db, database: cfg.Database}, nil
}

// DB returns the pool for health checks.
func (c *Client) DB() *sql.DB { return c.db }

// Close closes the pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema creates the analytics tables when missing.
func (c *Client) InitSchema(ctx context.Context) error {
	for _, stmt := range schema(c.database) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return nil
}

func schema(db string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + db + `.evaluations (
			ts        DateTime64(3),
			symbol    LowCardinality(String),
			bar_time  Int64,
			strategy  LowCardinality(String),
			outcome   LowCardinality(String),
			rigidity  UInt8,
			relax     UInt8,
			chosen    UInt8
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (symbol, strategy, bar_time)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.signals (
			ts         DateTime64(3),
			symbol     LowCardinality(String),
			strategy   LowCardinality(String),
			side       LowCardinality(String),
			entry      Float64,
			stop       Float64,
			targets    Array(Float64),
			confidence Float64,
			bar_time   Int64,
			reason     String
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, bar_time)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.candles (
			symbol     LowCardinality(String),
			tf         UInt32,
			open_time  Int64,
			close_time Int64,
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, tf, open_time)`,
	}
}

func buildDSN(cfg Config) string {
	scheme := "clickhouse://"
	if cfg.UseHTTP {
		scheme = "http://"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s:%s@%s:%d/%s", scheme, cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var params []string
	if cfg.DialTimeout > 0 {
		params = append(params, "dial_timeout="+cfg.DialTimeout.String())
	}
	if cfg.ReadTimeout > 0 {
		params = append(params, "read_timeout="+cfg.ReadTimeout.String())
	}
	if cfg.AsyncInsert {
		params = append(params, "async_insert=1", "wait_for_async_insert=1")
	}
	if len(params) > 0 {
		b.WriteString("?" + strings.Join(params, "&"))
	}
	return b.String()
}
