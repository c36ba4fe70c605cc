package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/logger"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/service"
	chstore "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/store/clickhouse"
	sqlitestore "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/store/sqlite"
)

func newBacktestCmd(cfgPath *string) *cobra.Command {
	var (
		source  string
		dbPath  string
		from    int64
		speed   float64
		symbols []string
		signals bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay candle history through the engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log := logger.Init(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFormat)
			if dbPath == "" {
				dbPath = cfg.SQLite.Path
			}
			if len(symbols) == 0 {
				symbols = cfg.App.Symbols
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader, err := openReader(ctx, source, dbPath, cfg.ClickHouse)
			if err != nil {
				return err
			}
			defer reader.Close()

			out := cmd.OutOrStdout()
			bc := service.BacktestConfig{
				Engine:     &cfg.Engine,
				Symbols:    symbols,
				FromMs:     from * 1000,
				Speed:      speed,
				BufferBars: cfg.Feed.BufferBars,
				Logger:     log,
			}
			if signals {
				bc.OnResult = func(res orchestrator.Result) {
					if res.Signal != nil {
						fmt.Fprintln(out, string(res.Signal.JSON()))
					}
				}
			}

			started := time.Now()
			sum, err := service.Backtest(ctx, reader, bc)
			if err != nil {
				return err
			}
			log.Info().
				Int("bars", sum.Bars).
				Int("evaluated", sum.Evaluated).
				Dur("elapsed", time.Since(started)).
				Msg("backtest complete")
			printSummary(out, sum)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "sqlite", "candle history source: sqlite or clickhouse")
	f.StringVar(&dbPath, "db", "", "SQLite database (default: sqlite.path from config)")
	f.Int64Var(&from, "from", 0, "unix seconds to start from (0 = all history)")
	f.Float64Var(&speed, "speed", 0, "playback speed multiplier (0 = max, 1 = realtime)")
	f.StringSliceVar(&symbols, "symbols", nil, "symbols to replay (default: app.symbols, or all)")
	f.BoolVar(&signals, "signals", false, "print every chosen signal as JSON")
	return cmd
}

func openReader(ctx context.Context, source, dbPath string, ch config.ClickHouse) (model.CandleReader, error) {
	switch source {
	case "sqlite":
		r, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", dbPath, err)
		}
		return r, nil
	case "clickhouse":
		c, err := chstore.Open(ctx, chstore.Config{
			Host:     ch.Host,
			Port:     ch.Port,
			Database: ch.Database,
			User:     ch.User,
			Password: ch.Password,
			UseHTTP:  ch.UseHTTP,
		})
		if err != nil {
			return nil, err
		}
		return chstore.NewReader(c), nil
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func printSummary(w io.Writer, sum *service.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "bars\t%d\n", sum.Bars)
	fmt.Fprintf(tw, "evaluated\t%d\n\n", sum.Evaluated)
	fmt.Fprintln(tw, strings.Join([]string{"STRATEGY", "SIGNALS", "VETOES", "FAULTS"}, "\t"))
	for _, id := range sum.IDs() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", id, sum.Signals[id], sum.Vetoes[id], sum.Faults[id])
	}
	tw.Flush()
}
