package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/logger"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/service"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume candles, evaluate strategies and publish signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log := logger.Init(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFormat)
			log.Info().
				Str("env", cfg.App.Env).
				Strs("symbols", cfg.App.Symbols).
				Int("execution_tf", cfg.Engine.ExecutionTF).
				Ints("regime_tfs", cfg.Engine.RegimeTFs).
				Msg("starting")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(ctx, cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("init failed")
				return err
			}
			if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("fatal")
				return err
			}
			log.Info().Msg("stopped")
			return nil
		},
	}
}
