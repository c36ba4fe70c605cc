// Package service wires the engine process: candle ingestion from Redis
// streams and SQLite backfill, per-bar evaluation, and delivery of results
// to Redis, the SQLite journal, notifiers and WebSocket clients.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/gateway"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/logger"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/marketdata"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/marketdata/bus"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/marketdata/tfbuilder"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/notification"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
	chstore "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/store/clickhouse"
	redisstore "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/store/redis"
	sqlitestore "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/store/sqlite"
)

const (
	updateBuffer = 5000
	resultBuffer = 1024
)

// Service is the top-level engine process. It owns every dependency and
// coordinates the goroutines.
type Service struct {
	cfg     *config.Config
	log     zerolog.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	store   *marketdata.Store
	engine  *orchestrator.Engine
	results *bus.FanOut[orchestrator.Result]
	hub     *gateway.Hub
	notify  *notification.Multi
	closers []func() error

	// resampler is set when regime bars are derived locally.
	resampler *tfbuilder.Builder

	rdb       *goredis.Client
	breaker   *redisstore.CircuitBreaker
	publisher *redisstore.Publisher
	cfgChan   *redisstore.ConfigChannel

	sqlReader *sqlitestore.Reader
	sqlWriter *sqlitestore.Writer
	chSink    *chstore.Sink

	updates chan model.CandleUpdate
	resCh   chan orchestrator.Result
}

// New connects to the configured dependencies. Redis and SQLite failures
// are fatal only when the dependency is required: Redis when enabled,
// SQLite never.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Service, error) {
	svc := newCore(cfg, log, prometheus.NewRegistry())
	svc.health = metrics.NewHealthStatus(!cfg.Redis.Enabled, true)
	svc.health.SetSymbols(cfg.App.Symbols)

	if cfg.Redis.Enabled {
		rdb, err := redisstore.Connect(ctx, redisstore.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		svc.rdb = rdb
		svc.health.SetRedisConnected(true)
		svc.breaker = redisstore.NewCircuitBreaker(cfg.Redis.BreakerThreshold, cfg.Redis.BreakerCooldown)
		svc.breaker.Instrument(svc.metrics)
		svc.publisher = redisstore.NewPublisher(ctx, rdb, svc.breaker, redisstore.PublisherConfig{
			MaxLen:  cfg.Redis.StreamMaxLen,
			Logger:  logger.Component(log, "publisher"),
			Metrics: svc.metrics,
		})
		svc.cfgChan = redisstore.NewConfigChannel(rdb, cfg.Redis.ConfigChannel, logger.Component(log, "config"))
		svc.closers = append(svc.closers, rdb.Close)
	}

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("create sqlite directory")
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:        cfg.SQLite.Path,
		KeepSnapshots: cfg.SQLite.KeepSnapshots,
		Logger:        logger.Component(log, "sqlite"),
	})
	if err != nil {
		log.Warn().Err(err).Msg("sqlite writer unavailable, continuing without journal and backfill")
	} else {
		svc.sqlWriter = w
		svc.health.SetSQLiteOK(true)
		svc.closers = append(svc.closers, w.Close)
		if r, err := sqlitestore.NewReader(cfg.SQLite.Path); err != nil {
			log.Warn().Err(err).Msg("sqlite reader unavailable, continuing without backfill")
		} else {
			svc.sqlReader = r
			svc.closers = append(svc.closers, r.Close)
		}
	}

	if cfg.ClickHouse.Enabled {
		sink, err := openClickHouse(ctx, cfg.ClickHouse, logger.Component(log, "clickhouse"))
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.chSink = sink.sink
		svc.closers = append(svc.closers, sink.client.Close)
	}

	sinks := []notification.Named{{Name: "log", Notifier: notification.NewLogNotifier(logger.Component(log, "notify"))}}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notification.Named{Name: "webhook", Notifier: notification.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout)})
	}
	if cfg.Telegram.BotToken != "" {
		sinks = append(sinks, notification.Named{Name: "telegram", Notifier: notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)})
	}
	if cfg.Kafka.Enabled {
		k, err := notification.NewKafkaNotifier(notification.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			svc.Close()
			return nil, err
		}
		sinks = append(sinks, notification.Named{Name: "kafka", Notifier: k})
		svc.closers = append(svc.closers, k.Close)
	}
	svc.notify = notification.NewMulti(logger.Component(log, "notify"), svc.metrics, sinks...)
	return svc, nil
}

type clickHouse struct {
	client *chstore.Client
	sink   *chstore.Sink
}

func openClickHouse(ctx context.Context, cfg config.ClickHouse, log zerolog.Logger) (*clickHouse, error) {
	client, err := chstore.Open(ctx, chstore.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		UseHTTP:     cfg.UseHTTP,
		AsyncInsert: cfg.AsyncInsert,
	})
	if err != nil {
		return nil, err
	}
	if cfg.InitSchema {
		if err := client.InitSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("clickhouse connected")
	return &clickHouse{
		client: client,
		sink: chstore.NewSink(client, chstore.SinkConfig{
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			Logger:        log,
		}),
	}, nil
}

// newCore builds the in-process pipeline without external dependencies.
func newCore(cfg *config.Config, log zerolog.Logger, reg *prometheus.Registry) *Service {
	m := metrics.NewMetrics(reg)
	store := marketdata.NewStore(cfg.Feed.BufferBars,
		marketdata.WithStoreLogger(logger.Component(log, "store")),
		marketdata.WithStoreMetrics(m),
	)
	eng := cfg.Engine
	svc := &Service{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		metrics: m,
		health:  metrics.NewHealthStatus(true, true),
		store:   store,
		engine: orchestrator.New(store, &eng,
			orchestrator.WithLogger(logger.Component(log, "orchestrator")),
			orchestrator.WithMetrics(m),
		),
		hub:     gateway.NewHub(logger.Component(log, "gateway"), m),
		updates: make(chan model.CandleUpdate, updateBuffer),
		resCh:   make(chan orchestrator.Result, resultBuffer),
	}
	svc.results = bus.New[orchestrator.Result](resultBuffer, logger.Component(log, "fanout"))
	svc.results.OnDrop = func(sub string) {
		m.FanoutDropsTotal.WithLabelValues(sub).Inc()
	}
	svc.notify = notification.NewMulti(log, m)
	if cfg.Feed.Resample {
		svc.resampler = tfbuilder.New(regimeTFs(&eng), logger.Component(log, "tfbuilder"))
	}
	return svc
}

// Engine returns the orchestrator.
func (svc *Service) Engine() *orchestrator.Engine { return svc.engine }

// Store returns the candle store.
func (svc *Service) Store() *marketdata.Store { return svc.store }

// Run starts every subsystem and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	symbols := svc.symbols()
	svc.health.SetSymbols(symbols)
	svc.backfill(symbols)

	// Subscribers must exist before the fan-out starts.
	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	hubCh := svc.results.Subscribe("gateway")
	notifyCh := svc.results.Subscribe("notify")
	start(func() { svc.hub.Run(ctx, hubCh) })
	start(func() { svc.notifyLoop(ctx, notifyCh) })
	if svc.publisher != nil {
		ch := svc.results.Subscribe("redis")
		start(func() { svc.publisher.Run(ctx, ch) })
	}
	if svc.sqlWriter != nil && svc.cfg.SQLite.Journal {
		ch := svc.results.Subscribe("sqlite")
		start(func() { svc.sqlWriter.Run(ctx, ch) })
	}
	if svc.chSink != nil {
		ch := svc.results.Subscribe("clickhouse")
		start(func() { svc.chSink.Run(ctx, ch) })
	}
	start(func() { svc.results.Run(ctx, svc.resCh) })
	start(func() { svc.processLoop(ctx) })

	if svc.rdb != nil {
		feed := redisstore.NewFeed(svc.rdb, redisstore.FeedConfig{
			Symbols:  symbols,
			TFs:      svc.feedTFs(),
			Consumer: "hermes-" + uuid.NewString()[:8],
			Block:    svc.cfg.Feed.Block,
			Count:    svc.cfg.Feed.Count,
			Logger:   logger.Component(svc.log, "feed"),
		})
		start(func() {
			svc.health.SetFeedConnected(true)
			if err := feed.Run(ctx, svc.updates); err != nil && !errors.Is(err, context.Canceled) {
				svc.log.Error().Err(err).Msg("candle feed stopped")
			}
			svc.health.SetFeedConnected(false)
		})
		start(func() { svc.watchConfig(ctx) })
	}

	var sqlDB *sql.DB
	opts := []gateway.HandlerOption{gateway.WithConfigApplier(svc.ApplyConfig)}
	if svc.cfg.HTTP.JWTSecret != "" {
		opts = append(opts, gateway.WithAuthSecret([]byte(svc.cfg.HTTP.JWTSecret)))
	}
	if svc.sqlWriter != nil {
		sqlDB = svc.sqlWriter.DB()
		opts = append(opts, gateway.WithSignalStore(svc.sqlWriter))
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, sqlDB, 15*time.Second)

	handler := gateway.NewHandler(svc.engine, svc.hub, logger.Component(svc.log, "http"), opts...)
	metricsPath := ""
	if svc.cfg.Metrics.Enabled {
		metricsPath = svc.cfg.Metrics.Path
	}
	server := gateway.NewServer(handler, gateway.ServerConfig{
		Addr:            svc.cfg.HTTP.Addr,
		ReadTimeout:     svc.cfg.HTTP.ReadTimeout,
		WriteTimeout:    svc.cfg.HTTP.WriteTimeout,
		ShutdownTimeout: svc.cfg.HTTP.ShutdownTimeout,
		MetricsPath:     metricsPath,
		Gatherer:        svc.reg,
		Health:          svc.health,
	}, logger.Component(svc.log, "http"))

	svc.log.Info().
		Strs("symbols", symbols).
		Int("execution_tf", svc.engine.Config().ExecutionTF).
		Bool("redis", svc.rdb != nil).
		Bool("sqlite", svc.sqlWriter != nil).
		Bool("clickhouse", svc.chSink != nil).
		Strs("notify", svc.notify.Sinks()).
		Msg("engine running")

	err := server.Run(ctx)
	cancel()
	wg.Wait()
	svc.Close()
	svc.log.Info().Msg("shutdown complete")
	return err
}

// Close releases every connection. Safe to call more than once.
func (svc *Service) Close() {
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i](); err != nil {
			svc.log.Warn().Err(err).Msg("close")
		}
	}
	svc.closers = nil
}

// ApplyConfig installs cfg locally and, when Redis is enabled, publishes
// it on the config channel so peer instances follow.
func (svc *Service) ApplyConfig(ctx context.Context, cfg *config.Engine) error {
	svc.engine.UpdateConfig(cfg)
	svc.log.Info().Int("version", cfg.Version).Int("rigidity", cfg.Rigidity.Global).Msg("engine config applied")
	if svc.cfgChan == nil {
		return nil
	}
	if err := svc.cfgChan.Publish(ctx, cfg); err != nil {
		return fmt.Errorf("publish engine config: %w", err)
	}
	return nil
}

func (svc *Service) watchConfig(ctx context.Context) {
	if cur, err := svc.cfgChan.Current(ctx); err != nil {
		svc.log.Warn().Err(err).Msg("read current engine config")
	} else if cur != nil {
		svc.engine.UpdateConfig(cur)
		svc.log.Info().Msg("engine config restored from redis")
	}
	err := svc.cfgChan.Watch(ctx, func(cfg *config.Engine) {
		svc.engine.UpdateConfig(cfg)
		svc.log.Info().Int("rigidity", cfg.Rigidity.Global).Msg("engine config updated from channel")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		svc.log.Error().Err(err).Msg("config watch stopped")
	}
}
