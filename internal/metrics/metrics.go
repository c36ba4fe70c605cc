// Package metrics holds the Prometheus collectors and the health status of
// the engine process.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation outcomes.
const (
	OutcomeSignal   = "signal"
	OutcomeNoSignal = "no_signal"
	OutcomeNotReady = "not_ready"
	OutcomeCached   = "cached"
)

// Metrics holds all Prometheus metrics of the engine.
type Metrics struct {
	EvaluationsTotal *prometheus.CounterVec // labels: outcome
	EvalDuration     prometheus.Histogram
	SignalsTotal     *prometheus.CounterVec // labels: strategy, side
	GateVetoes       *prometheus.CounterVec // labels: strategy, reason
	StrategyFaults   *prometheus.CounterVec // labels: strategy
	RelaxActive      *prometheus.GaugeVec   // labels: symbol
	RelaxTransitions *prometheus.CounterVec // labels: transition

	// Ingestion
	CandlesIngested      *prometheus.CounterVec // labels: tf
	StaleCandlesRejected prometheus.Counter
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber

	// Delivery
	PublishErrors *prometheus.CounterVec // labels: sink
	WSClients     prometheus.Gauge

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_evaluations_total",
			Help: "Engine evaluations by outcome",
		}, []string{"outcome"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermes_evaluation_duration_seconds",
			Help:    "Evaluate latency for uncached evaluations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_signals_total",
			Help: "Signals chosen by strategy and side",
		}, []string{"strategy", "side"}),
		GateVetoes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_gate_vetoes_total",
			Help: "Signals vetoed by the directional gate",
		}, []string{"strategy", "reason"}),
		StrategyFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_strategy_faults_total",
			Help: "Detector errors and recovered panics",
		}, []string{"strategy"}),
		RelaxActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hermes_relax_active",
			Help: "Relax mode per symbol (0=normal, 1=relaxed)",
		}, []string{"symbol"}),
		RelaxTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_relax_transitions_total",
			Help: "Relax mode transitions",
		}, []string{"transition"}),

		CandlesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_candles_ingested_total",
			Help: "Candles accepted into the series store by timeframe",
		}, []string{"tf"}),
		StaleCandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_stale_candles_rejected_total",
			Help: "Candles older than the series tail",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_fanout_drops_total",
			Help: "Results dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_publish_errors_total",
			Help: "Failed deliveries by sink",
		}, []string{"sink"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_ws_clients",
			Help: "Connected websocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvalDuration,
		m.SignalsTotal,
		m.GateVetoes,
		m.StrategyFaults,
		m.RelaxActive,
		m.RelaxTransitions,
		m.CandlesIngested,
		m.StaleCandlesRejected,
		m.FanoutDropsTotal,
		m.PublishErrors,
		m.WSClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)
	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Optional dependencies are not required for a healthy status.
	redisOptional  bool
	sqliteOptional bool
}

// NewHealthStatus returns a default health status. Dependencies that the
// process runs without are marked optional.
func NewHealthStatus(redisOptional, sqliteOptional bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:      time.Now(),
		redisOptional:  redisOptional,
		sqliteOptional: sqliteOptional,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(s []string) {
	h.mu.Lock()
	h.Symbols = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Status returns the overall status and its HTTP code.
func (h *HealthStatus) Status() (string, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status()
}

func (h *HealthStatus) status() (string, int) {
	redisOK := h.RedisConnected || h.redisOptional
	sqliteOK := h.SQLiteOK || h.sqliteOptional
	switch {
	case !redisOK && !sqliteOK:
		return "unhealthy", http.StatusServiceUnavailable
	case !redisOK || !sqliteOK || (!h.FeedConnected && !h.redisOptional):
		return "degraded", http.StatusServiceUnavailable
	}
	return "healthy", http.StatusOK
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall, code := h.status()
	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}
