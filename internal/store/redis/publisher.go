package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

const (
	defaultLatestTTL = 30 * time.Minute
	defaultMaxBuffer = 10000
)

// SnapshotKey is the key holding the latest snapshot of symbol.
func SnapshotKey(symbol string) string { return "snapshot:latest:" + symbol }

// SnapshotChannel is the PubSub channel carrying every snapshot of symbol.
func SnapshotChannel(symbol string) string { return "pub:snapshot:" + symbol }

// SignalStream is the stream of chosen signals of symbol.
func SignalStream(symbol string) string { return "signals:" + symbol }

// SignalChannel is the PubSub channel carrying chosen signals of symbol.
func SignalChannel(symbol string) string { return "pub:signal:" + symbol }

// PublisherConfig configures the result publisher.
type PublisherConfig struct {
	// MaxLen caps the signal stream (approximate trim).
	MaxLen int64
	// MaxBuffer bounds results held while the breaker is open; the oldest
	// is dropped when full.
	MaxBuffer int
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Publisher writes evaluation results to Redis through a circuit breaker.
// While the breaker is open results are buffered and flushed once it
// closes again.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	cfg    PublisherConfig
	ctx    context.Context

	mu     sync.Mutex
	buffer []orchestrator.Result
}

// NewPublisher creates a publisher. ctx bounds background flushes.
func NewPublisher(ctx context.Context, client *goredis.Client, cb *CircuitBreaker, cfg PublisherConfig) *Publisher {
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1000
	}
	p := &Publisher{client: client, cb: cb, cfg: cfg, ctx: ctx}

	cb.mu.Lock()
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.Flush()
		}
	}
	cb.mu.Unlock()
	return p
}

// Run publishes results from ch until ctx is cancelled or ch is closed.
func (p *Publisher) Run(ctx context.Context, ch <-chan orchestrator.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Publish(ctx, res); err != nil {
				p.cfg.Logger.Warn().Err(err).Str("symbol", res.Snapshot.Symbol).Msg("publish result")
			}
		}
	}
}

// Publish writes one result. It returns nil when the result was buffered
// because the breaker is open.
func (p *Publisher) Publish(ctx context.Context, res orchestrator.Result) error {
	if res.Snapshot == nil {
		return nil
	}
	err := p.cb.Execute(func() error { return p.write(ctx, res) })
	if errors.Is(err, ErrCircuitOpen) {
		p.enqueue(res)
		return nil
	}
	if err != nil && p.cfg.Metrics != nil {
		p.cfg.Metrics.PublishErrors.WithLabelValues("redis").Inc()
	}
	return err
}

// write pipelines SET+PUBLISH of the snapshot and, for a signal,
// XADD+PUBLISH of the signal.
func (p *Publisher) write(ctx context.Context, res orchestrator.Result) error {
	snap := res.Snapshot
	data := string(snap.JSON())

	pipe := p.client.Pipeline()
	pipe.Set(ctx, SnapshotKey(snap.Symbol), data, defaultLatestTTL)
	pipe.Publish(ctx, SnapshotChannel(snap.Symbol), data)
	if sig := res.Signal; sig != nil {
		sigData := string(sig.JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SignalStream(snap.Symbol),
			MaxLen: p.cfg.MaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": sigData},
		})
		pipe.Publish(ctx, SignalChannel(snap.Symbol), sigData)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) enqueue(res orchestrator.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) >= p.cfg.MaxBuffer {
		p.buffer = p.buffer[1:]
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PublishErrors.WithLabelValues("redis_buffer").Inc()
		}
	}
	p.buffer = append(p.buffer, res)
}

// Flush replays buffered results. It stops at the first failure and keeps
// the unsent remainder. It returns the number of results written.
func (p *Publisher) Flush() int {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = nil
	p.mu.Unlock()
	if len(pending) == 0 {
		return 0
	}

	sent := 0
	for i, res := range pending {
		if err := p.cb.Execute(func() error { return p.write(p.ctx, res) }); err != nil {
			p.mu.Lock()
			p.buffer = append(append([]orchestrator.Result(nil), pending[i:]...), p.buffer...)
			if len(p.buffer) > p.cfg.MaxBuffer {
				p.buffer = p.buffer[len(p.buffer)-p.cfg.MaxBuffer:]
			}
			p.mu.Unlock()
			break
		}
		sent++
	}
	p.cfg.Logger.Info().Int("flushed", sent).Int("pending", p.Pending()).Msg("flushed buffered results")
	return sent
}

// Pending returns the number of buffered results.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// LatestSnapshot reads the last published snapshot JSON of symbol.
// It returns nil, nil when none exists.
func (p *Publisher) LatestSnapshot(ctx context.Context, symbol string) ([]byte, error) {
	b, err := p.client.Get(ctx, SnapshotKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return b, err
}
