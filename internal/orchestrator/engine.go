// Package orchestrator runs the evaluation pipeline: it builds the shared
// context, resolves tuning, evaluates guards, advances relax mode and walks
// the strategies in priority order until one produces a signal the
// directional gate allows.
package orchestrator

import (
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/evalctx"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/gate"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/guard"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/relax"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/strategy"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Engine evaluates symbols against the registered strategies.
//
// Evaluate performs no I/O beyond the CandleSource reads and never blocks
// on other symbols. Calls for one symbol are serialised by that symbol's
// state lock; different symbols evaluate concurrently.
type Engine struct {
	source   model.CandleSource
	registry *strategy.Registry
	guards   *guard.Evaluator
	cfg      atomic.Pointer[config.Engine]
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	states map[string]*symbolState
}

// symbolState is the mutable per-symbol state owned by the engine.
type symbolState struct {
	mu     sync.Mutex
	relax  relax.State
	key    int64
	cached *Result
	last   *Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRegistry replaces the default strategy registry.
func WithRegistry(r *strategy.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New creates an engine reading candles from source under cfg.
func New(source model.CandleSource, cfg *config.Engine, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		registry: strategy.Default(),
		log:      zerolog.Nop(),
		states:   make(map[string]*symbolState),
	}
	for _, o := range opts {
		o(e)
	}
	e.guards = guard.NewEvaluator(e.registry.Conditions(), e.registry.Schemas())
	e.cfg.Store(sanitize(cfg))
	return e
}

// sanitize returns cfg with a usable execution timeframe. Configs loaded
// through config.Load are already valid and returned as is.
func sanitize(cfg *config.Engine) *config.Engine {
	if cfg.ExecutionTF > 0 {
		return cfg
	}
	c := *cfg
	c.ExecutionTF = config.DefaultExecutionTF
	return &c
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() *config.Engine { return e.cfg.Load() }

// UpdateConfig publishes a new configuration snapshot and drops every cached
// result so the change applies from the next call. Relax state is kept.
func (e *Engine) UpdateConfig(cfg *config.Engine) {
	e.cfg.Store(sanitize(cfg))
	e.mu.Lock()
	states := make([]*symbolState, 0, len(e.states))
	for _, st := range e.states {
		states = append(states, st)
	}
	e.mu.Unlock()
	for _, st := range states {
		st.mu.Lock()
		st.cached, st.key = nil, 0
		st.mu.Unlock()
	}
}

// Registry returns the strategy registry.
func (e *Engine) Registry() *strategy.Registry { return e.registry }

func (e *Engine) state(symbol string) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[symbol]
	if !ok {
		st = &symbolState{}
		e.states[symbol] = st
	}
	return st
}

// Reset clears the cached result of symbol.
func (e *Engine) Reset(symbol string) {
	st := e.state(symbol)
	st.mu.Lock()
	st.cached, st.key = nil, 0
	st.mu.Unlock()
}

// RelaxState returns the relax state of symbol.
func (e *Engine) RelaxState(symbol string) relax.State {
	st := e.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.relax
}

// LastSnapshot returns the most recent snapshot of symbol, including
// not-ready ones.
func (e *Engine) LastSnapshot(symbol string) (*Snapshot, bool) {
	st := e.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last, st.last != nil
}

// Symbols returns the symbols evaluated so far, sorted.
func (e *Engine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.states))
	for s := range e.states {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs the pipeline for symbol on its last closed bar. It never
// panics and never returns an error: not-ready data, detector faults and
// gate vetoes are reported in the snapshot.
func (e *Engine) Evaluate(symbol string) Result {
	cfg := e.cfg.Load()
	st := e.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	candles := model.ClosedOnly(e.source.ClosedCandles(symbol, cfg.ExecutionTF))
	reason := ""
	switch n := len(candles); {
	case n < cfg.MinHistory || n == 0:
		reason = fmt.Sprintf("insufficient history: %d closed bars, need %d", n, cfg.MinHistory)
	case !finite(candles[n-1].Close):
		reason = "last closed bar has no finite close"
	}
	if reason != "" {
		res := e.notReady(symbol, cfg, st, len(candles), reason)
		st.last = res.Snapshot
		e.countOutcome(metrics.OutcomeNotReady)
		return res
	}

	key := candles[len(candles)-1].CloseTime / cfg.BarMs()
	if st.cached != nil && st.key == key {
		e.countOutcome(metrics.OutcomeCached)
		return *st.cached
	}

	start := time.Now()
	res := e.run(symbol, cfg, st, candles, key)
	if e.metrics != nil {
		e.metrics.EvalDuration.Observe(time.Since(start).Seconds())
	}

	st.key, st.cached, st.last = key, &res, res.Snapshot
	if res.Signal != nil {
		e.countOutcome(metrics.OutcomeSignal)
	} else {
		e.countOutcome(metrics.OutcomeNoSignal)
	}
	return res
}

func (e *Engine) run(symbol string, cfg *config.Engine, st *symbolState, candles []model.Candle, key int64) Result {
	// Tuning first: the EMA periods the context must carry depend on it.
	resolver := tuning.NewResolver(e.registry.Schemas(), cfg.Overrides(), cfg.Presets)
	rig := cfg.RigidityState()
	profiles := resolver.ResolveAll(rig)

	regimes := make(map[int][]model.Candle, len(cfg.RegimeTFs))
	for _, tf := range cfg.RegimeTFs {
		regimes[tf] = e.source.ClosedCandles(symbol, tf)
	}
	ctx := evalctx.Build(candles, evalctx.Requirements{
		EMAPeriods:    mergePeriods(e.registry.Periods(profiles), gate.Periods(cfg.Gate)),
		SlopeLookback: cfg.SlopeLookback,
		Session:       cfg.Session,
		Regime:        regimes,
	})
	now := ctx.Now()

	exempt := cfg.RelaxExempt()
	relaxIn := guard.Relax{Active: st.relax.Active, Values: cfg.RelaxValues(), Exempt: exempt}
	guards := e.guards.Evaluate(ctx, relaxIn, profiles, cfg.Toggles())

	order := e.registry.Order(cfg.Priority)
	var scene, final []string
	eligibleActive := false
	for _, id := range order {
		if !guards[id].OK {
			continue
		}
		scene = append(scene, id)
		if !exempt[id] {
			eligibleActive = true
		}
		if cfg.Enabled(id) {
			final = append(final, id)
		}
	}

	tr := st.relax.Observe(now, eligibleActive)
	if tr == relax.None {
		tr = st.relax.Advance(now, cfg.RelaxConfig())
	}
	e.recordRelax(symbol, st.relax, tr)

	snap := &Snapshot{
		Symbol:      symbol,
		TF:          cfg.ExecutionTF,
		Ready:       true,
		Bars:        len(candles),
		BarTime:     ctx.Last().OpenTime,
		Time:        now,
		BarKey:      key,
		SceneActive: nonNil(scene),
		FinalActive: nonNil(final),
		Relax: RelaxReport{
			Active:            st.relax.Active,
			ActiveSince:       st.relax.ActiveSince,
			LastSceneActiveAt: st.relax.LastSceneActiveAt,
			IdleMinutes:       st.relax.IdleMinutes(now),
			Transition:        tr.String(),
			Applied:           relaxIn.Active,
		},
	}
	m := ctx.Metrics()
	snap.Indicators = &m

	var chosen *model.Signal
	for i, id := range order {
		g := guards[id]
		level := rig.Level(id)
		rep := Report{
			ID:       id,
			Priority: i + 1,
			Enabled:  cfg.Enabled(id),
			Rigidity: level,
			Label:    tuning.Label(level),
			Guard:    g,
		}
		switch {
		case !rep.Enabled:
			rep.Outcome = OutcomeDisabled
		case !g.OK:
			rep.Outcome = OutcomeInactive
		case chosen != nil:
			rep.Outcome = OutcomeNotEvaluated
		default:
			d, _ := e.registry.Get(id)
			e.detect(d, symbol, ctx, g.Tuning, cfg, &rep)
			if rep.Outcome == OutcomeSignal {
				chosen = rep.Signal
				snap.Chosen = id
			}
		}
		snap.Strategies = append(snap.Strategies, rep)
	}
	return Result{Signal: chosen, Snapshot: snap}
}

// detect runs one detector, recovering panics as faults, and applies the
// directional gate to a returned signal.
func (e *Engine) detect(d strategy.Detector, symbol string, ctx *evalctx.Context, p tuning.Profile, cfg *config.Engine, rep *Report) {
	in := strategy.Input{
		Symbol:  symbol,
		Ctx:     ctx,
		Candles: ctx.Candles(),
		Tuning:  p,
		Gate: func(side model.Side) bool {
			return allows(side, ctx, cfg).Allowed
		},
	}
	out := safeDetect(d, in)

	switch {
	case out.Err != nil:
		rep.Outcome = OutcomeFault
		rep.Error = out.Err.Error()
		e.log.Warn().Err(out.Err).Str("symbol", symbol).Str("strategy", d.ID()).Msg("strategy fault")
		if e.metrics != nil {
			e.metrics.StrategyFaults.WithLabelValues(d.ID()).Inc()
		}
	case out.Signal != nil:
		dec := allows(out.Signal.Side, ctx, cfg)
		rep.Signal = out.Signal
		rep.Gate = &dec
		if !dec.Allowed {
			rep.Outcome = OutcomeVeto
			e.log.Debug().Str("symbol", symbol).Str("strategy", d.ID()).
				Str("side", string(out.Signal.Side)).Str("reason", dec.Reason).Msg("gate veto")
			if e.metrics != nil {
				e.metrics.GateVetoes.WithLabelValues(d.ID(), dec.Reason).Inc()
			}
			return
		}
		rep.Outcome = OutcomeSignal
		e.log.Info().Str("symbol", symbol).Str("strategy", d.ID()).
			Str("side", string(out.Signal.Side)).Float64("entry", out.Signal.Entry).Msg("signal")
		if e.metrics != nil {
			e.metrics.SignalsTotal.WithLabelValues(d.ID(), string(out.Signal.Side)).Inc()
		}
	case out.Diagnostic != "":
		rep.Outcome = OutcomeDiagnostic
		rep.Diagnostic = out.Diagnostic
	default:
		rep.Outcome = OutcomeNone
	}
}

// safeDetect converts a detector panic into an Outcome error.
func safeDetect(d strategy.Detector, in strategy.Input) (out strategy.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = strategy.Outcome{Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	out = d.Detect(in)
	if out.Err != nil {
		out.Signal = nil
	}
	return out
}

// allows applies the side flags and the directional gate.
func allows(side model.Side, ctx *evalctx.Context, cfg *config.Engine) gate.Decision {
	if (side == model.Buy && !cfg.AllowBuy) || (side == model.Sell && !cfg.AllowSell) {
		return gate.Decision{Side: side, Reason: ReasonSideDisabled}
	}
	return gate.Allows(side, ctx, cfg.Gate)
}

func (e *Engine) notReady(symbol string, cfg *config.Engine, st *symbolState, n int, reason string) Result {
	ids := e.registry.Order(cfg.Priority)
	reports := make([]Report, len(ids))
	rig := cfg.RigidityState()
	for i, id := range ids {
		level := rig.Level(id)
		reports[i] = Report{
			ID:       id,
			Priority: i + 1,
			Enabled:  cfg.Enabled(id),
			Rigidity: level,
			Label:    tuning.Label(level),
			Outcome:  OutcomeNotEvaluated,
		}
	}
	return Result{Snapshot: &Snapshot{
		Symbol:      symbol,
		TF:          cfg.ExecutionTF,
		Reason:      reason,
		Bars:        n,
		SceneActive: []string{},
		FinalActive: []string{},
		Strategies:  reports,
		Relax: RelaxReport{
			Active:            st.relax.Active,
			ActiveSince:       st.relax.ActiveSince,
			LastSceneActiveAt: st.relax.LastSceneActiveAt,
			Transition:        relax.None.String(),
		},
	}}
}

func (e *Engine) recordRelax(symbol string, s relax.State, tr relax.Transition) {
	if tr != relax.None {
		e.log.Info().Str("symbol", symbol).Str("transition", tr.String()).Msg("relax mode")
	}
	if e.metrics == nil {
		return
	}
	v := 0.0
	if s.Active {
		v = 1
	}
	e.metrics.RelaxActive.WithLabelValues(symbol).Set(v)
	if tr != relax.None {
		e.metrics.RelaxTransitions.WithLabelValues(tr.String()).Inc()
	}
}

func (e *Engine) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

func mergePeriods(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, p := range append(append([]int(nil), a...), b...) {
		if p > 0 && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
