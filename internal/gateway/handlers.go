package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/relax"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/strategy"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

// Engine is the part of the orchestrator the API reads.
type Engine interface {
	Evaluate(symbol string) orchestrator.Result
	LastSnapshot(symbol string) (*orchestrator.Snapshot, bool)
	RelaxState(symbol string) relax.State
	Symbols() []string
	Config() *config.Engine
	Registry() *strategy.Registry
}

// SignalStore lists journaled signals, newest first.
type SignalStore interface {
	Signals(symbol string, limit int) ([]model.Signal, error)
}

// ConfigApplier installs a validated engine configuration.
type ConfigApplier func(ctx context.Context, cfg *config.Engine) error

// Handler serves the REST and WebSocket routes.
type Handler struct {
	engine  Engine
	hub     *Hub
	signals SignalStore
	apply   ConfigApplier
	secret  []byte
	log     zerolog.Logger

	upgrader websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSignalStore enables /api/signals.
func WithSignalStore(s SignalStore) HandlerOption {
	return func(h *Handler) { h.signals = s }
}

// WithConfigApplier enables PUT /api/config.
func WithConfigApplier(fn ConfigApplier) HandlerOption {
	return func(h *Handler) { h.apply = fn }
}

// WithAuthSecret requires an HS256 bearer token on mutating routes.
func WithAuthSecret(secret []byte) HandlerOption {
	return func(h *Handler) { h.secret = secret }
}

// NewHandler creates the API handler.
func NewHandler(engine Engine, hub *Hub, log zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		hub:    hub,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// APIResponse is the JSON envelope of every REST response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, code int, data interface{}) error {
	return c.JSON(code, APIResponse{Status: code, Message: http.StatusText(code), Data: data})
}

func respondError(c echo.Context, code int, msg string) error {
	return c.JSON(code, APIResponse{Status: code, Message: msg})
}

// RegisterRoutes registers the API routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.ws)

	api := e.Group("/api")
	api.GET("/symbols", h.symbols)
	api.GET("/strategies", h.strategies)
	api.GET("/config", h.getConfig)
	api.PUT("/config", h.putConfig, h.requireOperator)
	api.GET("/snapshot/:symbol", h.snapshot)
	api.GET("/relax/:symbol", h.relax)
	api.POST("/evaluate/:symbol", h.evaluate, h.requireOperator)
	api.GET("/signals", h.listSignals)
	api.GET("/missed", h.missed)
}

func (h *Handler) ws(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return nil
	}
	conn.EnableWriteCompression(true)
	h.hub.Attach(conn)
	return nil
}

func (h *Handler) symbols(c echo.Context) error {
	return respond(c, http.StatusOK, h.engine.Symbols())
}

// StrategyView is one row of /api/strategies.
type StrategyView struct {
	ID          string         `json:"id"`
	Priority    int            `json:"priority"`
	Enabled     bool           `json:"enabled"`
	Rigidity    int            `json:"rigidity"`
	Label       string         `json:"label"`
	RelaxExempt bool           `json:"relax_exempt"`
	Tuning      tuning.Profile `json:"tuning"`
}

func (h *Handler) strategies(c echo.Context) error {
	cfg := h.engine.Config()
	reg := h.engine.Registry()
	resolver := tuning.NewResolver(reg.Schemas(), cfg.Overrides(), cfg.Presets)
	rig := cfg.RigidityState()
	exempt := cfg.RelaxExempt()

	order := reg.Order(cfg.Priority)
	out := make([]StrategyView, 0, len(order))
	for i, id := range order {
		level := rig.Level(id)
		out = append(out, StrategyView{
			ID:          id,
			Priority:    i,
			Enabled:     cfg.Enabled(id),
			Rigidity:    level,
			Label:       tuning.Label(level),
			RelaxExempt: exempt[id],
			Tuning:      resolver.Resolve(id, rig),
		})
	}
	return respond(c, http.StatusOK, out)
}

func (h *Handler) getConfig(c echo.Context) error {
	return respond(c, http.StatusOK, h.engine.Config())
}

func (h *Handler) putConfig(c echo.Context) error {
	if h.apply == nil {
		return respondError(c, http.StatusNotImplemented, "config updates are disabled")
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	cfg, err := config.ParseEngine(body)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.apply(c.Request().Context(), cfg); err != nil {
		h.log.Error().Err(err).Msg("apply engine config")
		return respondError(c, http.StatusInternalServerError, err.Error())
	}
	operator, _ := c.Get("operator").(string)
	h.log.Info().Str("operator", operator).Int("rigidity", cfg.Rigidity.Global).Msg("engine config replaced")
	return respond(c, http.StatusOK, cfg)
}

func (h *Handler) snapshot(c echo.Context) error {
	snap, ok := h.engine.LastSnapshot(c.Param("symbol"))
	if !ok {
		return respondError(c, http.StatusNotFound, "no snapshot for symbol")
	}
	return respond(c, http.StatusOK, snap)
}

func (h *Handler) relax(c echo.Context) error {
	return respond(c, http.StatusOK, h.engine.RelaxState(c.Param("symbol")))
}

func (h *Handler) evaluate(c echo.Context) error {
	res := h.engine.Evaluate(c.Param("symbol"))
	return respond(c, http.StatusOK, res)
}

func (h *Handler) listSignals(c echo.Context) error {
	if h.signals == nil {
		return respondError(c, http.StatusServiceUnavailable, "signal journal is disabled")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return respondError(c, http.StatusBadRequest, "limit must be in 1..1000")
		}
		limit = n
	}
	sigs, err := h.signals.Signals(c.QueryParam("symbol"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list signals")
		return respondError(c, http.StatusInternalServerError, "list signals failed")
	}
	if sigs == nil {
		sigs = []model.Signal{}
	}
	return respond(c, http.StatusOK, sigs)
}

// missed returns buffered envelopes for WS gap backfill:
// /api/missed?channel=snapshot:BTCUSDT&from=10&to=20
func (h *Handler) missed(c echo.Context) error {
	channel := c.QueryParam("channel")
	if channel == "" {
		return respondError(c, http.StatusBadRequest, "channel is required")
	}
	from, err1 := strconv.ParseInt(c.QueryParam("from"), 10, 64)
	to, err2 := strconv.ParseInt(c.QueryParam("to"), 10, 64)
	if err1 != nil || err2 != nil || from > to {
		return respondError(c, http.StatusBadRequest, "from and to must be integers with from <= to")
	}
	raw := h.hub.Replay(channel, from, to)
	out := make([]json.RawMessage, len(raw))
	for i, b := range raw {
		out[i] = b
	}
	return respond(c, http.StatusOK, map[string]interface{}{
		"channel":  channel,
		"seq":      h.hub.ChannelSeq(channel),
		"messages": out,
	})
}
