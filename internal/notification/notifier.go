// Package notification delivers chosen signals and engine alerts to
// external channels (log, webhook, Telegram, Kafka).
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertSignal   AlertLevel = "SIGNAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Signal is set for signal
// alerts.
type Alert struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Symbol  string        `json:"symbol,omitempty"`
	Signal  *model.Signal `json:"signal,omitempty"`
}

// SignalAlert builds the alert announcing sig.
func SignalAlert(sig *model.Signal) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s @ %g stop %g", sig.Side, sig.Symbol, sig.Entry, sig.Stop)
	for i, t := range sig.Targets {
		fmt.Fprintf(&b, " tp%d %g", i+1, t)
	}
	if sig.Reason != "" {
		b.WriteString(" | ")
		b.WriteString(sig.Reason)
	}
	return Alert{
		Level:   AlertSignal,
		Title:   fmt.Sprintf("%s %s by %s", sig.Symbol, sig.Side, sig.StrategyID),
		Message: b.String(),
		Symbol:  sig.Symbol,
		Signal:  sig,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	ev := n.log.Info()
	if alert.Level == AlertWarning || alert.Level == AlertCritical {
		ev = n.log.Warn()
	}
	ev.Str("level", string(alert.Level)).Str("symbol", alert.Symbol).Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// Named pairs a notifier with the sink name used in logs and metrics.
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi sends every alert to all sinks. A failing sink does not stop the
// others; the errors are joined.
type Multi struct {
	sinks   []Named
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewMulti creates a fan-out notifier. m may be nil.
func NewMulti(log zerolog.Logger, m *metrics.Metrics, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, log: log, metrics: m}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notifier.Send(ctx, alert); err != nil {
			m.log.Warn().Err(err).Str("sink", s.Name).Str("title", alert.Title).Msg("notification failed")
			if m.metrics != nil {
				m.metrics.PublishErrors.WithLabelValues(s.Name).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the sink names in send order.
func (m *Multi) Sinks() []string {
	out := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		out[i] = s.Name
	}
	return out
}
