package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/trustline/internal/idgen"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustline",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustline",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter publishes score-change events after ingestion.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// EmitScoreChanged fires when an agent's trust score moved. Subscriptions
// with a higher threshold than the delta are skipped by the dispatcher.
func (e *Emitter) EmitScoreChanged(tenantID, agentID string, previousScore, score int, level string) {
	if e == nil || e.d == nil {
		return
	}
	if previousScore == score {
		return
	}
	webhookEmitTotal.WithLabelValues(EventScoreChanged).Inc()

	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventScoreChanged,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"tenantId":      tenantID,
			"agentId":       agentID,
			"previousScore": previousScore,
			"score":         score,
			"delta":         score - previousScore,
			"level":         level,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, tenantID, agentID, score-previousScore, event); err != nil {
		webhookEmitErrors.WithLabelValues(EventScoreChanged).Inc()
		e.logger.Warn("webhook emit failed", "event", EventScoreChanged, "agent", agentID, "error", err)
	}
}
