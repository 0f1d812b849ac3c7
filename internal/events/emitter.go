package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var eventsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mediation",
		Name:      "events_emitted_total",
		Help:      "Events handed to the delivery channel, by type and result.",
	},
	[]string{"type", "result"},
)

func init() {
	prometheus.MustRegister(eventsEmitted)
}

// Emitter publishes events after a transition has committed. A failed publish is
// logged and dropped; it never undoes the transition.
type Emitter struct {
	pub     Publisher
	channel string
	log     *zap.Logger
}

func NewEmitter(pub Publisher, log *zap.Logger) *Emitter {
	return &Emitter{pub: pub, channel: Channel, log: log}
}

func (e *Emitter) Emit(ctx context.Context, evts ...Event) {
	for _, ev := range evts {
		if len(ev.RecipientUserIDs) == 0 {
			continue
		}
		if err := e.pub.Publish(ctx, e.channel, ev); err != nil {
			eventsEmitted.WithLabelValues(ev.Type, "error").Inc()
			e.log.Warn("failed to publish event",
				zap.String("type", ev.Type),
				zap.String("entity_id", ev.RelatedEntityID.String()),
				zap.Error(err),
			)
			continue
		}
		eventsEmitted.WithLabelValues(ev.Type, "ok").Inc()
	}
}

// Recipients de-duplicates ids and drops the acting user and the nil id.
func Recipients(actor uuid.UUID, ids ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == actor || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
