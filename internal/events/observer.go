package events

import (
	"context"
	"time"

	"github.com/imposteroid/apkscan/internal/analysis"
	"go.uber.org/zap"
)

// PhaseObserver returns an observer publishing a PhaseEvent each time the
// job enters a new phase. Telemetry-only updates are not published.
func PhaseObserver(ep *EventProducer, correlationID string, start time.Time) analysis.Observer {
	last := analysis.PhaseIdle
	return func(s analysis.State) {
		if s.Phase == last {
			return
		}
		e := NewPhaseEvent(correlationID, last, s, time.Since(start))
		last = s.Phase
		if err := ep.Publish(context.Background(), PhaseMessageKind, correlationID, e); err != nil {
			zap.S().Named("event_producer").Warnw("failed to queue phase event", "error", err)
		}
	}
}
