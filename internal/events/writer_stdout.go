package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// LogWriter logs every event. It is used when no event file is configured.
type LogWriter struct{}

func (s *LogWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	zap.S().Named("event_writer").Debugw("event", "topic", topic, "type", e.Type(), "subject", e.Subject(), "data", string(e.Data()))
	return nil
}

func (s *LogWriter) Close(_ context.Context) error {
	return nil
}
