package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTopic  string = "apkscan.analysis"
	defaultSource string = "apkscan.cli"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with a buffer.
// Write never waits for the writer: events are queued and sent by a background goroutine.
type EventProducer struct {
	buffer    *buffer
	wakeCh    chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	writer    Writer
	topic     string
	source    string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:    newBuffer(0),
		wakeCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		writer:    w,
		topic:     defaultTopic,
		source:    defaultSource,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// Write queues the content of body as an event of the given kind.
func (ep *EventProducer) Write(ctx context.Context, kind string, subject string, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{
		Kind:    kind,
		Subject: subject,
		Data:    d,
	})

	select {
	case ep.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Publish marshals v to JSON and queues it.
func (ep *EventProducer) Publish(ctx context.Context, kind string, subject string, v any) error {
	d, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ep.Write(ctx, kind, subject, bytes.NewReader(d))
}

// Close sends the pending events and closes the writer. ctx bounds the whole operation.
func (ep *EventProducer) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	ep.closeOnce.Do(func() {
		close(ep.doneCh)

		g, gctx := errgroup.WithContext(closeCtx)
		g.Go(func() error {
			select {
			case <-ep.stoppedCh:
			case <-gctx.Done():
				return gctx.Err()
			}
			return ep.writer.Close(gctx)
		})
		if err = g.Wait(); err != nil {
			zap.S().Named("event_producer").Errorw("event producer closed with error", "error", err)
			return
		}
		if n := ep.buffer.Dropped(); n > 0 {
			zap.S().Named("event_producer").Warnw("events dropped", "count", n)
		}
		zap.S().Named("event_producer").Debug("event producer closed")
	})
	return err
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)
	for {
		ep.drain()

		select {
		case <-ep.wakeCh:
		case <-ep.doneCh:
			ep.drain()
			return
		}
	}
}

func (ep *EventProducer) drain() {
	for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		e.SetTime(time.Now())
		if msg.Subject != "" {
			e.SetSubject(msg.Subject)
		}
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to write event", "error", err, "type", msg.Kind)
		}
	}
}
