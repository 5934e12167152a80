package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// FileWriter appends events to a file, one structured-mode CloudEvent JSON document per line.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening event file: %w", err)
	}
	return &FileWriter{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *FileWriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	e.SetExtension("topic", topic)
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(e)
}

func (w *FileWriter) Close(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
