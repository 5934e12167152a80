package client

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// ProgressFunc receives the number of request bytes sent so far, the total
// request size and the time the sample was taken.
type ProgressFunc func(loaded, total int64, ts time.Time)

// Payload is the binary submitted for analysis.
type Payload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadResponse is the body returned by the submit endpoint.
type UploadResponse struct {
	JobID string          `json:"job_id"`
	Raw   json.RawMessage `json:"-"`
}

// StatusSnapshot is one observation of a job as reported by the status endpoint.
type StatusSnapshot struct {
	Status  string          `json:"status"`
	Stage   string          `json:"stage,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	// Raw is the full body, unknown fields included.
	Raw json.RawMessage `json:"-"`
}

// Job statuses the orchestrator reacts to. Anything else means "still pending".
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusRunning    = "running"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
	StatusError      = "error"
)

type statusWire struct {
	Status   string          `json:"status"`
	Stage    string          `json:"stage"`
	Result   json.RawMessage `json:"result"`
	Message  string          `json:"message"`
	Progress *struct {
		Stage string `json:"stage"`
	} `json:"progress"`
}

func decodeStatus(data []byte) (*StatusSnapshot, error) {
	var w statusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	s := &StatusSnapshot{
		Status:  w.Status,
		Stage:   w.Stage,
		Message: w.Message,
		Raw:     json.RawMessage(data),
	}
	if s.Stage == "" && w.Progress != nil {
		s.Stage = w.Progress.Stage
	}
	if len(w.Result) > 0 && !bytes.Equal(bytes.TrimSpace(w.Result), []byte("null")) {
		s.Result = w.Result
	}
	return s, nil
}

// ResultPayload returns the result object, or the whole snapshot when the service sent none.
func (s *StatusSnapshot) ResultPayload() json.RawMessage {
	if len(s.Result) > 0 {
		return s.Result
	}
	return s.Raw
}

// HealthReport is the outcome of a health probe.
type HealthReport struct {
	Status string          `json:"status"`
	Code   int             `json:"code,omitempty"`
	Raw    json.RawMessage `json:"-"`
}
