package events

import (
	"encoding/json"
	"time"

	"github.com/imposteroid/apkscan/internal/analysis"
)

const (
	PhaseMessageKind  string = "io.apkscan.analysis.phase"
	ResultMessageKind string = "io.apkscan.analysis.result"
)

// PhaseEvent is published every time a job enters a new phase.
type PhaseEvent struct {
	CorrelationID     string         `json:"correlation_id"`
	JobID             string         `json:"job_id,omitempty"`
	Phase             analysis.Phase `json:"phase"`
	PreviousPhase     analysis.Phase `json:"previous_phase"`
	UploadPercent     int            `json:"upload_percent"`
	ProcessingPercent int            `json:"processing_percent"`
	Stage             string         `json:"stage,omitempty"`
	ErrorKind         string         `json:"error_kind,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ElapsedSeconds    float64        `json:"elapsed_seconds"`
	Revision          uint64         `json:"revision"`
}

// ResultEvent carries the result of a completed job.
type ResultEvent struct {
	CorrelationID string          `json:"correlation_id"`
	JobID         string          `json:"job_id"`
	Result        json.RawMessage `json:"result"`
}

// NewPhaseEvent describes the transition from prev to s.
func NewPhaseEvent(correlationID string, prev analysis.Phase, s analysis.State, elapsed time.Duration) PhaseEvent {
	e := PhaseEvent{
		CorrelationID:     correlationID,
		Phase:             s.Phase,
		PreviousPhase:     prev,
		UploadPercent:     s.Upload.Percent,
		ProcessingPercent: s.Processing.ProgressPercent,
		Stage:             s.Processing.Stage,
		ElapsedSeconds:    elapsed.Seconds(),
		Revision:          s.Revision,
	}
	if s.Job != nil {
		e.JobID = s.Job.ID
	}
	if s.Err != nil {
		e.ErrorKind = string(s.Err.Kind)
		e.ErrorMessage = s.Err.Message
	}
	return e
}
