package analysis

import "time"

type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is an immutable snapshot of one job. Observers receive copies.
type State struct {
	Phase      Phase               `json:"phase"`
	Upload     UploadTelemetry     `json:"upload"`
	Processing ProcessingTelemetry `json:"processing"`
	Job        *Job                `json:"job,omitempty"`
	// Err is set exactly once, when Phase becomes PhaseError.
	Err *Error `json:"error,omitempty"`
	// Revision grows by one on every applied change.
	Revision uint64 `json:"revision"`
}

// Loading reports whether a job is in flight.
func (s State) Loading() bool {
	return s.Phase != PhaseIdle && !s.Phase.Terminal()
}

type action interface {
	isAction()
}

type (
	startAction struct{}

	uploadProgressAction struct {
		telemetry UploadTelemetry
	}

	jobCreatedAction struct {
		job Job
	}

	advanceProcessingAction struct{}

	setStageAction struct {
		stage string
	}

	// setPhaseAction moves forward only; it never enters a terminal phase.
	setPhaseAction struct {
		phase Phase
	}

	completeAction struct{}

	failAction struct {
		err *Error
	}
)

func (startAction) isAction()             {}
func (uploadProgressAction) isAction()    {}
func (jobCreatedAction) isAction()        {}
func (advanceProcessingAction) isAction() {}
func (setStageAction) isAction()          {}
func (setPhaseAction) isAction()          {}
func (completeAction) isAction()          {}
func (failAction) isAction()              {}

// reduce applies a to s. changed is false when a is not valid in the current
// phase; s is then returned untouched. Terminal phases absorb every action.
func reduce(s State, a action) (next State, changed bool) {
	if s.Phase.Terminal() {
		return s, false
	}

	switch a := a.(type) {
	case startAction:
		if s.Phase != PhaseIdle {
			return s, false
		}
		s.Phase = PhaseUploading
		s.Upload = UploadTelemetry{}
		return s, true

	case uploadProgressAction:
		if s.Phase != PhaseUploading {
			return s, false
		}
		s.Upload = a.telemetry
		return s, true

	case jobCreatedAction:
		if s.Phase != PhaseUploading {
			return s, false
		}
		job := a.job
		s.Job = &job
		s.Phase = PhaseQueued
		return s, true

	case advanceProcessingAction:
		if !polling(s.Phase) {
			return s, false
		}
		pct := min(100, s.Processing.ProgressPercent+ProcessingStep)
		if s.Phase == PhaseProcessing && pct == s.Processing.ProgressPercent {
			return s, false
		}
		s.Phase = PhaseProcessing
		s.Processing.ProgressPercent = pct
		return s, true

	case setStageAction:
		if !polling(s.Phase) || a.stage == s.Processing.Stage {
			return s, false
		}
		s.Processing.Stage = a.stage
		return s, true

	case setPhaseAction:
		if a.phase.Terminal() || a.phase.rank() <= s.Phase.rank() || s.Phase == PhaseIdle {
			return s, false
		}
		s.Phase = a.phase
		return s, true

	case completeAction:
		if !polling(s.Phase) {
			return s, false
		}
		s.Phase = PhaseComplete
		s.Processing.ProgressPercent = 100
		return s, true

	case failAction:
		if s.Phase == PhaseIdle || a.err == nil {
			return s, false
		}
		s.Phase = PhaseError
		s.Err = a.err
		return s, true
	}

	return s, false
}

func polling(p Phase) bool {
	return p == PhaseQueued || p == PhaseProcessing
}
