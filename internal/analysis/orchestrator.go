package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imposteroid/apkscan/internal/client"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval  = 2 * time.Second
	DefaultRetryInterval = 1500 * time.Millisecond
	DefaultPollTimeout   = 120 * time.Second
)

// ErrCancelled is returned by Run when the job was cancelled before reaching a terminal phase.
var ErrCancelled = errors.New("analysis cancelled")

// Transport is the I/O the orchestrator needs from the analysis service.
type Transport interface {
	Upload(ctx context.Context, p client.Payload, onProgress client.ProgressFunc) (*client.UploadResponse, error)
	PollStatus(ctx context.Context, jobID string) (*client.StatusSnapshot, error)
}

// ResultFunc receives the result of a completed job.
type ResultFunc func(result json.RawMessage)

// Observer receives every new State. It runs while the orchestrator lock is
// held, so it must return quickly and must not call back into the orchestrator.
type Observer func(State)

type Option func(o *Orchestrator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

// WithRetryInterval sets the delay after a failed poll.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryInterval = d
	}
}

// WithPollTimeout sets the deadline of the poll loop, counted from the moment the job is created.
func WithPollTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithJitter adds normally distributed jitter with the given standard
// deviation to every poll delay. Zero keeps delays fixed.
func WithJitter(stdev time.Duration) Option {
	return func(o *Orchestrator) {
		o.jitter = stdev
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs at most one job at a time. Starting a job cancels the previous one.
type Orchestrator struct {
	transport     Transport
	pollInterval  time.Duration
	retryInterval time.Duration
	timeout       time.Duration
	jitter        time.Duration
	now           func() time.Time

	mu           sync.Mutex
	state        State
	generation   uint64
	cancel       context.CancelFunc
	done         chan struct{}
	observers    map[int]Observer
	nextObserver int
}

func New(transport Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:     transport,
		pollInterval:  DefaultPollInterval,
		retryInterval: DefaultRetryInterval,
		timeout:       DefaultPollTimeout,
		now:           time.Now,
		observers:     make(map[int]Observer),
		done:          closedChan(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers obs and immediately sends it the current State.
// The returned function removes the observer.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextObserver
	o.nextObserver++
	o.observers[id] = obs
	obs(o.state)

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.observers, id)
	}
}

// Start cancels any job in flight, resets the state and submits p. onResult
// is called once if the job completes. The returned channel is closed when
// the job's goroutine exits.
func (o *Orchestrator) Start(ctx context.Context, p client.Payload, onResult ResultFunc) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	gen := o.generation

	jobCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done

	o.state = State{Revision: o.state.Revision + 1}
	o.applyLocked(startAction{})

	go func() {
		defer close(done)
		defer cancel()
		o.run(jobCtx, gen, p, onResult)
	}()

	return done
}

// Cancel aborts the job in flight. The state stays frozen at its last value
// and no later response can change it.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

// Done returns a channel closed when the current job's goroutine has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Run submits p and blocks until the job is terminal or ctx is cancelled.
// A failed job returns its *Error.
func (o *Orchestrator) Run(ctx context.Context, p client.Payload) (json.RawMessage, error) {
	var result json.RawMessage
	done := o.Start(ctx, p, func(r json.RawMessage) {
		result = r
	})

	select {
	case <-done:
	case <-ctx.Done():
		o.Cancel()
		<-done
	}

	s := o.State()
	switch {
	case s.Phase == PhaseComplete:
		return result, nil
	case s.Err != nil:
		return nil, s.Err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	default:
		return nil, ErrCancelled
	}
}

func (o *Orchestrator) stopLocked() {
	o.generation++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// dispatch applies a if the job identified by gen is still the current one
// and has not been cancelled. It reports whether the state changed.
func (o *Orchestrator) dispatch(ctx context.Context, gen uint64, a action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation || ctx.Err() != nil {
		return false
	}
	return o.applyLocked(a)
}

func (o *Orchestrator) applyLocked(a action) bool {
	next, changed := reduce(o.state, a)
	if !changed {
		return false
	}
	next.Revision = o.state.Revision + 1
	o.state = next

	for _, obs := range o.observers {
		obs(next)
	}
	return true
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, p client.Payload, onResult ResultFunc) {
	logger := zap.S().Named("orchestrator")

	sampler := NewSampler(o.now())
	resp, err := o.transport.Upload(ctx, p, func(loaded, total int64, ts time.Time) {
		if t, ok := sampler.Sample(loaded, total, ts); ok {
			o.dispatch(ctx, gen, uploadProgressAction{telemetry: t})
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Debugw("upload aborted", "payload", p.Name)
			return
		}
		logger.Errorw("upload failed", "payload", p.Name, "error", err)
		o.dispatch(ctx, gen, failAction{err: uploadError(err)})
		return
	}

	if resp.JobID == "" {
		logger.Errorw("upload response carries no job id", "body", string(resp.Raw))
		o.dispatch(ctx, gen, failAction{err: newError(ErrorKindMissingJobID, MessageMissingJobID, nil)})
		return
	}

	job := Job{ID: resp.JobID, CreatedAt: o.now()}
	if !o.dispatch(ctx, gen, jobCreatedAction{job: job}) {
		return
	}
	logger.Infow("job created", "job_id", job.ID)

	o.poll(ctx, gen, job.ID, onResult)
}

// poll runs the status loop of one job. The deadline starts now, not when the upload started.
func (o *Orchestrator) poll(ctx context.Context, gen uint64, jobID string, onResult ResultFunc) {
	logger := zap.S().Named("orchestrator").With("job_id", jobID)

	pollCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var (
		lastSignature string
		seen          bool
	)
	for {
		snapshot, err := o.transport.PollStatus(pollCtx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if pollCtx.Err() != nil {
				break
			}
			logger.Debugw("transient poll failure", "kind", ErrorKindPollTransport, "error", err)
			if !o.wait(pollCtx, o.retryInterval) {
				break
			}
			continue
		}

		signature := Signature(snapshot.Status, snapshot.Stage)
		if !seen || signature != lastSignature {
			o.dispatch(ctx, gen, advanceProcessingAction{})
			lastSignature = signature
			seen = true
			logger.Debugw("job status changed", "status", snapshot.Status, "stage", snapshot.Stage)
		}
		if snapshot.Stage != "" {
			o.dispatch(ctx, gen, setStageAction{stage: snapshot.Stage})
		}
		if snapshot.Status == client.StatusProcessing || snapshot.Status == client.StatusRunning {
			o.dispatch(ctx, gen, setPhaseAction{phase: PhaseProcessing})
		}

		switch snapshot.Status {
		case client.StatusComplete:
			if o.dispatch(ctx, gen, completeAction{}) {
				logger.Info("job complete")
				if onResult != nil {
					onResult(snapshot.ResultPayload())
				}
			}
			return
		case client.StatusFailed, client.StatusError:
			logger.Warnw("job failed", "message", snapshot.Message)
			o.dispatch(ctx, gen, failAction{err: remoteFailure(snapshot.Message)})
			return
		}

		if !o.wait(pollCtx, o.pollInterval) {
			break
		}
	}

	if ctx.Err() != nil {
		return
	}
	logger.Warnw("poll deadline exceeded", "timeout", o.timeout)
	o.dispatch(ctx, gen, failAction{err: newError(ErrorKindTimeout, MessageTimeout, pollCtx.Err())})
}

// wait sleeps for d and reports false if ctx ended first.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) bool {
	var tick <-chan time.Time
	if o.jitter > 0 {
		t := jitterbug.New(d, &jitterbug.Norm{Stdev: o.jitter})
		defer t.Stop()
		tick = t.C
	} else {
		t := time.NewTimer(d)
		defer t.Stop()
		tick = t.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-tick:
		return true
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
