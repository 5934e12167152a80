package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/imposteroid/apkscan/pkg/metrics"
)

// ConnectionStatus summarises what the last exchanges with the service looked like.
type ConnectionStatus struct {
	Connected       bool   `json:"connected"`
	LastUploadError string `json:"lastUploadError,omitempty"`
	LastPollError   string `json:"lastPollError,omitempty"`
	Polls           int    `json:"polls"`
	FailedPolls     int    `json:"failedPolls"`
}

// Interceptor wraps a Transport, recording metrics and connectivity for every call.
type Interceptor struct {
	transport *Transport
	status    ConnectionStatus
	l         sync.Mutex
}

func NewInterceptor(t *Transport) *Interceptor {
	return &Interceptor{
		transport: t,
		status:    ConnectionStatus{Connected: false},
	}
}

func (i *Interceptor) GetStatus() ConnectionStatus {
	i.l.Lock()
	defer i.l.Unlock()
	return i.status
}

func (i *Interceptor) Upload(ctx context.Context, p Payload, onProgress ProgressFunc) (*UploadResponse, error) {
	resp, err := i.transport.Upload(ctx, p, onProgress)

	i.l.Lock()
	defer i.l.Unlock()
	if err != nil {
		i.status.Connected = !isNetworkError(err)
		i.status.LastUploadError = err.Error()
		return nil, err
	}
	i.status.Connected = true
	i.status.LastUploadError = ""
	metrics.AddUploadedBytes(p.Size)
	return resp, nil
}

func (i *Interceptor) PollStatus(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	snapshot, err := i.transport.PollStatus(ctx, jobID)

	i.l.Lock()
	defer i.l.Unlock()
	i.status.Polls++
	if err != nil {
		i.status.FailedPolls++
		i.status.Connected = !isNetworkError(err)
		i.status.LastPollError = err.Error()
		metrics.IncreasePollRequestsMetric(metrics.PollOutcomeTransient)
		return nil, err
	}
	i.status.Connected = true
	i.status.LastPollError = ""
	metrics.IncreasePollRequestsMetric(metrics.PollOutcomeOK)
	return snapshot, nil
}

func isNetworkError(err error) bool {
	var netOpErr *net.OpError
	return errors.As(err, &netOpErr)
}
