package client

import (
	"errors"
	"fmt"
)

const (
	OpUpload = "upload"
	OpPoll   = "poll"
	OpHealth = "health"
)

var (
	// ErrAborted is returned when the caller cancels a request while it is in flight.
	ErrAborted = errors.New("request aborted")
)

// TransportError reports a failed exchange with the analysis service: the
// request could not be sent, the service answered with a non-2xx status, or
// the body could not be decoded.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("%s failed: service returned status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
}

// Transient reports whether repeating the request may succeed: network
// failures, non-2xx answers and unreadable bodies all qualify.
func (e *TransportError) Transient() bool {
	return !errors.Is(e.Err, ErrAborted)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

const maxErrorBody = 512

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
