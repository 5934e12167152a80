package analysis

import (
	"errors"
	"fmt"

	"github.com/imposteroid/apkscan/internal/client"
)

type ErrorKind string

const (
	// ErrorKindUploadTransport: the submit request failed, returned non-2xx or an unreadable body.
	ErrorKindUploadTransport ErrorKind = "UploadTransportError"
	// ErrorKindMissingJobID: the submit request succeeded without returning a job identifier.
	ErrorKindMissingJobID ErrorKind = "MissingJobIdError"
	// ErrorKindPollTransport is retried silently and never stored in State.
	ErrorKindPollTransport ErrorKind = "PollTransportError"
	// ErrorKindRemoteFailure: the service reported the job as failed.
	ErrorKindRemoteFailure ErrorKind = "RemoteFailureError"
	// ErrorKindTimeout: no terminal status before the poll deadline.
	ErrorKindTimeout ErrorKind = "TimeoutError"
)

const (
	MessageUploadFailed  = "Upload failed"
	MessageMissingJobID  = "Missing job_id in response"
	MessageRemoteFailure = "Analysis failed"
	MessageTimeout       = "Timed out waiting for result"
)

// Error is the terminal error of a job. Message is what users get to see.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func uploadError(cause error) *Error {
	msg := MessageUploadFailed
	var te *client.TransportError
	if errors.As(cause, &te) {
		switch {
		case te.StatusCode != 0 && te.Err == nil:
			msg = fmt.Sprintf("%s: service returned status %d", MessageUploadFailed, te.StatusCode)
		case te.StatusCode != 0:
			msg = fmt.Sprintf("%s: unreadable response from service", MessageUploadFailed)
		default:
			msg = fmt.Sprintf("Upload network error: %v", te.Err)
		}
	}
	return newError(ErrorKindUploadTransport, msg, cause)
}

func remoteFailure(message string) *Error {
	if message == "" {
		message = MessageRemoteFailure
	}
	return newError(ErrorKindRemoteFailure, message, nil)
}
