package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"

	// Header is the HTTP header carrying the request ID to the analysis service.
	Header = "X-Request-ID"
)

// Generate creates a new unique request ID
func Generate() string {
	return uuid.New().String()
}

// ToContext adds a request ID to the context
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext extracts the request ID from the context.
// Returns empty string if request ID is not found.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Inject sets the request ID header on an outgoing request. The ID stored in
// the request context wins; otherwise a fresh one is generated.
func Inject(req *http.Request) string {
	id := FromContext(req.Context())
	if id == "" {
		id = Generate()
	}
	req.Header.Set(Header, id)
	return id
}
