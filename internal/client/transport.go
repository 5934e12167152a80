package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/imposteroid/apkscan/pkg/requestid"
	"go.uber.org/zap"
)

const (
	DefaultFieldName        = "apk"
	DefaultProgressInterval = 100 * time.Millisecond
	defaultContentType      = "application/octet-stream"
)

// Transport talks to the analysis service: it submits payloads and reads job status.
// It holds no job state.
type Transport struct {
	baseURL          string
	httpClient       *http.Client
	fieldName        string
	progressInterval time.Duration
	now              func() time.Time
}

type TransportOption func(t *Transport)

func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		t.httpClient = c
	}
}

// WithFieldName sets the multipart field carrying the payload.
func WithFieldName(name string) TransportOption {
	return func(t *Transport) {
		t.fieldName = name
	}
}

// WithProgressInterval sets the minimum time between two progress reports.
func WithProgressInterval(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.progressInterval = d
	}
}

func WithClock(now func() time.Time) TransportOption {
	return func(t *Transport) {
		t.now = now
	}
}

func NewTransport(server string, opts ...TransportOption) *Transport {
	t := &Transport{
		baseURL:          strings.TrimRight(server, "/"),
		fieldName:        DefaultFieldName,
		progressInterval: DefaultProgressInterval,
		now:              time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.httpClient == nil {
		t.httpClient = NewHTTPClient()
	}
	return t
}

// NewTransportFromConfig returns a Transport for the service described by config.
func NewTransportFromConfig(config *Config, opts ...TransportOption) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return NewTransport(config.Service.Server, opts...), nil
}

func (t *Transport) Server() string {
	return t.baseURL
}

// Upload streams the payload as a multipart form to the submit endpoint.
// onProgress is called from the goroutine writing the request body.
func (t *Transport) Upload(ctx context.Context, p Payload, onProgress ProgressFunc) (*UploadResponse, error) {
	prefix, suffix, contentType, err := t.multipartFrame(p)
	if err != nil {
		return nil, &TransportError{Op: OpUpload, Err: err}
	}
	size := int64(len(prefix)) + p.Size + int64(len(suffix))
	body := newProgressReader(
		io.MultiReader(bytes.NewReader(prefix), io.LimitReader(p.Reader, p.Size), bytes.NewReader(suffix)),
		size,
		t.progressInterval,
		t.now,
		onProgress,
	)
	defer body.stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("upload"), body)
	if err != nil {
		return nil, &TransportError{Op: OpUpload, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	reqID := requestid.Inject(req)

	zap.S().Named("transport").Debugw("uploading payload", "name", p.Name, "bytes", p.Size, "request_id", reqID)

	data, status, err := t.do(req)
	if err != nil {
		return nil, t.wrap(ctx, OpUpload, err)
	}
	if status < 200 || status >= 300 {
		return nil, &TransportError{Op: OpUpload, StatusCode: status, Body: truncate(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	var ur UploadResponse
	if err := json.Unmarshal(data, &ur); err != nil {
		return nil, &TransportError{Op: OpUpload, StatusCode: status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	ur.Raw = json.RawMessage(data)
	return &ur, nil
}

// PollStatus issues one status request for jobID.
func (t *Transport) PollStatus(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("result", url.PathEscape(jobID)), nil)
	if err != nil {
		return nil, &TransportError{Op: OpPoll, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	requestid.Inject(req)

	data, status, err := t.do(req)
	if err != nil {
		return nil, t.wrap(ctx, OpPoll, err)
	}
	if status < 200 || status >= 300 {
		return nil, &TransportError{Op: OpPoll, StatusCode: status, Body: truncate(data)}
	}

	snapshot, err := decodeStatus(data)
	if err != nil {
		return nil, &TransportError{Op: OpPoll, StatusCode: status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return snapshot, nil
}

// Health probes the service health endpoint. A non-2xx answer is reported in
// the returned report, not as an error.
func (t *Transport) Health(ctx context.Context) (*HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("health"), nil)
	if err != nil {
		return nil, &TransportError{Op: OpHealth, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Cache-Control", "no-store")
	requestid.Inject(req)

	data, status, err := t.do(req)
	if err != nil {
		return nil, t.wrap(ctx, OpHealth, err)
	}
	if status < 200 || status >= 300 {
		return &HealthReport{Status: "unhealthy", Code: status, Raw: json.RawMessage(data)}, nil
	}

	report := &HealthReport{Status: "unknown", Code: status}
	if err := json.Unmarshal(data, report); err != nil || report.Status == "" {
		report.Status = "unknown"
	}
	report.Code = status
	report.Raw = json.RawMessage(data)
	return report, nil
}

func (t *Transport) do(req *http.Request) ([]byte, int, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

func (t *Transport) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrAborted, ctxErr)
	}
	return &TransportError{Op: op, Err: err}
}

func (t *Transport) endpoint(elem ...string) string {
	return t.baseURL + "/" + strings.Join(elem, "/")
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartFrame renders the multipart bytes surrounding the payload so the
// request length is known before streaming starts.
func (t *Transport) multipartFrame(p Payload) (prefix, suffix []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	partType := p.ContentType
	if partType == "" {
		partType = defaultContentType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(t.fieldName), quoteEscaper.Replace(p.Name)))
	h.Set("Content-Type", partType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", fmt.Errorf("creating form file: %w", err)
	}
	headLen := buf.Len()

	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	frame := buf.Bytes()
	return frame[:headLen], frame[headLen:], mw.FormDataContentType(), nil
}
