package analysis

import (
	"math"
	"time"
)

// ProcessingStep is how much ProcessingTelemetry.ProgressPercent grows each
// time a poll returns a status/stage pair not seen just before. It is a
// heuristic proxy for progress; the service does not report a percentage.
const ProcessingStep = 15

type UploadTelemetry struct {
	BytesLoaded   int64   `json:"bytesLoaded"`
	BytesTotal    int64   `json:"bytesTotal"`
	ThroughputBps float64 `json:"throughputBps"`
	// ETASeconds is nil while the throughput is unknown.
	ETASeconds *int64 `json:"etaSeconds"`
	Percent    int    `json:"percent"`
}

type ProcessingTelemetry struct {
	ProgressPercent int    `json:"progressPercent"`
	Stage           string `json:"stage,omitempty"`
}

// Signature is the change-detection key of a poll observation.
func Signature(status, stage string) string {
	return status + "::" + stage
}

// UploadPercent returns round(loaded/total*100) clamped to [0,100].
func UploadPercent(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := math.Round(float64(loaded) / float64(total) * 100)
	return int(math.Max(0, math.Min(100, pct)))
}

// Throughput returns bytes per second over one interval, 0 when the interval
// or the byte delta is not usable.
func Throughput(deltaBytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || deltaBytes < 0 {
		return 0
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	return float64(deltaBytes) / ms * 1000
}

// ETA returns the rounded number of seconds needed to send remaining bytes at bps.
func ETA(remaining int64, bps float64) *int64 {
	if bps <= 0 {
		return nil
	}
	if remaining < 0 {
		remaining = 0
	}
	eta := int64(math.Round(float64(remaining) / bps))
	return &eta
}

// Sampler derives upload telemetry from successive progress samples, using
// only the previous sample and the current one.
type Sampler struct {
	lastLoaded int64
	lastTs     time.Time
}

// NewSampler returns a sampler whose first interval starts at start with zero bytes sent.
func NewSampler(start time.Time) *Sampler {
	return &Sampler{lastTs: start}
}

// Sample records a progress event. ok is false when the total length is
// unknown, in which case the event carries no telemetry.
func (s *Sampler) Sample(loaded, total int64, ts time.Time) (t UploadTelemetry, ok bool) {
	if total <= 0 {
		return UploadTelemetry{}, false
	}
	bps := Throughput(loaded-s.lastLoaded, ts.Sub(s.lastTs))
	s.lastLoaded = loaded
	s.lastTs = ts

	return UploadTelemetry{
		BytesLoaded:   loaded,
		BytesTotal:    total,
		ThroughputBps: bps,
		ETASeconds:    ETA(total-loaded, bps),
		Percent:       UploadPercent(loaded, total),
	}, true
}
