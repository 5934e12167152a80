package client

import (
	"io"
	"sync/atomic"
	"time"
)

// progressReader counts the request body bytes consumed by the HTTP transport
// and reports them at most once per interval. The final byte is always reported.
type progressReader struct {
	r        io.Reader
	total    int64
	loaded   int64
	interval time.Duration
	last     time.Time
	now      func() time.Time
	fn       ProgressFunc
	// stopped is set once the exchange finished; the transport may still
	// touch the body afterwards and those reads must not be reported.
	stopped atomic.Bool
}

func newProgressReader(r io.Reader, total int64, interval time.Duration, now func() time.Time, fn ProgressFunc) *progressReader {
	return &progressReader{
		r:        r,
		total:    total,
		interval: interval,
		now:      now,
		fn:       fn,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil && !p.stopped.Load() {
		p.loaded += int64(n)
		ts := p.now()
		if p.loaded >= p.total || p.last.IsZero() || ts.Sub(p.last) >= p.interval {
			p.last = ts
			p.fn(p.loaded, p.total, ts)
		}
	}
	return n, err
}

func (p *progressReader) stop() {
	p.stopped.Store(true)
}
