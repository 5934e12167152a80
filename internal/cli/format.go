package cli

import (
	"fmt"
	"math"
	"time"
)

const (
	kib = 1024
	mib = 1024 * 1024
)

// bytesToReadable renders sizes below one MiB in KB, larger ones in MB.
func bytesToReadable(size int64) string {
	if size < mib {
		return fmt.Sprintf("%d KB", int64(math.Round(float64(size)/kib)))
	}
	return fmt.Sprintf("%.1f MB", float64(size)/mib)
}

func formatSpeed(bps float64) string {
	if bps <= 0 || math.IsNaN(bps) {
		return "—"
	}
	kbps := bps / kib
	mbps := kbps / kib
	switch {
	case mbps >= 1:
		return fmt.Sprintf("%.2f MB/s", mbps)
	case kbps >= 1:
		return fmt.Sprintf("%d KB/s", int64(math.Round(kbps)))
	default:
		return fmt.Sprintf("%d B/s", int64(math.Round(bps)))
	}
}

func formatDuration(d time.Duration) string {
	s := int64(math.Max(0, math.Round(d.Seconds())))
	m := s / 60
	sec := s % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
