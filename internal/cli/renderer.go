package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/imposteroid/apkscan/internal/analysis"
)

// renderer prints human readable progress lines for a job.
type renderer struct {
	w     io.Writer
	name  string
	start time.Time

	phase      analysis.Phase
	uploadPct  int
	processPct int
	stage      string
}

func newRenderer(w io.Writer, name string, start time.Time) *renderer {
	return &renderer{w: w, name: name, start: start, uploadPct: -1, processPct: -1}
}

// observe is an analysis.Observer. It prints when the phase, the upload
// percentage or the processing progress changes.
func (r *renderer) observe(s analysis.State) {
	phaseChanged := s.Phase != r.phase
	r.phase = s.Phase

	switch s.Phase {
	case analysis.PhaseUploading:
		if s.Upload.BytesTotal <= 0 {
			if phaseChanged {
				fmt.Fprintf(r.w, "Uploading %s...\n", r.name)
			}
			return
		}
		if !phaseChanged && s.Upload.Percent == r.uploadPct {
			return
		}
		r.uploadPct = s.Upload.Percent
		eta := "—"
		if s.Upload.ETASeconds != nil {
			eta = formatDuration(time.Duration(*s.Upload.ETASeconds) * time.Second)
		}
		fmt.Fprintf(r.w, "Uploading %s: %3d%% (%s / %s) %s, ETA %s\n",
			r.name, s.Upload.Percent,
			bytesToReadable(s.Upload.BytesLoaded), bytesToReadable(s.Upload.BytesTotal),
			formatSpeed(s.Upload.ThroughputBps), eta)
	case analysis.PhaseQueued:
		if phaseChanged {
			fmt.Fprintf(r.w, "Queued as job %s\n", s.Job.ID)
		}
	case analysis.PhaseProcessing:
		if !phaseChanged && s.Processing.ProgressPercent == r.processPct && s.Processing.Stage == r.stage {
			return
		}
		r.processPct = s.Processing.ProgressPercent
		r.stage = s.Processing.Stage
		if r.stage != "" {
			fmt.Fprintf(r.w, "Processing: %3d%% (%s)\n", r.processPct, r.stage)
		} else {
			fmt.Fprintf(r.w, "Processing: %3d%%\n", r.processPct)
		}
	case analysis.PhaseComplete:
		if phaseChanged {
			fmt.Fprintf(r.w, "Analysis complete in %s\n", formatDuration(time.Since(r.start)))
		}
	case analysis.PhaseError:
		if phaseChanged && s.Err != nil {
			fmt.Fprintf(r.w, "Analysis failed after %s: %s\n", formatDuration(time.Since(r.start)), s.Err.Message)
		}
	}
}
