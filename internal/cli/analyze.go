package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/imposteroid/apkscan/internal/analysis"
	"github.com/imposteroid/apkscan/internal/client"
	"github.com/imposteroid/apkscan/internal/events"
	"github.com/imposteroid/apkscan/internal/payload"
	"github.com/imposteroid/apkscan/internal/statusserver"
	"github.com/imposteroid/apkscan/pkg/metrics"
	"github.com/imposteroid/apkscan/pkg/requestid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type AnalyzeOptions struct {
	GlobalOptions

	Output          string
	OutputFile      string
	StatusAddress   string
	EventsFile      string
	SkipHealthCheck bool
	Quiet           bool

	// progress receives the human readable progress lines.
	progress io.Writer
	// stdout receives the result.
	stdout io.Writer
}

func DefaultAnalyzeOptions() *AnalyzeOptions {
	return &AnalyzeOptions{
		GlobalOptions: DefaultGlobalOptions(),
		progress:      os.Stderr,
		stdout:        os.Stdout,
	}
}

func NewCmdAnalyze() *cobra.Command {
	o := DefaultAnalyzeOptions()
	cmd := &cobra.Command{
		Use:          "analyze FILE",
		Short:        "Upload an APK and wait for its analysis result",
		Example:      "analyze ./app-release.apk -o yaml --output-file result.yaml",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *AnalyzeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Result format. One of: (%s). Defaults to json.", strings.Join(legalOutputTypes, ", ")))
	fs.StringVar(&o.OutputFile, "output-file", o.OutputFile, "Write the result to this file instead of stdout")
	fs.StringVar(&o.StatusAddress, "status-address", o.StatusAddress, "Serve the job status API on this address (e.g. 127.0.0.1:7443)")
	fs.StringVar(&o.EventsFile, "events-file", o.EventsFile, "Append phase change CloudEvents to this file")
	fs.BoolVar(&o.SkipHealthCheck, "skip-health-check", o.SkipHealthCheck, "Do not probe the service before uploading")
	fs.BoolVarP(&o.Quiet, "quiet", "q", o.Quiet, "Do not print progress")
}

func (o *AnalyzeOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validateOutput(o.Output)
}

func (o *AnalyzeOptions) Run(ctx context.Context, args []string) error {
	logger := zap.S().Named("analyze")
	cfg := o.Config()

	f, err := payload.Open(args[0], cfg.Upload.MaxPayloadSize)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if !f.Sniffed() {
		logger.Warnw("unexpected file type, sending it anyway", "file", f.Name, "detected", f.Detected)
	}

	transport, err := o.Transport()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	correlationID := requestid.Generate()
	ctx = requestid.ToContext(ctx, correlationID)
	logger = logger.With("correlation_id", correlationID)

	if !o.SkipHealthCheck {
		probeHealth(ctx, transport, cfg.Service.HTTPTimeout)
	}

	interceptor := client.NewInterceptor(transport)
	orch := analysis.New(interceptor,
		analysis.WithPollInterval(cfg.Polling.Interval),
		analysis.WithRetryInterval(cfg.Polling.RetryInterval),
		analysis.WithPollTimeout(cfg.Polling.Timeout),
		analysis.WithJitter(cfg.Polling.Jitter),
	)

	start := time.Now()
	if !o.Quiet {
		defer orch.Subscribe(newRenderer(o.progress, f.Name, start).observe)()
	}
	defer orch.Subscribe(phaseMetrics())()

	producer, err := o.eventProducer()
	if err != nil {
		return err
	}
	defer func() {
		_ = producer.Close(context.Background())
	}()
	defer orch.Subscribe(events.PhaseObserver(producer, correlationID, start))()

	if o.StatusAddress != "" {
		tracker := statusserver.NewTracker(transport.Server(), interceptor.GetStatus)
		srv := statusserver.New(o.StatusAddress, nil, tracker)
		if err := srv.Listen(); err != nil {
			return fmt.Errorf("starting status API: %w", err)
		}
		srvCtx, stop := context.WithCancel(context.Background())
		defer stop()
		go func() {
			if err := srv.Run(srvCtx); err != nil {
				logger.Errorw("status API stopped", "error", err)
			}
		}()
		defer orch.Subscribe(tracker.Observe)()
	}

	logger.Infow("submitting package", "file", f.Name, "size", f.Size, "server", transport.Server())
	result, err := orch.Run(ctx, f.Payload())
	metrics.ObserveJobDuration(outcome(err), time.Since(start))
	if err != nil {
		return err
	}

	s := orch.State()
	_ = producer.Publish(ctx, events.ResultMessageKind, correlationID, events.ResultEvent{
		CorrelationID: correlationID,
		JobID:         s.Job.ID,
		Result:        result,
	})

	if o.OutputFile != "" {
		if err := writeRawFile(o.OutputFile, result, o.Output); err != nil {
			return err
		}
		logger.Infow("result written", "file", o.OutputFile, "job_id", s.Job.ID)
		return nil
	}
	return printRaw(o.stdout, result, o.Output)
}

func (o *AnalyzeOptions) eventProducer() (*events.EventProducer, error) {
	var w events.Writer = &events.LogWriter{}
	if o.EventsFile != "" {
		fw, err := events.NewFileWriter(o.EventsFile)
		if err != nil {
			return nil, err
		}
		w = fw
	}
	return events.NewEventProducer(w, events.WithBufferCapacity(1024)), nil
}

// probeHealth logs the health of the service. It never fails the command.
func probeHealth(ctx context.Context, t *client.Transport, timeout time.Duration) {
	logger := zap.S().Named("health")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := t.Health(ctx)
	switch {
	case err != nil:
		logger.Warnw("service health probe failed", "server", t.Server(), "error", err)
	case report.Status == "unhealthy":
		logger.Warnw("service reports unhealthy", "server", t.Server(), "code", report.Code)
	default:
		logger.Infow("service reachable", "server", t.Server(), "status", report.Status)
	}
}

func phaseMetrics() analysis.Observer {
	last := analysis.PhaseIdle
	return func(s analysis.State) {
		if s.Phase != last {
			last = s.Phase
			metrics.IncreasePhaseTransitionMetric(s.Phase.String())
		}
	}
}

func outcome(err error) string {
	var aerr *analysis.Error
	switch {
	case err == nil:
		return analysis.PhaseComplete.String()
	case errors.As(err, &aerr):
		return string(aerr.Kind)
	case errors.Is(err, analysis.ErrCancelled):
		return "cancelled"
	default:
		return "unknown"
	}
}
