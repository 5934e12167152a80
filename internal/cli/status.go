package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type StatusOptions struct {
	GlobalOptions

	Output string

	stdout io.Writer
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
		stdout:        os.Stdout,
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:          "status JOB_ID",
		Short:        "Display the current status of an analysis job",
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

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("job id must not be empty")
	}
	return validateOutput(o.Output)
}

func (o *StatusOptions) Run(ctx context.Context, args []string) error {
	t, err := o.Transport()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.Config().Service.HTTPTimeout)
	defer cancel()

	snapshot, err := t.PollStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reading job/%s: %w", args[0], err)
	}

	if o.Output != "" {
		return printRaw(o.stdout, snapshot.Raw, o.Output)
	}

	w := tabwriter.NewWriter(o.stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSTAGE\tMESSAGE\tCHECKED")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", args[0], valueOr(snapshot.Status, "unknown"), valueOr(snapshot.Stage, "-"), valueOr(snapshot.Message, "-"), time.Now().Format(time.RFC3339))
	return w.Flush()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
