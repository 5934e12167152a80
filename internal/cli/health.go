package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type HealthOptions struct {
	GlobalOptions

	Output string

	stdout io.Writer
}

func DefaultHealthOptions() *HealthOptions {
	return &HealthOptions{
		GlobalOptions: DefaultGlobalOptions(),
		stdout:        os.Stdout,
	}
}

func NewCmdHealth() *cobra.Command {
	o := DefaultHealthOptions()
	cmd := &cobra.Command{
		Use:          "health",
		Short:        "Check that the analysis service is reachable",
		Args:         cobra.NoArgs,
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

func (o *HealthOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *HealthOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validateOutput(o.Output)
}

func (o *HealthOptions) Run(ctx context.Context, args []string) error {
	t, err := o.Transport()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.Config().Service.HTTPTimeout)
	defer cancel()

	report, err := t.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking %s: %w", t.Server(), err)
	}

	if o.Output != "" {
		if err := printObject(o.stdout, report, o.Output); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(o.stdout, "%s: %s (HTTP %d)\n", t.Server(), report.Status, report.Code)
	}

	if report.Status == "unhealthy" {
		return fmt.Errorf("service at %s is unhealthy", t.Server())
	}
	return nil
}
