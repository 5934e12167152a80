package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/imposteroid/apkscan/pkg/version"
	"github.com/spf13/cobra"
)

type VersionOptions struct {
	Output string

	stdout io.Writer
}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{
		Output: "",
		stdout: os.Stdout,
	}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print apkscan version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(o.Output); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
	}
	cmd.Flags().StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	return cmd
}

func (o *VersionOptions) Run(ctx context.Context, args []string) error {
	versionInfo := version.Get()
	if o.Output != "" {
		return printObject(o.stdout, versionInfo, o.Output)
	}
	fmt.Fprintf(o.stdout, "apkscan version: %s\n", versionInfo.String())
	return nil
}
