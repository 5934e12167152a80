package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/imposteroid/apkscan/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type LoginOptions struct {
	GlobalOptions

	stdout io.Writer
}

func DefaultLoginOptions() *LoginOptions {
	return &LoginOptions{
		GlobalOptions: DefaultGlobalOptions(),
		stdout:        os.Stdout,
	}
}

func NewCmdLogin() *cobra.Command {
	o := DefaultLoginOptions()
	cmd := &cobra.Command{
		Use:          "login SERVER_URL",
		Short:        "Store the analysis service address in the client config file",
		Example:      "login https://fakeapk.onrender.com",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *LoginOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client config file")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error)")
}

func (o *LoginOptions) Run(ctx context.Context, args []string) error {
	if err := client.WriteConfig(o.ConfigFilePath, args[0]); err != nil {
		return err
	}
	zap.S().Named("login").Debugw("client config written", "path", o.ConfigFilePath)
	fmt.Fprintf(o.stdout, "Using %s (saved to %s)\n", args[0], o.ConfigFilePath)
	return nil
}
