package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/imposteroid/apkscan/internal/cli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := NewApkscanCommand()
	err := command.ExecuteContext(ctx)
	_ = zap.L().Sync()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func NewApkscanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apkscan [flags] [options]",
		Short: "apkscan submits Android packages to the analysis service and follows the job until it finishes.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdAnalyze())
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdHealth())
	cmd.AddCommand(cli.NewCmdLogin())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
