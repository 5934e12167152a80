package cli

import (
	"fmt"
	"os"

	"github.com/imposteroid/apkscan/internal/client"
	"github.com/imposteroid/apkscan/internal/config"
	"github.com/imposteroid/apkscan/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
	LogLevel       string

	config *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the analysis service (overrides the config file and APKSCAN_SERVER_URL)")
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client config file")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error). Defaults to APKSCAN_LOG_LEVEL")
}

// Complete loads the environment configuration and installs the global logger.
func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.config = cfg

	level := o.LogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	zap.ReplaceGlobals(log.InitLog(log.ParseLevel(level)))
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.ServerUrl == "" {
		return nil
	}
	c := &client.Config{Service: client.Service{Server: o.ServerUrl}}
	return c.Validate()
}

// Server resolves the service address: the flag wins, then the client
// config file, then the environment.
func (o *GlobalOptions) Server() (string, error) {
	if o.ServerUrl != "" {
		return o.ServerUrl, nil
	}
	if o.ConfigFilePath != "" {
		if _, err := os.Stat(o.ConfigFilePath); err == nil {
			c, err := client.ParseConfigFile(o.ConfigFilePath)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", o.ConfigFilePath, err)
			}
			return c.Service.Server, nil
		}
	}
	return o.Config().Service.ServerUrl, nil
}

// Config returns the environment configuration loaded by Complete.
func (o *GlobalOptions) Config() *config.Config {
	if o.config == nil {
		cfg, err := config.New()
		if err != nil {
			panic(err)
		}
		o.config = cfg
	}
	return o.config
}

// Transport returns a transport for the resolved service address.
func (o *GlobalOptions) Transport() (*client.Transport, error) {
	server, err := o.Server()
	if err != nil {
		return nil, err
	}
	cfg := o.Config()
	return client.NewTransportFromConfig(
		&client.Config{Service: client.Service{Server: server}},
		client.WithFieldName(cfg.Upload.FieldName),
		client.WithProgressInterval(cfg.Upload.ProgressInterval),
	)
}
