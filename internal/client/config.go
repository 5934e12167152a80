package client

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/util/homedir"
	"sigs.k8s.io/yaml"
)

// Config holds the information needed to reach the analysis service.
type Config struct {
	Service Service `json:"service"`
}

// Service contains the address of the analysis service.
type Service struct {
	// Server is the base URL of the analysis service (the part before /upload, /result/...).
	Server string `json:"server"`
}

func (c *Config) Equal(c2 *Config) bool {
	if c == c2 {
		return true
	}
	if c == nil || c2 == nil {
		return false
	}
	return c.Service.Server == c2.Service.Server
}

func NewDefault() *Config {
	return &Config{}
}

// NewHTTPClient returns the HTTP client shared by uploads and polls.
// It carries no overall timeout: uploads of large payloads are bounded by their context instead.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// DefaultConfigPath returns the default path to the client config file.
func DefaultConfigPath() string {
	return filepath.Join(homedir.HomeDir(), ".apkscan", "client.yaml")
}

func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := NewDefault()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WriteConfig writes a client config file pointing at server.
func WriteConfig(filename string, server string) error {
	config := NewDefault()
	config.Service = Service{
		Server: server,
	}
	if err := config.Validate(); err != nil {
		return err
	}
	return config.Persist(filename)
}

func (c *Config) Persist(filename string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	validationErrors := validateServer(c.Service.Server)
	if len(validationErrors) > 0 {
		return fmt.Errorf("invalid configuration: %v", utilerrors.NewAggregate(validationErrors).Error())
	}
	return nil
}

func validateServer(server string) []error {
	validationErrors := make([]error, 0)
	if len(server) == 0 {
		return append(validationErrors, fmt.Errorf("no server found"))
	}
	u, err := url.Parse(server)
	if err != nil {
		return append(validationErrors, fmt.Errorf("invalid server format %q: %w", server, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: scheme must be http or https", server))
	}
	if len(u.Hostname()) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: no hostname", server))
	}
	return validationErrors
}
