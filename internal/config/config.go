package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service  *svcConfig
	Upload   *uploadConfig
	Polling  *pollingConfig
	LogLevel string `envconfig:"APKSCAN_LOG_LEVEL" default:"info"`
}

type svcConfig struct {
	// ServerUrl is the base URL of the analysis service (the part before /upload, /result/...).
	ServerUrl   string        `envconfig:"APKSCAN_SERVER_URL" default:"https://fakeapk.onrender.com" validate:"required,url"`
	HTTPTimeout time.Duration `envconfig:"APKSCAN_HTTP_TIMEOUT" default:"50s" validate:"gt=0"`
}

type uploadConfig struct {
	FieldName        string        `envconfig:"APKSCAN_UPLOAD_FIELD" default:"apk" validate:"required"`
	MaxPayloadSize   int64         `envconfig:"APKSCAN_MAX_PAYLOAD_SIZE" default:"209715200" validate:"gt=0"`
	ProgressInterval time.Duration `envconfig:"APKSCAN_PROGRESS_INTERVAL" default:"100ms" validate:"gte=0"`
}

type pollingConfig struct {
	Interval      time.Duration `envconfig:"APKSCAN_POLL_INTERVAL" default:"2s" validate:"gt=0"`
	RetryInterval time.Duration `envconfig:"APKSCAN_RETRY_INTERVAL" default:"1500ms" validate:"gt=0"`
	Timeout       time.Duration `envconfig:"APKSCAN_POLL_TIMEOUT" default:"120s" validate:"gt=0"`
	// Jitter is the standard deviation applied to every delay. Zero keeps the delays fixed.
	Jitter time.Duration `envconfig:"APKSCAN_POLL_JITTER" default:"0s" validate:"gte=0"`
}

// New reads the configuration from the environment once and returns the cached copy afterwards.
func New() (*Config, error) {
	if singleConfig == nil {
		c, err := Load()
		if err != nil {
			return nil, err
		}
		singleConfig = c
	}
	return singleConfig, nil
}

// Load reads and validates a fresh configuration from the environment.
func Load() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	for _, s := range []any{c.Service, c.Upload, c.Polling} {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}
