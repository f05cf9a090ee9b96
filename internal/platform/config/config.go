package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/platform/auth"
	"github.com/animus-labs/animus-tracking/internal/platform/logging"
	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
)

// Config is the complete configuration of one command invocation. It is
// built once in main and passed down explicitly.
type Config struct {
	Tracking    Tracking           `yaml:"tracking" toml:"tracking"`
	Registry    auth.Config        `yaml:"registry" toml:"registry"`
	ObjectStore objectstore.Config `yaml:"object_store" toml:"object_store"`
	Log         Log                `yaml:"log" toml:"log"`
}

type Tracking struct {
	URI            string `yaml:"uri" toml:"uri"`
	ExperimentName string `yaml:"experiment_name" toml:"experiment_name"`
	User           string `yaml:"user" toml:"user"`
	// Timeout bounds each remote call, e.g. "30s".
	Timeout string `yaml:"timeout" toml:"timeout"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
}

// Defaults returns the baseline configuration for a tool with the given
// tracking URI and experiment name.
func Defaults(trackingURI, experimentName string) Config {
	return Config{
		Tracking: Tracking{
			URI:            trackingURI,
			ExperimentName: experimentName,
			User:           defaultUser(),
			Timeout:        "30s",
		},
		Registry: auth.Config{Mode: auth.ModeNone},
		ObjectStore: objectstore.Config{
			Region: "us-east-1",
			Bucket: "mlartifacts",
		},
		Log: Log{Level: "info"},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Tracking.URI) == "" {
		return errors.New("tracking uri is required")
	}
	if strings.TrimSpace(c.Tracking.ExperimentName) == "" {
		return errors.New("experiment name is required")
	}
	if _, err := c.Tracking.RequestTimeout(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.Validate(); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// RequestTimeout parses Timeout; blank disables the per-call bound.
func (t Tracking) RequestTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(t.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse tracking timeout: %w", err)
	}
	if d < 0 {
		return 0, errors.New("tracking timeout must be >= 0")
	}
	return d, nil
}

func defaultUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "unknown"
}
