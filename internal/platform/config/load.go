package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/platform/auth"
	"github.com/animus-labs/animus-tracking/internal/platform/env"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load layers the optional config file at path and the environment over
// base. Flags are applied by the caller afterwards.
func Load(path string, base Config) (Config, error) {
	cfg := base
	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Tracking.URI = env.String("ANIMUS_TRACKING_URI", cfg.Tracking.URI)
	cfg.Tracking.ExperimentName = env.String("ANIMUS_EXPERIMENT_NAME", cfg.Tracking.ExperimentName)
	cfg.Tracking.User = env.String("ANIMUS_USER", cfg.Tracking.User)
	cfg.Tracking.Timeout = env.String("ANIMUS_TRACKING_TIMEOUT", cfg.Tracking.Timeout)

	mode, err := auth.ParseMode(env.String("ANIMUS_REGISTRY_AUTH_MODE", string(cfg.Registry.Mode)))
	if err != nil {
		return err
	}
	cfg.Registry.Mode = mode
	cfg.Registry.Token = env.String("ANIMUS_REGISTRY_TOKEN", cfg.Registry.Token)
	cfg.Registry.OIDCIssuerURL = env.String("ANIMUS_OIDC_ISSUER_URL", cfg.Registry.OIDCIssuerURL)
	cfg.Registry.OIDCClientID = env.String("ANIMUS_OIDC_CLIENT_ID", cfg.Registry.OIDCClientID)
	cfg.Registry.OIDCClientSecret = env.String("ANIMUS_OIDC_CLIENT_SECRET", cfg.Registry.OIDCClientSecret)
	cfg.Registry.OIDCScopes = env.List("ANIMUS_OIDC_SCOPES", cfg.Registry.OIDCScopes)
	// A bare token implies token auth.
	if cfg.Registry.Mode == auth.ModeNone && strings.TrimSpace(cfg.Registry.Token) != "" {
		cfg.Registry.Mode = auth.ModeToken
	}

	useSSL, err := env.Bool("ANIMUS_MINIO_USE_SSL", cfg.ObjectStore.UseSSL)
	if err != nil {
		return err
	}
	cfg.ObjectStore.UseSSL = useSSL
	cfg.ObjectStore.Endpoint = env.String("ANIMUS_MINIO_ENDPOINT", cfg.ObjectStore.Endpoint)
	cfg.ObjectStore.AccessKey = env.String("ANIMUS_MINIO_ACCESS_KEY", cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = env.String("ANIMUS_MINIO_SECRET_KEY", cfg.ObjectStore.SecretKey)
	cfg.ObjectStore.Region = env.String("ANIMUS_MINIO_REGION", cfg.ObjectStore.Region)
	cfg.ObjectStore.Bucket = env.String("ANIMUS_MINIO_BUCKET", cfg.ObjectStore.Bucket)

	cfg.Log.Level = env.String("ANIMUS_LOG_LEVEL", cfg.Log.Level)
	return nil
}
