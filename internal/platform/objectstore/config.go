package objectstore

import (
	"fmt"
	"strings"
)

// Config describes an S3-compatible artifact bucket. A zero Endpoint means
// object storage is not configured and artifacts stay on local disk.
type Config struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Region    string `yaml:"region" toml:"region"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Validate checks that every connection setting is present. Endpoint is a
// host:port; TLS is chosen by UseSSL.
func (c Config) Validate() error {
	for _, field := range []struct{ name, value string }{
		{"endpoint", c.Endpoint},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
		{"region", c.Region},
		{"bucket", c.Bucket},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("object store %s is required", field.name)
		}
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("object store endpoint must not include a scheme: %q", c.Endpoint)
	}
	return nil
}
