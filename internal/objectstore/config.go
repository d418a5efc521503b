// Package objectstore mirrors captured reference sets to an S3-compatible bucket.
package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"renderqa/internal/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// ConfigFromEnv reads RENDERQA_MINIO_*. Mirroring is opt-in: enabled is false
// when no endpoint is configured.
func ConfigFromEnv() (cfg Config, enabled bool, err error) {
	endpoint := env.String("RENDERQA_MINIO_ENDPOINT", "")
	if endpoint == "" {
		return Config{}, false, nil
	}
	useSSL, err := env.Bool("RENDERQA_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, false, err
	}
	cfg = Config{
		Endpoint:  endpoint,
		AccessKey: env.String("RENDERQA_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("RENDERQA_MINIO_SECRET_KEY", ""),
		Region:    env.String("RENDERQA_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("RENDERQA_MINIO_BUCKET", "render-references"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
