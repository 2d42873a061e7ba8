package objectstore

import (
	"errors"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string

	BucketArchives string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("LEDGERLINE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("LEDGERLINE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("LEDGERLINE_MINIO_ACCESS_KEY", ""),
		SecretKey:      env.String("LEDGERLINE_MINIO_SECRET_KEY", ""),
		UseSSL:         useSSL,
		Region:         env.String("LEDGERLINE_MINIO_REGION", "us-east-1"),
		BucketArchives: env.String("LEDGERLINE_MINIO_BUCKET_ARCHIVES", "workflow-archives"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("LEDGERLINE_MINIO_ENDPOINT is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("LEDGERLINE_MINIO_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("LEDGERLINE_MINIO_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.BucketArchives) == "" {
		return errors.New("LEDGERLINE_MINIO_BUCKET_ARCHIVES is required")
	}
	return nil
}
