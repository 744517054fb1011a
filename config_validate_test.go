package fsx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	s3Config := func(mutate func(*Config)) *Config {
		cfg := DefaultConfig()
		cfg.Backend = BackendS3
		cfg.Bucket = "my-bucket"
		cfg.Endpoint = "http://localhost:9000"
		cfg.AccessKey = "AKIAEXAMPLE"
		cfg.SecretKey = "secret"
		if mutate != nil {
			mutate(cfg)
		}
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "filesystem defaults",
			cfg:  DefaultConfig(),
		},
		{
			name: "s3 with explicit creds",
			cfg:  s3Config(nil),
		},
		{
			name: "s3 without endpoint or creds is accepted and left unconfigured",
			cfg: s3Config(func(c *Config) {
				c.Endpoint, c.AccessKey, c.SecretKey = "", "", ""
			}),
		},
		{
			name:    "unknown backend",
			cfg:     s3Config(func(c *Config) { c.Backend = "gcs" }),
			wantErr: "backend must be one of",
		},
		{
			name:    "one cred missing",
			cfg:     s3Config(func(c *Config) { c.AccessKey = "" }),
			wantErr: "access_key and secret_key",
		},
		{
			name:    "invalid bucket",
			cfg:     s3Config(func(c *Config) { c.Bucket = "Bad_Bucket" }),
			wantErr: "invalid bucket name",
		},
		{
			name:    "cdn endpoint must be a url",
			cfg:     s3Config(func(c *Config) { c.CDNEndpoint = "not a url" }),
			wantErr: "cdn_endpoint must be an absolute URL",
		},
		{
			name:    "endpoint with foreign scheme",
			cfg:     s3Config(func(c *Config) { c.Endpoint = "ftp://host" }),
			wantErr: "invalid endpoint",
		},
		{
			name:    "strict part size below floor",
			cfg:     s3Config(func(c *Config) { c.StrictPartSize, c.DefaultPartSize = true, 1<<20 }),
			wantErr: "default_part_size must be at least 5MB",
		},
		{
			name: "lenient part size below floor is clamped later",
			cfg:  s3Config(func(c *Config) { c.DefaultPartSize = 1 << 20 }),
		},
		{
			name:    "parallel out of range",
			cfg:     s3Config(func(c *Config) { c.DefaultParallel = 100 }),
			wantErr: "default_parallel must not exceed 64",
		},
		{
			name:    "retries below one attempt",
			cfg:     s3Config(func(c *Config) { c.MaxRetries = 0 }),
			wantErr: "max_retries must be at least 1",
		},
		{
			name: "single attempt disables retries",
			cfg:  s3Config(func(c *Config) { c.MaxRetries = 1 }),
		},
		{
			name:    "list page size over the store limit",
			cfg:     s3Config(func(c *Config) { c.ListPageSize = 5000 }),
			wantErr: "list_page_size must not exceed 1000",
		},
		{
			name:    "backoff max below initial",
			cfg:     s3Config(func(c *Config) { c.BackoffMax = 100 * time.Millisecond }),
			wantErr: "backoff_max must be greater than backoff_initial",
		},
		{
			name:    "signed url expiry beyond seven days",
			cfg:     s3Config(func(c *Config) { c.SignedURLExpiry = 8 * 24 * time.Hour }),
			wantErr: "signed_url_expiry",
		},
		{
			name:    "base prefix escaping its root",
			cfg:     s3Config(func(c *Config) { c.BasePrefix = "tenant/../../etc" }),
			wantErr: "invalid base_prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	err := ValidateConfig(nil)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "config", verr.Field)
}

func TestResolveConfig(t *testing.T) {
	cfg, err := ResolveConfig(&Config{Backend: "object-store", Bucket: "media"})
	require.NoError(t, err)
	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, 1000, cfg.ListPageSize)

	_, err = ResolveConfig(&Config{Backend: "ftp"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
