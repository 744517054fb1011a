package fsx

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Backend kinds
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

// Object store limits
const (
	// MinPartSize is the smallest multipart part the object store accepts (except the last)
	MinPartSize int64 = 5 << 20

	// MaxPartSize is the largest multipart part the object store accepts
	MaxPartSize int64 = 5 << 30

	// MaxSignedURLExpiry is the longest lifetime of a SigV4 signed URL
	MaxSignedURLExpiry = 7 * 24 * time.Hour

	// CDNFetchExpiry is the lifetime of the signed URL used for CDN reads
	CDNFetchExpiry = 60 * time.Second
)

const redacted = "[redacted]"

// Config holds all storage configuration options
type Config struct {
	// Backend selects the storage backend ("filesystem" or "s3")
	Backend string `mapstructure:"backend" yaml:"backend" default:"filesystem" validate:"oneof=filesystem s3"`

	// BasePrefix is the root directory (filesystem) or key prefix (s3)
	BasePrefix string `mapstructure:"base_prefix" yaml:"base_prefix"`

	// Bucket is the default storage bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (e.g., "us-west-2")
	Region string `mapstructure:"region" yaml:"region" default:"us-east-1"`

	// Endpoint is the origin endpoint URL (AWS, MinIO, etc.)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// CDNEndpoint replaces the origin host in signed URLs and CDN reads
	CDNEndpoint string `mapstructure:"cdn_endpoint" yaml:"cdn_endpoint" validate:"omitempty,url"`

	// UsePathStyle forces path-style addressing (true for MinIO)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style" default:"false"`

	// AccessKey is the access key ID
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`

	// SecretKey is the secret access key
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// SessionToken is the temporary session token (optional)
	SessionToken string `mapstructure:"session_token" yaml:"session_token"`

	// UseSDKDefaults lets the AWS SDK default credential chain (env, shared config,
	// instance profile) supply credentials when explicit keys are absent
	UseSDKDefaults bool `mapstructure:"use_sdk_defaults" yaml:"use_sdk_defaults" default:"false"`

	// Profile selects a shared credentials profile
	Profile string `mapstructure:"profile" yaml:"profile"`

	// RoleARN is assumed via STS using the other configured credentials as the source
	RoleARN string `mapstructure:"role_arn" yaml:"role_arn"`

	// ExternalID is passed to STS AssumeRole when RoleARN is used
	ExternalID string `mapstructure:"external_id" yaml:"external_id"`

	// RequestTimeout bounds the wait for response headers of a single request
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" default:"30s"`

	// MaxRetries is the maximum number of attempts made by the SDK retryer.
	// Zero means unset and takes the default; one disables retries.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" default:"3" validate:"min=1,max=10"`

	// BackoffInitial is the initial retry backoff delay
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial" default:"200ms"`

	// BackoffMax is the maximum retry backoff delay
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max" default:"5s"`

	// DefaultPartSize is the multipart upload part size
	DefaultPartSize int64 `mapstructure:"default_part_size" yaml:"default_part_size" default:"5242880"` // 5MB

	// DefaultParallel is the number of parts uploaded concurrently
	DefaultParallel int `mapstructure:"default_parallel" yaml:"default_parallel" default:"4" validate:"min=1,max=64"`

	// StrictPartSize rejects part sizes below MinPartSize instead of clamping them
	StrictPartSize bool `mapstructure:"strict_part_size" yaml:"strict_part_size" default:"false"`

	// ListPageSize is the maximum number of keys requested per listing page
	ListPageSize int `mapstructure:"list_page_size" yaml:"list_page_size" default:"1000" validate:"min=1,max=1000"`

	// SignedURLExpiry is the default lifetime of signed URLs
	SignedURLExpiry time.Duration `mapstructure:"signed_url_expiry" yaml:"signed_url_expiry" default:"60s"`

	// ValidateOnStart checks bucket access with HeadBucket during startup
	ValidateOnStart bool `mapstructure:"validate_on_start" yaml:"validate_on_start" default:"false"`

	// DisableSSL selects http for endpoints given without a scheme (development only)
	DisableSSL bool `mapstructure:"disable_ssl" yaml:"disable_ssl" default:"false"`

	// EnableLogging enables per-request SDK logging
	EnableLogging bool `mapstructure:"enable_logging" yaml:"enable_logging" default:"false"`
}

// Prefix implements configx.Configurable and returns the configuration prefix
func (Config) Prefix() string { return "storage" }

// DefaultConfig returns a configuration populated from the default tags
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("fsx: invalid default tags: %v", err))
	}
	return cfg
}

// Normalize returns a copy with whitespace trimmed, aliases resolved and zero
// values replaced by defaults. The receiver is not mutated.
func (c *Config) Normalize() *Config {
	if c == nil {
		return DefaultConfig()
	}

	n := *c
	n.Backend = strings.ToLower(strings.TrimSpace(n.Backend))
	switch n.Backend {
	case "":
		n.Backend = BackendFilesystem
	case "object-store", "objectstore", "object_store":
		n.Backend = BackendS3
	case "fs", "local":
		n.Backend = BackendFilesystem
	}

	n.Bucket = strings.TrimSpace(n.Bucket)
	n.Region = strings.TrimSpace(n.Region)
	n.Endpoint = strings.TrimSuffix(strings.TrimSpace(n.Endpoint), "/")
	n.CDNEndpoint = strings.TrimSuffix(strings.TrimSpace(n.CDNEndpoint), "/")

	n.BasePrefix = strings.TrimSpace(n.BasePrefix)
	if len(n.BasePrefix) > 1 {
		n.BasePrefix = strings.TrimRight(n.BasePrefix, "/")
	}

	d := DefaultConfig()
	if n.Region == "" {
		n.Region = d.Region
	}
	if n.RequestTimeout == 0 {
		n.RequestTimeout = d.RequestTimeout
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = d.MaxRetries
	}
	if n.BackoffInitial == 0 {
		n.BackoffInitial = d.BackoffInitial
	}
	if n.BackoffMax == 0 {
		n.BackoffMax = d.BackoffMax
	}
	if n.DefaultPartSize == 0 {
		n.DefaultPartSize = d.DefaultPartSize
	}
	if n.DefaultParallel == 0 {
		n.DefaultParallel = d.DefaultParallel
	}
	if n.ListPageSize == 0 {
		n.ListPageSize = d.ListPageSize
	}
	if n.SignedURLExpiry == 0 {
		n.SignedURLExpiry = d.SignedURLExpiry
	}

	return &n
}

// IsS3 reports whether the object-store backend is selected
func (c *Config) IsS3() bool {
	return c.Backend == BackendS3
}

// HasStaticCredentials reports whether both access key and secret key are set
func (c *Config) HasStaticCredentials() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// HasCredentials reports whether any credential source is configured
func (c *Config) HasCredentials() bool {
	return c.HasStaticCredentials() || c.Profile != "" || c.UseSDKDefaults
}

// ClientReady reports whether an object store client handle can be built:
// the s3 backend with endpoint, region and credentials present
func (c *Config) ClientReady() bool {
	return c.IsS3() && c.Endpoint != "" && c.Region != "" && c.HasCredentials()
}

// EndpointURL returns the origin endpoint with a scheme
func (c *Config) EndpointURL() string {
	return withScheme(c.Endpoint, c.DisableSSL)
}

// CDNEndpointURL returns the CDN endpoint with a scheme
func (c *Config) CDNEndpointURL() string {
	return withScheme(c.CDNEndpoint, c.DisableSSL)
}

func withScheme(endpoint string, insecure bool) string {
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, endpoint)
}

// PartSize resolves a requested part size against the configured default and floor
func (c *Config) PartSize(requested int64) (int64, error) {
	size := requested
	if size <= 0 {
		size = c.DefaultPartSize
	}
	if size < MinPartSize {
		if c.StrictPartSize {
			return 0, fmt.Errorf("%w: part size %d is below the %d byte minimum", ErrInvalidConfig, size, MinPartSize)
		}
		size = MinPartSize
	}
	if size > MaxPartSize {
		return 0, fmt.Errorf("%w: part size %d exceeds the %d byte maximum", ErrInvalidConfig, size, MaxPartSize)
	}
	return size, nil
}

// SignExpiry resolves a requested signed URL lifetime
func (c *Config) SignExpiry(requested time.Duration) time.Duration {
	expiry := requested
	if expiry <= 0 {
		expiry = c.SignedURLExpiry
	}
	if expiry <= 0 {
		expiry = CDNFetchExpiry
	}
	if expiry > MaxSignedURLExpiry {
		expiry = MaxSignedURLExpiry
	}
	return expiry
}

// Sanitize implements logx.Sanitizable and returns a copy with secrets redacted
func (c *Config) Sanitize() any {
	if c == nil {
		return (*Config)(nil)
	}
	s := *c
	if s.AccessKey != "" {
		s.AccessKey = redacted
	}
	if s.SecretKey != "" {
		s.SecretKey = redacted
	}
	if s.SessionToken != "" {
		s.SessionToken = redacted
	}
	if s.ExternalID != "" {
		s.ExternalID = redacted
	}
	return &s
}

// Summary returns a safe summary of the configuration for logging
func (c *Config) Summary() map[string]any {
	if c == nil {
		return map[string]any{"error": "nil config"}
	}

	summary := map[string]any{
		"backend":           c.Backend,
		"base_prefix":       c.BasePrefix,
		"bucket":            c.Bucket,
		"region":            c.Region,
		"endpoint":          c.Endpoint,
		"cdn_endpoint":      c.CDNEndpoint,
		"use_path_style":    c.UsePathStyle,
		"request_timeout":   c.RequestTimeout.String(),
		"max_retries":       c.MaxRetries,
		"default_part_size": fmt.Sprintf("%d MB", c.DefaultPartSize/(1<<20)),
		"default_parallel":  c.DefaultParallel,
		"list_page_size":    c.ListPageSize,
		"signed_url_expiry": c.SignedURLExpiry.String(),
	}

	if c.AccessKey != "" {
		summary["has_access_key"] = true
		summary["access_key_prefix"] = c.AccessKey[:min(4, len(c.AccessKey))] + "..."
	}
	if c.SecretKey != "" {
		summary["has_secret_key"] = true
	}
	if c.SessionToken != "" {
		summary["has_session_token"] = true
	}

	return summary
}

// String returns a safe string representation (redacts secrets)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend:%s, BasePrefix:%s, Bucket:%s, Region:%s, Endpoint:%s, CDNEndpoint:%s}",
		c.Backend, c.BasePrefix, c.Bucket, c.Region, c.Endpoint, c.CDNEndpoint)
}
