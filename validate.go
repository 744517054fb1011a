package fsx

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

var (
	validateOnce sync.Once
	structValid  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structValid = validator.New(validator.WithRequiredStructEnabled())
		structValid.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return structValid
}

// ValidateConfig validates the struct tags and the cross-field rules of cfg.
//
// An s3 configuration without endpoint or credentials is valid: the facade
// starts without a client handle and object store calls fail with ErrNotConfigured.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Field: "config", Message: "configuration cannot be nil"}
	}

	var problems []string

	if err := structValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ValidationError{Field: "config", Message: err.Error()}
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if cfg.Bucket != "" {
		if err := validateBucketName(cfg.Bucket); err != nil {
			problems = append(problems, fmt.Sprintf("invalid bucket name: %v", err))
		}
	}

	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		problems = append(problems, "both access_key and secret_key must be set together; do not provide only one")
	}

	if cfg.Endpoint != "" {
		if err := validateEndpoint(cfg.Endpoint); err != nil {
			problems = append(problems, fmt.Sprintf("invalid endpoint: %v", err))
		}
	}

	if cfg.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if cfg.RequestTimeout > 10*time.Minute {
		problems = append(problems, "request_timeout should not exceed 10 minutes")
	}

	if cfg.BackoffInitial <= 0 {
		problems = append(problems, "backoff_initial must be positive")
	}
	if cfg.BackoffMax <= cfg.BackoffInitial {
		problems = append(problems, "backoff_max must be greater than backoff_initial")
	}

	if cfg.DefaultPartSize <= 0 {
		problems = append(problems, "default_part_size must be positive")
	} else if cfg.StrictPartSize && cfg.DefaultPartSize < MinPartSize {
		problems = append(problems, "default_part_size must be at least 5MB when strict_part_size is enabled")
	}
	if cfg.DefaultPartSize > MaxPartSize {
		problems = append(problems, "default_part_size must not exceed 5GB")
	}

	if cfg.SignedURLExpiry < 0 || cfg.SignedURLExpiry > MaxSignedURLExpiry {
		problems = append(problems, "signed_url_expiry must be between 0 and 7 days")
	}

	if cfg.BasePrefix != "" {
		if err := validateBasePrefix(cfg.BasePrefix); err != nil {
			problems = append(problems, fmt.Sprintf("invalid base_prefix: %v", err))
		}
	}

	if cfg.RoleARN != "" && !isPlausibleRoleARN(cfg.RoleARN) {
		problems = append(problems, "role_arn looks invalid: must be a valid IAM role ARN (e.g., arn:aws:iam::123456789012:role/RoleName)")
	}

	if len(problems) > 0 {
		return &ValidationError{
			Field:   "config",
			Message: strings.Join(problems, "; "),
		}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// isPlausibleRoleARN performs a light-weight validation of an IAM role ARN
func isPlausibleRoleARN(arn string) bool {
	// arn:partition:service:region:account-id:resource
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "iam" {
		return false
	}
	if !isNumeric(parts[4]) {
		return false
	}
	return strings.HasPrefix(parts[5], "role/")
}

// validateBucketName validates S3 bucket naming rules
func validateBucketName(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("bucket name must be between 3 and 63 characters")
	}

	if strings.HasPrefix(bucket, "-") || strings.HasSuffix(bucket, "-") {
		return fmt.Errorf("bucket name cannot start or end with a hyphen")
	}

	if strings.HasPrefix(bucket, ".") || strings.HasSuffix(bucket, ".") {
		return fmt.Errorf("bucket name cannot start or end with a period")
	}

	if strings.Contains(bucket, "..") || strings.Contains(bucket, "--") {
		return fmt.Errorf("bucket name cannot contain consecutive periods or hyphens")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return fmt.Errorf("bucket name contains invalid character: %c", char)
		}
	}

	parts := strings.Split(bucket, ".")
	if len(parts) == 4 {
		allNumeric := true
		for _, part := range parts {
			if !isNumeric(part) {
				allNumeric = false
				break
			}
		}
		if allNumeric {
			return fmt.Errorf("bucket name cannot be formatted as an IP address")
		}
	}

	return nil
}

func isValidBucketChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '.'
}

func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}

// validateEndpoint validates the endpoint URL format
func validateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return nil
	}

	// host:port form
	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint protocol must be http or https")
	}

	if strings.Contains(endpoint, " ") {
		return fmt.Errorf("endpoint cannot contain spaces")
	}

	return nil
}

// validateBasePrefix rejects prefixes that would climb out of their root
func validateBasePrefix(prefix string) error {
	for _, segment := range strings.Split(strings.ReplaceAll(prefix, "\\", "/"), "/") {
		if segment == ".." {
			return fmt.Errorf("base prefix cannot contain '..' segments")
		}
	}
	if strings.Contains(prefix, "\x00") {
		return fmt.Errorf("base prefix cannot contain NUL bytes")
	}
	return nil
}
