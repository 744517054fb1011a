package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cenkalti/backoff/v4"
	"github.com/gostratum/core/logx"

	"github.com/gostratum/fsx"
)

// ClientConfig holds the configuration for creating S3 clients
type ClientConfig struct {
	Config *fsx.Config
	Logger logx.Logger

	// HTTPClient overrides the transport; when nil the manager owns one
	HTTPClient *http.Client
}

// ClientManager is the object store client handle. It is created during
// startup and released with Close during shutdown.
type ClientManager struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	httpClient    *http.Client
	ownsHTTP      bool
	config        *fsx.Config
	logger        logx.Logger
	closeOnce     sync.Once
}

// NewClientManager creates a new S3 client handle
func NewClientManager(ctx context.Context, clientConfig ClientConfig) (*ClientManager, error) {
	if clientConfig.Config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if clientConfig.Logger == nil {
		clientConfig.Logger = logx.NewNoopLogger()
	}

	cfg := clientConfig.Config
	logger := clientConfig.Logger

	httpClient, owned := clientConfig.HTTPClient, false
	if httpClient == nil {
		httpClient, owned = newHTTPClient(cfg), true
	}

	logger.Debug("Creating S3 client manager",
		logx.Any("bucket", cfg.Bucket),
		logx.Any("region", cfg.Region),
		logx.Any("endpoint", cfg.Endpoint),
		logx.Any("use_path_style", cfg.UsePathStyle),
	)

	// The HTTP client is set on the S3 options only. The config loader keeps
	// its buildable client, which AWS_CA_BUNDLE and other env settings require.
	awsConfig, credSource, err := buildAWSConfigWithLoader(ctx, cfg, logger, config.LoadDefaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	logger.Info("Credential source selected", logx.Any("cred_source", credSource))

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL())
		}
		o.HTTPClient = httpClient

		// S3-compatible stores commonly reject the newer default integrity headers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired

		if cfg.EnableLogging {
			o.Logger = &sdkLogger{logger: logger}
			o.ClientLogMode = aws.LogRetries | aws.LogRequest | aws.LogResponse
		}
	})

	manager := &ClientManager{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		httpClient:    httpClient,
		ownsHTTP:      owned,
		config:        cfg,
		logger:        logger,
	}

	if cfg.ValidateOnStart {
		if err := manager.validateConnection(ctx, cfg.Bucket); err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to validate S3 connection: %w", err)
		}
	}

	logger.Info("S3 client manager created", logx.Any("bucket", cfg.Bucket), logx.Any("region", cfg.Region))
	return manager, nil
}

// newHTTPClient bounds the wait for response headers only, so long streaming
// bodies are not cut off mid-transfer
func newHTTPClient(cfg *fsx.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.RequestTimeout
	transport.MaxIdleConnsPerHost = 32
	return &http.Client{Transport: transport}
}

// awsConfigLoader is a function that loads an aws.Config given LoadOptions.
type awsConfigLoader func(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error)

// buildAWSConfigWithLoader builds an AWS config using the supplied loader (testable).
// It returns the loaded aws.Config and the detected credential source (one of:
// "static", "profile", "sdk-default", "assumed-role").
func buildAWSConfigWithLoader(ctx context.Context, cfg *fsx.Config, logger logx.Logger, loader awsConfigLoader) (aws.Config, string, error) {
	var options []func(*config.LoadOptions) error
	credSource := "unknown"

	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}

	logger.Debug("Storage credential settings",
		logx.Any("access_key_set", cfg.AccessKey != ""),
		logx.Any("secret_key_set", cfg.SecretKey != ""),
		logx.Any("use_sdk_defaults", cfg.UseSDKDefaults),
		logx.Any("profile", cfg.Profile),
	)

	switch {
	case cfg.HasStaticCredentials():
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
		credSource = "static"
	case cfg.Profile != "":
		options = append(options, config.WithSharedConfigProfile(cfg.Profile))
		credSource = "profile"
	case !cfg.UseSDKDefaults:
		return aws.Config{}, credSource, fmt.Errorf("%w: use_sdk_defaults is false but no explicit credentials provided (access_key/secret_key or profile)", fsx.ErrNotConfigured)
	}

	options = append(options, config.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = max(cfg.MaxRetries, 1)
			o.MaxBackoff = cfg.BackoffMax
			o.Backoff = createBackoffStrategy(cfg)
		})
	}))

	awsConfig, err := loader(ctx, options...)
	if err != nil {
		return aws.Config{}, credSource, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	if credSource == "unknown" {
		credSource = "sdk-default"
	}

	if cfg.RoleARN != "" {
		// AssumeRole authenticates to STS with the credentials loaded above;
		// custom endpoints without STS fail here at first use, not at startup.
		logger.Info("Config requests STS AssumeRole", logx.Any("role_arn", cfg.RoleARN))

		stsClient := sts.NewFromConfig(awsConfig)
		assumeProv := stscreds.NewAssumeRoleProvider(stsClient, cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
			o.RoleSessionName = "fsx-assume-role"
		})

		awsConfig.Credentials = aws.NewCredentialsCache(assumeProv)
		credSource = "assumed-role"
	}

	return awsConfig, credSource, nil
}

// createBackoffStrategy derives SDK retry delays from an exponential backoff with jitter
func createBackoffStrategy(cfg *fsx.Config) retry.BackoffDelayerFunc {
	return func(attempt int, err error) (time.Duration, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.BackoffInitial
		b.MaxInterval = cfg.BackoffMax
		b.MaxElapsedTime = 0
		b.Multiplier = 2.0
		b.RandomizationFactor = 0.1
		b.Reset()

		var delay time.Duration
		for i := 0; i < attempt; i++ {
			delay = b.NextBackOff()
			if delay == backoff.Stop {
				break
			}
		}
		return delay, nil
	}
}

func (cm *ClientManager) validateConnection(ctx context.Context, bucket string) error {
	_, err := cm.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		cm.logger.Warn("Failed to validate bucket access", logx.Any("bucket", bucket), logx.Any("error", err))
		return fmt.Errorf("cannot access bucket %q: %w", bucket, MapS3Error(err, "head_bucket", bucket))
	}
	cm.logger.Debug("Bucket access validated", logx.Any("bucket", bucket))
	return nil
}

// GetS3Client returns the configured S3 client
func (cm *ClientManager) GetS3Client() *s3.Client {
	return cm.s3Client
}

// GetPresignClient returns the configured presign client
func (cm *ClientManager) GetPresignClient() *s3.PresignClient {
	return cm.presignClient
}

// GetHTTPClient returns the HTTP client shared by the SDK and CDN reads
func (cm *ClientManager) GetHTTPClient() *http.Client {
	return cm.httpClient
}

// GetConfig returns the storage configuration
func (cm *ClientManager) GetConfig() *fsx.Config {
	return cm.config
}

// Close releases idle connections of an owned transport. Safe to call twice.
func (cm *ClientManager) Close() error {
	cm.closeOnce.Do(func() {
		cm.logger.Debug("Closing S3 client manager")
		if cm.ownsHTTP {
			cm.httpClient.CloseIdleConnections()
		}
	})
	return nil
}

// BucketExists checks if the bucket exists and is accessible
func (cm *ClientManager) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := cm.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var notFound *s3Types.NotFound
		if errors.As(err, &notFound) || isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking bucket existence: %w", err)
	}
	return true, nil
}

// CreateBucketIfNotExists creates the bucket if it doesn't exist
func (cm *ClientManager) CreateBucketIfNotExists(ctx context.Context, bucket string) error {
	exists, err := cm.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		cm.logger.Debug("Bucket already exists", logx.Any("bucket", bucket))
		return nil
	}

	cm.logger.Info("Creating bucket", logx.Any("bucket", bucket))

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}

	// us-east-1 rejects an explicit location constraint
	if cm.config.Region != "" && cm.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(cm.config.Region),
		}
	}

	if _, err := cm.s3Client.CreateBucket(ctx, input); err != nil {
		return MapS3Error(err, "create_bucket", bucket)
	}
	return nil
}
