package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gostratum/fsx"
)

// MapS3Error converts S3 SDK errors to domain errors. The original error
// stays in the chain so callers can still inspect SDK types.
func MapS3Error(err error, op, key string) error {
	if err == nil {
		return nil
	}

	var storageErr *fsx.StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	return &fsx.StorageError{Op: op, Path: key, Err: classify(err)}
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", fsx.ErrAborted, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", fsx.ErrTimeout, err)
	}

	var (
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
		notFound     *types.NotFound
		noSuchUpload *types.NoSuchUpload
		exists       *types.BucketAlreadyExists
		owned        *types.BucketAlreadyOwnedByYou
		objState     *types.InvalidObjectState
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", fsx.ErrNotFound, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%w: bucket does not exist: %w", fsx.ErrNotFound, err)
	case errors.As(err, &noSuchUpload):
		return fmt.Errorf("%w: multipart upload does not exist: %w", fsx.ErrAborted, err)
	case errors.As(err, &exists), errors.As(err, &owned):
		return fmt.Errorf("%w: %w", fsx.ErrConflict, err)
	case errors.As(err, &objState):
		return fmt.Errorf("%w: invalid object state: %w", fsx.ErrConflict, err)
	}

	var apiErr smithy.APIError
	hasCode := errors.As(err, &apiErr)
	if hasCode {
		if sentinel := sentinelForCode(apiErr.ErrorCode()); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	var respErr *awshttp.ResponseError
	hasStatus := errors.As(err, &respErr)
	if hasStatus {
		if sentinel := sentinelForStatus(respErr.HTTPStatusCode()); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	// the message is only consulted when nothing typed was carried
	if hasCode || hasStatus {
		return err
	}
	if sentinel := sentinelForMessage(err.Error()); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

// sentinelForCode maps S3 API error codes
func sentinelForCode(code string) error {
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NotFound":
		return fsx.ErrNotFound
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou", "PreconditionFailed":
		return fsx.ErrConflict
	case "InvalidBucketName", "AccessDenied", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "AuthorizationHeaderMalformed":
		return fsx.ErrInvalidConfig
	case "EntityTooLarge":
		return fsx.ErrTooLarge
	case "EntityTooSmall":
		return fsx.ErrInvalidConfig
	case "InvalidRange":
		return fsx.ErrInvalidRange
	case "RequestTimeout", "RequestTimeTooSkewed", "SlowDown",
		"ServiceUnavailable", "InternalError":
		return fsx.ErrTimeout
	case "InvalidPart", "InvalidPartOrder", "NoSuchUpload":
		return fsx.ErrAborted
	default:
		return nil
	}
}

// sentinelForStatus maps HTTP status codes
func sentinelForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return fsx.ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return fsx.ErrInvalidConfig
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fsx.ErrConflict
	case http.StatusRequestEntityTooLarge:
		return fsx.ErrTooLarge
	case http.StatusRequestedRangeNotSatisfiable:
		return fsx.ErrInvalidRange
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fsx.ErrTimeout
	default:
		return nil
	}
}

// sentinelForMessage matches S3 error codes embedded in untyped errors,
// e.g. failures from S3-compatible stores that answer with bare status lines
func sentinelForMessage(msg string) error {
	switch {
	case strings.Contains(msg, "NoSuchKey"), strings.Contains(msg, "NoSuchBucket"):
		return fsx.ErrNotFound
	case strings.Contains(msg, "BucketAlreadyExists"), strings.Contains(msg, "BucketAlreadyOwnedByYou"):
		return fsx.ErrConflict
	case strings.Contains(msg, "EntityTooLarge"):
		return fsx.ErrTooLarge
	default:
		return nil
	}
}

// isNotFound reports whether a raw SDK error means the key or bucket is absent
func isNotFound(err error) bool {
	return errors.Is(classify(err), fsx.ErrNotFound)
}

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	mapped := classify(err)
	switch {
	case errors.Is(mapped, fsx.ErrInvalidConfig), errors.Is(mapped, fsx.ErrInvalidKey),
		errors.Is(mapped, fsx.ErrNotFound), errors.Is(mapped, fsx.ErrConflict),
		errors.Is(mapped, fsx.ErrTooLarge), errors.Is(mapped, fsx.ErrInvalidRange):
		return false
	case errors.Is(mapped, fsx.ErrTimeout):
		return true
	}

	// unknown failures are usually transport level
	return true
}
