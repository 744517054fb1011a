package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gostratum/core"
)

// HealthCheck implements core.Check for object store connectivity
type HealthCheck struct {
	storage *Storage
}

var _ core.Check = (*HealthCheck)(nil)

// NewHealthCheck creates a readiness check that heads the configured bucket
func NewHealthCheck(s *Storage) *HealthCheck {
	return &HealthCheck{storage: s}
}

func (h *HealthCheck) Name() string { return "fsx.s3" }

func (h *HealthCheck) Kind() core.Kind { return core.Readiness }

func (h *HealthCheck) Check(ctx context.Context) error {
	cm, bucket, err := h.storage.prepare("health", "", nil)
	if err != nil {
		return err
	}

	// Use a short timeout for health checks
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err = cm.GetS3Client().HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 head bucket failed: %w", MapS3Error(err, "health", bucket))
	}
	return nil
}
