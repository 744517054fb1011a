//go:build integration

package s3

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gostratum/fsx"
)

// This integration test requires a running localstack or AWS endpoint that supports STS.
// It is skipped unless LOCALSTACK_ENDPOINT and TEST_ROLE_ARN are set.
func TestAssumeRoleIntegration(t *testing.T) {
	ep := os.Getenv("LOCALSTACK_ENDPOINT")
	if ep == "" {
		t.Skip("LOCALSTACK_ENDPOINT not set; skipping integration test")
	}
	role := os.Getenv("TEST_ROLE_ARN")
	if role == "" {
		t.Skip("TEST_ROLE_ARN not set; skipping AssumeRole integration test")
	}

	ctx := context.Background()
	cfg := fsx.DefaultConfig()
	cfg.Backend = fsx.BackendS3
	cfg.Bucket = "test-bucket"
	cfg.Endpoint = ep
	cfg.UsePathStyle = true
	cfg.UseSDKDefaults = true
	cfg.RoleARN = role

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	cm := s.Client()
	require.NotNil(t, cm)
	require.NoError(t, cm.CreateBucketIfNotExists(ctx, cfg.Bucket))

	_, err = s.WriteFile(ctx, "assume-role/hello.txt", []byte("ok"))
	require.NoError(t, err, "writes go through assumed-role credentials")
	require.NoError(t, s.Rmdir(ctx, "assume-role"))
}
