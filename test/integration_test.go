//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/filestore"
)

func TestS3Integration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration tests - set RUN_INTEGRATION_TESTS=true to run")
	}

	// Build config directly from environment variables
	cfg := &fsx.Config{
		Backend:        fsx.BackendS3,
		BasePrefix:     getEnvOrDefault("STRATUM_STORAGE_BASE_PREFIX", "fsx-integration"),
		Bucket:         getEnvOrDefault("STRATUM_STORAGE_BUCKET", "test-bucket"),
		Region:         getEnvOrDefault("STRATUM_STORAGE_REGION", "us-east-1"),
		Endpoint:       getEnvOrDefault("STRATUM_STORAGE_ENDPOINT", "http://localhost:9000"),
		CDNEndpoint:    getEnvOrDefault("STRATUM_STORAGE_CDN_ENDPOINT", ""),
		AccessKey:      getEnvOrDefault("STRATUM_STORAGE_ACCESS_KEY", "minioadmin"),
		SecretKey:      getEnvOrDefault("STRATUM_STORAGE_SECRET_KEY", "minioadmin"),
		UsePathStyle:   getEnvOrDefault("STRATUM_STORAGE_USE_PATH_STYLE", "true") == "true",
		DisableSSL:     getEnvOrDefault("STRATUM_STORAGE_DISABLE_SSL", "true") == "true",
		EnableLogging:  getEnvOrDefault("STRATUM_STORAGE_ENABLE_LOGGING", "false") == "true",
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
	}

	ctx := context.Background()
	store, err := filestore.Open(ctx, cfg)
	require.NoError(t, err, "Should open storage successfully")
	t.Cleanup(func() {
		_ = store.Rmdir(ctx, "")
		_ = store.Stop(ctx)
	})

	require.NoError(t, store.HealthCheck().Check(ctx), "bucket must be reachable")

	t.Run("BasicOperations", func(t *testing.T) {
		testBasicOperations(t, store)
	})

	t.Run("Directories", func(t *testing.T) {
		testDirectories(t, store)
	})

	t.Run("LargeFileStream", func(t *testing.T) {
		testLargeFileStream(t, store)
	})

	t.Run("SignedURLs", func(t *testing.T) {
		testSignedURLs(t, store)
	})
}

func testBasicOperations(t *testing.T, store *filestore.Store) {
	ctx := context.Background()
	content := []byte("Hello from fsx integration test!")

	ack, err := store.WriteFile(ctx, "basic/file.txt", content)
	require.NoError(t, err, "Should upload file successfully")
	assert.Equal(t, "basic/file.txt", ack.Key)
	assert.NotEmpty(t, ack.ETag)

	got, err := store.ReadFile(ctx, "basic/file.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	r := store.CreateReadStream(ctx, "basic/file.txt", &fsx.ReadStreamOptions{Range: &fsx.ByteRange{Start: 0, End: 4}})
	part, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "Hello", string(part))

	require.NoError(t, store.Rm(ctx, "basic/file.txt"))
	_, err = store.ReadFile(ctx, "basic/file.txt")
	assert.True(t, fsx.IsNotFound(err), "Should return not found after delete")
}

func testDirectories(t *testing.T, store *filestore.Store) {
	ctx := context.Background()

	_, err := store.Mkdir(ctx, "tree/empty")
	require.NoError(t, err)
	for _, p := range []string{"tree/a.txt", "tree/b.txt", "tree/sub/c.txt"} {
		_, err := store.WriteFile(ctx, p, []byte(p))
		require.NoError(t, err)
	}

	names, err := store.Readdir(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "empty", "sub"}, names)

	ok, err := store.Exists(ctx, "tree/empty")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Rmdir(ctx, "tree"))
	names, err = store.Readdir(ctx, "tree")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func testLargeFileStream(t *testing.T, store *filestore.Store) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("0123456789abcdef"), (12<<20)/16)

	w := store.CreateWriteStream(ctx, "large/blob.bin", &fsx.WriteStreamOptions{ContentType: "application/octet-stream"})
	_, err := io.Copy(w, bytes.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close(), "Should complete multipart upload")

	got, err := store.ReadFile(ctx, "large/blob.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func testSignedURLs(t *testing.T, store *filestore.Store) {
	ctx := context.Background()

	putURL, err := store.GetSignedPutURL(ctx, "signed/upload.txt", &fsx.SignOptions{Expiry: 5 * time.Minute})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, strings.NewReader("signed body"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getURL, err := store.GetSignedURL(ctx, "signed/upload.txt", nil)
	require.NoError(t, err)
	resp, err = http.Get(getURL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "signed body", string(body))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
