package filestore_test

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/adapters/local"
	"github.com/gostratum/fsx/adapters/s3"
	"github.com/gostratum/fsx/filestore"
	"github.com/gostratum/fsx/internal/testutil"
)

func openLocal(t *testing.T, opts ...fsx.Option) *filestore.Store {
	t.Helper()

	cfg := testutil.NewTestConfig()
	opts = append([]fsx.Option{fsx.WithFs(testutil.NewMemFs())}, opts...)
	store, err := filestore.Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Stop(context.Background()) })
	return store
}

func openS3(t *testing.T, opts ...fsx.Option) *filestore.Store {
	t.Helper()

	fake := testutil.NewFakeS3(t, "store-bucket")
	store, err := filestore.Open(context.Background(), fake.Config("store-bucket"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Stop(context.Background()) })
	return store
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := filestore.New(nil)
	assert.ErrorIs(t, err, fsx.ErrInvalidConfig)

	cfg := fsx.DefaultConfig()
	cfg.Backend = "ftp"
	_, err = filestore.New(cfg)
	assert.ErrorIs(t, err, fsx.ErrInvalidConfig)

	cfg = fsx.DefaultConfig()
	cfg.AccessKey = "only-half"
	_, err = filestore.New(cfg)
	assert.ErrorIs(t, err, fsx.ErrInvalidConfig)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := testutil.NewTestConfig()
	cfg.Backend = "local"
	store, err := filestore.New(cfg, fsx.WithFs(testutil.NewMemFs()))
	require.NoError(t, err)
	assert.Equal(t, fsx.BackendFilesystem, store.Config().Backend)
	assert.IsType(t, &local.Storage{}, store.Backend())
	assert.Equal(t, "fsx.local", store.HealthCheck().Name())

	fake := testutil.NewFakeS3(t, "fsx-bucket")
	store, err = filestore.New(fake.Config("fsx-bucket"))
	require.NoError(t, err)
	assert.IsType(t, &s3.Storage{}, store.Backend())
	assert.Equal(t, "fsx.s3", store.HealthCheck().Name())
}

func TestStore_FilesystemOperations(t *testing.T) {
	store := openLocal(t)
	ctx := context.Background()

	ack, err := store.Mkdir(ctx, "photos/2024")
	require.NoError(t, err)
	assert.Equal(t, "photos/2024/", ack.Key)

	_, err = store.WriteFile(ctx, "photos/cover.jpg", []byte("jpeg"))
	require.NoError(t, err)

	names, err := store.Readdir(ctx, "photos")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024", "cover.jpg"}, names)

	ok, err := store.Exists(ctx, "photos/2024")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.ReadFile(ctx, "/photos/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	w := store.CreateWriteStream(ctx, "photos/raw.bin", nil)
	_, err = io.Copy(w, strings.NewReader("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := store.CreateReadStream(ctx, "photos/raw.bin", &fsx.ReadStreamOptions{Range: &fsx.ByteRange{Start: 2, End: 5}})
	part, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "2345", string(part))

	require.NoError(t, store.Rm(ctx, "photos/cover.jpg"))
	err = store.Rm(ctx, "photos/cover.jpg")
	assert.True(t, fsx.IsNotFound(err))

	require.NoError(t, store.Rmdir(ctx, "photos"))
	ok, err = store.Exists(ctx, "photos")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FilesystemCannotSign(t *testing.T) {
	store := openLocal(t)
	ctx := context.Background()

	_, err := store.GetSignedURL(ctx, "a.txt", nil)
	assert.True(t, fsx.IsUnsupported(err))

	_, err = store.GetSignedPutURL(ctx, "a.txt", nil)
	assert.True(t, fsx.IsUnsupported(err))

	var serr *fsx.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "sign_put", serr.Op)
}

func TestStore_ObjectStoreOperations(t *testing.T) {
	store := openS3(t)
	ctx := context.Background()

	_, err := store.WriteFile(ctx, "reports/q1.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)

	names, err := store.Readdir(ctx, "reports")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1.csv"}, names)

	getURL, err := store.GetSignedURL(ctx, "reports/q1.csv", &fsx.SignOptions{Expiry: 2 * time.Minute})
	require.NoError(t, err)
	u, err := url.Parse(getURL)
	require.NoError(t, err)
	assert.Equal(t, "120", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Path, "reports/q1.csv")

	putURL, err := store.GetSignedPutURL(ctx, "reports/q2.csv", &fsx.SignOptions{ContentType: "text/csv"})
	require.NoError(t, err)
	assert.NotEmpty(t, putURL)

	require.NoError(t, store.Rmdir(ctx, "reports"))
	ok, err := store.Exists(ctx, "reports/q1.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.HealthCheck().Check(ctx))
}

func TestStore_ObjectStoreNotConfigured(t *testing.T) {
	cfg := fsx.DefaultConfig()
	cfg.Backend = fsx.BackendS3
	cfg.Bucket = "unconfigured"

	store, err := filestore.Open(context.Background(), cfg)
	require.NoError(t, err, "a store without an endpoint still starts")
	defer store.Stop(context.Background())

	_, err = store.WriteFile(context.Background(), "a.txt", []byte("x"))
	assert.ErrorIs(t, err, fsx.ErrNotConfigured)

	_, err = store.GetSignedURL(context.Background(), "a.txt", nil)
	assert.ErrorIs(t, err, fsx.ErrNotConfigured)

	assert.Error(t, store.HealthCheck().Check(context.Background()))
}

func TestStore_StopIsIdempotent(t *testing.T) {
	store := openS3(t)
	ctx := context.Background()

	require.NoError(t, store.Stop(ctx))
	require.NoError(t, store.Stop(ctx))

	store, err := filestore.New(testutil.NewTestConfig(), fsx.WithFs(testutil.NewMemFs()))
	require.NoError(t, err)
	assert.NoError(t, store.Stop(ctx), "stopping a store that never started is a no-op")
}

func TestStore_Instrumentation(t *testing.T) {
	metrics := testutil.NewMockMetrics()
	tracer := testutil.NewMockTracer()
	store := openLocal(t, fsx.WithInstrumenter(fsx.NewInstrumenter(metrics, tracer)))
	ctx := context.Background()

	_, err := store.WriteFile(ctx, "notes/a.txt", []byte("hello"))
	require.NoError(t, err)
	_, err = store.ReadFile(ctx, "notes/missing.txt")
	require.Error(t, err)
	_, err = store.Readdir(ctx, "notes")
	require.NoError(t, err)
	_, err = store.GetSignedURL(ctx, "notes/a.txt", nil)
	require.Error(t, err)

	spans := tracer.Spans()
	require.Len(t, spans, 3, "unsupported signing does not start a span")
	assert.Equal(t, "storage.write_file", spans[0].Name)
	assert.Equal(t, "notes/a.txt", spans[0].Tags["storage.path"])
	assert.Equal(t, "storage.read_file", spans[1].Name)
	assert.True(t, fsx.IsNotFound(spans[1].Err))
	assert.Equal(t, "storage.readdir", spans[2].Name)

	assert.Equal(t, float64(1), metrics.CounterValue("storage_operations_total:write_file,success"))
	assert.Equal(t, float64(1), metrics.CounterValue("storage_operations_total:read_file,error"))
	assert.Equal(t, []float64{1}, metrics.Observations("storage_list_items:"))

	w := store.CreateWriteStream(ctx, "notes/b.txt", nil)
	_, err = w.Write([]byte("12345"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, []float64{5}, metrics.Observations("storage_operation_bytes:write_stream"))
}

func TestStore_DurationsUseClock(t *testing.T) {
	metrics := testutil.NewMockMetrics()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	store := openLocal(t, fsx.WithInstrumenter(fsx.NewInstrumenter(metrics, nil)), fsx.WithClock(clock))

	_, err := store.Mkdir(context.Background(), "timed")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25}, metrics.Observations("storage_operation_duration_seconds:mkdir"))
}
