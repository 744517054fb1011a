package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/spf13/afero"

	"github.com/gostratum/fsx"
)

// FakeS3 is an in-memory S3 server for tests
type FakeS3 struct {
	Server  *httptest.Server
	Backend *s3mem.Backend
}

// NewFakeS3 starts an in-memory S3 server with the given buckets created.
// The server is shut down when the test ends.
func NewFakeS3(t testing.TB, buckets ...string) *FakeS3 {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend, gofakes3.WithTimeSkewLimit(0))
	srv := httptest.NewServer(faker.Server())
	t.Cleanup(srv.Close)

	for _, b := range buckets {
		if err := backend.CreateBucket(b); err != nil {
			t.Fatalf("create bucket %q: %v", b, err)
		}
	}
	return &FakeS3{Server: srv, Backend: backend}
}

// URL returns the server base URL
func (f *FakeS3) URL() string {
	return f.Server.URL
}

// Config returns an s3 configuration pointed at the fake server
func (f *FakeS3) Config(bucket string) *fsx.Config {
	cfg := fsx.DefaultConfig()
	cfg.Backend = fsx.BackendS3
	cfg.Bucket = bucket
	cfg.Endpoint = f.Server.URL
	cfg.UsePathStyle = true
	cfg.AccessKey = "test-access"
	cfg.SecretKey = "test-secret"
	cfg.MaxRetries = 1
	return cfg
}

// NewMemFs returns an empty in-memory filesystem
func NewMemFs() afero.Fs {
	return afero.NewMemMapFs()
}

// RecordedRequest is a request observed by RequestRecorder
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
}

// RequestRecorder is an http.RoundTripper that records every request it forwards
type RequestRecorder struct {
	next http.RoundTripper

	mu       sync.Mutex
	requests []RecordedRequest
	fail     func(RecordedRequest) bool
}

// NewRequestRecorder wraps the default transport
func NewRequestRecorder() *RequestRecorder {
	return &RequestRecorder{next: http.DefaultTransport}
}

// Client returns an HTTP client sending through the recorder
func (r *RequestRecorder) Client() *http.Client {
	return &http.Client{Transport: r}
}

// ErrInjected is returned for requests matched by FailWhen
var ErrInjected = errors.New("testutil: injected transport failure")

func (r *RequestRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	recorded := RecordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
	}

	r.mu.Lock()
	r.requests = append(r.requests, recorded)
	fail := r.fail
	r.mu.Unlock()

	if fail != nil && fail(recorded) {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, ErrInjected
	}
	return r.next.RoundTrip(req)
}

// FailWhen makes matching requests fail at the transport; nil clears it
func (r *RequestRecorder) FailWhen(match func(RecordedRequest) bool) {
	r.mu.Lock()
	r.fail = match
	r.mu.Unlock()
}

// Count returns how many recorded requests match
func (r *RequestRecorder) Count(match func(RecordedRequest) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, req := range r.requests {
		if match(req) {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests
func (r *RequestRecorder) Reset() {
	r.mu.Lock()
	r.requests = nil
	r.mu.Unlock()
}

// IsUploadPart matches multipart part uploads
func IsUploadPart(req RecordedRequest) bool {
	return req.Method == http.MethodPut && req.Query.Has("partNumber")
}

// IsAbortMultipart matches multipart upload aborts
func IsAbortMultipart(req RecordedRequest) bool {
	return req.Method == http.MethodDelete && req.Query.Has("uploadId")
}

// IsUploadPartNumber matches the upload of one part
func IsUploadPartNumber(n int) func(RecordedRequest) bool {
	return func(req RecordedRequest) bool {
		return IsUploadPart(req) && req.Query.Get("partNumber") == strconv.Itoa(n)
	}
}

// IsListAfterMarker matches listing pages past the first
func IsListAfterMarker(req RecordedRequest) bool {
	return req.Method == http.MethodGet && req.Query.Get("marker") != ""
}
