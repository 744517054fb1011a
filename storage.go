package fsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Domain Errors - use errors.Is for checking
var (
	// ErrNotFound indicates the requested file, directory or object was not found
	ErrNotFound = errors.New("fsx: not found")

	// ErrNotConfigured indicates the object-store backend was selected but no client
	// handle exists (missing credentials, endpoint or region, or storage not started)
	ErrNotConfigured = errors.New("fsx: object store client not configured")

	// ErrUnsupported indicates the operation is not available on the active backend
	ErrUnsupported = errors.New("fsx: unsupported operation")

	// ErrConflict indicates a conflicting entry already exists at the path
	ErrConflict = errors.New("fsx: conflict")

	// ErrInvalidConfig indicates the storage configuration is invalid
	ErrInvalidConfig = errors.New("fsx: invalid configuration")

	// ErrInvalidKey indicates the path cannot be mapped to a key
	ErrInvalidKey = errors.New("fsx: invalid path")

	// ErrAborted indicates the operation was aborted (e.g., write stream cancelled)
	ErrAborted = errors.New("fsx: operation aborted")

	// ErrTimeout indicates the operation timed out
	ErrTimeout = errors.New("fsx: operation timeout")

	// ErrTooLarge indicates the payload is too large for the operation
	ErrTooLarge = errors.New("fsx: payload too large")

	// ErrInvalidRange indicates a byte range that cannot be satisfied
	ErrInvalidRange = errors.New("fsx: invalid byte range")
)

// StorageError wraps underlying errors with additional context
type StorageError struct {
	Op   string // operation that failed
	Path string // caller path or object key (if applicable)
	Err  error  // underlying error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("fsx %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("fsx %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error is or wraps ErrNotFound (or os.ErrNotExist)
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// Aborted builds the terminal error of a stream aborted with cause
func Aborted(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// IsUnsupported checks if an error is or wraps ErrUnsupported
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// Ack acknowledges a completed write
type Ack struct {
	// Key is the normalized key (or relative path) that was written
	Key string

	// ETag is the entity tag reported by the object store (empty on the filesystem)
	ETag string
}

// ByteRange selects an inclusive range of bytes
type ByteRange struct {
	// Start is the offset of the first byte
	Start int64

	// End is the offset of the last byte, inclusive. Negative means end of file.
	End int64
}

// Validate checks that the range is satisfiable in shape
func (r *ByteRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Start < 0 || (r.End >= 0 && r.End < r.Start) {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Header renders the range as an HTTP Range header value
func (r *ByteRange) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ReadStreamOptions configures CreateReadStream
type ReadStreamOptions struct {
	// Range restricts the stream to a byte range; nil streams the whole file
	Range *ByteRange
}

// WriteStreamOptions configures CreateWriteStream
type WriteStreamOptions struct {
	// BufferSize is the filesystem write buffer size in bytes (default: 64KB)
	BufferSize int

	// Mode is the permission of a newly created file (default: 0644)
	Mode os.FileMode

	// PartSize is the multipart part size for the object store (default: config)
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel (default: config)
	Concurrency int

	// ContentType sets the object's Content-Type
	ContentType string
}

// SignOptions configures signed URL generation
type SignOptions struct {
	// Expiry is how long the URL remains valid (default: Config.SignedURLExpiry)
	Expiry time.Duration

	// ContentDisposition is embedded in GET signatures as response-content-disposition
	ContentDisposition string

	// ContentType is embedded in PUT signatures
	ContentType string
}

// CallOptions carries per-call overrides
type CallOptions struct {
	Bucket string
}

// CallOption overrides behavior for a single call
type CallOption func(*CallOptions)

// InBucket targets a bucket other than the configured default.
// The filesystem backend ignores it.
func InBucket(bucket string) CallOption {
	return func(o *CallOptions) {
		o.Bucket = bucket
	}
}

// ResolveCallOptions applies call options over the given default bucket
func ResolveCallOptions(defaultBucket string, opts ...CallOption) CallOptions {
	co := CallOptions{Bucket: defaultBucket}
	for _, opt := range opts {
		opt(&co)
	}
	if co.Bucket == "" {
		co.Bucket = defaultBucket
	}
	return co
}

// WriteStream is a sink whose content is committed to storage in the background.
//
// Write errors report a failed background transfer. Close flushes remaining data
// and blocks until the content is committed, returning the terminal error.
type WriteStream interface {
	io.Writer

	// Close finishes the stream and waits for the backend to commit it
	Close() error

	// CloseWithError aborts the stream; nothing is committed and Err reports
	// ErrAborted joined with err. It always returns nil, like io.PipeWriter.
	CloseWithError(err error) error

	// Done is closed once the backend has committed or aborted the stream
	Done() <-chan struct{}

	// Err returns the terminal error once Done is closed
	Err() error
}

// Storage is the backend-agnostic set of file operations
type Storage interface {
	// Mkdir creates a directory and any missing parents
	Mkdir(ctx context.Context, path string, opts ...CallOption) (Ack, error)

	// Readdir lists the names of the immediate children of a directory, sorted
	Readdir(ctx context.Context, path string, opts ...CallOption) ([]string, error)

	// Rmdir removes a directory and everything beneath it
	Rmdir(ctx context.Context, path string, opts ...CallOption) error

	// Exists reports whether a file or directory exists at path
	Exists(ctx context.Context, path string, opts ...CallOption) (bool, error)

	// ReadFile reads the whole file into memory
	ReadFile(ctx context.Context, path string, opts ...CallOption) ([]byte, error)

	// WriteFile writes data to path, replacing any existing file
	WriteFile(ctx context.Context, path string, data []byte, opts ...CallOption) (Ack, error)

	// Rm removes a single file
	Rm(ctx context.Context, path string, opts ...CallOption) error

	// CreateReadStream opens a stream over the file; failures surface from Read
	CreateReadStream(ctx context.Context, path string, ro *ReadStreamOptions, opts ...CallOption) io.ReadCloser

	// CreateWriteStream opens a stream into the file; failures surface from Write and Close
	CreateWriteStream(ctx context.Context, path string, wo *WriteStreamOptions, opts ...CallOption) WriteStream
}

// Signer is implemented by backends able to issue time-limited signed URLs
type Signer interface {
	// SignGet returns a signed URL for downloading path
	SignGet(ctx context.Context, path string, so *SignOptions, opts ...CallOption) (string, error)

	// SignPut returns a signed URL for uploading to path
	SignPut(ctx context.Context, path string, so *SignOptions, opts ...CallOption) (string, error)
}
