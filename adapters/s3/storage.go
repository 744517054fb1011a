// Package s3 implements fsx.Storage and fsx.Signer on an S3-compatible object
// store. Directories are emulated with zero-length marker objects and
// delimiter listings.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gostratum/core/logx"

	"github.com/gostratum/fsx"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects request
const maxDeleteBatch = 1000

// Storage implements fsx.Storage using an S3-compatible object store
type Storage struct {
	cfg        *fsx.Config
	keys       *fsx.KeyMapper
	logger     logx.Logger
	inst       *fsx.Instrumenter
	httpClient *http.Client

	mu     sync.RWMutex
	client *ClientManager
}

var (
	_ fsx.Storage = (*Storage)(nil)
	_ fsx.Signer  = (*Storage)(nil)
)

// New creates an object store backend. The client handle is built by Start.
func New(cfg *fsx.Config, opts ...fsx.Option) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", fsx.ErrInvalidConfig)
	}
	cfg = cfg.Normalize()
	options := fsx.NewOptions(opts...)

	return &Storage{
		cfg:        cfg,
		keys:       fsx.NewKeyMapper(cfg.BasePrefix),
		logger:     options.GetLogger(),
		inst:       options.GetInstrumenter(),
		httpClient: options.GetHTTPClient(),
	}, nil
}

// Start builds the client handle when endpoint, region and credentials are
// present. Without them the storage stays usable but every operation fails
// with fsx.ErrNotConfigured.
func (s *Storage) Start(ctx context.Context) error {
	if !s.cfg.ClientReady() {
		s.logger.Warn("Object store client not configured; operations will fail",
			logx.Any("endpoint_set", s.cfg.Endpoint != ""),
			logx.Any("region_set", s.cfg.Region != ""),
			logx.Any("credentials_set", s.cfg.HasCredentials()),
		)
		return nil
	}

	cm, err := NewClientManager(ctx, ClientConfig{
		Config:     s.cfg,
		Logger:     s.logger,
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.client
	s.client = cm
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Stop releases the client handle. Calling it more than once is harmless.
func (s *Storage) Stop(ctx context.Context) error {
	s.mu.Lock()
	cm := s.client
	s.client = nil
	s.mu.Unlock()

	if cm == nil {
		return nil
	}
	s.logger.Info("Object store client released")
	return cm.Close()
}

// Client returns the live client handle, or nil before Start and after Stop
func (s *Storage) Client() *ClientManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// prepare resolves the client handle and target bucket for a call
func (s *Storage) prepare(op, p string, opts []fsx.CallOption) (*ClientManager, string, error) {
	cm := s.Client()
	if cm == nil {
		return nil, "", &fsx.StorageError{Op: op, Path: p, Err: fsx.ErrNotConfigured}
	}
	co := fsx.ResolveCallOptions(s.cfg.Bucket, opts...)
	if co.Bucket == "" {
		return nil, "", &fsx.StorageError{Op: op, Path: p, Err: fmt.Errorf("%w: no bucket configured", fsx.ErrInvalidConfig)}
	}
	return cm, co.Bucket, nil
}

// Mkdir writes a zero-length marker object at the directory key
func (s *Storage) Mkdir(ctx context.Context, p string, opts ...fsx.CallOption) (fsx.Ack, error) {
	cm, bucket, err := s.prepare("mkdir", p, opts)
	if err != nil {
		return fsx.Ack{}, err
	}
	rel := fsx.DirKey(p)
	if rel == "" {
		return fsx.Ack{}, nil
	}

	out, err := cm.GetS3Client().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(s.keys.DirKey(p)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return fsx.Ack{}, MapS3Error(err, "mkdir", p)
	}

	s.logger.Debug("Directory marker written", logx.Any("bucket", bucket), logx.Any("key", rel))
	return fsx.Ack{Key: rel, ETag: trimETag(out.ETag)}, nil
}

// Readdir lists the immediate children of a directory, paging with markers.
// A failed page ends the listing and the entries gathered so far are returned.
func (s *Storage) Readdir(ctx context.Context, p string, opts ...fsx.CallOption) ([]string, error) {
	cm, bucket, err := s.prepare("readdir", p, opts)
	if err != nil {
		return nil, err
	}
	prefix := s.keys.DirKey(p)

	seen := make(map[string]struct{})
	add := func(key string) {
		if name := fsx.ChildName(prefix, key); name != "" {
			seen[name] = struct{}{}
		}
	}

	var (
		marker  *string
		partial bool
		pages   int
	)
	for {
		input := &s3.ListObjectsInput{
			Bucket:    aws.String(bucket),
			Delimiter: aws.String(fsx.Delimiter),
			Marker:    marker,
			MaxKeys:   aws.Int32(int32(s.cfg.ListPageSize)),
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		out, err := cm.GetS3Client().ListObjects(ctx, input)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, MapS3Error(ctxErr, "readdir", p)
			}
			s.logger.Warn("Listing page failed; returning partial results",
				logx.Any("bucket", bucket),
				logx.Any("prefix", prefix),
				logx.Any("pages", pages),
				logx.Any("error", err),
			)
			partial = true
			break
		}
		pages++

		var last string
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			add(key)
			last = max(last, key)
		}
		for _, cp := range out.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			add(key)
			last = max(last, key)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		next := aws.ToString(out.NextMarker)
		if next == "" {
			next = last
		}
		if next == "" || (marker != nil && next <= *marker) {
			s.logger.Warn("Listing marker did not advance; stopping", logx.Any("prefix", prefix), logx.Any("marker", next))
			break
		}
		marker = aws.String(next)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)

	s.inst.RecordListOperation(len(names), partial)
	s.logger.Debug("Directory listed", logx.Any("prefix", prefix), logx.Any("entries", len(names)), logx.Any("pages", pages))
	return names, nil
}

// Rmdir deletes every object under the directory key, deepest keys first
func (s *Storage) Rmdir(ctx context.Context, p string, opts ...fsx.CallOption) error {
	cm, bucket, err := s.prepare("rmdir", p, opts)
	if err != nil {
		return err
	}
	prefix := s.keys.DirKey(p)
	client := cm.GetS3Client()

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(client, input, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = int32(s.cfg.ListPageSize)
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return MapS3Error(err, "rmdir", p)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	slices.Sort(keys)
	slices.Reverse(keys)

	var failures []error
	for start := 0; start < len(keys); start += maxDeleteBatch {
		chunk := keys[start:min(start+maxDeleteBatch, len(keys))]
		ids := make([]types.ObjectIdentifier, len(chunk))
		for i, key := range chunk {
			ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			s.inst.RecordBatchOperation("rmdir", len(keys), len(keys)-start)
			return MapS3Error(err, "rmdir", p)
		}
		for _, e := range out.Errors {
			failures = append(failures, fmt.Errorf("%s: %s %s", aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
	}

	s.inst.RecordBatchOperation("rmdir", len(keys), len(failures))
	if len(failures) > 0 {
		s.logger.Warn("Some objects could not be deleted", logx.Any("prefix", prefix), logx.Any("failed", len(failures)))
		return &fsx.StorageError{
			Op:   "rmdir",
			Path: p,
			Err:  fmt.Errorf("%d of %d objects not deleted: %w", len(failures), len(keys), errors.Join(failures...)),
		}
	}

	s.logger.Debug("Directory removed", logx.Any("prefix", prefix), logx.Any("objects", len(keys)))
	return nil
}

// Exists probes the file key, then the directory marker
func (s *Storage) Exists(ctx context.Context, p string, opts ...fsx.CallOption) (bool, error) {
	cm, bucket, err := s.prepare("exists", p, opts)
	if err != nil {
		return false, err
	}
	if fsx.FileKey(p) == "" {
		return true, nil
	}

	for _, key := range []string{s.keys.FileKey(p), s.keys.DirKey(p)} {
		_, err := cm.GetS3Client().HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return true, nil
		}
		if !isNotFound(err) {
			return false, MapS3Error(err, "exists", p)
		}
	}
	return false, nil
}

// ReadFile reads the whole object. With a CDN endpoint the object is fetched
// through a short-lived signed URL on the CDN host.
func (s *Storage) ReadFile(ctx context.Context, p string, opts ...fsx.CallOption) ([]byte, error) {
	cm, bucket, err := s.prepare("read_file", p, opts)
	if err != nil {
		return nil, err
	}
	if fsx.FileKey(p) == "" {
		return nil, &fsx.StorageError{Op: "read_file", Path: p, Err: fsx.ErrInvalidKey}
	}
	key := s.keys.FileKey(p)

	var data []byte
	if s.cfg.CDNEndpoint != "" {
		data, err = s.readViaCDN(ctx, cm, bucket, key)
		if err != nil {
			return nil, MapS3Error(err, "read_file", p)
		}
	} else {
		out, err := cm.GetS3Client().GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, MapS3Error(err, "read_file", p)
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return nil, MapS3Error(err, "read_file", p)
		}
	}

	s.inst.RecordOperationSize("read_file", int64(len(data)))
	return data, nil
}

// WriteFile uploads data with a single PutObject
func (s *Storage) WriteFile(ctx context.Context, p string, data []byte, opts ...fsx.CallOption) (fsx.Ack, error) {
	cm, bucket, err := s.prepare("write_file", p, opts)
	if err != nil {
		return fsx.Ack{}, err
	}
	rel := fsx.FileKey(p)
	if rel == "" {
		return fsx.Ack{}, &fsx.StorageError{Op: "write_file", Path: p, Err: fsx.ErrInvalidKey}
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(s.keys.FileKey(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct := contentTypeFor(rel, ""); ct != "" {
		input.ContentType = aws.String(ct)
	}

	out, err := cm.GetS3Client().PutObject(ctx, input)
	if err != nil {
		return fsx.Ack{}, MapS3Error(err, "write_file", p)
	}

	s.inst.RecordOperationSize("write_file", int64(len(data)))
	s.logger.Debug("Object written", logx.Any("bucket", bucket), logx.Any("key", rel), logx.Any("size", len(data)))
	return fsx.Ack{Key: rel, ETag: trimETag(out.ETag)}, nil
}

// Rm deletes a single object. Deleting an absent key succeeds.
func (s *Storage) Rm(ctx context.Context, p string, opts ...fsx.CallOption) error {
	cm, bucket, err := s.prepare("rm", p, opts)
	if err != nil {
		return err
	}
	if fsx.FileKey(p) == "" {
		return &fsx.StorageError{Op: "rm", Path: p, Err: fsx.ErrInvalidKey}
	}

	_, err = cm.GetS3Client().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s.keys.FileKey(p)),
	})
	if err != nil {
		return MapS3Error(err, "rm", p)
	}
	return nil
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}

// contentTypeFor prefers an explicit type and falls back to the extension
func contentTypeFor(key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return mime.TypeByExtension(path.Ext(key))
}
