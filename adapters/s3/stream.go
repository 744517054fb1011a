package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/gostratum/core/logx"
	"golang.org/x/sync/errgroup"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/internal/stream"
)

const (
	// maxParts is the S3 limit on parts per multipart upload
	maxParts = 10000

	abortTimeout = 30 * time.Second
)

var errStreamClosed = errors.New("write stream closed")

// CreateReadStream returns a pipe fed by a background ranged GetObject.
// Closing the reader cancels the transfer.
func (s *Storage) CreateReadStream(ctx context.Context, p string, ro *fsx.ReadStreamOptions, opts ...fsx.CallOption) io.ReadCloser {
	if fsx.FileKey(p) == "" {
		return stream.ErrReader(&fsx.StorageError{Op: "read_stream", Path: p, Err: fsx.ErrInvalidKey})
	}
	var rng *fsx.ByteRange
	if ro != nil {
		rng = ro.Range
	}
	if err := rng.Validate(); err != nil {
		return stream.ErrReader(&fsx.StorageError{Op: "read_stream", Path: p, Err: err})
	}
	cm, bucket, err := s.prepare("read_stream", p, opts)
	if err != nil {
		return stream.ErrReader(err)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s.keys.FileKey(p)),
	}
	if rng != nil {
		input.Range = aws.String(rng.Header())
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	go func() {
		defer cancel()

		out, err := cm.GetS3Client().GetObject(ctx, input)
		if err != nil {
			pw.CloseWithError(MapS3Error(err, "read_stream", p))
			return
		}
		defer out.Body.Close()

		n, err := io.Copy(pw, out.Body)
		if err != nil {
			pw.CloseWithError(MapS3Error(err, "read_stream", p))
			return
		}
		s.inst.RecordOperationSize("read_stream", n)
		pw.Close()
	}()

	return &readStream{PipeReader: pr, cancel: cancel}
}

type readStream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (r *readStream) Close() error {
	r.cancel()
	return r.PipeReader.Close()
}

// CreateWriteStream returns a pipe drained by a background uploader.
// Payloads that fit in one part are stored with a single PutObject, larger
// ones with a multipart upload of parallel parts.
func (s *Storage) CreateWriteStream(ctx context.Context, p string, wo *fsx.WriteStreamOptions, opts ...fsx.CallOption) fsx.WriteStream {
	if fsx.FileKey(p) == "" {
		return stream.Failed(&fsx.StorageError{Op: "write_stream", Path: p, Err: fsx.ErrInvalidKey})
	}
	if wo == nil {
		wo = &fsx.WriteStreamOptions{}
	}
	partSize, err := s.cfg.PartSize(wo.PartSize)
	if err != nil {
		return stream.Failed(&fsx.StorageError{Op: "write_stream", Path: p, Err: err})
	}
	cm, bucket, err := s.prepare("write_stream", p, opts)
	if err != nil {
		return stream.Failed(err)
	}

	concurrency := wo.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.DefaultParallel
	}

	pr, pw := io.Pipe()
	w := &writeStream{pw: pw, res: stream.NewResult()}
	u := &uploader{
		ctx:         ctx,
		storage:     s,
		client:      cm.GetS3Client(),
		bucket:      bucket,
		path:        p,
		key:         s.keys.FileKey(p),
		contentType: contentTypeFor(fsx.FileKey(p), wo.ContentType),
		partSize:    partSize,
		concurrency: concurrency,
		src:         pr,
		res:         w.res,
		id:          uuid.NewString(),
	}
	go u.run()
	return w
}

type writeStream struct {
	pw  *io.PipeWriter
	res *stream.Result

	mu       sync.Mutex
	closed   bool
	abortErr error
}

func (w *writeStream) Write(p []byte) (int, error) {
	w.mu.Lock()
	closed, abortErr := w.closed, w.abortErr
	w.mu.Unlock()

	if closed {
		if abortErr != nil {
			return 0, abortErr
		}
		return 0, errStreamClosed
	}
	return w.pw.Write(p)
}

// Close signals end of data and blocks until the upload is committed
func (w *writeStream) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		_ = w.pw.Close()
	}
	w.mu.Unlock()
	return w.res.Wait()
}

func (w *writeStream) CloseWithError(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		w.abortErr = fsx.Aborted(err)
		_ = w.pw.CloseWithError(w.abortErr)
	}
	return nil
}

func (w *writeStream) Done() <-chan struct{} {
	return w.res.Done()
}

func (w *writeStream) Err() error {
	return w.res.Err()
}

// uploader drains a write stream pipe into the object store
type uploader struct {
	ctx         context.Context
	storage     *Storage
	client      *s3.Client
	bucket      string
	path        string
	key         string
	contentType string
	partSize    int64
	concurrency int
	src         *io.PipeReader
	res         *stream.Result
	id          string

	written int64
}

func (u *uploader) run() {
	stop := context.AfterFunc(u.ctx, func() {
		u.src.CloseWithError(u.ctx.Err())
	})
	defer stop()

	logger := u.storage.logger
	err := u.upload()
	if err != nil {
		if ctxErr := u.ctx.Err(); ctxErr != nil && errors.Is(err, io.ErrClosedPipe) {
			err = ctxErr
		}
		u.src.CloseWithError(err)
		logger.Warn("Write stream failed",
			logx.Any("stream_id", u.id),
			logx.Any("key", u.key),
			logx.Any("error", err),
		)
		u.res.Finish(MapS3Error(err, "write_stream", u.path))
		return
	}

	u.src.Close()
	u.storage.inst.RecordOperationSize("write_stream", u.written)
	logger.Debug("Write stream committed",
		logx.Any("stream_id", u.id),
		logx.Any("key", u.key),
		logx.Any("size", u.written),
	)
	u.res.Finish(nil)
}

func (u *uploader) upload() error {
	first, err := u.readChunk()
	if err != nil {
		return err
	}
	if int64(len(first)) < u.partSize {
		return u.putSingle(first)
	}

	second, err := u.readChunk()
	if err != nil {
		return err
	}
	if len(second) == 0 {
		return u.putSingle(first)
	}
	return u.multipart(first, second)
}

// readChunk reads up to one part; a short chunk means the source is drained
func (u *uploader) readChunk() ([]byte, error) {
	buf := make([]byte, u.partSize)
	n, err := io.ReadFull(u.src, buf)
	u.written += int64(n)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n], nil
	default:
		return nil, err
	}
}

func (u *uploader) putSingle(data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if u.contentType != "" {
		input.ContentType = aws.String(u.contentType)
	}
	_, err := u.client.PutObject(u.ctx, input)
	return err
}

func (u *uploader) multipart(first, second []byte) error {
	logger := u.storage.logger

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key),
	}
	if u.contentType != "" {
		input.ContentType = aws.String(u.contentType)
	}
	created, err := u.client.CreateMultipartUpload(u.ctx, input)
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	logger.Info("Multipart upload started",
		logx.Any("stream_id", u.id),
		logx.Any("key", u.key),
		logx.Any("upload_id", uploadID),
		logx.Any("part_size", u.partSize),
		logx.Any("concurrency", u.concurrency),
	)

	var (
		mu    sync.Mutex
		parts []types.CompletedPart
	)
	g, gctx := errgroup.WithContext(u.ctx)
	g.SetLimit(u.concurrency)

	submit := func(num int32, data []byte) {
		g.Go(func() error {
			out, err := u.client.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:        aws.String(u.bucket),
				Key:           aws.String(u.key),
				UploadId:      aws.String(uploadID),
				PartNumber:    aws.Int32(num),
				Body:          bytes.NewReader(data),
				ContentLength: aws.Int64(int64(len(data))),
			})
			if err != nil {
				return fmt.Errorf("upload part %d: %w", num, err)
			}
			mu.Lock()
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(num)})
			mu.Unlock()
			return nil
		})
	}

	submit(1, first)
	submit(2, second)

	var readErr error
	for num := int32(3); gctx.Err() == nil; num++ {
		chunk, err := u.readChunk()
		if err != nil {
			readErr = err
			break
		}
		if len(chunk) == 0 {
			break
		}
		if num > maxParts {
			readErr = fmt.Errorf("%w: more than %d parts of %d bytes", fsx.ErrTooLarge, maxParts, u.partSize)
			break
		}
		submit(num, chunk)
		if int64(len(chunk)) < u.partSize {
			break
		}
	}

	err = g.Wait()
	if readErr != nil {
		err = readErr
	}
	if err == nil {
		err = u.ctx.Err()
	}
	if err != nil {
		u.abort(uploadID)
		return err
	}

	slices.SortFunc(parts, func(a, b types.CompletedPart) int {
		return int(aws.ToInt32(a.PartNumber) - aws.ToInt32(b.PartNumber))
	})

	_, err = u.client.CompleteMultipartUpload(u.ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		u.abort(uploadID)
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	u.storage.inst.RecordMultipartOperation("write_stream", len(parts))
	logger.Info("Multipart upload completed",
		logx.Any("stream_id", u.id),
		logx.Any("key", u.key),
		logx.Any("parts", len(parts)),
	)
	return nil
}

// abort discards uploaded parts; it outlives a cancelled stream context
func (u *uploader) abort(uploadID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(u.ctx), abortTimeout)
	defer cancel()

	_, err := u.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		u.storage.logger.Warn("Failed to abort multipart upload",
			logx.Any("stream_id", u.id),
			logx.Any("key", u.key),
			logx.Any("upload_id", uploadID),
			logx.Any("error", err),
		)
		return
	}
	u.storage.inst.RecordMultipartOperation("abort", 0)
}
