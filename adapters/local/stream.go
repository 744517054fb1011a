package local

import (
	"bufio"
	"context"
	"errors"
	"os"
	"sync"

	"github.com/gostratum/core/logx"
	"github.com/spf13/afero"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/internal/stream"
)

var errStreamClosed = errors.New("write stream closed")

type writeStream struct {
	ctx     context.Context
	storage *Storage
	key     string
	file    afero.File
	buf     *bufio.Writer
	mode    os.FileMode
	res     *stream.Result

	mu      sync.Mutex
	closed  bool
	written int64
}

func newWriteStream(ctx context.Context, s *Storage, key string, f afero.File, bufSize int, mode os.FileMode) *writeStream {
	return &writeStream{
		ctx:     ctx,
		storage: s,
		key:     key,
		file:    f,
		buf:     bufio.NewWriterSize(f, bufSize),
		mode:    mode,
		res:     stream.NewResult(),
	}
}

func (w *writeStream) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		if err := w.res.Err(); err != nil {
			return 0, err
		}
		return 0, errStreamClosed
	}
	if err := w.ctx.Err(); err != nil {
		w.abortLocked(err)
		return 0, w.res.Err()
	}

	n, err := w.buf.Write(p)
	w.written += int64(n)
	if err != nil {
		w.abortLocked(err)
		return n, w.res.Err()
	}
	return n, nil
}

// Close flushes the buffer and moves the temporary file into place
func (w *writeStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.res.Wait()
	}
	w.closed = true

	tmp := w.file.Name()
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = w.storage.fs.Chmod(tmp, w.mode)
	}
	if err == nil {
		err = w.storage.fs.Rename(tmp, name(w.key))
	}
	if err != nil {
		_ = w.storage.fs.Remove(tmp)
		w.res.Finish(wrapErr("write_stream", w.key, err))
		return w.res.Err()
	}

	w.storage.inst.RecordOperationSize("write_stream", w.written)
	w.storage.logger.Debug("Write stream committed", logx.Any("path", w.key), logx.Any("size", w.written))
	w.res.Finish(nil)
	return nil
}

func (w *writeStream) CloseWithError(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.abortLocked(err)
	}
	return nil
}

func (w *writeStream) abortLocked(cause error) {
	w.closed = true
	tmp := w.file.Name()
	_ = w.file.Close()
	if err := w.storage.fs.Remove(tmp); err != nil {
		w.storage.logger.Warn("Failed to remove aborted temporary file", logx.Any("path", tmp), logx.Any("error", err))
	}
	w.res.Finish(&fsx.StorageError{Op: "write_stream", Path: w.key, Err: fsx.Aborted(cause)})
}

func (w *writeStream) Done() <-chan struct{} {
	return w.res.Done()
}

func (w *writeStream) Err() error {
	return w.res.Err()
}
