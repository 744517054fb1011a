// Package stream holds the completion state shared by the background-fed
// read and write streams of the storage backends.
package stream

import (
	"io"
	"sync"

	"github.com/gostratum/fsx"
)

// Result is a one-shot completion signal carrying a terminal error
type Result struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewResult creates a pending Result
func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Finish records err and releases waiters. Only the first call has effect.
func (r *Result) Finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once Finish has been called
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the terminal error, or nil while the result is pending
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until Finish and returns the terminal error
func (r *Result) Wait() error {
	<-r.done
	return r.err
}

// ErrReader returns a ReadCloser whose reads fail with err
func ErrReader(err error) io.ReadCloser {
	return io.NopCloser(errReader{err: err})
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// Failed returns a WriteStream that was never opened: every call reports err
func Failed(err error) fsx.WriteStream {
	res := NewResult()
	res.Finish(err)
	return &failedWriter{res: res}
}

type failedWriter struct {
	res *Result
}

func (w *failedWriter) Write([]byte) (int, error)  { return 0, w.res.err }
func (w *failedWriter) Close() error               { return w.res.err }
func (w *failedWriter) CloseWithError(error) error { return nil }
func (w *failedWriter) Done() <-chan struct{}      { return w.res.Done() }
func (w *failedWriter) Err() error                 { return w.res.err }
