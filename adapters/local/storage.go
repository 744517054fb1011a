// Package local implements fsx.Storage on a filesystem rooted at the
// configured base prefix.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/gostratum/core/logx"
	"github.com/spf13/afero"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/internal/stream"
)

const (
	dirPerm  os.FileMode = 0o750
	filePerm os.FileMode = 0o644

	defaultBufferSize = 64 << 10
)

// Storage implements fsx.Storage on an afero filesystem
type Storage struct {
	fs     afero.Fs
	root   string
	logger logx.Logger
	inst   *fsx.Instrumenter
}

var _ fsx.Storage = (*Storage)(nil)

// New creates a filesystem storage rooted at cfg.BasePrefix.
// Without fsx.WithFs the host filesystem is used and a relative prefix is
// resolved against the working directory. No I/O happens until Start.
func New(cfg *fsx.Config, opts ...fsx.Option) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", fsx.ErrInvalidConfig)
	}
	options := fsx.NewOptions(opts...)

	base := options.GetFs()
	root := cfg.BasePrefix
	if base == nil {
		base = afero.NewOsFs()
		if root == "" {
			root = "."
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve base path %q: %w", root, err)
		}
		root = abs
	} else if root != "" {
		root = filepath.Clean(root)
	}

	fs := base
	if root != "" {
		fs = afero.NewBasePathFs(base, root)
	}

	return &Storage{
		fs:     fs,
		root:   root,
		logger: options.GetLogger(),
		inst:   options.GetInstrumenter(),
	}, nil
}

// Root returns the resolved root directory ("" when operating on a bare custom fs)
func (s *Storage) Root() string {
	return s.root
}

// Start creates the root directory when missing
func (s *Storage) Start(ctx context.Context) error {
	if err := s.fs.MkdirAll(string(filepath.Separator), dirPerm); err != nil {
		return fmt.Errorf("create root directory %q: %w", s.root, err)
	}
	s.logger.Info("Filesystem storage started", logx.Any("root", s.root))
	return nil
}

// Stop releases nothing; the filesystem holds no connections
func (s *Storage) Stop(ctx context.Context) error {
	return nil
}

// name maps a normalized key to a path inside the rooted filesystem
func name(key string) string {
	return filepath.FromSlash("/" + key)
}

// Mkdir creates the directory and all missing parents
func (s *Storage) Mkdir(ctx context.Context, p string, _ ...fsx.CallOption) (fsx.Ack, error) {
	key := fsx.FileKey(p)
	if err := ctx.Err(); err != nil {
		return fsx.Ack{}, wrapErr("mkdir", p, err)
	}
	if err := s.fs.MkdirAll(name(key), dirPerm); err != nil {
		return fsx.Ack{}, wrapErr("mkdir", p, err)
	}
	s.logger.Debug("Directory created", logx.Any("path", key))
	return fsx.Ack{Key: fsx.DirKey(key)}, nil
}

// Readdir lists the names of the immediate children, sorted
func (s *Storage) Readdir(ctx context.Context, p string, _ ...fsx.CallOption) ([]string, error) {
	key := fsx.FileKey(p)
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("readdir", p, err)
	}

	infos, err := afero.ReadDir(s.fs, name(key))
	if err != nil {
		return nil, wrapErr("readdir", p, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	s.inst.RecordListOperation(len(names), false)
	return names, nil
}

// Rmdir removes the directory and everything beneath it.
// Removing the root clears its contents and keeps the root itself.
func (s *Storage) Rmdir(ctx context.Context, p string, _ ...fsx.CallOption) error {
	key := fsx.FileKey(p)
	if err := ctx.Err(); err != nil {
		return wrapErr("rmdir", p, err)
	}

	if key == "" {
		infos, err := afero.ReadDir(s.fs, name(key))
		if err != nil {
			return wrapErr("rmdir", p, err)
		}
		for _, info := range infos {
			if err := s.fs.RemoveAll(name(info.Name())); err != nil {
				return wrapErr("rmdir", p, err)
			}
		}
		return nil
	}

	info, err := s.fs.Stat(name(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrapErr("rmdir", p, err)
	}
	if !info.IsDir() {
		return wrapErr("rmdir", p, fmt.Errorf("%w: not a directory", fsx.ErrConflict))
	}
	if err := s.fs.RemoveAll(name(key)); err != nil {
		return wrapErr("rmdir", p, err)
	}
	s.logger.Debug("Directory removed", logx.Any("path", key))
	return nil
}

// Exists reports whether a file or directory exists at p
func (s *Storage) Exists(ctx context.Context, p string, _ ...fsx.CallOption) (bool, error) {
	key := fsx.FileKey(p)
	if key == "" {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, wrapErr("exists", p, err)
	}
	ok, err := afero.Exists(s.fs, name(key))
	if err != nil {
		return false, wrapErr("exists", p, err)
	}
	return ok, nil
}

// ReadFile reads the whole file into memory
func (s *Storage) ReadFile(ctx context.Context, p string, _ ...fsx.CallOption) ([]byte, error) {
	key := fsx.FileKey(p)
	if key == "" {
		return nil, wrapErr("read_file", p, fsx.ErrInvalidKey)
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("read_file", p, err)
	}
	data, err := afero.ReadFile(s.fs, name(key))
	if err != nil {
		return nil, wrapErr("read_file", p, err)
	}
	return data, nil
}

// WriteFile writes data, replacing any existing file and creating missing parents
func (s *Storage) WriteFile(ctx context.Context, p string, data []byte, _ ...fsx.CallOption) (fsx.Ack, error) {
	key := fsx.FileKey(p)
	if key == "" {
		return fsx.Ack{}, wrapErr("write_file", p, fsx.ErrInvalidKey)
	}
	if err := ctx.Err(); err != nil {
		return fsx.Ack{}, wrapErr("write_file", p, err)
	}
	if err := s.fs.MkdirAll(name(path.Dir(key)), dirPerm); err != nil {
		return fsx.Ack{}, wrapErr("write_file", p, err)
	}
	if err := afero.WriteFile(s.fs, name(key), data, filePerm); err != nil {
		return fsx.Ack{}, wrapErr("write_file", p, err)
	}
	s.logger.Debug("File written", logx.Any("path", key), logx.Any("size", len(data)))
	return fsx.Ack{Key: key}, nil
}

// Rm removes a single file; a missing file is ErrNotFound
func (s *Storage) Rm(ctx context.Context, p string, _ ...fsx.CallOption) error {
	key := fsx.FileKey(p)
	if key == "" {
		return wrapErr("rm", p, fsx.ErrInvalidKey)
	}
	if err := ctx.Err(); err != nil {
		return wrapErr("rm", p, err)
	}
	info, err := s.fs.Stat(name(key))
	if err != nil {
		return wrapErr("rm", p, err)
	}
	if info.IsDir() {
		return wrapErr("rm", p, fmt.Errorf("%w: is a directory", fsx.ErrConflict))
	}
	if err := s.fs.Remove(name(key)); err != nil {
		return wrapErr("rm", p, err)
	}
	return nil
}

// CreateReadStream opens the file, honoring an optional byte range.
// Open failures surface from the first Read.
func (s *Storage) CreateReadStream(ctx context.Context, p string, ro *fsx.ReadStreamOptions, _ ...fsx.CallOption) io.ReadCloser {
	key := fsx.FileKey(p)
	if key == "" {
		return stream.ErrReader(wrapErr("read_stream", p, fsx.ErrInvalidKey))
	}

	var rng *fsx.ByteRange
	if ro != nil {
		rng = ro.Range
	}
	if err := rng.Validate(); err != nil {
		return stream.ErrReader(wrapErr("read_stream", p, err))
	}

	f, err := s.fs.Open(name(key))
	if err != nil {
		return stream.ErrReader(wrapErr("read_stream", p, err))
	}

	var r io.Reader = f
	if rng != nil {
		if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
			_ = f.Close()
			return stream.ErrReader(wrapErr("read_stream", p, err))
		}
		if rng.End >= 0 {
			r = io.LimitReader(f, rng.End-rng.Start+1)
		}
	}

	return &readStream{ctx: ctx, r: r, c: f}
}

// CreateWriteStream writes into a temporary sibling file that replaces the
// destination on Close. Aborted streams leave the destination untouched.
func (s *Storage) CreateWriteStream(ctx context.Context, p string, wo *fsx.WriteStreamOptions, _ ...fsx.CallOption) fsx.WriteStream {
	key := fsx.FileKey(p)
	if key == "" {
		return stream.Failed(wrapErr("write_stream", p, fsx.ErrInvalidKey))
	}

	bufSize, mode := defaultBufferSize, filePerm
	if wo != nil {
		if wo.BufferSize > 0 {
			bufSize = wo.BufferSize
		}
		if wo.Mode != 0 {
			mode = wo.Mode
		}
	}

	dir := path.Dir(key)
	if err := s.fs.MkdirAll(name(dir), dirPerm); err != nil {
		return stream.Failed(wrapErr("write_stream", p, err))
	}
	tmp, err := afero.TempFile(s.fs, name(dir), "."+path.Base(key)+".tmp-")
	if err != nil {
		return stream.Failed(wrapErr("write_stream", p, err))
	}

	return newWriteStream(ctx, s, key, tmp, bufSize, mode)
}

type readStream struct {
	ctx context.Context
	r   io.Reader
	c   io.Closer
}

func (rs *readStream) Read(p []byte) (int, error) {
	if err := rs.ctx.Err(); err != nil {
		return 0, err
	}
	return rs.r.Read(p)
}

func (rs *readStream) Close() error {
	return rs.c.Close()
}

// wrapErr maps filesystem errors onto the fsx sentinels
func wrapErr(op, p string, err error) error {
	var mapped error
	switch {
	case errors.Is(err, os.ErrNotExist):
		mapped = fmt.Errorf("%w: %w", fsx.ErrNotFound, err)
	case errors.Is(err, os.ErrExist):
		mapped = fmt.Errorf("%w: %w", fsx.ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		mapped = fmt.Errorf("%w: %w", fsx.ErrTimeout, err)
	default:
		mapped = err
	}
	return &fsx.StorageError{Op: op, Path: p, Err: mapped}
}
