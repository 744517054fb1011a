// Package filestore is the entry point of fsx: a Store built from configuration
// that holds exactly one backend and exposes the fsx.Storage operations plus
// signed URLs.
package filestore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gostratum/core"
	"github.com/gostratum/core/logx"

	"github.com/gostratum/fsx"
	"github.com/gostratum/fsx/adapters/local"
	"github.com/gostratum/fsx/adapters/s3"
)

// Backend is a storage backend with a lifecycle
type Backend interface {
	fsx.Storage
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Store dispatches file operations to the configured backend
type Store struct {
	cfg     *fsx.Config
	backend Backend
	health  core.Check
	logger  logx.Logger
	inst    *fsx.Instrumenter

	mu      sync.Mutex
	started bool
}

var _ fsx.Storage = (*Store)(nil)

// New resolves cfg and builds the backend it selects. No I/O happens until Start.
func New(cfg *fsx.Config, opts ...fsx.Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", fsx.ErrInvalidConfig)
	}
	resolved, err := fsx.ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	options := fsx.NewOptions(opts...)

	s := &Store{
		cfg:    resolved,
		logger: options.GetLogger(),
		inst:   options.GetInstrumenter(),
	}

	switch resolved.Backend {
	case fsx.BackendS3:
		b, err := s3.New(resolved, opts...)
		if err != nil {
			return nil, err
		}
		s.backend, s.health = b, s3.NewHealthCheck(b)
	default:
		b, err := local.New(resolved, opts...)
		if err != nil {
			return nil, err
		}
		s.backend, s.health = b, local.NewHealthCheck(b)
	}

	s.logger.Debug("Store created", logx.Any("config", resolved.Sanitize()))
	return s, nil
}

// Open creates and starts a Store
func Open(ctx context.Context, cfg *fsx.Config, opts ...fsx.Option) (*Store, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start prepares the backend: the filesystem root or the object store client
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Start(ctx); err != nil {
		return fmt.Errorf("start %s storage: %w", s.cfg.Backend, err)
	}
	s.started = true
	s.logger.Info("Storage started", logx.Any("backend", s.cfg.Backend), logx.Any("bucket", s.cfg.Bucket))
	return nil
}

// Stop releases backend resources. Calling it more than once is harmless.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if err := s.backend.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s storage: %w", s.cfg.Backend, err)
	}
	s.logger.Info("Storage stopped", logx.Any("backend", s.cfg.Backend))
	return nil
}

// Config returns the resolved configuration
func (s *Store) Config() *fsx.Config {
	return s.cfg
}

// Backend returns the active backend
func (s *Store) Backend() Backend {
	return s.backend
}

// HealthCheck returns the readiness check of the active backend
func (s *Store) HealthCheck() core.Check {
	return s.health
}

func (s *Store) Mkdir(ctx context.Context, p string, opts ...fsx.CallOption) (ack fsx.Ack, err error) {
	err = s.inst.TraceOperation(ctx, "mkdir", p, func(ctx context.Context) error {
		ack, err = s.backend.Mkdir(ctx, p, opts...)
		return err
	})
	return ack, err
}

func (s *Store) Readdir(ctx context.Context, p string, opts ...fsx.CallOption) (names []string, err error) {
	err = s.inst.TraceOperation(ctx, "readdir", p, func(ctx context.Context) error {
		names, err = s.backend.Readdir(ctx, p, opts...)
		return err
	})
	return names, err
}

func (s *Store) Rmdir(ctx context.Context, p string, opts ...fsx.CallOption) error {
	return s.inst.TraceOperation(ctx, "rmdir", p, func(ctx context.Context) error {
		return s.backend.Rmdir(ctx, p, opts...)
	})
}

func (s *Store) Exists(ctx context.Context, p string, opts ...fsx.CallOption) (ok bool, err error) {
	err = s.inst.TraceOperation(ctx, "exists", p, func(ctx context.Context) error {
		ok, err = s.backend.Exists(ctx, p, opts...)
		return err
	})
	return ok, err
}

func (s *Store) ReadFile(ctx context.Context, p string, opts ...fsx.CallOption) (data []byte, err error) {
	err = s.inst.TraceOperation(ctx, "read_file", p, func(ctx context.Context) error {
		data, err = s.backend.ReadFile(ctx, p, opts...)
		return err
	})
	return data, err
}

func (s *Store) WriteFile(ctx context.Context, p string, data []byte, opts ...fsx.CallOption) (ack fsx.Ack, err error) {
	err = s.inst.TraceOperation(ctx, "write_file", p, func(ctx context.Context) error {
		ack, err = s.backend.WriteFile(ctx, p, data, opts...)
		return err
	})
	return ack, err
}

func (s *Store) Rm(ctx context.Context, p string, opts ...fsx.CallOption) error {
	return s.inst.TraceOperation(ctx, "rm", p, func(ctx context.Context) error {
		return s.backend.Rm(ctx, p, opts...)
	})
}

// CreateReadStream returns immediately; open failures surface from Read
func (s *Store) CreateReadStream(ctx context.Context, p string, ro *fsx.ReadStreamOptions, opts ...fsx.CallOption) io.ReadCloser {
	s.logger.Debug("Opening read stream", logx.Any("path", p))
	return s.backend.CreateReadStream(ctx, p, ro, opts...)
}

// CreateWriteStream returns immediately; failures surface from Write and Close
func (s *Store) CreateWriteStream(ctx context.Context, p string, wo *fsx.WriteStreamOptions, opts ...fsx.CallOption) fsx.WriteStream {
	s.logger.Debug("Opening write stream", logx.Any("path", p))
	return s.backend.CreateWriteStream(ctx, p, wo, opts...)
}

// GetSignedURL returns a time-limited download URL.
// Backends that cannot sign report fsx.ErrUnsupported.
func (s *Store) GetSignedURL(ctx context.Context, p string, so *fsx.SignOptions, opts ...fsx.CallOption) (u string, err error) {
	signer, ok := s.backend.(fsx.Signer)
	if !ok {
		return "", &fsx.StorageError{Op: "sign_get", Path: p, Err: fsx.ErrUnsupported}
	}
	err = s.inst.TraceOperation(ctx, "sign_get", p, func(ctx context.Context) error {
		u, err = signer.SignGet(ctx, p, so, opts...)
		return err
	})
	return u, err
}

// GetSignedPutURL returns a time-limited upload URL.
// Backends that cannot sign report fsx.ErrUnsupported.
func (s *Store) GetSignedPutURL(ctx context.Context, p string, so *fsx.SignOptions, opts ...fsx.CallOption) (u string, err error) {
	signer, ok := s.backend.(fsx.Signer)
	if !ok {
		return "", &fsx.StorageError{Op: "sign_put", Path: p, Err: fsx.ErrUnsupported}
	}
	err = s.inst.TraceOperation(ctx, "sign_put", p, func(ctx context.Context) error {
		u, err = signer.SignPut(ctx, p, so, opts...)
		return err
	})
	return u, err
}
