package fsx

import (
	"net/http"
	"time"

	"github.com/gostratum/core/logx"
	"github.com/spf13/afero"
)

// Options holds functional options for customizing storage behavior
type Options struct {
	logger       logx.Logger
	instrumenter *Instrumenter
	clock        func() time.Time
	httpClient   *http.Client
	fs           afero.Fs
}

// Option is a functional option for configuring Storage
type Option func(*Options)

// WithLogger sets a custom core logx.Logger
func WithLogger(logger logx.Logger) Option {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithInstrumenter sets the metrics and tracing instrumenter
func WithInstrumenter(i *Instrumenter) Option {
	return func(opts *Options) {
		opts.instrumenter = i
	}
}

// WithClock sets the time source used to measure operation durations
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.clock = clock
	}
}

// WithHTTPClient sets the HTTP client used for object store requests and CDN reads
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.httpClient = client
	}
}

// WithFs replaces the host filesystem under the filesystem backend.
// The base prefix is still applied on top of fs.
func WithFs(fs afero.Fs) Option {
	return func(opts *Options) {
		opts.fs = fs
	}
}

// NewOptions applies options over the defaults
func NewOptions(options ...Option) *Options {
	opts := &Options{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	opts.applyDefaults()
	return opts
}

func (opts *Options) applyDefaults() {
	if opts.logger == nil {
		opts.logger = logx.NewNoopLogger()
	}
	if opts.instrumenter == nil {
		opts.instrumenter = NewInstrumenter(nil, nil)
	}
	if opts.clock == nil {
		opts.clock = time.Now
	} else {
		opts.instrumenter = opts.instrumenter.withClock(opts.clock)
	}
}

// GetLogger returns the configured logger
func (opts *Options) GetLogger() logx.Logger {
	if opts.logger == nil {
		return logx.NewNoopLogger()
	}
	return opts.logger
}

// GetInstrumenter returns the configured instrumenter
func (opts *Options) GetInstrumenter() *Instrumenter {
	if opts.instrumenter == nil {
		return NewInstrumenter(nil, nil)
	}
	return opts.instrumenter
}

// GetHTTPClient returns the custom HTTP client, or nil when the backend should build its own
func (opts *Options) GetHTTPClient() *http.Client {
	return opts.httpClient
}

// GetFs returns the custom filesystem, or nil for the host filesystem
func (opts *Options) GetFs() afero.Fs {
	return opts.fs
}
