package hastewatch

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch/pkg/builder"
	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/logging"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// Option is a function that configures a Server instance
type Option func(*options) error

// options holds the configuration for a Server instance
type options struct {
	host    string
	port    int
	limits  builder.Limits
	builder builder.Builder
	watcher watcher.Watcher
	logger  *zerolog.Logger
}

func defaultOptions() *options {
	d := config.DefaultOptions()
	return &options{
		host: d.Host,
		port: d.Port,
		limits: builder.Limits{
			MaxOpenFiles: d.MaxOpenFiles,
			MaxProcesses: d.MaxProcesses,
		},
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.builder == nil {
		o.builder = builder.New(builder.WithLogger(o.logger))
	}
	if o.watcher == nil {
		o.watcher = watcher.NewFS(watcher.WithLogger(o.logger))
	}
	o.limits = o.limits.Normalize()
	return nil
}

// WithConfig applies the global options of an indexes file. Zero fields
// keep their defaults.
func WithConfig(c config.Options) Option {
	return func(o *options) error {
		if c.Host != "" {
			o.host = c.Host
		}
		if c.Port != 0 {
			if err := WithPort(c.Port)(o); err != nil {
				return err
			}
		}
		if c.MaxOpenFiles > 0 {
			o.limits.MaxOpenFiles = c.MaxOpenFiles
		}
		if c.MaxProcesses > 0 {
			o.limits.MaxProcesses = c.MaxProcesses
		}
		return nil
	}
}

// WithHost sets the status listener host.
func WithHost(host string) Option {
	return func(o *options) error {
		o.host = host
		return nil
	}
}

// WithPort sets the status listener port. Port 0 picks a free port.
func WithPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return errors.NewValidationError("port", port, "must be between 0 and 65535")
		}
		o.port = port
		return nil
	}
}

// WithMaxOpenFiles bounds the files a rebuild may hold open at once.
func WithMaxOpenFiles(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.NewValidationError("maxOpenFiles", n, "must be positive")
		}
		o.limits.MaxOpenFiles = n
		return nil
	}
}

// WithMaxProcesses bounds the workers a rebuild may run at once.
func WithMaxProcesses(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.NewValidationError("maxProcesses", n, "must be positive")
		}
		o.limits.MaxProcesses = n
		return nil
	}
}

// WithBuilder replaces the file-system index builder.
func WithBuilder(b builder.Builder) Option {
	return func(o *options) error {
		o.builder = b
		return nil
	}
}

// WithWatcher replaces the fsnotify directory watcher.
func WithWatcher(w watcher.Watcher) Option {
	return func(o *options) error {
		o.watcher = w
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
