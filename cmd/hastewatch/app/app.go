// Package app provides the application context and dependency management
// for the hastewatch CLI. It centralizes configuration, logging and the
// construction of the service from the indexes file.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch"
	"github.com/agentstation/hastewatch/pkg/builder"
	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// App represents the hastewatch application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Running server, if any
	mu     sync.RWMutex
	server hastewatch.Server
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	// Load configuration
	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	// Initialize logger
	logger := NewLogger(config)
	app.logger = &logger

	// Apply any custom options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Indexes loads and validates the indexes file.
func (a *App) Indexes() (*config.File, error) {
	f, err := config.Load(a.config.IndexesFile)
	if err != nil {
		return nil, errors.WrapResource("load", "indexes", a.config.IndexesFile, err)
	}
	return f, nil
}

// Options returns the global options of f with command-line and
// environment overrides applied.
func (a *App) Options(f *config.File) config.Options {
	opts := f.Options()
	if a.config.Host != "" {
		opts.Host = a.config.Host
	}
	if a.config.Port != 0 {
		opts.Port = a.config.Port
	}
	if a.config.MaxOpenFiles > 0 {
		opts.MaxOpenFiles = a.config.MaxOpenFiles
	}
	if a.config.MaxProcesses > 0 {
		opts.MaxProcesses = a.config.MaxProcesses
	}
	return opts.WithDefaults()
}

// Builder returns the file-system index builder for the indexes in f.
func (a *App) Builder(f *config.File) builder.Builder {
	return builder.New(builder.WithLogger(a.logger), builder.WithSkipDirs(f.SkipDirs...))
}

// Watcher returns the fsnotify watcher for the indexes in f.
func (a *App) Watcher(f *config.File) watcher.Watcher {
	return watcher.NewFS(watcher.WithLogger(a.logger), watcher.WithSkipDirs(f.SkipDirs...))
}

// Server creates the service for the indexes in f.
func (a *App) Server(f *config.File, opts ...hastewatch.Option) (hastewatch.Server, error) {
	base := []hastewatch.Option{
		hastewatch.WithConfig(a.Options(f)),
		hastewatch.WithLogger(a.logger),
		hastewatch.WithBuilder(a.Builder(f)),
		hastewatch.WithWatcher(a.Watcher(f)),
	}
	srv, err := hastewatch.New(f.Indexes, append(base, opts...)...)
	if err != nil {
		return nil, errors.WrapResource("create", "server", "", err)
	}

	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()
	return srv, nil
}

// Shutdown performs graceful shutdown of the application. The server stops
// with the command context; this only reports what was still running.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.RLock()
	srv := a.server
	a.mu.RUnlock()

	if srv != nil {
		if inflight := srv.Stats().InFlight(); inflight > 0 {
			a.logger.Warn().Uint64("rebuilds", inflight).Msg("Exiting with rebuilds in flight")
		}
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
