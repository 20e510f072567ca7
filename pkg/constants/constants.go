// Package constants provides shared constants used throughout the hastewatch codebase.
// This includes the status port, rebuild resource limits, timeouts, file permissions,
// and other values that should be consistent across the service and the CLI.
package constants

import "time"

// Network constants
const (
	// DefaultPort is the well-known status port the service answers on
	DefaultPort = 5622

	// DefaultHost is the default bind address for the status listener
	DefaultHost = "127.0.0.1"

	// StatusWriteTimeout bounds the write of a status token to a slow peer
	StatusWriteTimeout = 2 * time.Second

	// DialTimeout is the timeout for establishing a status query connection
	DialTimeout = 5 * time.Second
)

// Rebuild resource limits
const (
	// DefaultMaxOpenFiles is the default number of files a rebuild may hold open at once
	DefaultMaxOpenFiles = 100
)

// Timeout constants
const (
	// ShutdownTimeout is how long the CLI waits for in-flight work after a signal
	ShutdownTimeout = 5 * time.Second

	// StatusPollInterval is how often `hastewatch status --wait` re-queries the server
	StatusPollInterval = 100 * time.Millisecond

	// CreateSettle is how long a new file stays quiet before the watcher reports it
	CreateSettle = 50 * time.Millisecond
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// ChannelBufferSize is the default buffer size for channels
	ChannelBufferSize = 100

	// DocblockReadSize is how much of a source file is read when looking for a docblock
	DocblockReadSize = 4096
)

// Cache file constants
const (
	// CacheFormatVersion is bumped whenever the on-disk map layout changes
	CacheFormatVersion = 1
)

// Path constants
const (
	// DefaultConfigName is the base name of the application config file in $HOME
	DefaultConfigName = ".hastewatch"

	// DefaultIndexesFile is the default path of the index configuration file
	DefaultIndexesFile = "hastewatch.yaml"

	// EnvPrefix is the prefix for environment variables read by the CLI
	EnvPrefix = "HASTEWATCH"
)
