package logging

import (
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch/pkg/constants"
)

// Config holds logger configuration options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error or disabled
	Level string

	// Format is json, console, or auto (console on a terminal, json otherwise)
	Format string

	// Output is stderr, stdout, discard, or a file path opened for append
	Output string

	// TimeFormat is a named layout (kitchen, rfc3339, unix, ...) or a Go layout
	TimeFormat string

	// NoColor disables color output in console mode
	NoColor bool

	// AddCaller includes file:line; implied at debug level and below
	AddCaller bool

	// Fields are attached to every event
	Fields map[string]any
}

// DefaultConfig returns the configuration used for the process-wide
// logger: LOG_LEVEL (or DEBUG) picks the level and LOG_FORMAT the format.
func DefaultConfig() *Config {
	level := os.Getenv("LOG_LEVEL")
	if level == "" && os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "auto"
	}
	return &Config{
		Level:      level,
		Format:     format,
		Output:     "stderr",
		TimeFormat: "kitchen",
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

// NewLoggerFromConfig creates a logger from cfg. It also sets zerolog's
// global level so loggers made with New agree with it.
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(getWriter(cfg)).Level(level).With().Timestamp()
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Fields)) {
		ctx = addFieldToContext(ctx, k, cfg.Fields[k])
	}
	return ctx.Logger()
}

// Configure updates the default logger with the given configuration
func Configure(cfg *Config) {
	SetDefault(NewLoggerFromConfig(cfg))
}

func getWriter(cfg *Config) io.Writer {
	out, isStderr := openOutput(cfg.Output)

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if isStderr && stderrIsTerminal() {
			format = "console"
		}
	}

	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: parseTimeFormat(cfg.TimeFormat),
			NoColor:    cfg.NoColor,
		}
	}
	return out
}

// openOutput resolves an output name. An unopenable file falls back to
// stderr.
func openOutput(name string) (io.Writer, bool) {
	switch strings.ToLower(name) {
	case "", "stderr":
		return os.Stderr, true
	case "stdout":
		return os.Stdout, false
	case "discard", "none":
		return io.Discard, false
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return os.Stderr, true
	}
	return file, false
}

var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"panic":    zerolog.PanicLevel,
	"disabled": zerolog.Disabled,
	"none":     zerolog.Disabled,
	"off":      zerolog.Disabled,
}

// parseLevel maps a level name to a zerolog level; unknown names are info.
func parseLevel(level string) zerolog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

var timeFormats = map[string]string{
	"kitchen":     time.Kitchen,
	"rfc3339":     time.RFC3339,
	"rfc3339nano": time.RFC3339Nano,
	"unix":        "",
	"epoch":       "",
	"stamp":       time.Stamp,
	"stampmilli":  time.StampMilli,
}

// parseTimeFormat maps a named layout to a Go layout. Strings that already
// look like a layout pass through.
func parseTimeFormat(format string) string {
	if f, ok := timeFormats[strings.ToLower(format)]; ok {
		return f
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}
	return time.Kitchen
}
