package logging

import (
	"context"
	"maps"
	"slices"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger. A nil logger stores the
// default.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// WithFields returns a context whose logger carries fields, added in key
// order.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	logCtx := FromContext(ctx).With()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		logCtx = addFieldToContext(logCtx, k, fields[k])
	}
	logger := logCtx.Logger()
	return WithLogger(ctx, &logger)
}

// WithField returns a context whose logger carries key=value.
func WithField(ctx context.Context, key string, value any) context.Context {
	logger := addFieldToContext(FromContext(ctx).With(), key, value).Logger()
	return WithLogger(ctx, &logger)
}

// WithIndex tags the logger with an index ID.
func WithIndex(ctx context.Context, indexID string) context.Context {
	return WithField(ctx, "index_id", indexID)
}

// WithRoot tags the logger with a watched root directory.
func WithRoot(ctx context.Context, root string) context.Context {
	return WithField(ctx, "root", root)
}

// WithRebuild tags the logger with a rebuild ID.
func WithRebuild(ctx context.Context, rebuildID string) context.Context {
	return WithField(ctx, "rebuild_id", rebuildID)
}

func addFieldToContext(ctx zerolog.Context, key string, value any) zerolog.Context {
	switch v := value.(type) {
	case string:
		return ctx.Str(key, v)
	case []string:
		return ctx.Strs(key, v)
	case int:
		return ctx.Int(key, v)
	case int64:
		return ctx.Int64(key, v)
	case uint64:
		return ctx.Uint64(key, v)
	case float64:
		return ctx.Float64(key, v)
	case bool:
		return ctx.Bool(key, v)
	case error:
		if key == zerolog.ErrorFieldName {
			return ctx.Err(v)
		}
		return ctx.AnErr(key, v)
	default:
		return ctx.Interface(key, v)
	}
}
