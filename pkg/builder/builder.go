// Package builder turns directory trees into module maps.
//
// The Builder interface is what the service core consumes: construct an
// index's initial map, incrementally rebuild a map from a candidate file
// list, and persist a map to the index's cache file. FS is the file-system
// implementation used by the hastewatch binary.
package builder

import (
	"context"
	"runtime"

	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/modulemap"
)

// Builder constructs, rebuilds and persists module maps.
type Builder interface {
	// Construct produces the initial map for an index.
	Construct(ctx context.Context, cfg config.Index, limits Limits) (*modulemap.Map, error)
	// Rebuild produces a new map from the candidate files. current is never
	// modified.
	Rebuild(ctx context.Context, files []modulemap.File, loaders []string, current *modulemap.Map, limits Limits) (*Result, error)
	// Persist writes m to path.
	Persist(ctx context.Context, path string, m *modulemap.Map) error
}

// Limits bound the resources a single build may use.
type Limits struct {
	MaxOpenFiles int
	MaxProcesses int
}

// DefaultLimits returns 100 open files and one process per CPU.
func DefaultLimits() Limits {
	return Limits{
		MaxOpenFiles: constants.DefaultMaxOpenFiles,
		MaxProcesses: runtime.NumCPU(),
	}
}

// Normalize replaces non-positive limits with the defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxOpenFiles <= 0 {
		l.MaxOpenFiles = d.MaxOpenFiles
	}
	if l.MaxProcesses <= 0 {
		l.MaxProcesses = d.MaxProcesses
	}
	return l
}

// Result is the outcome of a rebuild.
type Result struct {
	// Map is the rebuilt map.
	Map *modulemap.Map
	// Changed lists paths whose resource was added, reloaded or removed.
	Changed []string
	// Skipped lists candidate paths no loader produced a resource for.
	Skipped []string
}

// MapChanged reports whether the rebuild is worth keeping: more resources
// changed than were skipped.
func (r *Result) MapChanged() bool {
	return r != nil && len(r.Changed) > len(r.Skipped)
}
