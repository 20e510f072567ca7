package hastewatch

import (
	"path/filepath"
	"regexp"
	"slices"
	"sync/atomic"

	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/modulemap"
)

// IndexEntry pairs an index configuration with its current module map.
// The map is only ever replaced whole.
type IndexEntry struct {
	id     string
	cfg    config.Index
	ignore *regexp.Regexp
	m      atomic.Pointer[modulemap.Map]
}

func newIndexEntry(cfg config.Index, m *modulemap.Map) (*IndexEntry, error) {
	ignore, err := cfg.IgnoreRegexp()
	if err != nil {
		return nil, errors.WrapValidation("ignore", err)
	}
	e := &IndexEntry{
		id:     cfg.ID(),
		cfg:    cfg.Clone(),
		ignore: ignore,
	}
	e.m.Store(m)
	return e, nil
}

// ID returns the stable index identifier.
func (e *IndexEntry) ID() string { return e.id }

// Config returns a copy of the index configuration.
func (e *IndexEntry) Config() config.Index { return e.cfg.Clone() }

// Map returns the current module map.
func (e *IndexEntry) Map() *modulemap.Map { return e.m.Load() }

func (e *IndexEntry) swap(m *modulemap.Map) { e.m.Store(m) }

// Ignored reports whether the ignore rule matches path.
func (e *IndexEntry) Ignored(path string) bool {
	return e.ignore != nil && e.ignore.MatchString(path)
}

// Registry maps every watched root to its index. It is built once after all
// initial maps exist and never changes afterwards.
type Registry struct {
	byRoot  map[string]string
	byID    map[string]*IndexEntry
	ordered []*IndexEntry
}

func newRegistry(entries []*IndexEntry) (*Registry, error) {
	r := &Registry{
		byRoot: make(map[string]string),
		byID:   make(map[string]*IndexEntry, len(entries)),
	}
	for _, e := range entries {
		if _, dup := r.byID[e.id]; dup {
			return nil, errors.NewValidationError("indexes", e.id, "duplicate index")
		}
		r.byID[e.id] = e
		r.ordered = append(r.ordered, e)
		for _, root := range e.cfg.RootList() {
			if owner, dup := r.byRoot[root]; dup {
				return nil, errors.NewValidationError("roots", root, "root is shared by indexes "+owner+" and "+e.id)
			}
			r.byRoot[root] = e.id
		}
	}
	return r, nil
}

// Lookup returns the index owning root.
func (r *Registry) Lookup(root string) (*IndexEntry, bool) {
	id, ok := r.byRoot[filepath.Clean(root)]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Entry returns the index with the given identifier.
func (r *Registry) Entry(id string) (*IndexEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Entries returns every index in configuration order.
func (r *Registry) Entries() []*IndexEntry {
	return slices.Clone(r.ordered)
}

// Roots returns every watched root, sorted.
func (r *Registry) Roots() []string {
	roots := make([]string, 0, len(r.byRoot))
	for root := range r.byRoot {
		roots = append(roots, root)
	}
	slices.Sort(roots)
	return roots
}
