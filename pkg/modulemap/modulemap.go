// Package modulemap holds the in-memory module map of an index: the table of
// resources discovered under the index's roots, keyed by absolute path.
//
// A Map is immutable. Rebuilds produce a new Map and the owner swaps the
// pointer, so readers never observe a partially updated table.
package modulemap

import (
	"slices"
	"time"
)

// Resource is one entry of a module map.
type Resource struct {
	// ID is the module identifier the resource resolves as.
	ID string
	// Path is the absolute file path.
	Path string
	// Type names the loader that produced the resource ("js", "json", "resource").
	Type string
	// Mtime is the modification time observed when the resource was loaded.
	Mtime time.Time
}

// File is a candidate entry handed to a rebuild: a path and the mtime the
// rebuild should assume for it.
type File struct {
	Path  string
	Mtime time.Time
}

// Map is an immutable resource table. The zero value and nil are empty maps.
type Map struct {
	resources []Resource
	byPath    map[string]int
}

// New returns a map holding a copy of resources in the given order. When a
// path appears twice the last entry wins its lookup slot.
func New(resources []Resource) *Map {
	m := &Map{
		resources: slices.Clone(resources),
		byPath:    make(map[string]int, len(resources)),
	}
	for i, r := range m.resources {
		m.byPath[r.Path] = i
	}
	return m
}

// Len returns the number of resources.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.resources)
}

// Resources returns a copy of the resources in map order.
func (m *Map) Resources() []Resource {
	if m == nil {
		return nil
	}
	return slices.Clone(m.resources)
}

// Lookup returns the resource stored for path.
func (m *Map) Lookup(path string) (Resource, bool) {
	if m == nil {
		return Resource{}, false
	}
	i, ok := m.byPath[path]
	if !ok {
		return Resource{}, false
	}
	return m.resources[i], true
}

// Files snapshots the map as candidate files in map order.
func (m *Map) Files() []File {
	if m == nil {
		return nil
	}
	files := make([]File, len(m.resources))
	for i, r := range m.resources {
		files[i] = File{Path: r.Path, Mtime: r.Mtime}
	}
	return files
}

// Position returns the index of path within Files, or -1.
func (m *Map) Position(path string) int {
	if m == nil {
		return -1
	}
	if i, ok := m.byPath[path]; ok {
		return i
	}
	return -1
}

// IDs returns the sorted, de-duplicated module identifiers.
func (m *Map) IDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.resources))
	for _, r := range m.resources {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
