// Package matcher matches file and directory base names against shell-style
// glob patterns (*, ?, []).
package matcher

import (
	"path/filepath"
	"slices"
)

// DefaultSkipDirs are version-control directories that neither the builder
// nor the watcher descends into.
var DefaultSkipDirs = []string{".git", ".hg", ".svn"}

// Set is an immutable list of glob patterns. The zero value and nil match
// nothing.
type Set struct {
	patterns []string
}

// New returns a Set of the given patterns. A pattern that is not a valid
// glob matches only a name equal to it.
func New(patterns ...string) *Set {
	s := &Set{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		if p != "" && !slices.Contains(s.patterns, p) {
			s.patterns = append(s.patterns, p)
		}
	}
	return s
}

// Match reports whether name matches any pattern.
func (s *Set) Match(name string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		ok, err := filepath.Match(p, name)
		if err != nil {
			ok = p == name
		}
		if ok {
			return true
		}
	}
	return false
}

// MatchBase reports whether the last element of path matches any pattern.
func (s *Set) MatchBase(path string) bool {
	return s.Match(filepath.Base(path))
}

// Patterns returns a copy of the patterns.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.patterns)
}

// Valid reports whether pattern is a well-formed glob.
func Valid(pattern string) bool {
	_, err := filepath.Match(pattern, "")
	return err == nil
}
