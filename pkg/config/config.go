// Package config describes the indexes the service keeps up to date.
//
// An Index names the root directories it covers, the cache file its map is
// persisted to, an ignore rule and the loader set used to build resources.
// Values are immutable once loaded: accessors hand out copies.
package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/zeebo/blake3"

	"github.com/agentstation/hastewatch/internal/matcher"
	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
)

// Index configures one module map.
type Index struct {
	Name      string   `yaml:"name,omitempty"`
	Roots     []string `yaml:"roots"`
	CacheFile string   `yaml:"cache_file"`
	Ignore    string   `yaml:"ignore,omitempty"`
	Loaders   []string `yaml:"loaders,omitempty"`
}

// Options are the global service options.
type Options struct {
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	MaxOpenFiles int    `yaml:"max_open_files,omitempty"`
	MaxProcesses int    `yaml:"max_processes,omitempty"`
}

// File is the on-disk layout of an indexes file.
type File struct {
	Host         string  `yaml:"host,omitempty"`
	Port         int     `yaml:"port,omitempty"`
	MaxOpenFiles int     `yaml:"max_open_files,omitempty"`
	MaxProcesses int     `yaml:"max_processes,omitempty"`
	// SkipDirs are glob patterns for directory base names that neither the
	// builder nor the watcher descends into, on top of the VCS defaults.
	SkipDirs []string `yaml:"skip_dirs,omitempty"`
	Indexes  []Index  `yaml:"indexes"`
}

// Options returns the global options declared by the file.
func (f *File) Options() Options {
	return Options{
		Host:         f.Host,
		Port:         f.Port,
		MaxOpenFiles: f.MaxOpenFiles,
		MaxProcesses: f.MaxProcesses,
	}
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Host:         constants.DefaultHost,
		Port:         constants.DefaultPort,
		MaxOpenFiles: constants.DefaultMaxOpenFiles,
		MaxProcesses: runtime.NumCPU(),
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Host == "" {
		o.Host = d.Host
	}
	if o.Port == 0 {
		o.Port = d.Port
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = d.MaxOpenFiles
	}
	if o.MaxProcesses <= 0 {
		o.MaxProcesses = d.MaxProcesses
	}
	return o
}

// Load reads and validates an indexes file. Relative roots and cache files
// are resolved against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*errors.ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.WrapIO("resolve", path, err)
	}
	f.resolve(base)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse decodes an indexes file without validating it.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, errors.NewParseError("yaml", "", err.Error(), err)
	}
	o := f.Options().WithDefaults()
	f.Host, f.Port, f.MaxOpenFiles, f.MaxProcesses = o.Host, o.Port, o.MaxOpenFiles, o.MaxProcesses
	return &f, nil
}

func (f *File) resolve(base string) {
	for i := range f.Indexes {
		idx := &f.Indexes[i]
		for j, root := range idx.Roots {
			idx.Roots[j] = absJoin(base, root)
		}
		if idx.CacheFile != "" {
			idx.CacheFile = absJoin(base, idx.CacheFile)
		}
	}
}

func absJoin(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Validate checks every index and that each root belongs to exactly one index.
func (f *File) Validate() error {
	if len(f.Indexes) == 0 {
		return errors.NewValidationError("indexes", nil, "at least one index is required")
	}
	if f.Port < 0 || f.Port > 65535 {
		return errors.NewValidationError("port", f.Port, "must be between 0 and 65535")
	}
	for _, pattern := range f.SkipDirs {
		if !matcher.Valid(pattern) {
			return errors.NewValidationError("skip_dirs", pattern, "malformed glob pattern")
		}
	}
	owners := make(map[string]int)
	for i, idx := range f.Indexes {
		if err := idx.Validate(); err != nil {
			return err
		}
		for _, root := range idx.Roots {
			root = filepath.Clean(root)
			if prev, dup := owners[root]; dup {
				return errors.NewValidationError("roots", root,
					"root is claimed by index "+f.Indexes[prev].Label()+" and index "+idx.Label())
			}
			owners[root] = i
		}
	}
	return nil
}

// Validate checks a single index.
func (i Index) Validate() error {
	if len(i.Roots) == 0 {
		return errors.NewValidationError("roots", nil, "index "+i.Label()+" needs at least one root")
	}
	for _, root := range i.Roots {
		if !filepath.IsAbs(root) {
			return errors.NewValidationError("roots", root, "root must be an absolute path")
		}
	}
	if i.CacheFile == "" {
		return errors.NewValidationError("cache_file", nil, "index "+i.Label()+" needs a cache file")
	}
	if _, err := i.IgnoreRegexp(); err != nil {
		return errors.NewValidationError("ignore", i.Ignore, err.Error())
	}
	return nil
}

// Label returns the configured name, or the ID when unnamed.
func (i Index) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID()
}

// ID returns a stable identifier derived from the roots and cache file, so
// the same configuration maps to the same identifier across restarts.
func (i Index) ID() string {
	h := blake3.New()
	for _, root := range i.Roots {
		_, _ = h.WriteString(filepath.Clean(root))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte{1})
	_, _ = h.WriteString(filepath.Clean(i.CacheFile))
	sum := h.Sum(nil)
	return "idx-" + hex.EncodeToString(sum[:8])
}

// IgnoreRegexp compiles the ignore rule. An empty rule ignores nothing and
// yields a nil regexp.
func (i Index) IgnoreRegexp() (*regexp.Regexp, error) {
	if i.Ignore == "" {
		return nil, nil
	}
	return regexp.Compile(i.Ignore)
}

// RootList returns a copy of the root directories, cleaned.
func (i Index) RootList() []string {
	roots := make([]string, len(i.Roots))
	for n, r := range i.Roots {
		roots[n] = filepath.Clean(r)
	}
	return roots
}

// LoaderList returns a copy of the loader names.
func (i Index) LoaderList() []string {
	return slices.Clone(i.Loaders)
}

// Clone returns a deep copy.
func (i Index) Clone() Index {
	i.Roots = slices.Clone(i.Roots)
	i.Loaders = slices.Clone(i.Loaders)
	return i
}
