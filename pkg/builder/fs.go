package builder

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/agentstation/hastewatch/internal/matcher"
	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/logging"
	"github.com/agentstation/hastewatch/pkg/modulemap"
)

// FS builds module maps from the local file system.
type FS struct {
	logger   *zerolog.Logger
	skipDirs []string
	skip     *matcher.Set
	locks    sync.Map // cache path -> *sync.Mutex
}

// Option configures an FS builder.
type Option func(*FS)

// WithLogger sets the logger used for cache and build diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(b *FS) {
		b.logger = logger
	}
}

// WithSkipDirs skips directories whose base names match the given glob
// patterns while walking.
func WithSkipDirs(names ...string) Option {
	return func(b *FS) {
		b.skipDirs = append(b.skipDirs, names...)
	}
}

// New returns a file-system builder.
func New(opts ...Option) *FS {
	b := &FS{skipDirs: append([]string(nil), matcher.DefaultSkipDirs...)}
	for _, opt := range opts {
		opt(b)
	}
	b.skip = matcher.New(b.skipDirs...)
	if b.logger == nil {
		b.logger = logging.Default()
	}
	return b
}

var _ Builder = (*FS)(nil)

// Construct loads the index's cache file when one exists, walks every root
// and rebuilds the walked files against the cached map.
func (b *FS) Construct(ctx context.Context, cfg config.Index, limits Limits) (*modulemap.Map, error) {
	if _, err := ResolveLoaders(cfg.Loaders); err != nil {
		return nil, err
	}
	ignore, err := cfg.IgnoreRegexp()
	if err != nil {
		return nil, errors.WrapValidation("ignore", err)
	}

	cached, _, err := modulemap.ReadFile(cfg.CacheFile)
	switch {
	case err == nil:
		b.logger.Debug().Str("cache_file", cfg.CacheFile).Int("resources", cached.Len()).Msg("Loaded cached module map")
	case errors.IsNotFound(err):
		cached = nil
	default:
		b.logger.Warn().Err(err).Str("cache_file", cfg.CacheFile).Msg("Ignoring unreadable cache file")
		cached = nil
	}

	var files []modulemap.File
	for _, root := range cfg.RootList() {
		found, err := b.walk(ctx, root, ignore)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	res, err := b.Rebuild(ctx, files, cfg.Loaders, cached, limits)
	if err != nil {
		return nil, err
	}
	return res.Map, nil
}

func (b *FS) walk(ctx context.Context, root string, ignore *regexp.Regexp) ([]modulemap.File, error) {
	var files []modulemap.File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if ignore != nil && ignore.MatchString(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && b.skip.Match(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		files = append(files, modulemap.File{Path: path, Mtime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO("walk", root, err)
	}
	return files, nil
}

type slot struct {
	res     modulemap.Resource
	ok      bool
	skipped bool
	changed bool
}

// Rebuild reuses every resource whose path and mtime match current and
// loads the rest. Files no loader accepts, or that vanished before they
// could be read, are skipped. Resources of current absent from files are
// dropped and reported as changed.
func (b *FS) Rebuild(ctx context.Context, files []modulemap.File, loaders []string, current *modulemap.Map, limits Limits) (*Result, error) {
	ls, err := ResolveLoaders(loaders)
	if err != nil {
		return nil, err
	}
	limits = limits.Normalize()
	files = dedupe(files)

	slots := make([]slot, len(files))
	sem := semaphore.NewWeighted(int64(limits.MaxOpenFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limits.MaxProcesses)

	for i, f := range files {
		if cur, ok := current.Lookup(f.Path); ok && cur.Mtime.Equal(f.Mtime) {
			slots[i] = slot{res: cur, ok: true}
			continue
		}
		loader := matchLoader(ls, f.Path)
		if loader == nil {
			slots[i] = slot{skipped: true}
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			res, err := loader.Load(f.Path)
			if err != nil {
				if os.IsNotExist(err) {
					slots[i] = slot{skipped: true}
					return nil
				}
				return errors.WrapResource("load", loader.Name(), f.Path, err)
			}
			res.Path = f.Path
			res.Mtime = f.Mtime
			slots[i] = slot{res: res, ok: true, changed: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	resources := make([]modulemap.Resource, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for i, s := range slots {
		path := files[i].Path
		seen[path] = struct{}{}
		switch {
		case s.skipped:
			result.Skipped = append(result.Skipped, path)
		case s.ok:
			resources = append(resources, s.res)
			if s.changed {
				result.Changed = append(result.Changed, path)
			}
		}
	}
	for _, r := range current.Resources() {
		if _, ok := seen[r.Path]; !ok {
			result.Changed = append(result.Changed, r.Path)
		}
	}
	result.Map = modulemap.New(resources)

	b.logger.Debug().
		Int("files", len(files)).
		Int("changed", len(result.Changed)).
		Int("skipped", len(result.Skipped)).
		Msg("Rebuilt module map")
	return result, nil
}

// dedupe keeps the first position of each path with the last mtime seen.
func dedupe(files []modulemap.File) []modulemap.File {
	pos := make(map[string]int, len(files))
	out := make([]modulemap.File, 0, len(files))
	for _, f := range files {
		if i, ok := pos[f.Path]; ok {
			out[i].Mtime = f.Mtime
			continue
		}
		pos[f.Path] = len(out)
		out = append(out, f)
	}
	return out
}

// Persist atomically writes m to path. Writers of the same path are
// serialized so the last completed write wins whole.
func (b *FS) Persist(ctx context.Context, path string, m *modulemap.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu, _ := b.locks.LoadOrStore(path, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if err := modulemap.WriteFile(path, m); err != nil {
		return err
	}
	b.logger.Debug().Str("cache_file", path).Int("resources", m.Len()).Msg("Persisted module map")
	return nil
}
