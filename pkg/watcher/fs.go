package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch/internal/matcher"
	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/logging"
)

// FS watches directories with fsnotify, registering every subdirectory.
type FS struct {
	logger   *zerolog.Logger
	skipDirs []string
	skip     *matcher.Set
	buffer   int
	settle   time.Duration
}

// Option configures an FS watcher.
type Option func(*FS)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(w *FS) {
		w.logger = logger
	}
}

// WithSkipDirs ignores directories whose base names match the given glob
// patterns.
func WithSkipDirs(names ...string) Option {
	return func(w *FS) {
		w.skipDirs = append(w.skipDirs, names...)
	}
}

// NewFS returns an fsnotify-backed watcher.
func NewFS(opts ...Option) *FS {
	w := &FS{
		skipDirs: append([]string(nil), matcher.DefaultSkipDirs...),
		buffer:   constants.ChannelBufferSize,
		settle:   constants.CreateSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.skip = matcher.New(w.skipDirs...)
	if w.logger == nil {
		w.logger = logging.Default()
	}
	return w
}

var _ Watcher = (*FS)(nil)

// Watch registers root and its subdirectories, then streams notifications.
func (w *FS) Watch(ctx context.Context, root string) (<-chan Notification, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.WrapIO("watch", root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError("root", root, "not a directory")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapIO("watch", root, err)
	}
	rw := &rootWatch{
		FS:   w,
		fw:   fw,
		root: root,
		dirs: make(map[string]struct{}),
		gone:    make(map[string]struct{}),
		pending: make(map[string]time.Time),
		out:     make(chan Notification, w.buffer),
	}
	if _, err := rw.addTree(root); err != nil {
		fw.Close()
		return nil, errors.WrapIO("watch", root, err)
	}
	w.logger.Debug().
		Str("root", root).
		Int("dirs", len(rw.dirs)).
		Strs("skip_dirs", w.skip.Patterns()).
		Msg("Watching root")

	go rw.run(ctx)
	return rw.out, nil
}

type rootWatch struct {
	*FS
	fw   *fsnotify.Watcher
	root string
	dirs map[string]struct{}
	// gone holds directories already forgotten; the parent and the
	// directory itself may each report the removal.
	gone map[string]struct{}
	// pending holds files created but not yet reported, keyed by the time
	// they are due. Writes landing inside the window belong to the add.
	pending map[string]time.Time
	timer   *time.Timer
	out     chan Notification
}

func (rw *rootWatch) run(ctx context.Context) {
	defer close(rw.out)
	defer rw.fw.Close()

	rw.timer = time.NewTimer(time.Hour)
	rw.timer.Stop()
	defer rw.timer.Stop()

	if !rw.send(ctx, Notification{Kind: KindReady, Event: Event{Root: rw.root}}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rw.fw.Events:
			if !ok {
				return
			}
			for _, n := range rw.translate(ev) {
				if !rw.send(ctx, n) {
					return
				}
			}
			rw.arm()
		case <-rw.timer.C:
			for _, n := range rw.settled(time.Now()) {
				if !rw.send(ctx, n) {
					return
				}
			}
			rw.arm()
		case err, ok := <-rw.fw.Errors:
			if !ok {
				return
			}
			rw.logger.Warn().Err(err).Str("root", rw.root).Msg("Watcher error")
			if !rw.send(ctx, Notification{Kind: KindError, Event: Event{Root: rw.root}, Err: err}) {
				return
			}
		}
	}
}

func (rw *rootWatch) send(ctx context.Context, n Notification) bool {
	select {
	case rw.out <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

func (rw *rootWatch) translate(ev fsnotify.Event) []Notification {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if _, ok := rw.pending[path]; ok {
			// created and gone inside the window
			delete(rw.pending, path)
			return nil
		}
		if rw.forgetDir(path) {
			return nil
		}
		if _, ok := rw.gone[path]; ok {
			delete(rw.gone, path)
			return nil
		}
		return rw.change(Delete, path, nil)
	case ev.Has(fsnotify.Create):
		delete(rw.gone, path)
		info, err := os.Lstat(path)
		if err != nil {
			// gone again before we looked
			return nil
		}
		if info.IsDir() {
			if rw.skipped(path) {
				return nil
			}
			files, err := rw.addTree(path)
			if err != nil {
				rw.logger.Warn().Err(err).Str("dir", path).Msg("Failed to watch new directory")
			}
			for _, f := range files {
				rw.hold(f.path)
			}
			return nil
		}
		rw.hold(path)
		return nil
	case ev.Has(fsnotify.Write):
		if rw.isDir(path) || rw.absorb(path) {
			return nil
		}
		info, _ := os.Lstat(path)
		return rw.change(Change, path, info)
	case ev.Has(fsnotify.Chmod):
		if rw.isDir(path) || rw.absorb(path) {
			return nil
		}
		info, _ := os.Lstat(path)
		return rw.change(Other, path, info)
	}
	return nil
}

// hold starts or extends the settle window of a new file.
func (rw *rootWatch) hold(path string) {
	rw.pending[path] = time.Now().Add(rw.settle)
}

// absorb folds an event on a file still settling into its add.
func (rw *rootWatch) absorb(path string) bool {
	if _, ok := rw.pending[path]; !ok {
		return false
	}
	rw.hold(path)
	return true
}

// settled reports the adds whose window has passed, in path order.
func (rw *rootWatch) settled(now time.Time) []Notification {
	var due []string
	for path, at := range rw.pending {
		if !at.After(now) {
			due = append(due, path)
		}
	}
	slices.Sort(due)

	var out []Notification
	for _, path := range due {
		delete(rw.pending, path)
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() {
			continue
		}
		out = append(out, rw.change(Add, path, info)...)
	}
	return out
}

// arm points the timer at the earliest pending add.
func (rw *rootWatch) arm() {
	var next time.Time
	for _, at := range rw.pending {
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	if next.IsZero() {
		rw.timer.Stop()
		return
	}
	rw.timer.Reset(time.Until(next))
}

func (rw *rootWatch) change(t ChangeType, path string, info os.FileInfo) []Notification {
	rel, err := filepath.Rel(rw.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []Notification{{
		Kind:  KindChange,
		Event: Event{Type: t, Path: rel, Root: rw.root, Info: info},
	}}
}

type foundFile struct {
	path string
	info os.FileInfo
}

// addTree registers dir and its subdirectories and returns the regular files
// found beneath it.
func (rw *rootWatch) addTree(dir string) ([]foundFile, error) {
	var files []foundFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != rw.root && rw.skipped(path) {
				return filepath.SkipDir
			}
			if err := rw.fw.Add(path); err != nil {
				return err
			}
			rw.dirs[path] = struct{}{}
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				files = append(files, foundFile{path: path, info: info})
			}
		}
		return nil
	})
	return files, err
}

func (rw *rootWatch) skipped(dir string) bool {
	return rw.skip.MatchBase(dir)
}

func (rw *rootWatch) isDir(path string) bool {
	_, ok := rw.dirs[path]
	return ok
}

// forgetDir drops path and everything below it from the directory set and
// reports whether path was a watched directory.
func (rw *rootWatch) forgetDir(path string) bool {
	if !rw.isDir(path) {
		return false
	}
	prefix := path + string(filepath.Separator)
	for d := range rw.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(rw.dirs, d)
			rw.gone[d] = struct{}{}
		}
	}
	// fsnotify drops removed directories itself; a renamed one may linger.
	_ = rw.fw.Remove(path)
	return true
}
