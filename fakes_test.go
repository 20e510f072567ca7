package hastewatch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	stderrors "errors"

	"github.com/agentstation/hastewatch/pkg/builder"
	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/modulemap"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// fakeBuilder names every resource after its base name. Files ending in
// .txt are skipped. When gate is set each Rebuild blocks until it receives;
// rootGates does the same only for rebuilds touching files under a root.
type fakeBuilder struct {
	mu           sync.Mutex
	initial      map[string]*modulemap.Map // by cache file
	constructErr error
	rebuildErr   error
	persistErr   error
	gate         chan struct{}
	rootGates    map[string]chan struct{}

	active     int
	maxActive  int
	calls      [][]modulemap.File
	limits     []builder.Limits
	persisted  []string
	persistMap []*modulemap.Map
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{initial: make(map[string]*modulemap.Map)}
}

func (b *fakeBuilder) Construct(ctx context.Context, cfg config.Index, limits builder.Limits) (*modulemap.Map, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.constructErr != nil {
		return nil, b.constructErr
	}
	if m, ok := b.initial[cfg.CacheFile]; ok {
		return m, nil
	}
	return modulemap.New(nil), nil
}

func (b *fakeBuilder) Rebuild(ctx context.Context, files []modulemap.File, loaders []string, current *modulemap.Map, limits builder.Limits) (*builder.Result, error) {
	b.mu.Lock()
	b.active++
	b.maxActive = max(b.maxActive, b.active)
	b.calls = append(b.calls, files)
	b.limits = append(b.limits, limits)
	gate, rebuildErr := b.gate, b.rebuildErr
	if gate == nil {
		gate = b.rootGate(files)
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}()
	if gate != nil {
		<-gate
	}
	if rebuildErr != nil {
		return nil, rebuildErr
	}

	res := &builder.Result{}
	var resources []modulemap.Resource
	seen := make(map[string]bool)
	for _, f := range files {
		seen[f.Path] = true
		if filepath.Ext(f.Path) == ".txt" {
			res.Skipped = append(res.Skipped, f.Path)
			continue
		}
		if cur, ok := current.Lookup(f.Path); !ok || !cur.Mtime.Equal(f.Mtime) {
			res.Changed = append(res.Changed, f.Path)
		}
		resources = append(resources, modulemap.Resource{ID: filepath.Base(f.Path), Path: f.Path, Type: "js", Mtime: f.Mtime})
	}
	for _, r := range current.Resources() {
		if !seen[r.Path] {
			res.Changed = append(res.Changed, r.Path)
		}
	}
	res.Map = modulemap.New(resources)
	return res, nil
}

// rootGate must be called with mu held.
func (b *fakeBuilder) rootGate(files []modulemap.File) chan struct{} {
	for root, gate := range b.rootGates {
		prefix := root + string(filepath.Separator)
		for _, f := range files {
			if strings.HasPrefix(f.Path, prefix) {
				return gate
			}
		}
	}
	return nil
}

func (b *fakeBuilder) Persist(ctx context.Context, path string, m *modulemap.Map) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.persistErr != nil {
		return b.persistErr
	}
	b.persisted = append(b.persisted, path)
	b.persistMap = append(b.persistMap, m)
	return nil
}

func (b *fakeBuilder) snapshot() (calls int, maxActive int, persisted []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls), b.maxActive, append([]string(nil), b.persisted...)
}

func (b *fakeBuilder) activeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// fakeWatcher hands out one controllable feed per root. Unless a root is
// held, Ready is sent as soon as Watch is called.
type fakeWatcher struct {
	mu       sync.Mutex
	feeds    map[string]chan watcher.Notification
	hold     map[string]bool
	startErr map[string]error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		feeds:    make(map[string]chan watcher.Notification),
		hold:     make(map[string]bool),
		startErr: make(map[string]error),
	}
}

func (w *fakeWatcher) Watch(ctx context.Context, root string) (<-chan watcher.Notification, error) {
	w.mu.Lock()
	if err := w.startErr[root]; err != nil {
		w.mu.Unlock()
		return nil, err
	}
	in := w.feed(root)
	hold := w.hold[root]
	w.mu.Unlock()

	out := make(chan watcher.Notification)
	go func() {
		defer close(out)
		if !hold {
			select {
			case out <- watcher.Notification{Kind: watcher.KindReady, Event: watcher.Event{Root: root}}:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case n := <-in:
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// feed must be called with mu held.
func (w *fakeWatcher) feed(root string) chan watcher.Notification {
	ch, ok := w.feeds[root]
	if !ok {
		ch = make(chan watcher.Notification, 64)
		w.feeds[root] = ch
	}
	return ch
}

func (w *fakeWatcher) send(root string, n watcher.Notification) {
	w.mu.Lock()
	ch := w.feed(root)
	w.mu.Unlock()
	ch <- n
}

func (w *fakeWatcher) change(root string, typ watcher.ChangeType, rel string) {
	w.send(root, watcher.Notification{
		Kind:  watcher.KindChange,
		Event: watcher.Event{Type: typ, Path: rel, Root: root},
	})
}

func (w *fakeWatcher) ready(root string) {
	w.send(root, watcher.Notification{Kind: watcher.KindReady, Event: watcher.Event{Root: root}})
}

var errFake = stderrors.New("fake failure")

const testTimeout = 5 * time.Second
