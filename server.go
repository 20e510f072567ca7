package hastewatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/hastewatch/internal/status"
	"github.com/agentstation/hastewatch/pkg/config"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/lifecycle"
	"github.com/agentstation/hastewatch/pkg/logging"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// Server keeps module maps in sync with the watched roots and reports its
// readiness on the status port.
type Server interface {
	// Run bootstraps the service and serves until ctx is done. It returns a
	// *errors.BootstrapError when the service could not reach ready, and nil
	// after an orderly shutdown. In-flight rebuilds finish before Run returns.
	Run(ctx context.Context) error

	// State returns the aggregate lifecycle state.
	State() lifecycle.State

	// Ready is closed once bootstrap completed.
	Ready() <-chan struct{}

	// Addr returns the status listener address, or nil before it is bound.
	Addr() net.Addr

	// Registry returns the root registry, or nil before bootstrap completed.
	Registry() *Registry

	// Submit handles a change event as if a watcher had reported it. The
	// returned channel yields the rebuild outcome; it is nil when the event
	// was discarded.
	Submit(ev watcher.Event) (<-chan RebuildOutcome, error)

	// Stats returns a snapshot of the service counters.
	Stats() Stats

	// OnStateChanged registers a callback for aggregate state transitions
	OnStateChanged(StateChangedHook)

	// OnRebuilt registers a callback for finished rebuilds
	OnRebuilt(RebuiltHook)

	// OnTranslationFailed registers a callback for rejected change events
	OnTranslationFailed(TranslationFailedHook)
}

// server is the internal implementation of the Server interface
type server struct {
	indexes []config.Index
	opts    *options
	logger  *zerolog.Logger

	tracker *lifecycle.Tracker
	hooks   *hooks
	stats   counters
	queue   *eventQueue

	running atomic.Bool
	ready   chan struct{}
	status  atomic.Pointer[status.Server]

	mu         sync.Mutex
	registry   *Registry
	accepting  bool
	rebuildCtx context.Context
	rebuilds   sync.WaitGroup
	forwarders sync.WaitGroup
}

var _ Server = (*server)(nil)

// New creates a server for the given indexes.
func New(indexes []config.Index, opts ...Option) (Server, error) {
	f := config.File{Indexes: indexes}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	if err := o.apply(opts...); err != nil {
		return nil, fmt.Errorf("applying options: %w", err)
	}

	s := &server{
		opts:   o,
		logger: o.logger,
		hooks:  newHooks(),
		queue:  newEventQueue(),
		ready:  make(chan struct{}),
	}
	for _, idx := range indexes {
		s.indexes = append(s.indexes, idx.Clone())
	}
	s.tracker = lifecycle.NewTracker(s.stateChanged)
	return s, nil
}

// Run bootstraps the service and serves until ctx is done.
func (s *server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyRunning
	}

	ctx = logging.WithLogger(ctx, s.logger)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.rebuildCtx = context.WithoutCancel(runCtx)
	s.mu.Unlock()

	serveDone, err := s.bootstrap(runCtx)
	if err != nil {
		cancel()
		if s.status.Load() != nil {
			<-serveDone
		}
		s.forwarders.Wait()
		s.logger.Error().Err(err).Msg("Bootstrap failed")
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.dispatch(gctx)
		return nil
	})
	g.Go(func() error {
		return <-serveDone
	})
	err = g.Wait()

	// stop watchers and refuse new rebuilds, then let in-flight ones finish
	cancel()
	s.mu.Lock()
	s.accepting = false
	s.mu.Unlock()
	s.forwarders.Wait()
	s.rebuilds.Wait()

	if err != nil {
		s.logger.Error().Err(err).Msg("Status endpoint failed")
		return err
	}
	s.logger.Info().Msg("Stopped")
	return nil
}

// dispatch handles queued change events in arrival order until ctx is done.
func (s *server) dispatch(ctx context.Context) {
	reg := s.Registry()
	for {
		for _, ev := range s.queue.drain() {
			if ctx.Err() != nil {
				return
			}
			_, _ = s.handle(reg, ev)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.queue.ready():
		}
	}
}

// State returns the aggregate lifecycle state.
func (s *server) State() lifecycle.State {
	return s.tracker.State()
}

// Ready is closed once bootstrap completed.
func (s *server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the status listener address.
func (s *server) Addr() net.Addr {
	if srv := s.status.Load(); srv != nil {
		return srv.Addr()
	}
	return nil
}

// Registry returns the root registry.
func (s *server) Registry() *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// Submit handles a change event directly.
func (s *server) Submit(ev watcher.Event) (<-chan RebuildOutcome, error) {
	reg := s.Registry()
	if reg == nil {
		return nil, errors.ErrNotStarted
	}
	return s.handle(reg, ev)
}

// Stats returns a snapshot of the service counters.
func (s *server) Stats() Stats {
	return s.stats.snapshot()
}

// OnStateChanged registers a callback for aggregate state transitions
func (s *server) OnStateChanged(fn StateChangedHook) {
	s.hooks.OnStateChanged(fn)
}

// OnRebuilt registers a callback for finished rebuilds
func (s *server) OnRebuilt(fn RebuiltHook) {
	s.hooks.OnRebuilt(fn)
}

// OnTranslationFailed registers a callback for rejected change events
func (s *server) OnTranslationFailed(fn TranslationFailedHook) {
	s.hooks.OnTranslationFailed(fn)
}
