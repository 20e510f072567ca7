package hastewatch

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/hastewatch/internal/status"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/logging"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

var errWatcherClosed = errors.New("watcher closed before it became ready")

// bootstrap runs the three startup phases concurrently: construct every
// initial map, bind the status listener, and start one watcher per root.
// Any failure aborts the other phases and the state never leaves starting;
// the caller tears down what was started by canceling ctx. The returned
// channel reports when Serve exits.
func (s *server) bootstrap(ctx context.Context) (<-chan error, error) {
	s.logger.Info().Int("indexes", len(s.indexes)).Msg("Bootstrapping")

	serveDone := make(chan error, 1)
	entries := make([]*IndexEntry, len(s.indexes))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.constructAll(gctx, entries)
	})
	g.Go(func() error {
		return s.listen(gctx, ctx, serveDone)
	})
	g.Go(func() error {
		return s.watchAll(gctx, ctx)
	})
	if err := g.Wait(); err != nil {
		return serveDone, err
	}

	reg, err := newRegistry(entries)
	if err != nil {
		return serveDone, errors.NewBootstrapError(errors.PhaseConstruct, "", err)
	}

	s.mu.Lock()
	s.registry = reg
	s.accepting = true
	s.mu.Unlock()

	s.tracker.MarkReady()
	close(s.ready)
	s.logger.Info().
		Int("indexes", len(entries)).
		Int("roots", len(reg.Roots())).
		Str("addr", s.Addr().String()).
		Msg("Ready")
	return serveDone, nil
}

func (s *server) constructAll(ctx context.Context, entries []*IndexEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range s.indexes {
		g.Go(func() error {
			ictx := logging.WithIndex(gctx, cfg.ID())
			logger := logging.FromContext(ictx)
			logger.Debug().Strs("roots", cfg.RootList()).Msg("Constructing module map")

			m, err := s.opts.builder.Construct(ictx, cfg, s.opts.limits)
			if err != nil {
				return errors.NewBootstrapError(errors.PhaseConstruct, cfg.ID(), err)
			}
			entry, err := newIndexEntry(cfg, m)
			if err != nil {
				return errors.NewBootstrapError(errors.PhaseConstruct, cfg.ID(), err)
			}
			entries[i] = entry
			logger.Info().Int("resources", m.Len()).Msg("Constructed module map")
			return nil
		})
	}
	return g.Wait()
}

// listen binds the status port and starts serving right away so queries
// during bootstrap are answered with starting.
func (s *server) listen(ctx, serveCtx context.Context, serveDone chan<- error) error {
	cfg := status.Config{Host: s.opts.host, Port: s.opts.port}
	srv, err := status.Listen(ctx, cfg, s.tracker.State, s.logger)
	if err != nil {
		return errors.NewBootstrapError(errors.PhaseListen, cfg.Addr(), err)
	}
	s.status.Store(srv)
	go func() {
		serveDone <- srv.Serve(serveCtx)
	}()
	return nil
}

func (s *server) watchAll(ctx, watchCtx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range s.indexes {
		for _, root := range idx.RootList() {
			g.Go(func() error {
				return s.watchRoot(gctx, watchCtx, root)
			})
		}
	}
	return g.Wait()
}

// watchRoot starts a watcher on root and waits for its ready notification.
// The watcher lives on watchCtx, beyond bootstrap.
func (s *server) watchRoot(ctx, watchCtx context.Context, root string) error {
	ch, err := s.opts.watcher.Watch(watchCtx, root)
	if err != nil {
		return errors.NewBootstrapError(errors.PhaseWatch, root, err)
	}

	logger := logging.FromContext(logging.WithRoot(watchCtx, root))
	ready := make(chan error, 1)
	s.forwarders.Add(1)
	go s.forward(root, ch, ready, logger)

	select {
	case err := <-ready:
		if err != nil {
			return errors.NewBootstrapError(errors.PhaseWatch, root, err)
		}
		logger.Debug().Msg("Watcher ready")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forward moves a root's notifications onto the event queue. The first
// ready or error notification before ready is reported on ready.
func (s *server) forward(root string, ch <-chan watcher.Notification, ready chan<- error, logger *zerolog.Logger) {
	defer s.forwarders.Done()

	signaled := false
	signal := func(err error) {
		if !signaled {
			signaled = true
			ready <- err
		}
	}
	defer signal(errWatcherClosed)

	for n := range ch {
		switch n.Kind {
		case watcher.KindReady:
			signal(nil)
		case watcher.KindError:
			if !signaled {
				err := n.Err
				if err == nil {
					err = errors.New("watcher error")
				}
				signal(err)
				continue
			}
			s.stats.watcherErrors.Add(1)
			logger.Warn().Err(n.Err).Msg("Watcher error")
		case watcher.KindChange:
			if n.Event.Root == "" {
				n.Event.Root = root
			}
			s.queue.push(n.Event)
		}
	}
}
