package hastewatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/lifecycle"
	"github.com/agentstation/hastewatch/pkg/logging"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// RebuildOutcome describes one finished rebuild.
type RebuildOutcome struct {
	// ID correlates the rebuild's log lines.
	ID    string
	Index string
	Path  string
	Type  watcher.ChangeType
	// Changed and Skipped are the builder's counts.
	Changed int
	Skipped int
	// Swapped reports whether the rebuilt map replaced the current one.
	Swapped bool
	// Persisted reports whether the rebuilt map reached the cache file.
	Persisted bool
	// Err is a *errors.RebuildError when the rebuild or the write failed.
	Err      error
	Duration time.Duration
}

// handle translates ev and launches its rebuild. It returns a nil channel
// when the event was discarded.
func (s *server) handle(reg *Registry, ev watcher.Event) (<-chan RebuildOutcome, error) {
	s.stats.eventsReceived.Add(1)

	change, err := reg.Translate(ev)
	if err != nil {
		s.stats.translationFailures.Add(1)
		logEvent := s.logger.Warn()
		if errors.IsInvariantViolation(err) {
			logEvent = s.logger.Error()
		}
		logEvent.Err(err).
			Str("root", ev.Root).
			Str("path", ev.Path).
			Str("type", string(ev.Type)).
			Msg("Dropped change event")
		s.hooks.triggerTranslationFailed(ev, err)
		return nil, err
	}
	if change == nil {
		s.stats.eventsDiscarded.Add(1)
		s.logger.Debug().
			Str("root", ev.Root).
			Str("path", ev.Path).
			Str("type", string(ev.Type)).
			Msg("Discarded change event")
		return nil, nil
	}

	entry, _ := reg.Entry(change.Index)
	return s.launch(entry, change)
}

// launch moves the index to updating and starts one rebuild. Rebuilds are
// not serialized: a second change to the same index starts a second
// rebuild from the map current at that moment, and the last swap wins.
func (s *server) launch(entry *IndexEntry, change *Change) (<-chan RebuildOutcome, error) {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return nil, errors.ErrNotStarted
	}
	s.rebuilds.Add(1)
	s.mu.Unlock()

	id := uuid.NewString()
	s.tracker.Begin(entry.ID())
	s.stats.rebuildsStarted.Add(1)

	out := make(chan RebuildOutcome, 1)
	go func() {
		defer s.rebuilds.Done()
		outcome := s.rebuild(entry, change, id)
		s.tracker.End(entry.ID())
		s.hooks.triggerRebuilt(outcome)
		out <- outcome
		close(out)
	}()
	return out, nil
}

// rebuild runs on a context detached from shutdown: an in-flight rebuild
// always finishes and persists.
func (s *server) rebuild(entry *IndexEntry, change *Change, id string) RebuildOutcome {
	ctx := logging.WithRebuild(logging.WithIndex(s.rebuildCtx, entry.ID()), id)
	logger := logging.FromContext(ctx)

	start := time.Now()
	outcome := RebuildOutcome{
		ID:    id,
		Index: entry.ID(),
		Path:  change.Path,
		Type:  change.Type,
	}
	logger.Info().
		Str("path", change.Path).
		Str("type", string(change.Type)).
		Int("files", len(change.Files)).
		Msg("Rebuilding module map")

	cfg := entry.Config()
	res, err := s.opts.builder.Rebuild(ctx, change.Files, cfg.LoaderList(), change.Base, s.opts.limits)
	if err != nil {
		return s.failed(logger, outcome, start, &errors.RebuildError{
			Index: entry.ID(), Stage: errors.StageRebuild, Err: err,
		})
	}
	outcome.Changed = len(res.Changed)
	outcome.Skipped = len(res.Skipped)

	if !res.MapChanged() {
		outcome.Duration = time.Since(start)
		s.stats.rebuildsCompleted.Add(1)
		logger.Info().
			Int("changed", outcome.Changed).
			Int("skipped", outcome.Skipped).
			Dur("duration", outcome.Duration).
			Msg("Module map unchanged")
		return outcome
	}

	entry.swap(res.Map)
	outcome.Swapped = true
	s.stats.mapsSwapped.Add(1)

	if err := s.opts.builder.Persist(ctx, cfg.CacheFile, res.Map); err != nil {
		return s.failed(logger, outcome, start, &errors.RebuildError{
			Index: entry.ID(), Stage: errors.StagePersist, Path: cfg.CacheFile, Err: err,
		})
	}
	outcome.Persisted = true
	outcome.Duration = time.Since(start)
	s.stats.mapsPersisted.Add(1)
	s.stats.rebuildsCompleted.Add(1)
	logger.Info().
		Int("changed", outcome.Changed).
		Int("skipped", outcome.Skipped).
		Int("resources", res.Map.Len()).
		Str("cache_file", cfg.CacheFile).
		Dur("duration", outcome.Duration).
		Msg("Module map updated")
	return outcome
}

// failed records a rebuild failure. The index still returns to ready.
func (s *server) failed(logger *zerolog.Logger, outcome RebuildOutcome, start time.Time, err error) RebuildOutcome {
	outcome.Err = err
	outcome.Duration = time.Since(start)
	s.stats.rebuildsFailed.Add(1)
	logger.Error().
		Err(err).
		Bool("swapped", outcome.Swapped).
		Dur("duration", outcome.Duration).
		Msg("Rebuild failed")
	return outcome
}

func (s *server) stateChanged(old, new lifecycle.State) {
	s.logger.Debug().Str("from", old.String()).Str("to", new.String()).Msg("State changed")
	s.hooks.triggerStateChanged(old, new)
}
