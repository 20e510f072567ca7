package hastewatch

import "sync/atomic"

// Stats is a snapshot of the service counters.
type Stats struct {
	EventsReceived      uint64
	EventsDiscarded     uint64
	TranslationFailures uint64
	WatcherErrors       uint64
	RebuildsStarted     uint64
	RebuildsCompleted   uint64
	RebuildsFailed      uint64
	MapsSwapped         uint64
	MapsPersisted       uint64
}

// InFlight returns the number of rebuilds started but not finished.
func (s Stats) InFlight() uint64 {
	done := s.RebuildsCompleted + s.RebuildsFailed
	if done >= s.RebuildsStarted {
		return 0
	}
	return s.RebuildsStarted - done
}

type counters struct {
	eventsReceived      atomic.Uint64
	eventsDiscarded     atomic.Uint64
	translationFailures atomic.Uint64
	watcherErrors       atomic.Uint64
	rebuildsStarted     atomic.Uint64
	rebuildsCompleted   atomic.Uint64
	rebuildsFailed      atomic.Uint64
	mapsSwapped         atomic.Uint64
	mapsPersisted       atomic.Uint64
}

// snapshot loads finish counters before start counters so a snapshot never
// shows more rebuilds finished than started.
func (c *counters) snapshot() Stats {
	completed := c.rebuildsCompleted.Load()
	failed := c.rebuildsFailed.Load()
	persisted := c.mapsPersisted.Load()
	swapped := c.mapsSwapped.Load()
	return Stats{
		EventsReceived:      c.eventsReceived.Load(),
		EventsDiscarded:     c.eventsDiscarded.Load(),
		TranslationFailures: c.translationFailures.Load(),
		WatcherErrors:       c.watcherErrors.Load(),
		RebuildsStarted:     c.rebuildsStarted.Load(),
		RebuildsCompleted:   completed,
		RebuildsFailed:      failed,
		MapsSwapped:         swapped,
		MapsPersisted:       persisted,
	}
}
