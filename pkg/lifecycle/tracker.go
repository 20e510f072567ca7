package lifecycle

import "sync"

// ChangeFunc observes aggregate transitions.
type ChangeFunc func(old, new State)

// Tracker records bootstrap completion and the number of rebuilds in flight
// for each index. Concurrent rebuilds of the same index are counted, not
// merged: the index stays updating until every one of them has ended.
type Tracker struct {
	mu       sync.Mutex
	started  bool
	inflight map[string]int
	onChange ChangeFunc

	// transitions not yet delivered, in the order they happened
	queue      []transition
	delivering bool
}

type transition struct {
	old, new State
}

// NewTracker returns a tracker in the starting state. onChange, if non-nil,
// is called with the tracker lock released whenever the aggregate changes.
// Calls never overlap and arrive in the order the transitions happened, so
// each one starts from the state the previous one ended in. A transition
// caused while another goroutine is delivering is handed to that goroutine.
func NewTracker(onChange ChangeFunc) *Tracker {
	return &Tracker{
		inflight: make(map[string]int),
		onChange: onChange,
	}
}

// State returns the aggregate state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aggregate()
}

// InFlight returns the number of rebuilds currently running for an index.
func (t *Tracker) InFlight(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[id]
}

// MarkReady records that bootstrap has finished.
func (t *Tracker) MarkReady() {
	t.update(func() { t.started = true })
}

// Begin records a rebuild launched for an index.
func (t *Tracker) Begin(id string) {
	t.update(func() { t.inflight[id]++ })
}

// End records a rebuild that finished, successfully or not.
func (t *Tracker) End(id string) {
	t.update(func() {
		if t.inflight[id] <= 1 {
			delete(t.inflight, id)
			return
		}
		t.inflight[id]--
	})
}

func (t *Tracker) update(mutate func()) {
	t.mu.Lock()
	old := t.aggregate()
	mutate()
	current := t.aggregate()
	if old == current || t.onChange == nil {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, transition{old: old, new: current})
	if t.delivering {
		t.mu.Unlock()
		return
	}
	t.delivering = true
	t.mu.Unlock()

	t.deliver()
}

// deliver drains the queue, releasing the lock around each callback.
func (t *Tracker) deliver() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.delivering = false
			t.mu.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		t.onChange(next.old, next.new)
	}
}

// aggregate must be called with mu held.
func (t *Tracker) aggregate() State {
	if !t.started {
		return Starting
	}
	if len(t.inflight) > 0 {
		return Updating
	}
	return Ready
}
