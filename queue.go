package hastewatch

import (
	"sync"

	"github.com/agentstation/hastewatch/pkg/watcher"
)

// eventQueue is an unbounded FIFO of change events. Watchers push without
// blocking so a root's ready notification is never stuck behind changes
// queued during bootstrap.
type eventQueue struct {
	mu     sync.Mutex
	items  []watcher.Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev watcher.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued, in arrival order.
func (q *eventQueue) drain() []watcher.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ready is signaled after a push.
func (q *eventQueue) ready() <-chan struct{} {
	return q.signal
}
