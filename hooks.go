package hastewatch

import (
	"sync"

	"github.com/agentstation/hastewatch/pkg/lifecycle"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// Hook function types for service events
type (
	// StateChangedHook is called when the aggregate state changes
	StateChangedHook func(old, new lifecycle.State)

	// RebuiltHook is called when a rebuild finished, successfully or not
	RebuiltHook func(outcome RebuildOutcome)

	// TranslationFailedHook is called when a change event could not be translated
	TranslationFailedHook func(event watcher.Event, err error)
)

// hooks manages event callbacks. Callbacks run synchronously on the
// goroutine that produced the event and must not block.
type hooks struct {
	mu                  sync.RWMutex
	onStateChanged      []StateChangedHook
	onRebuilt           []RebuiltHook
	onTranslationFailed []TranslationFailedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnStateChanged registers a callback for aggregate state transitions
func (h *hooks) OnStateChanged(fn StateChangedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStateChanged = append(h.onStateChanged, fn)
}

// OnRebuilt registers a callback for finished rebuilds
func (h *hooks) OnRebuilt(fn RebuiltHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRebuilt = append(h.onRebuilt, fn)
}

// OnTranslationFailed registers a callback for rejected change events
func (h *hooks) OnTranslationFailed(fn TranslationFailedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTranslationFailed = append(h.onTranslationFailed, fn)
}

func (h *hooks) triggerStateChanged(old, new lifecycle.State) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onStateChanged {
		hook(old, new)
	}
}

func (h *hooks) triggerRebuilt(outcome RebuildOutcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onRebuilt {
		hook(outcome)
	}
}

func (h *hooks) triggerTranslationFailed(event watcher.Event, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onTranslationFailed {
		hook(event, err)
	}
}
