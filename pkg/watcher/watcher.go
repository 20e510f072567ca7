// Package watcher reports file changes under a root directory.
//
// A Watcher delivers, per root, exactly one Ready notification once the
// initial scan finished, followed by Change notifications carrying paths
// relative to the root. Error notifications report watcher failures. The
// channel closes when the watch context ends.
package watcher

import (
	"context"
	"fmt"
	"os"
)

// ChangeType is the kind of a file change.
type ChangeType string

// Change types.
const (
	Add    ChangeType = "add"
	Change ChangeType = "change"
	Delete ChangeType = "delete"
	// Other covers changes that do not affect content, such as chmod.
	Other ChangeType = "other"
)

// Kind discriminates notifications.
type Kind int

// Notification kinds.
const (
	KindReady Kind = iota
	KindChange
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindChange:
		return "change"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single file change.
type Event struct {
	Type ChangeType
	// Path is relative to Root.
	Path string
	Root string
	// Info is the watcher's own stat of the file. It may be nil and may be
	// stale by the time the event is handled.
	Info os.FileInfo
}

// Notification is one message on a watch channel.
type Notification struct {
	Kind  Kind
	Event Event
	Err   error
}

// Watcher watches root directories.
type Watcher interface {
	// Watch starts watching root. The returned channel yields notifications
	// until ctx is done.
	Watch(ctx context.Context, root string) (<-chan Notification, error)
}
