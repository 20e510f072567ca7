// Package lifecycle models the readiness of the service.
//
// The service reports one of three tokens: starting until bootstrap
// completes, updating while any index has a rebuild in flight, and ready
// otherwise. Rather than one shared mutable flag, a Tracker keeps a record
// per index and derives the aggregate on every read.
package lifecycle

import (
	"fmt"
	"strings"
)

// State is the readiness token reported by the status endpoint.
type State string

// Lifecycle states.
const (
	Starting State = "starting"
	Updating State = "updating"
	Ready    State = "ready"
)

// String returns the wire token.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the three known tokens.
func (s State) Valid() bool {
	switch s {
	case Starting, Updating, Ready:
		return true
	}
	return false
}

// Parse converts a wire token into a State.
func Parse(token string) (State, error) {
	s := State(strings.TrimSpace(token))
	if !s.Valid() {
		return "", fmt.Errorf("unknown lifecycle state %q", token)
	}
	return s, nil
}
