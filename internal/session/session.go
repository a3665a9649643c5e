// Package session holds the state shared between the transport's callbacks
// and the telemetry loop.
package session

import (
	"sync"
	"time"
)

// State is safe for concurrent use.
type State struct {
	mu           sync.RWMutex
	connected    bool
	generation   uint64
	lastActivity time.Time
}

func New() *State {
	return &State{}
}

// SetConnected records the session state and returns its generation. Every
// change of state starts a new generation.
func (s *State) SetConnected(connected bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected != connected {
		s.connected = connected
		s.generation++
	}

	return s.generation
}

// Generation identifies the current connected or disconnected period.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.connected
}

// MarkActivity records the time of the latest active tick.
func (s *State) MarkActivity(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = at
}

// LastActivity returns the latest active tick, false if there was none.
func (s *State) LastActivity() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastActivity, !s.lastActivity.IsZero()
}
