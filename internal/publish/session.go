package publish

import (
	"context"
	"sync"
)

// SessionStatus is the lifecycle stage of a long-lived platform session.
type SessionStatus int

const (
	Initializing SessionStatus = iota
	Ready
	Failed
)

func (s SessionStatus) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SessionState records whether a session finished its handshake. It leaves
// Initializing exactly once; later transitions are ignored.
type SessionState struct {
	mu     sync.RWMutex
	status SessionStatus
	err    error
	done   chan struct{}
}

// NewSessionState returns a state in Initializing.
func NewSessionState() *SessionState {
	return &SessionState{done: make(chan struct{})}
}

// MarkReady transitions to Ready.
func (s *SessionState) MarkReady() { s.transition(Ready, nil) }

// MarkFailed transitions to Failed with the cause.
func (s *SessionState) MarkFailed(err error) { s.transition(Failed, err) }

func (s *SessionState) transition(to SessionStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Initializing {
		return
	}
	s.status = to
	s.err = err
	close(s.done)
}

// State returns the current status and, when Failed, its cause.
func (s *SessionState) State() (SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.err
}

// Wait blocks until the session leaves Initializing or ctx is done.
func (s *SessionState) Wait(ctx context.Context) (SessionStatus, error) {
	select {
	case <-s.done:
		return s.State()
	case <-ctx.Done():
		return Initializing, ctx.Err()
	}
}
