package domain

import (
	"sync"
	"sync/atomic"
	"time"

	"go.trai.ch/zerr"
)

// SessionState tracks the state machine of one build invocation.
type SessionState string

const (
	// SessionInit is the state before the graph has been assembled.
	SessionInit SessionState = "init"
	// SessionGraphBuilt means the graph passed construction.
	SessionGraphBuilt SessionState = "graph_built"
	// SessionDirtyMarked means the dirty seed set has been computed.
	SessionDirtyMarked SessionState = "dirty_marked"
	// SessionExecuting means levels are being dispatched.
	SessionExecuting SessionState = "executing"
	// SessionDone means every node resolved.
	SessionDone SessionState = "done"
	// SessionFailed means the invocation ended with at least one failed node.
	SessionFailed SessionState = "failed"
)

// transitions lists the permitted state machine edges.
var transitions = map[SessionState][]SessionState{
	SessionInit:        {SessionGraphBuilt, SessionFailed},
	SessionGraphBuilt:  {SessionDirtyMarked, SessionFailed},
	SessionDirtyMarked: {SessionExecuting, SessionDone, SessionFailed},
	SessionExecuting:   {SessionDone, SessionFailed},
}

// Session owns the per-invocation state and counters. It is passed
// explicitly through the executor and cache calls instead of living in
// process-wide globals, and is discarded when the invocation ends.
type Session struct {
	StartedAt time.Time

	TotalNodes   atomic.Int64
	DirtyNodes   atomic.Int64
	CacheHits    atomic.Int64
	RemoteHits   atomic.Int64
	RunnerCalls  atomic.Int64
	SkippedNodes atomic.Int64
	FailedNodes  atomic.Int64
	BytesFetched atomic.Int64

	mu    sync.Mutex
	state SessionState
}

// NewSession creates a session in the Init state.
func NewSession() *Session {
	return &Session{
		StartedAt: time.Now(),
		state:     SessionInit,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to the next state, rejecting edges the state
// machine does not permit.
func (s *Session) Transition(to SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	err := zerr.With(zerr.New("invalid session transition"), "from", string(s.state))
	return zerr.With(err, "to", string(to))
}

// Summary describes the outcome of the invocation for reporting.
type Summary struct {
	State        SessionState
	Duration     time.Duration
	TotalNodes   int64
	DirtyNodes   int64
	CacheHits    int64
	RemoteHits   int64
	RunnerCalls  int64
	SkippedNodes int64
	FailedNodes  int64
	BytesFetched int64
}

// Summarize snapshots the counters.
func (s *Session) Summarize() Summary {
	return Summary{
		State:        s.State(),
		Duration:     time.Since(s.StartedAt),
		TotalNodes:   s.TotalNodes.Load(),
		DirtyNodes:   s.DirtyNodes.Load(),
		CacheHits:    s.CacheHits.Load(),
		RemoteHits:   s.RemoteHits.Load(),
		RunnerCalls:  s.RunnerCalls.Load(),
		SkippedNodes: s.SkippedNodes.Load(),
		FailedNodes:  s.FailedNodes.Load(),
		BytesFetched: s.BytesFetched.Load(),
	}
}
