package session

import (
	"context"
	"sync"
	"time"

	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/provider"
)

// Session is one pairing attempt for one principal. Its provider handle is
// owned exclusively by the session and released when the poll loop exits.
type Session struct {
	id          string
	principalID int64
	wallet      model.WalletDescriptor
	handle      provider.Provider
	startedAt   time.Time
	deadline    time.Time

	// mu guards the fields below. It is never held across provider or
	// ledger calls.
	mu      sync.Mutex
	state   State
	outcome model.Outcome
	endedAt time.Time
	// writing is non-nil while the ledger commit is in flight and closes
	// when it finishes.
	writing chan struct{}

	cancel context.CancelFunc
	// done closes when the session reaches a terminal state.
	done chan struct{}
	// exited closes once the handle is released and no goroutine touches
	// the session any more.
	exited chan struct{}
}

func newSession(id string, principalID int64, wallet model.WalletDescriptor, handle provider.Provider, now time.Time, timeout time.Duration) *Session {
	return &Session{
		id:          id,
		principalID: principalID,
		wallet:      wallet,
		handle:      handle,
		startedAt:   now,
		deadline:    now.Add(timeout),
		state:       model.SessionStateIdle,
		cancel:      func() {},
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Outcome() model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Session) terminal() bool {
	return s.State().Terminal()
}

// released reports whether the poll loop has exited.
func (s *Session) released() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Session) endedBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Terminal() && s.endedAt.Before(cutoff)
}

func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.SessionSnapshot{
		ID:          s.id,
		PrincipalID: s.principalID,
		Wallet:      s.wallet.Name,
		State:       s.state,
		Deadline:    s.deadline,
		StartedAt:   s.startedAt,
	}
	if s.state.Terminal() {
		endedAt := s.endedAt
		outcome := s.outcome
		snap.EndedAt = &endedAt
		snap.Outcome = &outcome
	}
	return snap
}

func (s *Session) eventLocked(at time.Time) model.SessionEvent {
	ev := model.SessionEvent{
		SessionID:   s.id,
		PrincipalID: s.principalID,
		Wallet:      s.wallet.Name,
		State:       s.state,
		At:          at,
	}
	if s.state.Terminal() {
		outcome := s.outcome
		ev.Outcome = &outcome
	}
	return ev
}
