package model

type SessionState string

const (
	SessionStateIdle            SessionState = "idle"
	SessionStateAwaitingPairing SessionState = "awaiting_pairing"
	SessionStatePolling         SessionState = "polling"
	SessionStateConnected       SessionState = "connected"
	SessionStateTimedOut        SessionState = "timed_out"
	SessionStateFailed          SessionState = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateConnected, SessionStateTimedOut, SessionStateFailed:
		return true
	}
	return false
}

type OutcomeKind string

const (
	OutcomeConnected OutcomeKind = "connected"
	OutcomeTimedOut  OutcomeKind = "timed_out"
	OutcomeFailed    OutcomeKind = "failed"
)
