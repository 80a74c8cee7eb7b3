package model

import (
	"time"
)

// Outcome is the terminal result of one connection session.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Address string      `json:"address,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	// Cancelled is set when the session was superseded or cancelled
	// rather than failing on its own.
	Cancelled bool `json:"cancelled,omitempty"`
}

func Connected(address string) Outcome {
	return Outcome{Kind: OutcomeConnected, Address: address}
}

func TimedOut() Outcome {
	return Outcome{Kind: OutcomeTimedOut}
}

func Failed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// SessionSnapshot is a read-only view of a session for the ops API.
type SessionSnapshot struct {
	ID          string       `json:"id"`
	PrincipalID int64        `json:"principalId"`
	Wallet      string       `json:"wallet"`
	State       SessionState `json:"state"`
	Deadline    time.Time    `json:"deadline"`
	StartedAt   time.Time    `json:"startedAt"`
	EndedAt     *time.Time   `json:"endedAt,omitempty"`
	Outcome     *Outcome     `json:"outcome,omitempty"`
}

// SessionEvent is published on every session state transition.
type SessionEvent struct {
	SessionID   string       `json:"sessionId"`
	PrincipalID int64        `json:"principalId"`
	Wallet      string       `json:"wallet"`
	State       SessionState `json:"state"`
	Outcome     *Outcome     `json:"outcome,omitempty"`
	At          time.Time    `json:"at"`
}
