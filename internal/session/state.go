package session

import (
	"errors"
	"fmt"

	"github.com/openclaw/walletlink/internal/model"
)

type State = model.SessionState

// Event drives a session from one state to the next.
type Event string

const (
	EventBegin     Event = "begin"
	EventURIIssued Event = "uri_issued"
	EventConnected Event = "connected"
	EventDeadline  Event = "deadline"
	EventFailure   Event = "failure"
	EventCancel    Event = "cancel"
)

var transitions = map[State]map[Event]State{
	model.SessionStateIdle: {
		EventBegin:   model.SessionStateAwaitingPairing,
		EventFailure: model.SessionStateFailed,
		EventCancel:  model.SessionStateFailed,
	},
	model.SessionStateAwaitingPairing: {
		EventURIIssued: model.SessionStatePolling,
		EventFailure:   model.SessionStateFailed,
		EventCancel:    model.SessionStateFailed,
	},
	model.SessionStatePolling: {
		EventConnected: model.SessionStateConnected,
		EventDeadline:  model.SessionStateTimedOut,
		EventFailure:   model.SessionStateFailed,
		EventCancel:    model.SessionStateFailed,
	},
}

// ErrInvalidTransition is wrapped by transition for events a state does not accept.
var ErrInvalidTransition = errors.New("invalid session transition")

func transition(from State, ev Event) (State, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return next, nil
}
