package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/walletlink/internal/model"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
	}{
		{model.SessionStateIdle, EventBegin, model.SessionStateAwaitingPairing},
		{model.SessionStateAwaitingPairing, EventURIIssued, model.SessionStatePolling},
		{model.SessionStateAwaitingPairing, EventFailure, model.SessionStateFailed},
		{model.SessionStatePolling, EventConnected, model.SessionStateConnected},
		{model.SessionStatePolling, EventDeadline, model.SessionStateTimedOut},
		{model.SessionStatePolling, EventFailure, model.SessionStateFailed},
		{model.SessionStatePolling, EventCancel, model.SessionStateFailed},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			got, err := transition(tc.from, tc.ev)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransitionRejectsIllegalEvents(t *testing.T) {
	illegal := []struct {
		from State
		ev   Event
	}{
		{model.SessionStateIdle, EventConnected},
		{model.SessionStateAwaitingPairing, EventConnected},
		{model.SessionStateAwaitingPairing, EventDeadline},
		{model.SessionStatePolling, EventBegin},
	}
	for _, tc := range illegal {
		_, err := transition(tc.from, tc.ev)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tc.ev, tc.from)
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	terminal := []State{model.SessionStateConnected, model.SessionStateTimedOut, model.SessionStateFailed}
	events := []Event{EventBegin, EventURIIssued, EventConnected, EventDeadline, EventFailure, EventCancel}

	for _, st := range terminal {
		assert.True(t, st.Terminal())
		for _, ev := range events {
			next, err := transition(st, ev)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, st, next)
		}
	}
}
