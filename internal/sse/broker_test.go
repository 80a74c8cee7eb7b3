package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/walletlink/internal/model"
	redisclient "github.com/openclaw/walletlink/internal/redis"
)

func setupBroker(t *testing.T) *Broker {
	t.Helper()

	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	if err := raw.Ping(context.Background()).Err(); err != nil {
		raw.Close()
		t.Skip("Redis not available for testing")
	}

	broker := NewBroker(&redisclient.Client{Client: raw})
	t.Cleanup(func() {
		broker.Close()
		raw.Close()
	})
	return broker
}

func receive(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case ev := <-client.Events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBrokerClientBookkeeping(t *testing.T) {
	broker := setupBroker(t)

	a := broker.Subscribe(1)
	b := broker.Subscribe(1)
	c := broker.Subscribe(AllPrincipals)

	assert.Equal(t, 2, broker.ClientCount(1))
	assert.Equal(t, 1, broker.ClientCount(AllPrincipals))
	assert.Equal(t, 3, broker.TotalClients())

	broker.Unsubscribe(a)
	broker.Unsubscribe(a)
	assert.Equal(t, 1, broker.ClientCount(1))

	broker.Unsubscribe(b)
	broker.Unsubscribe(c)
	assert.Equal(t, 0, broker.TotalClients())

	select {
	case <-a.Done:
	default:
		t.Fatal("unsubscribed client should be done")
	}
}

func TestBrokerPublishSession(t *testing.T) {
	broker := setupBroker(t)

	own := broker.Subscribe(7)
	all := broker.Subscribe(AllPrincipals)
	other := broker.Subscribe(8)

	// Let the subscriptions register with Redis before publishing.
	time.Sleep(100 * time.Millisecond)

	outcome := model.Connected("UQabc")
	ev := model.SessionEvent{
		SessionID:   "s-1",
		PrincipalID: 7,
		Wallet:      "Tonkeeper",
		State:       model.SessionStateConnected,
		Outcome:     &outcome,
		At:          time.Now().UTC(),
	}
	require.NoError(t, broker.PublishSession(context.Background(), ev))

	for _, client := range []*Client{own, all} {
		got := receive(t, client)
		assert.Equal(t, EventTypeSession, got.Type)

		var decoded model.SessionEvent
		require.NoError(t, json.Unmarshal(got.Data, &decoded))
		assert.Equal(t, "s-1", decoded.SessionID)
		assert.Equal(t, model.SessionStateConnected, decoded.State)
		require.NotNil(t, decoded.Outcome)
		assert.Equal(t, "UQabc", decoded.Outcome.Address)
	}

	select {
	case <-other.Events:
		t.Fatal("event leaked to another principal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBrokerCloseReleasesClients(t *testing.T) {
	broker := setupBroker(t)

	client := broker.Subscribe(3)
	broker.Close()

	select {
	case <-client.Done:
	default:
		t.Fatal("close should release clients")
	}
	assert.Equal(t, 0, broker.TotalClients())
}
