package provider

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/openclaw/walletlink/internal/redis"
)

func TestRedisNotifier(t *testing.T) {
	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	defer raw.Close()

	if err := raw.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available for testing")
	}

	notifier := NewRedisNotifier(&redisclient.Client{Client: raw})
	ctx, cancel := context.WithCancel(context.Background())

	signals, err := notifier.Watch(ctx, 42)
	require.NoError(t, err)

	require.NoError(t, notifier.Notify(context.Background(), 42))
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a status signal")
	}

	cancel()
	select {
	case _, ok := <-signals:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("watch goroutine did not exit")
	}
}
