package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/walletlink/internal/redis"
)

// RedisNotifier implements Watcher on top of Redis pub/sub. The connector
// sidecar publishes on WalletStatusChannel whenever a pairing changes.
type RedisNotifier struct {
	redis *redisclient.Client
}

func NewRedisNotifier(client *redisclient.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

// Watch subscribes until ctx ends. Bursts of messages collapse into a single
// pending signal.
func (n *RedisNotifier) Watch(ctx context.Context, principalID int64) (<-chan struct{}, error) {
	channel := redisclient.WalletStatusChannel(principalID)
	pubsub := n.redis.Subscribe(ctx, channel)

	// Receive blocks until the subscription is confirmed so no notification
	// published after Watch returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	signals := make(chan struct{}, 1)
	msgs := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		defer close(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case signals <- struct{}{}:
				default:
				}
			}
		}
	}()

	log.Debug().Int64("principalId", principalID).Str("channel", channel).Msg("watching wallet status")
	return signals, nil
}

// Notify publishes a status change signal for principalID.
func (n *RedisNotifier) Notify(ctx context.Context, principalID int64) error {
	return n.redis.Publish(ctx, redisclient.WalletStatusChannel(principalID), "changed").Err()
}
