package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionPattern matches every per-principal session channel.
const SessionPattern = "sessions:*"

func SessionChannel(principalID int64) string {
	return fmt.Sprintf("sessions:%d", principalID)
}

// WalletStatusChannel is where the connector sidecar announces that a
// principal's connection status may have changed.
func WalletStatusChannel(principalID int64) string {
	return fmt.Sprintf("wallet-status:%d", principalID)
}
