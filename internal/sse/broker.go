package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/model"
	redisclient "github.com/openclaw/walletlink/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	// AllPrincipals subscribes a client to every principal's sessions.
	AllPrincipals int64 = 0

	EventTypeSession = "session"

	clientBuffer = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	PrincipalID int64
	Events      chan Event
	Done        chan struct{}
}

type topic struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Broker fans session events published on Redis out to SSE clients. One
// Redis subscription is held per topic while it has clients.
type Broker struct {
	redis  *redisclient.Client
	topics map[int64]*topic
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		topics: make(map[int64]*topic),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(principalID int64) *Client {
	client := &Client{
		PrincipalID: principalID,
		Events:      make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
	}

	b.mu.Lock()
	t, ok := b.topics[principalID]
	if !ok {
		ctx, cancel := context.WithCancel(b.ctx)
		t = &topic{clients: make(map[*Client]bool), cancel: cancel}
		b.topics[principalID] = t

		b.wg.Add(1)
		go b.subscribeToRedis(ctx, principalID)
	}
	t.clients[client] = true
	clientCount := len(t.clients)
	b.mu.Unlock()

	log.Info().
		Int64("principalId", principalID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[client.PrincipalID]
	if !ok || !t.clients[client] {
		return
	}
	delete(t.clients, client)
	close(client.Done)

	if len(t.clients) == 0 {
		t.cancel()
		delete(b.topics, client.PrincipalID)
	}

	log.Info().
		Int64("principalId", client.PrincipalID).
		Int("clientCount", len(t.clients)).
		Msg("sse client unsubscribed")
}

// PublishSession announces a session transition on the principal's channel.
func (b *Broker) PublishSession(ctx context.Context, ev model.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	return b.Publish(ctx, ev.PrincipalID, Event{Type: EventTypeSession, Data: data})
}

func (b *Broker) Publish(ctx context.Context, principalID int64, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(principalID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, principalID int64) {
	defer b.wg.Done()

	var pubsub *redis.PubSub
	if principalID == AllPrincipals {
		pubsub = b.redis.PSubscribe(ctx, redisclient.SessionPattern)
	} else {
		pubsub = b.redis.Subscribe(ctx, redisclient.SessionChannel(principalID))
	}
	defer pubsub.Close()

	log.Debug().
		Int64("principalId", principalID).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(principalID, event)
		}
	}
}

func (b *Broker) broadcast(principalID int64, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[principalID]
	if !ok {
		return
	}
	for client := range t.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Int64("principalId", principalID).
				Msg("client event buffer full, dropping event")
		}
	}
}

// Close disconnects every client and waits for the Redis subscriptions to end.
func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	for _, t := range b.topics {
		for client := range t.clients {
			close(client.Done)
		}
	}
	b.topics = make(map[int64]*topic)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Broker) ClientCount(principalID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if t, ok := b.topics[principalID]; ok {
		return len(t.clients)
	}
	return 0
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, t := range b.topics {
		total += len(t.clients)
	}
	return total
}
