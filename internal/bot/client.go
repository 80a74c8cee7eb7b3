package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/openclaw/walletlink/internal/config"
)

// Sender is the outbound half of the Telegram API the handler needs.
type Sender interface {
	Send(ctx context.Context, c tgbotapi.Chattable) error
	Answer(ctx context.Context, cb tgbotapi.CallbackConfig) error
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// Client wraps the bot API. Every outbound call waits on a shared token
// bucket so bursts of outcome notifications stay under Telegram's limits.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func NewClient(token string, debug bool) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot api: %w", err)
	}
	api.Debug = debug

	// getUpdates fails while a webhook is set.
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn().Err(err).Msg("failed to delete webhook")
	}

	log.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(config.TelegramSendsPerSecond), config.TelegramSendBurst),
	}, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Updates starts long polling.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.api.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *Client) Send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Send(msg)
	return err
}

func (c *Client) Answer(ctx context.Context, cb tgbotapi.CallbackConfig) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(cb)
	return err
}

type chatMember struct {
	Status   string `json:"status"`
	IsMember bool   `json:"is_member"`
}

// IsMember reports whether userID currently belongs to channel.
func (c *Client) IsMember(ctx context.Context, channel string, userID int64) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	resp, err := c.api.MakeRequest("getChatMember", tgbotapi.Params{
		"chat_id": channel,
		"user_id": strconv.FormatInt(userID, 10),
	})
	if err != nil {
		return false, fmt.Errorf("getChatMember: %w", err)
	}

	var member chatMember
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return false, fmt.Errorf("decode chat member: %w", err)
	}
	return member.active(), nil
}

func (m chatMember) active() bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	}
	return false
}
