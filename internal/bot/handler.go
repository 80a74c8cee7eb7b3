package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/audit"
	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/metrics"
	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/ratelimit"
	"github.com/openclaw/walletlink/internal/service"
)

const (
	connectWindow = time.Minute

	// Bound on one update's synchronous work, pairing included.
	updateTimeout = 30 * time.Second
)

type Ledger interface {
	Onboard(ctx context.Context, params service.OnboardParams) (service.OnboardResult, error)
	GetPrincipal(ctx context.Context, id int64) (*model.Principal, error)
	SetSubscribed(ctx context.Context, id int64, subscribed bool) error
	ReferralStats(ctx context.Context, id int64) (*model.ReferralStats, error)
}

type Sessions interface {
	ListWallets(ctx context.Context, principalID int64) ([]model.WalletDescriptor, error)
	BeginConnection(ctx context.Context, principalID int64, walletName string) (*model.PairingArtifact, error)
	AwaitOutcome(ctx context.Context, principalID int64) (model.Outcome, error)
	SubmitManualAddress(ctx context.Context, principalID int64, address string) (string, error)
	Snapshot(principalID int64) (model.SessionSnapshot, bool)
}

type Config struct {
	// SubscriptionChannel is the @username of the gating channel. Empty
	// disables the gate.
	SubscriptionChannel string
	// ConnectLimit caps connection attempts per principal per minute.
	ConnectLimit int
}

// Handler turns Telegram updates into ledger and session calls. The chat id
// of a private chat equals the user id, so replies go to the principal id.
type Handler struct {
	sender   Sender
	ledger   Ledger
	sessions Sessions
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics
	clock    clock.Clock
	cfg      Config

	mu            sync.Mutex
	awaitingInput map[int64]struct{}

	gm *fn.GoroutineManager
}

func NewHandler(
	sender Sender,
	ledger Ledger,
	sessions Sessions,
	limiter ratelimit.Limiter,
	m *metrics.Metrics,
	cfg Config,
) *Handler {
	return &Handler{
		sender:        sender,
		ledger:        ledger,
		sessions:      sessions,
		limiter:       limiter,
		metrics:       m,
		clock:         clock.NewDefaultClock(),
		cfg:           cfg,
		awaitingInput: make(map[int64]struct{}),
		gm:            fn.NewGoroutineManager(),
	}
}

// Run dispatches updates until ctx is done or the channel closes. Each update
// is handled on its own goroutine.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.gm.Go(ctx, func(ctx context.Context) {
				h.HandleUpdate(ctx, update)
			})
		}
	}
}

// Stop waits for in-flight updates and outcome watchers.
func (h *Handler) Stop() {
	h.gm.Stop()
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	switch {
	case update.Message != nil && update.Message.From != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		h.metrics.BotUpdate("callback")
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From

	if msg.IsCommand() {
		h.metrics.BotUpdate("command")
		if msg.Command() == "start" {
			h.start(ctx, from, msg.CommandArguments())
			return
		}
		h.reply(ctx, from.ID, textUseStart)
		return
	}

	h.metrics.BotUpdate("message")
	if h.isAwaitingInput(from.ID) {
		h.manualAddress(ctx, from.ID, msg.Text)
		return
	}
	h.reply(ctx, from.ID, textUseStart)
}

func (h *Handler) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	principalID := query.From.ID
	data := query.Data

	log.Debug().Int64("principalId", principalID).Str("data", data).Msg("callback received")

	switch {
	case data == cbCheckSubscription:
		h.checkSubscription(ctx, query)
	case data == cbStartConnect:
		h.answer(ctx, query.ID, "", false)
		h.showWallets(ctx, principalID)
	case data == cbManualInput:
		h.answer(ctx, query.ID, "", false)
		h.setAwaitingInput(principalID, true)
		h.send(ctx, principalID, textManualPrompt, cancelKeyboard())
	case data == cbCancelManual:
		h.answer(ctx, query.ID, "", false)
		h.setAwaitingInput(principalID, false)
		h.showWallets(ctx, principalID)
	case data == cbReferralProgram:
		h.answer(ctx, query.ID, "", false)
		h.referralProgram(ctx, principalID)
	case strings.HasPrefix(data, cbConnectPrefix):
		h.connect(ctx, query, strings.TrimPrefix(data, cbConnectPrefix))
	default:
		h.answer(ctx, query.ID, "", false)
		log.Warn().Int64("principalId", principalID).Str("data", data).Msg("unknown callback")
	}
}

// start onboards the principal and shows either the subscription prompt or
// the intro.
func (h *Handler) start(ctx context.Context, from *tgbotapi.User, token string) {
	result, err := h.ledger.Onboard(ctx, service.OnboardParams{
		ID:            from.ID,
		Username:      from.UserName,
		DisplayName:   strings.TrimSpace(from.FirstName + " " + from.LastName),
		ReferrerToken: token,
	})
	if err != nil {
		log.Error().Err(err).Int64("principalId", from.ID).Msg("failed to onboard principal")
		h.reply(ctx, from.ID, textTryLater)
		return
	}
	if result.Referred {
		log.Info().Int64("principalId", from.ID).Str("token", token).Msg("principal joined by referral")
	}

	h.setAwaitingInput(from.ID, false)
	h.intro(ctx, from.ID, h.subscribed(ctx, from.ID))
}

func (h *Handler) checkSubscription(ctx context.Context, query *tgbotapi.CallbackQuery) {
	principalID := query.From.ID

	if !h.subscribed(ctx, principalID) {
		h.answer(ctx, query.ID, fmt.Sprintf(textNotSubscribed, h.cfg.SubscriptionChannel), true)
		return
	}
	h.answer(ctx, query.ID, "", false)
	h.intro(ctx, principalID, true)
}

// subscribed checks the gate. Lookup failures count as not subscribed.
func (h *Handler) subscribed(ctx context.Context, principalID int64) bool {
	if h.cfg.SubscriptionChannel == "" {
		return true
	}
	ok, err := h.sender.IsMember(ctx, h.cfg.SubscriptionChannel, principalID)
	if err != nil {
		log.Warn().Err(err).
			Int64("principalId", principalID).
			Str("channel", h.cfg.SubscriptionChannel).
			Msg("subscription check failed")
		return false
	}
	return ok
}

func (h *Handler) intro(ctx context.Context, principalID int64, subscribed bool) {
	principal, err := h.ledger.GetPrincipal(ctx, principalID)
	if err != nil {
		log.Error().Err(err).Int64("principalId", principalID).Msg("failed to load principal")
		h.reply(ctx, principalID, textTryLater)
		return
	}

	if subscribed != principal.Subscribed {
		if err := h.ledger.SetSubscribed(ctx, principalID, subscribed); err != nil {
			log.Error().Err(err).Int64("principalId", principalID).Msg("failed to store subscription")
		}
	}

	if !subscribed {
		h.send(ctx, principalID, textSubscribe, subscribeKeyboard(h.cfg.SubscriptionChannel))
		return
	}
	h.send(ctx, principalID, introText(principal), introKeyboard(principal))
}

func (h *Handler) showWallets(ctx context.Context, principalID int64) {
	wallets, err := h.sessions.ListWallets(ctx, principalID)
	if err != nil {
		log.Error().Err(err).Int64("principalId", principalID).Msg("failed to list wallets")
		h.reply(ctx, principalID, textUnavailable)
		return
	}
	h.send(ctx, principalID, textChooseWallet, walletKeyboard(wallets))
}

func (h *Handler) connect(ctx context.Context, query *tgbotapi.CallbackQuery, walletName string) {
	principalID := query.From.ID

	if h.cfg.ConnectLimit > 0 {
		res := h.limiter.Allow(ctx, fmt.Sprintf("connect:%d", principalID), h.cfg.ConnectLimit, connectWindow)
		if !res.Allowed {
			audit.Log(ctx, audit.Event{
				Type:        audit.EventRateLimitExceed,
				PrincipalID: principalID,
				Details:     map[string]interface{}{"action": "connect"},
			})
			h.answer(ctx, query.ID, fmt.Sprintf(textTooManyAttempts, res.RetryAfter(h.clock.Now())), true)
			return
		}
	}
	h.answer(ctx, query.ID, "", false)

	artifact, err := h.sessions.BeginConnection(ctx, principalID, walletName)
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.ErrCodeUnknownWallet):
		h.reply(ctx, principalID, fmt.Sprintf(textUnknownWallet, walletName))
		return
	case apperrors.HasCode(err, apperrors.ErrCodeProviderUnavailable):
		log.Warn().Err(err).Int64("principalId", principalID).Msg("provider unavailable")
		h.reply(ctx, principalID, textUnavailable)
		return
	default:
		log.Error().Err(err).Int64("principalId", principalID).Str("wallet", walletName).Msg("failed to begin connection")
		h.reply(ctx, principalID, textTryLater)
		return
	}

	photo := tgbotapi.NewPhoto(principalID, tgbotapi.FileBytes{
		Name:  "pairing.png",
		Bytes: artifact.Image,
	})
	photo.Caption = fmt.Sprintf(textScanQR, html.EscapeString(artifact.URI))
	photo.ParseMode = tgbotapi.ModeHTML
	if err := h.sender.Send(ctx, photo); err != nil {
		log.Error().Err(err).Int64("principalId", principalID).Msg("failed to send pairing code")
	}

	h.gm.Go(context.Background(), func(ctx context.Context) {
		h.notifyOutcome(ctx, principalID, artifact.SessionID)
	})
}

// notifyOutcome reports the session's terminal outcome to the principal.
// Superseded sessions stay silent; the session that replaced them reports.
func (h *Handler) notifyOutcome(ctx context.Context, principalID int64, sessionID string) {
	outcome, err := h.sessions.AwaitOutcome(ctx, principalID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Int64("principalId", principalID).Msg("failed to await outcome")
		}
		return
	}
	if outcome.Cancelled {
		return
	}
	if snap, ok := h.sessions.Snapshot(principalID); !ok || snap.ID != sessionID {
		return
	}

	if outcome.Kind == model.OutcomeFailed {
		log.Warn().Int64("principalId", principalID).Str("reason", outcome.Reason).Msg("connection failed")
	}
	h.reply(ctx, principalID, outcomeText(outcome))
}

func (h *Handler) manualAddress(ctx context.Context, principalID int64, text string) {
	address, err := h.sessions.SubmitManualAddress(ctx, principalID, text)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidAddress) {
			h.send(ctx, principalID, textManualInvalid, cancelKeyboard())
			return
		}
		log.Error().Err(err).Int64("principalId", principalID).Msg("failed to store manual address")
		h.reply(ctx, principalID, textTryLater)
		return
	}

	h.setAwaitingInput(principalID, false)
	h.reply(ctx, principalID, fmt.Sprintf(textManualSaved, html.EscapeString(address)))
}

func (h *Handler) referralProgram(ctx context.Context, principalID int64) {
	stats, err := h.ledger.ReferralStats(ctx, principalID)
	if err != nil {
		log.Error().Err(err).Int64("principalId", principalID).Msg("failed to load referral stats")
		h.reply(ctx, principalID, textTryLater)
		return
	}
	h.reply(ctx, principalID, fmt.Sprintf(textReferral, html.EscapeString(stats.Link), stats.InvitedCount))
}

func (h *Handler) isAwaitingInput(principalID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.awaitingInput[principalID]
	return ok
}

func (h *Handler) setAwaitingInput(principalID int64, awaiting bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if awaiting {
		h.awaitingInput[principalID] = struct{}{}
	} else {
		delete(h.awaitingInput, principalID)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if err := h.sender.Send(ctx, msg); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("failed to send message")
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if err := h.sender.Send(ctx, msg); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("failed to send message")
	}
}

func (h *Handler) answer(ctx context.Context, queryID, text string, alert bool) {
	cb := tgbotapi.NewCallback(queryID, text)
	cb.ShowAlert = alert
	if err := h.sender.Answer(ctx, cb); err != nil {
		log.Warn().Err(err).Str("queryId", queryID).Msg("failed to answer callback")
	}
}
