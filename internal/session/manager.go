// Package session runs wallet pairing sessions: one state machine and one
// poll loop per principal, with the connected address committed to the
// ledger exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/metrics"
	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/provider"
	"github.com/openclaw/walletlink/internal/render"
	"github.com/openclaw/walletlink/internal/util"
)

var (
	// ErrSessionCancelled is the failure reason of sessions that were
	// superseded, cancelled by an operator or stopped at shutdown.
	ErrSessionCancelled = errors.New("session cancelled")

	ErrStopped = errors.New("session manager stopped")
)

const (
	DefaultTimeout      = 180 * time.Second
	DefaultPollInterval = time.Second
	DefaultCallTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	publishTimeout = 2 * time.Second
)

// Ledger is the single write the session performs on success.
type Ledger interface {
	SetWalletAddress(ctx context.Context, principalID int64, address string) error
}

// Publisher receives every session state transition.
type Publisher interface {
	PublishSession(ctx context.Context, ev model.SessionEvent) error
}

type Config struct {
	Timeout      time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
	WriteTimeout time.Duration
	// Testnet selects the testnet flag of normalised addresses.
	Testnet bool
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithTicker replaces the poll ticker constructor.
func WithTicker(newTicker func(time.Duration) ticker.Ticker) Option {
	return func(m *Manager) { m.newTicker = newTicker }
}

func WithWatcher(w provider.Watcher) Option {
	return func(m *Manager) { m.watcher = w }
}

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

type Manager struct {
	cfg       Config
	factory   provider.Factory
	renderer  render.Renderer
	ledger    Ledger
	watcher   provider.Watcher
	publisher Publisher
	metrics   *metrics.Metrics
	clock     clock.Clock
	newTicker func(time.Duration) ticker.Ticker

	locks *keyedMutex
	gm    *fn.GoroutineManager

	mu       sync.RWMutex
	sessions map[int64]*Session
	stopping bool
}

func NewManager(cfg Config, factory provider.Factory, renderer render.Renderer, ledger Ledger, opts ...Option) *Manager {
	cfg.applyDefaults()

	m := &Manager{
		cfg:      cfg,
		factory:  factory,
		renderer: renderer,
		ledger:   ledger,
		clock:    clock.NewDefaultClock(),
		newTicker: func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		},
		locks:    newKeyedMutex(),
		gm:       fn.NewGoroutineManager(),
		sessions: make(map[int64]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListWallets returns the provider's wallet list for the principal. A live
// session's handle is reused; otherwise a short-lived handle is opened.
func (m *Manager) ListWallets(ctx context.Context, principalID int64) ([]model.WalletDescriptor, error) {
	unlock := m.locks.lock(principalID)
	defer unlock()

	if s := m.live(principalID); s != nil {
		return m.fetchWallets(ctx, s.handle)
	}

	handle, err := m.factory.New(principalID)
	if err != nil {
		m.metrics.ProviderError()
		return nil, apperrors.ProviderUnavailable(err)
	}
	defer m.closeHandle(principalID, handle)

	return m.fetchWallets(ctx, handle)
}

// BeginConnection starts pairing principalID with the named wallet. A live
// session for the same principal is cancelled, and its handle released,
// before the new one is opened.
func (m *Manager) BeginConnection(ctx context.Context, principalID int64, walletName string) (*model.PairingArtifact, error) {
	if m.isStopping() {
		return nil, apperrors.Internal("Session manager is shutting down").WithCause(ErrStopped)
	}

	unlock := m.locks.lock(principalID)
	defer unlock()

	var (
		handle  provider.Provider
		wallets []model.WalletDescriptor
		err     error
	)
	if old := m.live(principalID); old != nil {
		wallets, err = m.fetchWallets(ctx, old.handle)
	} else {
		handle, err = m.factory.New(principalID)
		if err != nil {
			m.metrics.ProviderError()
			return nil, apperrors.ProviderUnavailable(err)
		}
		wallets, err = m.fetchWallets(ctx, handle)
	}
	if err != nil {
		if handle != nil {
			m.closeHandle(principalID, handle)
		}
		return nil, err
	}

	wallet, ok := provider.FindWallet(wallets, walletName)
	if !ok {
		if handle != nil {
			m.closeHandle(principalID, handle)
		}
		log.Info().
			Int64("principalId", principalID).
			Str("wallet", walletName).
			Msg("rejected unknown wallet")
		return nil, apperrors.UnknownWallet(walletName)
	}

	if prev := m.current(principalID); prev != nil {
		m.cancelSession(prev, "superseded")
	}

	if handle == nil {
		handle, err = m.factory.New(principalID)
		if err != nil {
			m.metrics.ProviderError()
			return nil, apperrors.ProviderUnavailable(err)
		}
	}

	s := newSession(uuid.NewString(), principalID, wallet, handle, m.clock.Now(), m.cfg.Timeout)
	m.store(s)
	m.resolve(s, EventBegin, model.Outcome{})
	m.metrics.SessionStarted()

	uri, err := m.initiate(ctx, s)
	if err != nil {
		m.metrics.ProviderError()
		m.abandon(s, model.Failed(fmt.Sprintf("initiate: %v", err)))
		if errors.Is(err, provider.ErrWalletGone) {
			return nil, apperrors.UnknownWallet(walletName)
		}
		return nil, apperrors.ProviderUnavailable(err)
	}

	image, err := m.renderer.Render(uri)
	if err != nil {
		m.abandon(s, model.Failed(fmt.Sprintf("render: %v", err)))
		return nil, apperrors.Internal("Failed to render pairing code").WithCause(err)
	}

	m.resolve(s, EventURIIssued, model.Outcome{})

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	started := m.gm.Go(pollCtx, func(ctx context.Context) {
		m.poll(ctx, s)
	})
	if !started {
		cancel()
		m.abandon(s, cancelledOutcome())
		return nil, apperrors.Internal("Session manager is shutting down").WithCause(ErrStopped)
	}

	log.Info().
		Str("sessionId", s.id).
		Int64("principalId", principalID).
		Str("wallet", wallet.Name).
		Time("deadline", s.deadline).
		Msg("pairing started")

	return &model.PairingArtifact{
		SessionID: s.id,
		Wallet:    wallet.Name,
		URI:       uri,
		Image:     image,
		Deadline:  s.deadline,
	}, nil
}

// AwaitOutcome blocks until the principal's current session is terminal.
func (m *Manager) AwaitOutcome(ctx context.Context, principalID int64) (model.Outcome, error) {
	s := m.current(principalID)
	if s == nil {
		return model.Outcome{}, apperrors.SessionNotFound()
	}

	select {
	case <-s.done:
		return s.Outcome(), nil
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

// Cancel stops the principal's live session. The session resolves as a
// cancelled failure and never writes to the ledger.
func (m *Manager) Cancel(principalID int64) error {
	unlock := m.locks.lock(principalID)
	defer unlock()

	s := m.live(principalID)
	if s == nil {
		return apperrors.SessionNotFound()
	}
	m.cancelSession(s, "cancelled")
	return nil
}

// SubmitManualAddress stores an address typed in by the principal. Any live
// session is cancelled first so it cannot overwrite the typed address.
func (m *Manager) SubmitManualAddress(ctx context.Context, principalID int64, address string) (string, error) {
	normalized, err := util.NormalizeTonAddress(strings.TrimSpace(address), m.cfg.Testnet)
	if err != nil {
		return "", apperrors.InvalidAddress(strings.TrimPrefix(err.Error(), util.ErrInvalidAddress.Error()+": "))
	}

	unlock := m.locks.lock(principalID)
	defer unlock()

	if s := m.live(principalID); s != nil {
		m.cancelSession(s, "manual address submitted")
	}

	if err := m.ledger.SetWalletAddress(ctx, principalID, normalized); err != nil {
		return "", fmt.Errorf("store manual wallet address: %w", err)
	}

	log.Info().
		Int64("principalId", principalID).
		Str("address", normalized).
		Msg("manual wallet address stored")
	return normalized, nil
}

func (m *Manager) Snapshot(principalID int64) (model.SessionSnapshot, bool) {
	s := m.current(principalID)
	if s == nil {
		return model.SessionSnapshot{}, false
	}
	return s.Snapshot(), true
}

// Live returns the number of sessions still awaiting pairing or polling.
func (m *Manager) Live() int {
	n := 0
	for _, s := range m.all() {
		if !s.terminal() {
			n++
		}
	}
	return n
}

// Prune drops terminal sessions that ended more than retention ago.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := m.clock.Now().Add(-retention)

	// Session locks are taken without m.mu held.
	var stale []*Session
	for _, s := range m.all() {
		if s.endedBefore(cutoff) && s.released() {
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for _, s := range stale {
		// Replaced by a newer session since the scan.
		if m.sessions[s.principalID] != s {
			continue
		}
		delete(m.sessions, s.principalID)
		pruned++
	}
	return pruned
}

// Stop cancels every live session and waits for their poll loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	m.gm.Stop()
	log.Info().Msg("session manager stopped")
}

func (m *Manager) poll(ctx context.Context, s *Session) {
	defer close(s.exited)
	defer m.closeHandle(s.principalID, s.handle)

	t := m.newTicker(m.cfg.PollInterval)
	t.Resume()
	defer t.Stop()

	var notify <-chan struct{}
	if m.watcher != nil {
		ch, err := m.watcher.Watch(ctx, s.principalID)
		if err != nil {
			log.Warn().Err(err).
				Str("sessionId", s.id).
				Msg("status notifications unavailable, polling only")
		} else {
			notify = ch
		}
	}

	expired := m.clock.TickAfter(s.deadline.Sub(m.clock.Now()))

	for {
		select {
		case <-ctx.Done():
			m.resolve(s, EventCancel, cancelledOutcome())
			return

		case <-expired:
			m.resolve(s, EventDeadline, model.TimedOut())
			return

		case <-t.Ticks():

		case _, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
		}

		if !m.clock.Now().Before(s.deadline) {
			m.resolve(s, EventDeadline, model.TimedOut())
			return
		}
		if m.check(ctx, s) {
			return
		}
	}
}

// check queries the provider once and reports whether the session ended.
func (m *Manager) check(ctx context.Context, s *Session) bool {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	status, err := s.handle.Status(callCtx)
	cancel()

	// Cancelled mid-call: the loop observes ctx.Done next.
	if ctx.Err() != nil {
		return false
	}

	switch {
	case errors.Is(err, provider.ErrWalletGone):
		m.resolve(s, EventFailure, model.Failed(provider.ErrWalletGone.Error()))
		return true
	case err != nil:
		m.metrics.ProviderError()
		m.resolve(s, EventFailure, model.Failed(fmt.Sprintf("status: %v", err)))
		return true
	case !status.Connected || status.Address == "":
		return false
	}

	address, err := util.NormalizeTonAddress(status.Address, m.cfg.Testnet)
	if err != nil {
		log.Warn().Err(err).
			Str("sessionId", s.id).
			Str("address", status.Address).
			Msg("provider reported an unparseable address")
		m.resolve(s, EventFailure, model.Failed(err.Error()))
		return true
	}

	m.commit(s, address)
	return true
}

// commit writes the address once. The write runs without the session lock;
// s.writing marks it in flight, and cancellation waits for it, so a cancel
// either wins before the write or lands after the session is resolved.
func (m *Manager) commit(s *Session, address string) {
	s.mu.Lock()
	if s.state != model.SessionStatePolling {
		s.mu.Unlock()
		return
	}

	// The status call may have returned after the deadline passed.
	if !m.clock.Now().Before(s.deadline) {
		event, ok := m.applyLocked(s, EventDeadline, model.TimedOut())
		s.mu.Unlock()
		if ok {
			m.emit(event)
		}
		return
	}

	writing := make(chan struct{})
	s.writing = writing
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	err := m.ledger.SetWalletAddress(ctx, s.principalID, address)
	cancel()

	ev, outcome := EventConnected, model.Connected(address)
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", s.id).
			Int64("principalId", s.principalID).
			Msg("failed to store wallet address")
		ev, outcome = EventFailure, model.Failed(fmt.Sprintf("store wallet address: %v", err))
	}

	s.mu.Lock()
	event, ok := m.applyLocked(s, ev, outcome)
	s.writing = nil
	close(writing)
	s.mu.Unlock()

	if ok {
		m.emit(event)
	}
}

func (m *Manager) cancelSession(s *Session, cause string) {
	if m.resolveAfterWrite(s, EventCancel, cancelledOutcome()) {
		log.Info().
			Str("sessionId", s.id).
			Int64("principalId", s.principalID).
			Str("cause", cause).
			Msg("session cancelled")
	}
	s.cancel()
	<-s.exited
}

// resolveAfterWrite is resolve for callers outside the poll loop. It waits
// out an in-flight ledger write before applying ev.
func (m *Manager) resolveAfterWrite(s *Session, ev Event, outcome model.Outcome) bool {
	for {
		s.mu.Lock()
		if writing := s.writing; writing != nil {
			s.mu.Unlock()
			<-writing
			continue
		}
		event, ok := m.applyLocked(s, ev, outcome)
		s.mu.Unlock()

		if ok {
			m.emit(event)
		}
		return ok
	}
}

// abandon ends a session whose poll loop never started.
func (m *Manager) abandon(s *Session, outcome model.Outcome) {
	ev := EventFailure
	if outcome.Cancelled {
		ev = EventCancel
	}
	m.resolve(s, ev, outcome)
	m.closeHandle(s.principalID, s.handle)
	close(s.exited)
}

// resolve applies ev and publishes the transition. It reports false when
// the session no longer accepts ev, typically because it already ended.
func (m *Manager) resolve(s *Session, ev Event, outcome model.Outcome) bool {
	s.mu.Lock()
	event, ok := m.applyLocked(s, ev, outcome)
	s.mu.Unlock()

	if ok {
		m.emit(event)
	}
	return ok
}

func (m *Manager) applyLocked(s *Session, ev Event, outcome model.Outcome) (model.SessionEvent, bool) {
	next, err := transition(s.state, ev)
	if err != nil {
		log.Debug().Err(err).Str("sessionId", s.id).Msg("ignored session event")
		return model.SessionEvent{}, false
	}

	now := m.clock.Now()
	s.state = next
	if next.Terminal() {
		s.outcome = outcome
		s.endedAt = now
		close(s.done)
		m.metrics.SessionFinished(outcome)

		log.Info().
			Str("sessionId", s.id).
			Int64("principalId", s.principalID).
			Str("outcome", string(outcome.Kind)).
			Str("reason", outcome.Reason).
			Msg("session finished")
	}
	return s.eventLocked(now), true
}

func (m *Manager) emit(ev model.SessionEvent) {
	if m.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := m.publisher.PublishSession(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("sessionId", ev.SessionID).
			Str("state", string(ev.State)).
			Msg("failed to publish session event")
	}
}

func (m *Manager) fetchWallets(ctx context.Context, handle provider.Provider) ([]model.WalletDescriptor, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	wallets, err := handle.Wallets(callCtx)
	if err != nil {
		m.metrics.ProviderError()
		return nil, apperrors.ProviderUnavailable(err)
	}
	return wallets, nil
}

func (m *Manager) initiate(ctx context.Context, s *Session) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	return s.handle.Initiate(callCtx, s.wallet)
}

func (m *Manager) closeHandle(principalID int64, handle provider.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	defer cancel()

	if err := handle.Close(ctx); err != nil {
		log.Warn().Err(err).Int64("principalId", principalID).Msg("failed to release provider handle")
	}
}

func (m *Manager) store(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.principalID] = s
}

func (m *Manager) current(principalID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[principalID]
}

func (m *Manager) all() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) live(principalID int64) *Session {
	s := m.current(principalID)
	if s == nil || s.terminal() {
		return nil
	}
	return s
}

func (m *Manager) isStopping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

func cancelledOutcome() model.Outcome {
	outcome := model.Failed(ErrSessionCancelled.Error())
	outcome.Cancelled = true
	return outcome
}
