package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/openclaw/walletlink/internal/bot"
	"github.com/openclaw/walletlink/internal/config"
	"github.com/openclaw/walletlink/internal/database"
	"github.com/openclaw/walletlink/internal/handler"
	"github.com/openclaw/walletlink/internal/jobs"
	"github.com/openclaw/walletlink/internal/metrics"
	"github.com/openclaw/walletlink/internal/middleware"
	"github.com/openclaw/walletlink/internal/provider"
	"github.com/openclaw/walletlink/internal/ratelimit"
	"github.com/openclaw/walletlink/internal/redis"
	"github.com/openclaw/walletlink/internal/render"
	"github.com/openclaw/walletlink/internal/repository"
	"github.com/openclaw/walletlink/internal/service"
	"github.com/openclaw/walletlink/internal/session"
	"github.com/openclaw/walletlink/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	principalRepo := repository.NewPrincipalRepository(db.DB)
	referralRepo := repository.NewReferralRepository(db.DB)

	ledger := service.NewLedgerService(db, principalRepo, referralRepo, service.LedgerConfig{
		StartingBalance:  cfg.StartingBalance,
		ReferralCredit:   cfg.ReferralCredit,
		ReferralLinkBase: cfg.ReferralLinkBase(),
	})

	m := metrics.New()
	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	limiter := ratelimit.NewRedisLimiter(redisClient.Client)

	sessions := session.NewManager(
		session.Config{
			Timeout:      cfg.SessionTimeout(),
			PollInterval: cfg.PollInterval(),
			CallTimeout:  cfg.ProviderCallTimeout(),
			WriteTimeout: config.LedgerWriteTimeout,
			Testnet:      cfg.Testnet,
		},
		provider.NewBridgeClient(cfg.ProviderURL),
		render.NewQRRenderer(),
		ledger,
		session.WithWatcher(provider.NewRedisNotifier(redisClient)),
		session.WithPublisher(broker),
		session.WithMetrics(m),
	)
	defer sessions.Stop()

	tg, err := bot.NewClient(cfg.TelegramToken, cfg.TelegramDebug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start telegram bot")
	}
	botHandler := bot.NewHandler(tg, ledger, sessions, limiter, m, bot.Config{
		SubscriptionChannel: cfg.SubscriptionChannel,
		ConnectLimit:        cfg.ConnectRateLimitPerMin,
	})

	opsAuth := middleware.NewOpsAuthMiddleware(cfg.OpsTokenHash, limiter)
	opsRateLimit := middleware.NewIPRateLimitMiddleware(limiter, config.OpsRateLimit, config.OpsRateLimitWindow, "ops")
	securityHeaders := middleware.NewSecurityHeadersMiddleware(os.Getenv("FLY_APP_NAME") != "")

	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})
	principalHandler := handler.NewPrincipalHandler(ledger, sessions)
	sessionHandler := handler.NewSessionHandler(sessions)
	statsHandler := handler.NewStatsHandler(ledger, sessions, broker.TotalClients)
	eventsHandler := handler.NewEventsHandler(broker, sessions)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization"},
			MaxAge:         300,
		}))
		r.Use(opsRateLimit.Handler)
		r.Use(opsAuth.Handler)

		// The event stream outlives the request timeout.
		r.Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/principals", principalHandler.Routes())
			r.Mount("/sessions", sessionHandler.Routes())
			r.Get("/stats", statsHandler.ServeHTTP)
		})
	})

	cleanupJob := jobs.NewCleanupJob(sessions, cfg.SessionRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	statsJob := jobs.NewStatsJob(ledger, m, config.StatsJobInterval)
	statsJob.Start()
	defer statsJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("username", tg.Username()).Msg("starting bot")
		botHandler.Run(gctx, tg.Updates())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		tg.StopUpdates()
		botHandler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
