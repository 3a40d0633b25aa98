package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/auth"
	"readalong/internal/config"
	"readalong/internal/content"
	"readalong/internal/database"
	"readalong/internal/handlers"
	"readalong/internal/logging"
	"readalong/internal/realtime"
	"readalong/internal/repository"
	"readalong/internal/security"
	"readalong/internal/service"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	channelReportInterval  = time.Hour
	shutdownTimeout        = 10 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("READALONG_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fatal := zerolog.New(os.Stderr)
			fatal.Fatal().Err(err).Str("path", *configPath).Msg("config_load_failed")
		}
	}

	log := logging.New(os.Stderr, cfg.LogLevel, logging.Format(cfg.LogFormat))
	if cfg.JWTSecret == config.DefaultJWTSecret {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := handlers.NewStartupStatus(
		handlers.StepDatabase,
		handlers.StepMigrations,
		handlers.StepBadWords,
		handlers.StepContent,
		handlers.StepServices,
	)

	// Serve the health endpoint while initializing, then swap in the API.
	handler := &swappableHandler{}
	handler.Store(startupMux(status))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server_starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	app, err := initialize(ctx, cfg, status, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup_failed")
	}
	defer app.db.Close()

	handler.Store(app.router)
	status.MarkReady()
	log.Info().Msg("server_ready")

	go app.limiter.RunCleanup(ctx, limiterCleanupInterval)
	go reportChannels(ctx, app.hub, log)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server_failed")
		}
	case <-ctx.Done():
	}

	log.Info().Msg("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown_failed")
	}
}

type application struct {
	db      *database.DB
	hub     *realtime.Hub
	limiter *security.RateLimiter
	router  http.Handler
}

// initialize performs the startup steps in order, reporting each one.
func initialize(ctx context.Context, cfg *config.Config, status *handlers.StartupStatus, log zerolog.Logger) (*application, error) {
	status.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	status.CompleteStep(handlers.StepDatabase)
	log.Info().Str("type", cfg.DatabaseType).Msg("database_connected")

	status.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	status.CompleteStep(handlers.StepMigrations)

	status.SetCurrentStep(handlers.StepBadWords)
	var names service.NameFilter
	if cfg.FilterDisplayNames {
		if err := db.SeedBadWords(ctx, database.BadWordsURL); err != nil {
			log.Warn().Err(err).Msg("bad_words_seed_failed")
		}
		names = db
	}
	status.CompleteStep(handlers.StepBadWords)

	status.SetCurrentStep(handlers.StepContent)
	library, err := content.LoadFile(cfg.ContentPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	status.CompleteStep(handlers.StepContent)
	log.Info().Int("passages", len(library.List())).Msg("passages_loaded")

	status.SetCurrentStep(handlers.StepServices)
	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, log)
	if err != nil {
		log.Warn().Err(err).Msg("email_disabled")
		emailService, _ = service.NewEmailService(ctx, "", "", "", log)
	}

	authService := service.NewAuthService(
		repository.NewUserRepository(db),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		names,
		emailService,
		log,
	)
	profileService := service.NewProfileService(db, names, emailService, log)
	hub := realtime.NewHub(log)
	limiter := security.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	status.CompleteStep(handlers.StepServices)

	router := handlers.NewRouter(handlers.Deps{
		Auth:     authService,
		Profiles: profileService,
		Hub:      hub,
		Passages: library,
		Limiter:  limiter,
		Status:   status,
		Logger:   log,
	})

	return &application{db: db, hub: hub, limiter: limiter, router: router}, nil
}

func startupMux(status *handlers.StartupStatus) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", status.Health(nil))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "starting up", http.StatusServiceUnavailable)
	})
	return mux
}

type swappableHandler struct {
	current atomic.Value
}

func (h *swappableHandler) Store(next http.Handler) {
	h.current.Store(&next)
}

func (h *swappableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*h.current.Load().(*http.Handler)).ServeHTTP(w, r)
}

// reportChannels logs the number of live session channels once an hour.
func reportChannels(ctx context.Context, hub *realtime.Hub, log zerolog.Logger) {
	ticker := time.NewTicker(channelReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Int("channels", hub.Channels()).Msg("channel_report")
		}
	}
}
