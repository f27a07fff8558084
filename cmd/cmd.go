package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dance-match-backend/internal/config"
	"dance-match-backend/internal/handlers"
	"dance-match-backend/internal/middleware"
	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	"dance-match-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func Run() {
	configPath := "config.yaml"
	if p := os.Getenv("MATCHD_CONFIG"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, ping, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer closeStorage()

	feed, closeFeed, err := openFeed(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("feed", cfg.Hub.Feed).Msg("Failed to open change feed")
	}
	defer closeFeed()

	policy, err := services.PolicyByName(cfg.Matching.Policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to select pairing policy")
	}
	retry := services.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	// Initialize services
	hub := services.NewHub(services.NewStateLoader(repos, retry), feed, cfg.Retry.MaxInterval)
	chats := services.NewChatProvisioner(repos.Chat, hub, retry)
	promoter := services.NewMatchPromoter(repos, chats, hub, services.MatchPromoterOptions{
		Policy:   policy,
		Retry:    retry,
		MatchTTL: cfg.Matching.MatchTTL,
	})
	interestService := services.NewInterestService(repos, promoter, hub, retry)
	userService := services.NewUserService(repos.User, cfg.JWT.Secret, retry)

	// Initialize handlers
	r := newRouter(routerDeps{
		users:     handlers.NewUserHandler(userService),
		interests: handlers.NewInterestHandler(interestService),
		matches:   handlers.NewMatchHandler(promoter),
		chats:     handlers.NewChatHandler(chats, promoter),
		health:    handlers.NewHealthHandler(ping, hub),
		ws:        handlers.NewWebSocketHandler(hub, userService, interestService),
		auth:      middleware.AuthMiddleware(userService),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return promoter.RunReconciler(gctx, cfg.Matching.ReconcileInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}

// openStorage builds the repositories of the configured driver. ping is nil
// for the memory driver.
func openStorage(ctx context.Context, cfg *config.Config) (*repository.Repositories, func(context.Context) error, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		seedMemoryStore(store, cfg.Storage.Seed)
		log.Info().
			Int("events", len(cfg.Storage.Seed.Events)).
			Int("profiles", len(cfg.Storage.Seed.Profiles)).
			Msg("Using in-memory storage")
		return repository.NewMemoryRepositories(store), nil, func() {}, nil
	default:
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		log.Info().Msg("Database connection established")

		if cfg.Database.Migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, nil, err
			}
			log.Info().Msg("Database schema applied")
		}
		return repository.NewRepositories(db), db.Ping, db.Close, nil
	}
}

func seedMemoryStore(store *repository.MemoryStore, seed config.SeedConfig) {
	for _, e := range seed.Events {
		store.PutEvent(models.Event{ID: e.ID, Title: e.Title, OrganizerIDs: e.OrganizerIDs})
	}
	for _, p := range seed.Profiles {
		store.PutProfile(models.Profile{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			DanceStyles: p.DanceStyles,
			Level:       p.Level,
			City:        p.City,
		})
	}
}

func openFeed(ctx context.Context, cfg *config.Config) (services.Feed, func(), error) {
	if cfg.Hub.Feed != "redis" {
		return services.LocalFeed{}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The feed reconnects on its own; start degraded instead of failing.
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis is not reachable yet")
	}
	retry := services.RetryPolicy{
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	feed := services.NewRedisFeed(rdb, cfg.Redis.Channel, cfg.Hub.MaxReconnectAttempts, retry)
	return feed, func() { rdb.Close() }, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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
