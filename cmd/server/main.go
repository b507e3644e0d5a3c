package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"go-dalil/internal/chat"
	"go-dalil/internal/config"
	"go-dalil/internal/db"
	"go-dalil/internal/health"
	"go-dalil/internal/listing"
	myMiddleware "go-dalil/internal/middleware"
	"go-dalil/internal/profile"
	"go-dalil/internal/query"
	"go-dalil/internal/realtime"
)

const (
	pruneInterval = time.Minute
	pruneMaxAge   = 10 * time.Minute
)

func main() {
	// 1. Config & Flags
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Database schema initialized")

	// 3. Change feed (Redis, NATS or in-process)
	var (
		redisClient *redis.Client
		nc          *nats.Conn
		changes     realtime.Feed
	)
	switch cfg.Realtime.Driver {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
		changes = realtime.NewRedisFeed(redisClient, cfg.Realtime.ChannelPrefix, logger)

	case "nats":
		nc, err = realtime.Connect(realtime.NATSConfig{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		logger.Info("Connected to NATS", "url", nc.ConnectedUrl())
		changes = realtime.NewNATSFeed(nc, cfg.Realtime.ChannelPrefix, logger)

	default:
		changes = realtime.NewMemoryFeed(logger)
	}
	defer changes.Close()

	// 4. Shared read cache
	cache := query.NewClient(query.WithStaleTime(cfg.Cache.StaleTime), query.WithLogger(logger))
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := cache.Prune(pruneMaxAge); n > 0 {
					logger.Debug("Pruned cache entries", "count", n, "remaining", cache.Len())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// 5. Profiles & auth
	profileService := profile.NewService(profile.NewRepository(database.Pool), cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	profileHandler := profile.NewHandler(profileService)
	authMiddleware := myMiddleware.NewAuthMiddleware(profileService)
	requireAdmin := myMiddleware.RequireRole(profileService, profile.RoleAdmin)

	// 6. Chat
	chatStore := chat.NewPostgresStore(database.Pool, changes)
	conversations := chat.NewConversationRepository(chatStore, cache)
	messages := chat.NewMessageRepository(chatStore, cache)
	synchronizer := chat.NewSynchronizer(changes, cache)
	defer synchronizer.Close()

	go func() {
		if err := synchronizer.Follow(ctx); err != nil {
			logger.Warn("Chat change feed unavailable", "error", err)
		}
	}()

	// The hub outlives ctx so open sockets can be counted and closed after
	// the listener stops.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := chat.NewHub()
	go hub.Run(hubCtx)
	chatHandler := chat.NewHandler(conversations, messages, synchronizer, hub)

	// 7. Listings
	listingService := listing.NewService(listing.NewPostgresStore(database.Pool, changes), cache)
	listingHandler := listing.NewHandler(listingService, profileService, profile.RoleAdmin)
	go func() {
		if err := listingService.Follow(ctx, changes); err != nil {
			logger.Warn("Listing change feed unavailable", "error", err)
		}
	}()

	checker := health.NewChecker(database.Pool, redisClient, nc)
	if !checker.IsHealthy(ctx) {
		logger.Warn("Starting with unreachable dependencies")
	}

	// 8. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Get("/health", checker.ServeHTTP)
	r.Get("/ready", checker.Ready)
	r.Get("/api/listings", listingHandler.List)
	r.With(authMiddleware.Optional).Get("/api/listings/{id}", listingHandler.Get)
	r.With(authMiddleware.Optional).Get("/api/providers/{id}/listings", listingHandler.ByProvider)
	r.Get("/api/categories", listingHandler.Categories)
	r.Get("/api/categories/counts", listingHandler.CategoryCounts)
	r.Get("/api/categories/{id}", listingHandler.Category)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/me", profileHandler.Me)
		r.Post("/api/me", profileHandler.Create)
		r.Patch("/api/me", profileHandler.Update)
		r.Get("/api/me/listings", listingHandler.Mine)
		r.Get("/api/profiles/search", profileHandler.Search)
		r.Get("/api/profiles/{id}", profileHandler.Get)

		r.Post("/api/listings", listingHandler.Create)
		r.Patch("/api/listings/{id}", listingHandler.Update)
		r.Delete("/api/listings/{id}", listingHandler.Delete)
		r.Post("/api/listings/{id}/reviews", listingHandler.AddReview)

		// Messaging: REST + WebSocket live views
		chatHandler.Routes(r)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/listings", listingHandler.AdminList)
			r.Patch("/listings/{id}/approval", listingHandler.SetApproval)
			r.Post("/categories", listingHandler.CreateCategory)
			r.Patch("/categories/{id}", listingHandler.UpdateCategory)
			r.Delete("/categories/{id}", listingHandler.DeleteCategory)
			r.Get("/profiles", profileHandler.AdminList)
		})
	})

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "addr", cfg.App.Addr, "realtime", cfg.Realtime.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...", "open_sockets", hub.Connected())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	stopHub()
	logger.Info("Server stopped")
}
