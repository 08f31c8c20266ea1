package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/core"
	applog "github.com/vovakirdan/socialchat-server/internal/log"
	"github.com/vovakirdan/socialchat-server/internal/presence"
	"github.com/vovakirdan/socialchat-server/internal/service/chat"
	"github.com/vovakirdan/socialchat-server/internal/service/friends"
	"github.com/vovakirdan/socialchat-server/internal/store"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/socialchat-server/internal/transport/http"
)

// App wires together storage, the chat core and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	notifier        *presence.RedisNotifier
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	var notifier presence.Notifier
	if cfg.RedisURL != "" {
		rn, err := presence.NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence notifier: %w", err)
		}
		a.notifier = rn
		notifier = rn
		logger.Info().Str("channel", presence.DefaultChannel).Msg("presence notifications enabled")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	a.hub = core.NewHub()
	registry := presence.NewRegistry(notifier, applog.Component(logger, "presence"))

	chatLog := applog.Component(logger, "chat")
	resolver := chat.NewResolver(st, a.hub, cfg.RequireGroupMembership, chatLog)
	chatService := chat.NewService(resolver, st, a.hub, chatLog)

	wsLog := applog.Component(logger, "ws")
	a.server = transporthttp.NewServer(transporthttp.Services{
		Auth:          authService,
		Friends:       friends.New(st),
		Users:         st,
		Presence:      registry,
		Authenticator: transporthttp.NewAuthenticator(authService, registry, a.hub, wsLog),
		Router:        transporthttp.NewEventRouter(chatService, a.hub, cfg.RateLimitPerMinute, wsLog),
	}, cfg, logger)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Shutdown does not track hijacked websockets. Stopping the hub closes
		// every client's event stream, which ends their handlers.
		stopHub()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence notifier")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
