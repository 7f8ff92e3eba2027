package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/handlers"
	"github.com/distinctlyminty44/role-based-rls/internal/config"
	"github.com/distinctlyminty44/role-based-rls/internal/logger"
	"github.com/distinctlyminty44/role-based-rls/internal/telemetry"
	"github.com/distinctlyminty44/role-based-rls/router"
	"github.com/distinctlyminty44/role-based-rls/services"
)

type ServeCmd struct {
	Config  string `help:"path to a config directory containing config.yaml" default:"" env:"RBRLS_CONFIG_PATH"`
	Tracing bool   `help:"enable tracing regardless of config" default:"false"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	if err := config.LoadConfig(s.Config); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.App

	appLogger := logger.Setup(cfg.Dev || globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := cfg.Tracing || s.Tracing
	if tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "role-based-rls", globals.Version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("telemetry shutdown failed")
			}
		}()
	}

	pg, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pg.Close()

	var roles services.RoleCache
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		roles = services.NewRedisRoleCache(client, cfg.RoleCacheTTL)
	} else {
		log.Warn().Msg("REDIS_URL not set, session roles are read from tokens only")
	}

	if cfg.SessionJWTSecret == "" {
		return errors.New("session_jwt_secret is required")
	}

	gateway := db.NewGateway(pg)
	invitations := services.NewInvitationService(gateway, services.NewIdentityResolver())
	authEvents := services.NewAuthEvents(gateway, services.NewTransferEngine(gateway), roles)

	engine := router.NewGinRouter(router.Deps{
		Invitations: handlers.NewInvitationHandler(invitations),
		Directory:   handlers.NewDirectoryHandler(services.NewDirectory(gateway)),
		AuthEvents:  handlers.NewAuthEventHandler(authEvents),
		Session:     handlers.NewSessionAuthMiddleware(cfg.SessionJWTSecret, roles),
		HookKeyHash: cfg.AuthHookKeyHash,
		DB:          pg,
		Logger:      appLogger,
		Tracing:     tracing,
	})

	server := configureHTTPServer(":"+cfg.Port, engine)

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("version", globals.Version).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return client, nil
}
