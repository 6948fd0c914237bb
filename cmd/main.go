package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wa_relay/internal/config"
	"wa_relay/internal/infrastructure"
	"wa_relay/internal/interfaces"
	httpapi "wa_relay/internal/interfaces/http"
	"wa_relay/internal/repository"
	"wa_relay/internal/usecases"
)

type stores struct {
	businesses    interfaces.BusinessStore
	conversations interfaces.ConversationStore
	close         func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := infrastructure.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open persistence")
	}
	defer st.close()

	registry := prometheus.NewRegistry()
	metrics := infrastructure.NewRelayMetrics(registry)

	sessions, err := infrastructure.NewSessionStore(ctx, cfg.SessionDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer sessions.Close()

	ai := infrastructure.NewCompletionClient(infrastructure.AIClientConfig{
		BaseURL:     cfg.AIBaseURL,
		APIKey:      cfg.AIAPIKey,
		Model:       cfg.AIModel,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		Timeout:     cfg.AITimeout,
	}, log, metrics)

	resolver := usecases.NewTenantResolver(st.businesses, cfg.BusinessPhone, log)
	conversations := usecases.NewConversationManager(st.conversations, log)

	// The WhatsApp factory needs the controller and the pipeline as event
	// sinks, so it is bound after both exist.
	var factory interfaces.TransportFactory
	controller := usecases.NewConnectionController(
		func(ctx context.Context) (interfaces.Transport, error) { return factory(ctx) },
		sessions, st.businesses,
		usecases.ControllerConfig{BusinessPhone: cfg.BusinessPhone, ReconnectDelay: cfg.ReconnectDelay},
		log,
	).WithObserver(metrics)

	messenger := infrastructure.NewMessageRateLimiter(controller, cfg.SendRate, cfg.SendBurst)
	pipeline := usecases.NewMessagePipeline(resolver, conversations, ai, messenger,
		usecases.PipelineConfig{HistoryLimit: cfg.HistoryLimit}, log).
		WithObserver(metrics)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, inbound dedupe relies on the database only")
		}
		defer rdb.Close()
		pipeline.WithDeduper(infrastructure.NewRedisDeduper(rdb, cfg.DedupeTTL))
	}

	factory = infrastructure.NewWhatsAppFactory(sessions, controller, pipeline, log)

	pipelineDone := make(chan struct{})
	go func() {
		pipeline.Run(ctx)
		close(pipelineDone)
	}()
	controller.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routerCfg := httpapi.RouterConfig{Gatherer: registry}
	if cfg.OperatorAuthEnabled() {
		routerCfg.Auth = usecases.NewAuthUsecase(cfg.OperatorUsername, cfg.OperatorPasswordHash, cfg.JWTSecret)
		routerCfg.JWTSecret = cfg.JWTSecret
	}
	httpapi.SetupRoutes(r, controller, routerCfg)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("operator server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("operator server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("operator server shutdown")
	}
	controller.Stop()
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("pipeline did not finish in time")
	}
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverSupabase:
		sb, err := repository.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using supabase persistence")
		return &stores{businesses: sb, conversations: sb, close: func() {}}, nil
	default:
		pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using postgres persistence")
		return &stores{
			businesses:    repository.NewBusinessRepository(pg.Pool),
			conversations: repository.NewConversationRepository(pg.Pool),
			close:         pg.Close,
		}, nil
	}
}
