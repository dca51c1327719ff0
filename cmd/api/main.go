// Kore Payments Microservice
//
// This is the main entry point for the checkout orchestration service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/korefit/kore-payments/config"
	"github.com/korefit/kore-payments/internal/adapters/korecore"
	"github.com/korefit/kore-payments/internal/adapters/session"
	"github.com/korefit/kore-payments/internal/adapters/wompi"
	"github.com/korefit/kore-payments/internal/api"
	"github.com/korefit/kore-payments/internal/core/service"
	"github.com/korefit/kore-payments/internal/metrics"
	"github.com/korefit/kore-payments/internal/platform/logging"
	platformredis "github.com/korefit/kore-payments/internal/platform/redis"
)

const banksCacheTTL = time.Hour

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "json")
		fallback.Fatal().Err(err).Msg("configuration error")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("port", cfg.Server.Port).
		Str("core_url", cfg.Core.BaseURL).
		Bool("gateway_sandbox", cfg.Gateway.Sandbox).
		Msg("starting kore-payments service")

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	// Infrastructure layer
	coreClient := korecore.NewClient(cfg.Core.BaseURL, cfg.Core.APIKey, log)
	gateway := wompi.NewClient(cfg.Gateway.PublicKey, cfg.Gateway.Sandbox, log)
	tokenizer := wompi.NewCachedTokenizer(gateway, redisClient, banksCacheTTL, log)
	bridge := session.NewBridge(redisClient, log)

	// Service layer
	svcCfg := service.Config{
		PollAttempts: cfg.Poll.Attempts,
		PollInterval: cfg.Poll.Interval,
	}
	sessions := api.NewRegistry(func() *service.Session {
		return service.NewSession(coreClient, tokenizer, bridge, svcCfg, log)
	}, time.Hour, log)

	// API layer
	handler := api.NewHandler(sessions, coreClient, tokenizer, bridge, log)
	router := api.SetupRouter(handler, cfg.Server.GinMode)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
