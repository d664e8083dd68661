package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"verifiedid/issuer/internal/config"
	"verifiedid/issuer/internal/credential"
	"verifiedid/issuer/internal/handler"
	"verifiedid/issuer/internal/repository"
	"verifiedid/issuer/internal/service"
	"verifiedid/issuer/internal/upstream"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.State.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore(cfg.State.MaxEntries)
		logger.Info("using in-memory state store", zap.Int("max_entries", cfg.State.MaxEntries))
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 4. Outbound clients
	httpClient := &http.Client{Timeout: cfg.Issuance.RequestTimeout}

	source, err := credential.NewSource(cfg.Token)
	if err != nil {
		logger.Fatal("failed to init token credential", zap.Error(err))
	}
	authority := credential.NewAuthority(cfg.Token, source, httpClient)
	logger.Info("token authority configured",
		zap.String("authority", cfg.Token.AuthorityURL()),
		zap.String("credential", authority.Kind()),
	)

	template, err := service.LoadRequestTemplate(cfg.Issuance)
	if err != nil {
		logger.Fatal("failed to load issuance template", zap.Error(err))
	}

	// 5. Initialize services
	sessions := service.NewSessionService(stateStore, cfg.State.TTL, logger)
	tokens := service.NewTokenProvider(stateStore, authority, cfg.Token.CacheTTL, cfg.Token.ExpiryMargin, logger)
	issuance := service.NewIssuanceService(
		template, cfg.Issuance.APIKey, sessions, tokens,
		upstream.NewIssuanceClient(cfg.Issuance.APIEndpoint, httpClient), logger,
	)
	manifests := service.NewManifestService(
		stateStore, upstream.NewManifestClient(httpClient),
		cfg.Issuance.CredentialManifest, cfg.State.TTL, logger,
	)
	callbackAuth := service.NewCallbackAuthenticator(cfg.Issuance.APIKey)

	// 6. Setup router
	issuerHandler := handler.NewIssuerHandler(issuance, sessions, manifests, cfg.Server.BaseURL, logger)
	router := handler.SetupRouter(cfg, logger, callbackAuth, issuerHandler)

	// 7. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("credential_type", template.Type))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 8. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
