package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"socialdraft/internal/api"
	"socialdraft/internal/auth"
	"socialdraft/internal/config"
	"socialdraft/internal/database"
	"socialdraft/internal/generation"
	"socialdraft/internal/identity"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database migrated")

	var verifier *auth.Verifier
	if cfg.Identity.JWTPublicKey != "" {
		verifier, err = auth.NewVerifier([]byte(cfg.Identity.JWTPublicKey))
		if err != nil {
			log.Fatalf("init session verifier: %v", err)
		}
	} else {
		// Authenticated routes reject everything until the key is set.
		logger.Warn("identity jwt public key is not configured")
	}

	if cfg.Identity.WebhookSecret == "" {
		logger.Warn("identity webhook secret is not configured, webhook deliveries will be rejected")
	}

	generator := generation.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	if !generator.Configured() {
		logger.Warn("openai api key is not configured, content generation will be rejected")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	identitySvc := identity.NewService(db, logger)

	router := api.NewRouter(logger)
	if err := api.RegisterRoutes(router, cfg, db, verifier, identitySvc, generator, asynqClient, redisClient, logger); err != nil {
		log.Fatalf("register routes: %v", err)
	}

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
