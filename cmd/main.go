package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/pantryledger/auth-service/config"
	"github.com/pantryledger/auth-service/db"
	"github.com/pantryledger/auth-service/internal/auth/handler"
	repo "github.com/pantryledger/auth-service/internal/auth/repository/postgres"
	"github.com/pantryledger/auth-service/internal/auth/service"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	repository := repo.NewPostgresRepository(dbPool)

	// The settings table is the authoritative source for lockout and
	// session tuning; env values are the fallback.
	cfg.ApplySettings(ctx, repository.Get)

	verifier, err := service.NewCredentialVerifier(cfg.PasswordHashAlgo, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("failed to initialize credential verifier: %v", err)
	}

	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.AccessExpiryMin)
	sessionStore := service.NewSessionStore(repository, time.Duration(cfg.RefreshExpiryMin)*time.Minute)
	lockout := service.NewLockoutPolicy(repository, cfg.LoginMaxAttempts, time.Duration(cfg.LockoutMinutes)*time.Minute)
	guard := service.NewIPAllowlistGuard(repository)
	audit := service.NewLoginAuditLog(repository, time.Duration(cfg.StoreTimeoutMS)*time.Millisecond)

	authService := service.NewAuthService(repository, sessionStore, guard, lockout, verifier, audit, tokenService, cfg)
	authHandler := handler.NewAuthHandler(authService, tokenService)

	app := fiber.New()
	app.Use(logger.New())
	handler.RegisterRoutes(app, authHandler)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
