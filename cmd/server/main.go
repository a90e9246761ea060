package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fanbeat-backend/internal/api"
	"fanbeat-backend/internal/auth"
	"fanbeat-backend/internal/config"
	"fanbeat-backend/internal/keyvault"
	"fanbeat-backend/internal/repository"
	"fanbeat-backend/internal/service"
	"fanbeat-backend/internal/stellar"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env before reading the configuration. Missing file is fine:
	// production supplies the variables through the environment.
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file: %v (using existing environment)", err)
	}

	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	store, err := repository.NewPostgresStore(initCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Println("connected to PostgreSQL")

	migrationSQL, err := os.ReadFile(filepath.Join(cfg.MigrationsDir, "001_init.sql"))
	if err != nil {
		log.Fatalf("failed to read migration file: %v", err)
	}
	if err := store.RunMigrations(initCtx, string(migrationSQL)); err != nil {
		log.Printf("warning running migrations: %v (continuing)", err)
	} else {
		log.Println("database migrations applied")
	}

	tokenService, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to init TokenService: %v", err)
	}

	vault, err := keyvault.New(cfg.VaultPassphrase)
	if err != nil {
		log.Fatalf("failed to init key vault: %v", err)
	}

	gateway := stellar.NewHorizonGateway(cfg.HorizonURL, stellar.Passphrase(cfg.StellarNetwork))
	funder := stellar.NewFriendbotFunder(cfg.StellarNetwork, cfg.FriendbotURL, nil)
	coordinator := stellar.NewCoordinator(funder)

	walletService := service.NewWalletService(store, vault, funder, gateway, cfg.StellarNetwork, cfg.FriendbotURL)
	artistTokenService := service.NewTokenService(store, vault, coordinator, cfg.StellarNetwork)
	issuanceService := service.NewIssuanceService(store, vault, gateway, coordinator, cfg.FriendbotURL)
	marketplaceService := service.NewMarketplaceService(store, vault, gateway, cfg.StellarNetwork, cfg.FriendbotURL)

	handler := api.NewHandler(walletService, artistTokenService, issuanceService, marketplaceService, tokenService, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Minute, // issuance waits on Horizon
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("server listening on http://localhost:%d/v1 (network: %s)", cfg.ServerPort, cfg.StellarNetwork)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
