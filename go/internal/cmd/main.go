package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer pool.Close()

	services, err := setupServices(pool, config)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}

	go services.Connections.Start(ctx)
	go services.Pusher.Run(ctx)
	go func() {
		if err := services.Sweeper.RunScheduler(ctx); err != nil {
			zlog.Error().Err(err).Msg("sweeper exited")
			stop()
		}
	}()

	server := setupServer(services, config)
	go func() {
		zlog.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("server exited")
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("server shutdown failed")
	}
	zlog.Info().Msg("graceful shutdown complete")
}
