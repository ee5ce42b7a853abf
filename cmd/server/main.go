package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/engine"
	"driftsync/internal/leaderboard"
	"driftsync/internal/rabbitmq"
	"driftsync/internal/reconciler"
	"driftsync/internal/router"
	"driftsync/internal/server"
	"driftsync/internal/stats"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Msgf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	store, err := stats.New(cfg)
	if err != nil {
		log.Fatal().Msgf("Failed to initialize stats store: %v", err)
	}

	lb, err := leaderboard.NewRedisLeaderboard(cfg.Redis)
	if err != nil {
		log.Fatal().Msgf("Failed to initialize leaderboard: %v", err)
	}

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}

	// The rank handler closes over the router, which is built after the
	// coordinator; events only flow once everything below is wired
	var rt *router.Router
	coordinator := reconciler.New(lb, func(playerID uint64, rank int32) {
		rt.DeliverRank(playerID, rank)
	}, cfg.Leaderboard)

	eng := engine.New(store, coordinator, cfg.Engine)

	notifier, err := rabbitmq.NewNotifyPublisher(rabbit, cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Msgf("Failed to set up notification publisher: %v", err)
	}

	rt = router.New(eng, coordinator, notifier, cfg.Engine)

	consumer, err := rabbitmq.NewEventConsumer(rabbit, cfg.RabbitMQ, rt)
	if err != nil {
		log.Fatal().Msgf("Failed to set up event consumer: %v", err)
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	if err := consumer.Start(consumerCtx); err != nil {
		log.Fatal().Msgf("Failed to start event consumer: %v", err)
	}

	httpServer := server.New(*cfg, store, lb, rabbit, rt)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("app", cfg.AppName).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Msgf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	// Stop ingesting events, then flush every live session and let the
	// in-flight leaderboard syncs finish under their own timeouts
	stopConsumer()
	consumer.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rt.Shutdown(shutdownCtx)
	coordinator.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := rabbit.Close(); err != nil {
		log.Error().Err(err).Msg("RabbitMQ close error")
	}
	if err := lb.Close(); err != nil {
		log.Error().Err(err).Msg("Leaderboard close error")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Stats store close error")
	}

	log.Info().Msg("Shutdown complete")
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
