package server

import (
	"fmt"
	"net/http"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/leaderboard"
	"driftsync/internal/rabbitmq"
	"driftsync/internal/router"
	"driftsync/internal/stats"
)

// Server exposes the read-only HTTP surface: health, leaderboard listings,
// player stats and live sessions. All writes flow through the event channel.
type Server struct {
	store  stats.Store
	lb     leaderboard.Leaderboard
	rabbit rabbitmq.Client
	router *router.Router
	config config.Config
}

func New(cfg config.Config, store stats.Store, lb leaderboard.Leaderboard, rabbit rabbitmq.Client, rt *router.Router) *http.Server {
	server := Server{
		store:  store,
		lb:     lb,
		rabbit: rabbit,
		router: rt,
		config: cfg,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", cfg.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
