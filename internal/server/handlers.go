package server

import (
	"errors"
	"net/http"
	"strconv"

	"driftsync/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const DEFAULT_LEADERBOARD_LIMIT = 25

func (s *Server) healthHandler(c *gin.Context) {
	health := gin.H{"status": "ok"}
	status := http.StatusOK

	if err := s.store.Ping(c.Request.Context()); err != nil {
		health["stats_store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.lb.Ping(c.Request.Context()); err != nil {
		health["leaderboard"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.rabbit != nil {
		if err := s.rabbit.Health(); err != nil {
			health["event_channel"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		health["status"] = "degraded"
	}
	c.JSON(status, health)
}

func (s *Server) leaderboardHandler(c *gin.Context) {
	limit := DEFAULT_LEADERBOARD_LIMIT
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := s.lb.Top(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Leaderboard listing failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "leaderboard unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": records})
}

func (s *Server) playerStatsHandler(c *gin.Context) {
	playerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}

	record, err := s.store.Load(c.Request.Context(), playerID)
	if err != nil {
		if errors.Is(err, stats.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		log.Error().Err(err).Uint64("playerID", playerID).Msg("Player stats lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) sessionsHandler(c *gin.Context) {
	sessions := s.router.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
