package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/metrics"
	"github.com/jmr-leaderboard/internal/storage"
)

// EventSink receives score events after a submission reached the stores
type EventSink interface {
	RecordEvent(ctx context.Context, event domain.ScoreEvent) error
}

// Broadcaster pushes refreshed leaderboard pages to live subscribers
type Broadcaster interface {
	BroadcastRankingUpdate(mode domain.Mode, view domain.RankingView)
}

// LeaderboardService implements score submission and ranking queries
type LeaderboardService struct {
	rankings    storage.RankingStore
	players     storage.PlayerStore
	artifacts   storage.ArtifactStore
	options     config.Options
	personalCap int
	locks       *keyedMutex
	sinks       []EventSink
	hub         Broadcaster
	metrics     *metrics.Manager
	logger      *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	rankings storage.RankingStore,
	players storage.PlayerStore,
	artifacts storage.ArtifactStore,
	options config.Options,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeaderboardService {
	limit := domain.DefaultPersonalCap
	if cfg != nil && cfg.PersonalCap > 0 {
		limit = cfg.PersonalCap
	}
	return &LeaderboardService{
		rankings:    rankings,
		players:     players,
		artifacts:   artifacts,
		options:     options,
		personalCap: limit,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
}

// SetHub sets the broadcaster notified of global board changes
func (s *LeaderboardService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// AddEventSink registers a sink for score events
func (s *LeaderboardService) AddEventSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// SetMetrics sets the metrics manager
func (s *LeaderboardService) SetMetrics(m *metrics.Manager) {
	s.metrics = m
}

// persistenceError wraps a store failure, tagging anything that is not
// already classified as a persistence failure.
func persistenceError(op string, err error) error {
	if domain.IsNotFoundError(err) || errors.Is(err, domain.ErrPersistence) || domain.IsValidationError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
