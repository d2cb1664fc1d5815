package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

// Config holds configuration for the auth service
type Config struct {
	// Register lets GameEntry create accounts for unknown ids.
	Register bool
	// Cost is the bcrypt work factor; zero means bcrypt.DefaultCost.
	Cost int
}

// Service checks player credentials and registers new players
type Service struct {
	players  storage.PlayerStore
	register bool
	cost     int
	logger   *slog.Logger
}

// New creates a new auth service
func New(players storage.PlayerStore, cfg Config, logger *slog.Logger) *Service {
	if cfg.Cost == 0 {
		cfg.Cost = bcrypt.DefaultCost
	}
	return &Service{
		players:  players,
		register: cfg.Register,
		cost:     cfg.Cost,
		logger:   logger,
	}
}

// GameEntry logs a player in, registering the id first when it is unknown
// and registration is open.
func (s *Service) GameEntry(ctx context.Context, id, password string) error {
	if id == "" {
		return domain.ErrInvalidRequest
	}

	err := s.Authenticate(ctx, id, password)
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return err
	}
	if !s.register {
		return domain.ErrRegistrationOff
	}

	err = s.Register(ctx, id, password)
	if errors.Is(err, domain.ErrPlayerExists) {
		// Lost a registration race; the winner's password decides.
		return s.Authenticate(ctx, id, password)
	}
	return err
}

// Authenticate compares password against the stored hash
func (s *Service) Authenticate(ctx context.Context, id, password string) error {
	player, err := s.players.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrWrongPassword
		}
		return fmt.Errorf("comparing password: %w", err)
	}
	return nil
}

// Register creates a player with an empty personal ranking list
func (s *Service) Register(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	player := &domain.Player{
		ID:               id,
		PasswordHash:     string(hash),
		PersonalRankings: []domain.PersonalSlot{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.players.CreatePlayer(ctx, player); err != nil {
		return err
	}

	s.logger.Info("player registered", "player_id", id)
	return nil
}
