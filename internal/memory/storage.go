package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	players  map[string]*domain.Player
	rankings map[string]*domain.RankingRecord
	// byMode keeps record IDs in insertion order
	byMode map[domain.Mode][]string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:  make(map[string]*domain.Player),
		rankings: make(map[string]*domain.RankingRecord),
		byMode:   make(map[domain.Mode][]string),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}

// Ranking operations

func (s *Storage) FindRanking(ctx context.Context, playerID string, mode domain.Mode) (*domain.RankingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byMode[mode] {
		rec := s.rankings[id]
		if rec.PlayerID == playerID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domain.ErrRankingNotFound
}

func (s *Storage) InsertRanking(ctx context.Context, rec domain.RankingRecord) (*domain.RankingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored := rec
	s.rankings[rec.ID] = &stored
	s.byMode[rec.Mode] = append(s.byMode[rec.Mode], rec.ID)
	return &rec, nil
}

func (s *Storage) UpdateRanking(ctx context.Context, rec domain.RankingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rankings[rec.ID]
	if !ok {
		return domain.ErrRankingNotFound
	}
	existing.Payload = rec.Payload
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *Storage) ListRankings(ctx context.Context, mode domain.Mode) ([]domain.RankingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byMode[mode]
	out := make([]domain.RankingRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.rankings[id])
	}
	return out, nil
}

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, player *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; ok {
		return domain.ErrPlayerExists
	}
	cp := *player
	cp.PersonalRankings = append([]domain.PersonalSlot(nil), player.PersonalRankings...)
	s.players[player.ID] = &cp
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	cp := *player
	cp.PersonalRankings = append([]domain.PersonalSlot(nil), player.PersonalRankings...)
	return &cp, nil
}

func (s *Storage) UpdatePersonalRankings(ctx context.Context, playerID string, fn storage.SlotUpdater) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return false, domain.ErrPlayerNotFound
	}
	current := append([]domain.PersonalSlot(nil), player.PersonalRankings...)
	updated, changed := fn(current)
	if !changed {
		return false, nil
	}
	player.PersonalRankings = updated
	player.UpdatedAt = time.Now()
	return true, nil
}
