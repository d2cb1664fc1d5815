package storage

import (
	"context"
	"io"
	"time"

	"github.com/jmr-leaderboard/internal/domain"
)

// RankingStore persists global per-mode ranking records
type RankingStore interface {
	// FindRanking returns the first record for (playerID, mode) or
	// domain.ErrRankingNotFound.
	FindRanking(ctx context.Context, playerID string, mode domain.Mode) (*domain.RankingRecord, error)
	// InsertRanking stores a new record and returns it with its generated ID.
	InsertRanking(ctx context.Context, rec domain.RankingRecord) (*domain.RankingRecord, error)
	// UpdateRanking replaces the payload of an existing record in place.
	UpdateRanking(ctx context.Context, rec domain.RankingRecord) error
	// ListRankings returns every record of a mode in insertion order.
	ListRankings(ctx context.Context, mode domain.Mode) ([]domain.RankingRecord, error)
}

// SlotUpdater mutates a personal ranking list. Returning false leaves the
// stored list untouched.
type SlotUpdater func(slots []domain.PersonalSlot) ([]domain.PersonalSlot, bool)

// PlayerStore persists players and their personal ranking lists
type PlayerStore interface {
	CreatePlayer(ctx context.Context, player *domain.Player) error
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	// UpdatePersonalRankings runs fn against the current list and stores the
	// result atomically with respect to other updates of the same player.
	UpdatePersonalRankings(ctx context.Context, playerID string, fn SlotUpdater) (bool, error)
}

// Storage is a backend providing both record stores
type Storage interface {
	RankingStore
	PlayerStore
	Close() error
}

// TempHandle names a staged upload that has not been given a record identity
type TempHandle string

// ArtifactStore keeps replay blobs named by ranking record ID
type ArtifactStore interface {
	Stage(ctx context.Context, r io.Reader) (TempHandle, error)
	// Promote renames a staged artifact to recordID. It fails with
	// domain.ErrArtifactMissing when nothing is staged under h.
	Promote(ctx context.Context, h TempHandle, recordID string) error
	Discard(ctx context.Context, h TempHandle) error
	// Remove deletes the artifact of recordID. An absent artifact is
	// reported as domain.ErrArtifactMissing.
	Remove(ctx context.Context, recordID string) error
	Open(ctx context.Context, recordID string) (io.ReadCloser, error)
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}
