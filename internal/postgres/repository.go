package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Ensure Repository implements the interface
var _ storage.Storage = (*Repository)(nil)

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			pass_hash TEXT NOT NULL,
			rankings JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rankings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq BIGSERIAL NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			mode INT NOT NULL,
			score BIGINT NOT NULL,
			jewel BIGINT NOT NULL DEFAULT 0,
			level BIGINT NOT NULL DEFAULT 0,
			class BIGINT NOT NULL DEFAULT 0,
			time BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS score_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			record_id UUID,
			mode INT NOT NULL,
			score BIGINT NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rankings_player_mode ON rankings(player_id, mode, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_rankings_mode_seq ON rankings(mode, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_player ON score_events(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const rankingColumns = `id::text, player_id, mode, score, jewel, level, class, time, created_at, updated_at`

func scanRanking(row pgx.Row) (*domain.RankingRecord, error) {
	var rec domain.RankingRecord
	var mode int
	err := row.Scan(
		&rec.ID,
		&rec.PlayerID,
		&mode,
		&rec.Score,
		&rec.Jewel,
		&rec.Level,
		&rec.Class,
		&rec.Time,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Mode = domain.Mode(mode)
	return &rec, nil
}

// FindRanking returns the oldest record of a player for a mode
func (r *Repository) FindRanking(ctx context.Context, playerID string, mode domain.Mode) (*domain.RankingRecord, error) {
	query := `SELECT ` + rankingColumns + `
		FROM rankings
		WHERE player_id = $1 AND mode = $2
		ORDER BY seq
		LIMIT 1`
	rec, err := scanRanking(r.pool.QueryRow(ctx, query, playerID, int(mode)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRankingNotFound
		}
		return nil, fmt.Errorf("finding ranking: %w", err)
	}
	return rec, nil
}

// InsertRanking inserts a record and returns it with its database-generated ID
func (r *Repository) InsertRanking(ctx context.Context, rec domain.RankingRecord) (*domain.RankingRecord, error) {
	query := `
		INSERT INTO rankings (player_id, mode, score, jewel, level, class, time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ` + rankingColumns
	now := time.Now()
	out, err := scanRanking(r.pool.QueryRow(ctx, query,
		rec.PlayerID,
		int(rec.Mode),
		rec.Score,
		rec.Jewel,
		rec.Level,
		rec.Class,
		rec.Time,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting ranking: %w", err)
	}
	return out, nil
}

// UpdateRanking replaces the payload of an existing record
func (r *Repository) UpdateRanking(ctx context.Context, rec domain.RankingRecord) error {
	query := `
		UPDATE rankings
		SET score = $2, jewel = $3, level = $4, class = $5, time = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Score,
		rec.Jewel,
		rec.Level,
		rec.Class,
		rec.Time,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating ranking: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRankingNotFound
	}
	return nil
}

// ListRankings returns all records of a mode in insertion order
func (r *Repository) ListRankings(ctx context.Context, mode domain.Mode) ([]domain.RankingRecord, error) {
	query := `SELECT ` + rankingColumns + ` FROM rankings WHERE mode = $1 ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, int(mode))
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}
	defer rows.Close()

	var records []domain.RankingRecord
	for rows.Next() {
		rec, err := scanRanking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}
	return records, nil
}

// CreatePlayer inserts a new player
func (r *Repository) CreatePlayer(ctx context.Context, player *domain.Player) error {
	rankings, err := encodeSlots(player.PersonalRankings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO players (id, pass_hash, rankings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, player.ID, player.PasswordHash, rankings, time.Now())
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerExists
	}
	return nil
}

// GetPlayer retrieves a player by ID
func (r *Repository) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	query := `
		SELECT id, pass_hash, rankings, created_at, updated_at
		FROM players
		WHERE id = $1
	`
	var player domain.Player
	var rankings []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&player.ID,
		&player.PasswordHash,
		&rankings,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	if err := json.Unmarshal(rankings, &player.PersonalRankings); err != nil {
		return nil, fmt.Errorf("decoding personal rankings: %w", err)
	}
	return &player, nil
}

// UpdatePersonalRankings locks the player row for the read-modify-write
func (r *Repository) UpdatePersonalRankings(ctx context.Context, playerID string, fn storage.SlotUpdater) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT rankings FROM players WHERE id = $1 FOR UPDATE`, playerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrPlayerNotFound
		}
		return false, fmt.Errorf("locking player: %w", err)
	}

	var slots []domain.PersonalSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return false, fmt.Errorf("decoding personal rankings: %w", err)
	}

	updated, changed := fn(slots)
	if !changed {
		return false, nil
	}

	encoded, err := encodeSlots(updated)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `UPDATE players SET rankings = $2, updated_at = $3 WHERE id = $1`, playerID, encoded, time.Now())
	if err != nil {
		return false, fmt.Errorf("updating personal rankings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing personal rankings: %w", err)
	}
	return true, nil
}

// RecordEvent records a score event for auditing
func (r *Repository) RecordEvent(ctx context.Context, event domain.ScoreEvent) error {
	var recordID *string
	if event.RecordID != "" {
		recordID = &event.RecordID
	}

	query := `
		INSERT INTO score_events (player_id, record_id, mode, score, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PlayerID,
		recordID,
		int(event.Mode),
		event.Score,
		string(event.Outcome),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

func encodeSlots(slots []domain.PersonalSlot) ([]byte, error) {
	if slots == nil {
		slots = []domain.PersonalSlot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encoding personal rankings: %w", err)
	}
	return data, nil
}
