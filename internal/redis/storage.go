package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

// maxTxRetries bounds optimistic retries of a watched player update
const maxTxRetries = 16

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis and returns a storage backend
func New(cfg *config.RedisConfig, logger *slog.Logger) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client (for testing)
func NewWithClient(client *redis.Client, logger *slog.Logger) *Storage {
	return &Storage{
		client: client,
		logger: logger,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ranking operations

// FindRanking returns the record owned by playerID for mode
func (s *Storage) FindRanking(ctx context.Context, playerID string, mode domain.Mode) (*domain.RankingRecord, error) {
	id, err := s.client.Get(ctx, ownerKey(playerID, mode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRankingNotFound
		}
		return nil, fmt.Errorf("finding ranking: %w", err)
	}
	return s.getRanking(ctx, id)
}

func (s *Storage) getRanking(ctx context.Context, id string) (*domain.RankingRecord, error) {
	fields, err := s.client.HGetAll(ctx, rankingKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting ranking: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRankingNotFound
	}
	return decodeRanking(id, fields)
}

// InsertRanking stores a new record under a generated ID
func (s *Storage) InsertRanking(ctx context.Context, rec domain.RankingRecord) (*domain.RankingRecord, error) {
	seq, err := s.client.Incr(ctx, rankingSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocating ranking sequence: %w", err)
	}

	now := time.Now()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rankingKey(rec.ID), encodeRanking(rec))
		pipe.ZAdd(ctx, modeIndexKey(rec.Mode), redis.Z{Score: float64(seq), Member: rec.ID})
		pipe.SetNX(ctx, ownerKey(rec.PlayerID, rec.Mode), rec.ID, 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inserting ranking: %w", err)
	}
	return &rec, nil
}

// UpdateRanking replaces an existing record's payload
func (s *Storage) UpdateRanking(ctx context.Context, rec domain.RankingRecord) error {
	key := rankingKey(rec.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("checking ranking: %w", err)
	}
	if exists == 0 {
		return domain.ErrRankingNotFound
	}

	err = s.client.HSet(ctx, key,
		"score", rec.Score,
		"jewel", rec.Jewel,
		"level", rec.Level,
		"class", rec.Class,
		"time", rec.Time,
		"updated_at", time.Now().UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("updating ranking: %w", err)
	}
	return nil
}

// ListRankings returns all records of a mode in insertion order
func (s *Storage) ListRankings(ctx context.Context, mode domain.Mode) ([]domain.RankingRecord, error) {
	ids, err := s.client.ZRange(ctx, modeIndexKey(mode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, rankingKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loading rankings: %w", err)
	}

	out := make([]domain.RankingRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			s.logger.Warn("ranking index points at missing record", "record_id", ids[i], "mode", mode)
			continue
		}
		rec, err := decodeRanking(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Player operations

// CreatePlayer stores a new player document
func (s *Storage) CreatePlayer(ctx context.Context, player *domain.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, playerKey(player.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	if !ok {
		return domain.ErrPlayerExists
	}
	return nil
}

// GetPlayer loads a player document
func (s *Storage) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	data, err := s.client.Get(ctx, playerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}

	var player domain.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, fmt.Errorf("decoding player: %w", err)
	}
	return &player, nil
}

// UpdatePersonalRankings applies fn under WATCH so concurrent writers retry
func (s *Storage) UpdatePersonalRankings(ctx context.Context, playerID string, fn storage.SlotUpdater) (bool, error) {
	key := playerKey(playerID)
	var changed bool

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrPlayerNotFound
			}
			return err
		}

		var player domain.Player
		if err := json.Unmarshal(data, &player); err != nil {
			return fmt.Errorf("decoding player: %w", err)
		}

		var updated []domain.PersonalSlot
		updated, changed = fn(player.PersonalRankings)
		if !changed {
			return nil
		}
		player.PersonalRankings = updated
		player.UpdatedAt = time.Now()

		out, err := json.Marshal(&player)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return false, err
		}
		return false, fmt.Errorf("updating personal rankings: %w", err)
	}
	return false, fmt.Errorf("updating personal rankings: %w", redis.TxFailedErr)
}

func encodeRanking(rec domain.RankingRecord) map[string]interface{} {
	return map[string]interface{}{
		"player_id":  rec.PlayerID,
		"mode":       int(rec.Mode),
		"score":      rec.Score,
		"jewel":      rec.Jewel,
		"level":      rec.Level,
		"class":      rec.Class,
		"time":       rec.Time,
		"created_at": rec.CreatedAt.UnixNano(),
		"updated_at": rec.UpdatedAt.UnixNano(),
	}
}

func decodeRanking(id string, fields map[string]string) (*domain.RankingRecord, error) {
	ints := make(map[string]int64, 8)
	for _, name := range []string{"mode", "score", "jewel", "level", "class", "time", "created_at", "updated_at"} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decoding ranking %s field %s: %w", id, name, err)
		}
		ints[name] = v
	}

	return &domain.RankingRecord{
		ID:       id,
		PlayerID: fields["player_id"],
		Payload: domain.Payload{
			Mode:  domain.Mode(ints["mode"]),
			Score: ints["score"],
			Jewel: ints["jewel"],
			Level: ints["level"],
			Class: ints["class"],
			Time:  ints["time"],
		},
		CreatedAt: time.Unix(0, ints["created_at"]),
		UpdatedAt: time.Unix(0, ints["updated_at"]),
	}, nil
}
