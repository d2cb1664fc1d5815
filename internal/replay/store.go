package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

const (
	tempPrefix = "temp-"
	replayExt  = ".rep"
)

// Store keeps replay files in a single directory: staged uploads under
// temp-<uuid> and promoted replays under <recordID>.rep.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the directory if needed
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating replay dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Ensure Store implements the interface
var _ storage.ArtifactStore = (*Store)(nil)

func (s *Store) tempPath(h storage.TempHandle) (string, error) {
	name := string(h)
	if !strings.HasPrefix(name, tempPrefix) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: bad temp handle %q", domain.ErrInvalidRequest, name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) replayPath(recordID string) (string, error) {
	if recordID == "" || recordID != filepath.Base(recordID) || strings.HasPrefix(recordID, ".") {
		return "", fmt.Errorf("%w: bad record id %q", domain.ErrInvalidRequest, recordID)
	}
	return filepath.Join(s.dir, recordID+replayExt), nil
}

// Stage writes an upload to a fresh temp handle
func (s *Store) Stage(ctx context.Context, r io.Reader) (storage.TempHandle, error) {
	h := storage.TempHandle(tempPrefix + uuid.NewString())
	path, _ := s.tempPath(h)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: staging replay: %v", domain.ErrPersistence, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: writing replay: %v", domain.ErrPersistence, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: closing replay: %v", domain.ErrPersistence, err)
	}
	return h, nil
}

// Promote renames a staged upload to its record's replay name
func (s *Store) Promote(ctx context.Context, h storage.TempHandle, recordID string) error {
	from, err := s.tempPath(h)
	if err != nil {
		return err
	}
	to, err := s.replayPath(recordID)
	if err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactMissing, h)
		}
		return fmt.Errorf("%w: promoting replay: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Discard deletes a staged upload
func (s *Store) Discard(ctx context.Context, h storage.TempHandle) error {
	path, err := s.tempPath(h)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactMissing, h)
		}
		return fmt.Errorf("%w: discarding replay: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Remove deletes a promoted replay
func (s *Store) Remove(ctx context.Context, recordID string) error {
	path, err := s.replayPath(recordID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactMissing, recordID)
		}
		return fmt.Errorf("%w: removing replay: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Open returns the replay of a record
func (s *Store) Open(ctx context.Context, recordID string) (io.ReadCloser, error) {
	path, err := s.replayPath(recordID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrReplayNotFound
		}
		return nil, fmt.Errorf("%w: opening replay: %v", domain.ErrPersistence, err)
	}
	return f, nil
}

// SweepStale removes staged uploads last modified before now-olderThan
func (s *Store) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("%w: reading replay dir: %v", domain.ErrPersistence, err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove stale upload", "handle", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
