package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/memory"
)

func newTestService(register bool) (*Service, *memory.Storage) {
	store := memory.New()
	svc := New(store, Config{Register: register, Cost: bcrypt.MinCost},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func TestGameEntryRegistersUnknownPlayer(t *testing.T) {
	svc, store := newTestService(true)
	ctx := context.Background()

	require.NoError(t, svc.GameEntry(ctx, "alice", "secret"))

	player, err := store.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", player.PasswordHash)
	assert.Empty(t, player.PersonalRankings)

	assert.NoError(t, svc.GameEntry(ctx, "alice", "secret"))
	assert.ErrorIs(t, svc.GameEntry(ctx, "alice", "wrong"), domain.ErrWrongPassword)
}

func TestGameEntryWithRegistrationClosed(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()

	assert.ErrorIs(t, svc.GameEntry(ctx, "bob", "pw"), domain.ErrRegistrationOff)

	require.NoError(t, svc.Register(ctx, "bob", "pw"))
	assert.NoError(t, svc.GameEntry(ctx, "bob", "pw"))
}

func TestGameEntryRejectsEmptyID(t *testing.T) {
	svc, _ := newTestService(true)
	assert.ErrorIs(t, svc.GameEntry(context.Background(), "", "pw"), domain.ErrInvalidRequest)
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "carol", "pw"))
	assert.ErrorIs(t, svc.Register(ctx, "carol", "other"), domain.ErrPlayerExists)
}

func TestConcurrentFirstEntrySamePassword(t *testing.T) {
	svc, _ := newTestService(true)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.GameEntry(ctx, "dave", "pw")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}
