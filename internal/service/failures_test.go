package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/memory"
	"github.com/jmr-leaderboard/internal/replay"
	"github.com/jmr-leaderboard/internal/storage"
)

var errBackendDown = errors.New("backend down")

// failingRankings injects errors into the global board writes
type failingRankings struct {
	*memory.Storage
	insertErr   error
	updateErr   error
	insertPanic bool
}

func (f *failingRankings) InsertRanking(ctx context.Context, rec domain.RankingRecord) (*domain.RankingRecord, error) {
	if f.insertPanic {
		panic("insert exploded")
	}
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.Storage.InsertRanking(ctx, rec)
}

func (f *failingRankings) UpdateRanking(ctx context.Context, rec domain.RankingRecord) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Storage.UpdateRanking(ctx, rec)
}

// failingArtifacts injects errors into replay promotion and removal
type failingArtifacts struct {
	*replay.Store
	promoteErr error
	removeErr  error
}

func (f *failingArtifacts) Promote(ctx context.Context, h storage.TempHandle, recordID string) error {
	if f.promoteErr != nil {
		return f.promoteErr
	}
	return f.Store.Promote(ctx, h, recordID)
}

func (f *failingArtifacts) Remove(ctx context.Context, recordID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(ctx, recordID)
}

func (s *SubmitSuite) failingService(rankings *failingRankings, artifacts *failingArtifacts) *LeaderboardService {
	return NewLeaderboardService(
		rankings, s.store, artifacts, s.options,
		&config.LeaderboardConfig{PersonalCap: s.cap},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *SubmitSuite) TestInsertFailureDiscardsReplayAndStillStoresPersonal() {
	rankings := &failingRankings{Storage: s.store, insertErr: errBackendDown}
	svc := s.failingService(rankings, &failingArtifacts{Store: s.replays})

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("lost"))
	s.Require().Error(err)
	s.ErrorIs(err, domain.ErrPersistence)
	s.ErrorIs(err, errBackendDown)
	s.Equal(domain.OutcomeRejected, res.Outcome)
	s.True(res.PersonalStored)
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Empty(list)

	player, err := s.store.GetPlayer(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(player.PersonalRankings, 1)
}

func (s *SubmitSuite) TestUpdateFailureKeepsPreviousRecordAndReplay() {
	first, err := s.service().SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("old"))
	s.Require().NoError(err)

	rankings := &failingRankings{Storage: s.store, updateErr: errBackendDown}
	svc := s.failingService(rankings, &failingArtifacts{Store: s.replays})

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 900), s.stage("new"))
	s.ErrorIs(err, domain.ErrPersistence)
	s.Equal(domain.OutcomeRejected, res.Outcome)
	s.Empty(s.tempFiles())
	s.Equal("old", s.replayContent(first.RecordID))

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(int64(500), list[0].Score)
}

func (s *SubmitSuite) TestPromoteFailureSurfacesWithoutRollback() {
	artifacts := &failingArtifacts{Store: s.replays, promoteErr: errBackendDown}
	svc := s.failingService(&failingRankings{Storage: s.store}, artifacts)

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("run"))
	s.ErrorIs(err, domain.ErrPersistence)
	s.ErrorIs(err, errBackendDown)
	s.Equal(domain.OutcomeInserted, res.Outcome)
	s.NotEmpty(res.RecordID)

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(res.RecordID, list[0].ID)
}

func (s *SubmitSuite) TestPromoteOfMissingArtifactIsNotAnError() {
	artifacts := &failingArtifacts{Store: s.replays, promoteErr: domain.ErrArtifactMissing}
	svc := s.failingService(&failingRankings{Storage: s.store}, artifacts)

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("run"))
	s.Require().NoError(err)
	s.Equal(domain.OutcomeInserted, res.Outcome)
}

func (s *SubmitSuite) TestRemoveFailureOnImproveStillPromotes() {
	first, err := s.service().SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("old"))
	s.Require().NoError(err)

	artifacts := &failingArtifacts{Store: s.replays, removeErr: errBackendDown}
	svc := s.failingService(&failingRankings{Storage: s.store}, artifacts)

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 900), s.stage("new"))
	s.ErrorIs(err, domain.ErrPersistence)
	s.ErrorIs(err, errBackendDown)
	s.Equal(domain.OutcomeImproved, res.Outcome)
	s.Equal("new", s.replayContent(first.RecordID))
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(int64(900), list[0].Score)
}

func (s *SubmitSuite) TestPanickingStoreReleasesPlayerLock() {
	rankings := &failingRankings{Storage: s.store, insertPanic: true}
	svc := s.failingService(rankings, &failingArtifacts{Store: s.replays})

	s.Panics(func() {
		_, _ = svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), "")
	})
	s.Equal(0, svc.locks.size())

	rankings.insertPanic = false
	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), "")
	s.Require().NoError(err)
	s.Equal(domain.OutcomeInserted, res.Outcome)
}
