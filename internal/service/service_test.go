package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/memory"
	"github.com/jmr-leaderboard/internal/replay"
	"github.com/jmr-leaderboard/internal/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ScoreEvent
}

func (r *recordingSink) RecordEvent(_ context.Context, e domain.ScoreEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type recordingHub struct {
	mu    sync.Mutex
	views []domain.RankingView
}

func (r *recordingHub) BroadcastRankingUpdate(_ domain.Mode, view domain.RankingView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
}

type SubmitSuite struct {
	suite.Suite
	ctx     context.Context
	dir     string
	store   *memory.Storage
	replays *replay.Store
	options config.Options
	cap     int
}

func TestSubmitSuite(t *testing.T) {
	suite.Run(t, new(SubmitSuite))
}

func (s *SubmitSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.store = memory.New()
	s.options = config.Options{Register: true}
	s.cap = domain.DefaultPersonalCap

	var err error
	s.replays, err = replay.NewStore(s.dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	for _, id := range []string{"alice", "bob"} {
		s.Require().NoError(s.store.CreatePlayer(s.ctx, &domain.Player{ID: id}))
	}
}

func (s *SubmitSuite) service() *LeaderboardService {
	return NewLeaderboardService(
		s.store, s.store, s.replays, s.options,
		&config.LeaderboardConfig{PersonalCap: s.cap},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *SubmitSuite) stage(content string) storage.TempHandle {
	h, err := s.replays.Stage(s.ctx, strings.NewReader(content))
	s.Require().NoError(err)
	return h
}

func (s *SubmitSuite) submission(player string, mode domain.Mode, score int64) domain.ScoreSubmission {
	return domain.ScoreSubmission{
		PlayerID: player,
		Payload:  domain.Payload{Mode: mode, Score: score, Level: 3, Time: 120, Jewel: 40},
	}
}

func (s *SubmitSuite) replayContent(recordID string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, recordID+".rep"))
	s.Require().NoError(err)
	return string(data)
}

func (s *SubmitSuite) tempFiles() []string {
	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "temp-") {
			out = append(out, e.Name())
		}
	}
	return out
}

func (s *SubmitSuite) TestFirstSubmissionInserts() {
	svc := s.service()

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("run-1"))
	s.Require().NoError(err)
	s.Equal(domain.OutcomeInserted, res.Outcome)
	s.True(res.PersonalStored)
	s.NotEmpty(res.RecordID)

	s.Equal("run-1", s.replayContent(res.RecordID))
	s.Empty(s.tempFiles())

	player, err := s.store.GetPlayer(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(player.PersonalRankings, 1)
}

func (s *SubmitSuite) TestHigherScoreReplacesRecordAndReplay() {
	svc := s.service()

	first, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("old"))
	s.Require().NoError(err)

	second, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 900), s.stage("new"))
	s.Require().NoError(err)
	s.Equal(domain.OutcomeImproved, second.Outcome)
	s.Equal(first.RecordID, second.RecordID)
	s.Equal("new", s.replayContent(first.RecordID))
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(int64(900), list[0].Score)
}

func (s *SubmitSuite) TestLowerOrEqualScoreIsRejected() {
	svc := s.service()

	first, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("kept"))
	s.Require().NoError(err)

	for _, score := range []int64{500, 100} {
		res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, score), s.stage("dropped"))
		s.Require().NoError(err)
		s.Equal(domain.OutcomeRejected, res.Outcome)
		s.Equal(first.RecordID, res.RecordID)
		s.True(res.PersonalStored)
	}

	s.Equal("kept", s.replayContent(first.RecordID))
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(int64(500), list[0].Score)
}

func (s *SubmitSuite) TestModesAreIndependent() {
	svc := s.service()

	a, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), "")
	s.Require().NoError(err)
	b, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeUltimate, 100), "")
	s.Require().NoError(err)

	s.Equal(domain.OutcomeInserted, b.Outcome)
	s.NotEqual(a.RecordID, b.RecordID)
}

func (s *SubmitSuite) TestMultiScoresKeepsEveryRun() {
	s.options.MultiScores = true
	svc := s.service()

	for _, score := range []int64{900, 100, 500} {
		res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeMaster, score), s.stage(fmt.Sprint(score)))
		s.Require().NoError(err)
		s.Equal(domain.OutcomeInserted, res.Outcome)
		s.Equal(fmt.Sprint(score), s.replayContent(res.RecordID))
	}

	list, err := s.store.ListRankings(s.ctx, domain.ModeMaster)
	s.Require().NoError(err)
	s.Len(list, 3)
	s.Empty(s.tempFiles())
}

func (s *SubmitSuite) TestNoScoresDiscardsEverything() {
	s.options.NoScores = true
	svc := s.service()

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), s.stage("run"))
	s.Require().NoError(err)
	s.Equal(domain.OutcomeDisabled, res.Outcome)
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Empty(list)

	player, err := s.store.GetPlayer(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(player.PersonalRankings)
}

func (s *SubmitSuite) TestUnknownPlayerIsRejectedBeforeWrites() {
	svc := s.service()

	_, err := svc.SubmitScore(s.ctx, s.submission("mallory", domain.ModeNormal, 500), s.stage("run"))
	s.ErrorIs(err, domain.ErrPlayerNotFound)
	s.Empty(s.tempFiles())

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *SubmitSuite) TestInvalidSubmission() {
	svc := s.service()

	_, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.Mode(7), 500), s.stage("run"))
	s.ErrorIs(err, domain.ErrInvalidMode)

	_, err = svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, -1), s.stage("run"))
	s.ErrorIs(err, domain.ErrInvalidScore)

	s.Empty(s.tempFiles())
}

func (s *SubmitSuite) TestPersonalCapKeepsBestScores() {
	s.cap = 2
	s.options.MultiScores = true
	svc := s.service()

	for _, score := range []int64{300, 100} {
		_, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, score), "")
		s.Require().NoError(err)
	}

	res, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 50), "")
	s.Require().NoError(err)
	s.False(res.PersonalStored)

	res, err = svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 200), "")
	s.Require().NoError(err)
	s.True(res.PersonalStored)

	rows, err := svc.GetPersonalRanking(s.ctx, "alice", domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(int64(300), rows[0].Score)
	s.Equal(int64(200), rows[1].Score)
}

func (s *SubmitSuite) TestEventsAndBroadcast() {
	svc := s.service()
	sink := &recordingSink{}
	hub := &recordingHub{}
	svc.AddEventSink(sink)
	svc.SetHub(hub)

	_, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 500), "")
	s.Require().NoError(err)
	_, err = svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, 100), "")
	s.Require().NoError(err)

	s.Require().Len(sink.events, 2)
	s.Equal(domain.OutcomeInserted, sink.events[0].Outcome)
	s.Equal(domain.OutcomeRejected, sink.events[1].Outcome)

	s.Require().Len(hub.views, 1)
	s.Require().Len(hub.views[0].Rows, 1)
	s.Equal("alice", hub.views[0].Rows[0].PlayerID)
}

func (s *SubmitSuite) TestConcurrentSubmissionsKeepOneRecord() {
	svc := s.service()

	handles := make(map[int64]storage.TempHandle)
	for i := 1; i <= 20; i++ {
		score := int64(i * 100)
		handles[score] = s.stage(fmt.Sprint(score))
	}

	var wg sync.WaitGroup
	for score, handle := range handles {
		score, handle := score, handle
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitScore(s.ctx, s.submission("alice", domain.ModeNormal, score), handle)
			s.NoError(err)
		}()
	}
	wg.Wait()

	list, err := s.store.ListRankings(s.ctx, domain.ModeNormal)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(int64(2000), list[0].Score)
	s.Equal("2000", s.replayContent(list[0].ID))
	s.Empty(s.tempFiles())
	s.Zero(svc.locks.size())

	player, err := s.store.GetPlayer(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(player.PersonalRankings, domain.DefaultPersonalCap)
	for _, slot := range player.PersonalRankings {
		s.GreaterOrEqual(slot.Score, int64(1100))
	}
}
