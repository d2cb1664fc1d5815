package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/storage"
)

// SubmitScore records a score on the global and personal boards and
// reconciles the staged replay with the global record. staged may be empty
// when no replay was uploaded.
//
// Every path ends in exactly one of promote or discard for a staged replay.
// The work runs detached from ctx cancellation so a dropped client cannot
// leave that decision unmade.
func (s *LeaderboardService) SubmitScore(ctx context.Context, sub domain.ScoreSubmission, staged storage.TempHandle) (*domain.SubmissionResult, error) {
	ctx = context.WithoutCancel(ctx)

	if s.options.NoScores {
		s.discard(ctx, staged)
		s.metrics.ObserveSubmission(string(domain.OutcomeDisabled))
		return &domain.SubmissionResult{Outcome: domain.OutcomeDisabled}, nil
	}

	if err := sub.Validate(); err != nil {
		s.discard(ctx, staged)
		return nil, err
	}

	if _, err := s.players.GetPlayer(ctx, sub.PlayerID); err != nil {
		s.discard(ctx, staged)
		return nil, persistenceError("looking up player", err)
	}

	result, err := s.commit(ctx, sub, staged)
	s.metrics.ObserveSubmission(string(result.Outcome))

	s.publish(ctx, sub, result)
	if result.Outcome == domain.OutcomeInserted || result.Outcome == domain.OutcomeImproved {
		s.broadcast(ctx, sub.Mode)
	}

	return result, err
}

// commit runs both board updates under the player's lock
func (s *LeaderboardService) commit(ctx context.Context, sub domain.ScoreSubmission, staged storage.TempHandle) (*domain.SubmissionResult, error) {
	unlock := s.locks.Lock(sub.PlayerID)
	defer unlock()

	result, globalErr := s.commitGlobal(ctx, sub, staged)
	stored, personalErr := s.commitPersonal(ctx, sub)
	result.PersonalStored = stored
	return result, errors.Join(globalErr, personalErr)
}

// commitGlobal applies the global board policy
func (s *LeaderboardService) commitGlobal(ctx context.Context, sub domain.ScoreSubmission, staged storage.TempHandle) (*domain.SubmissionResult, error) {
	if !s.options.MultiScores {
		existing, err := s.rankings.FindRanking(ctx, sub.PlayerID, sub.Mode)
		switch {
		case err == nil:
			return s.replaceIfHigher(ctx, existing, sub, staged)
		case !errors.Is(err, domain.ErrRankingNotFound):
			s.discard(ctx, staged)
			return &domain.SubmissionResult{Outcome: domain.OutcomeRejected}, persistenceError("finding ranking", err)
		}
	}

	rec, err := s.rankings.InsertRanking(ctx, domain.RankingRecord{
		PlayerID: sub.PlayerID,
		Payload:  sub.Payload,
	})
	if err != nil {
		s.discard(ctx, staged)
		return &domain.SubmissionResult{Outcome: domain.OutcomeRejected}, persistenceError("inserting ranking", err)
	}

	result := &domain.SubmissionResult{Outcome: domain.OutcomeInserted, RecordID: rec.ID}
	return result, s.promote(ctx, staged, rec.ID)
}

func (s *LeaderboardService) replaceIfHigher(ctx context.Context, existing *domain.RankingRecord, sub domain.ScoreSubmission, staged storage.TempHandle) (*domain.SubmissionResult, error) {
	if sub.Score <= existing.Score {
		s.discard(ctx, staged)
		return &domain.SubmissionResult{Outcome: domain.OutcomeRejected, RecordID: existing.ID}, nil
	}

	updated := *existing
	updated.Payload = sub.Payload
	if err := s.rankings.UpdateRanking(ctx, updated); err != nil {
		s.discard(ctx, staged)
		return &domain.SubmissionResult{Outcome: domain.OutcomeRejected, RecordID: existing.ID}, persistenceError("updating ranking", err)
	}

	// The superseded replay goes even when no new one was uploaded.
	removeErr := s.remove(ctx, existing.ID)
	promoteErr := s.promote(ctx, staged, existing.ID)

	result := &domain.SubmissionResult{Outcome: domain.OutcomeImproved, RecordID: existing.ID}
	return result, errors.Join(removeErr, promoteErr)
}

// commitPersonal applies the personal list policy
func (s *LeaderboardService) commitPersonal(ctx context.Context, sub domain.ScoreSubmission) (bool, error) {
	entry := domain.PersonalSlot{PlayerID: sub.PlayerID, Payload: sub.Payload}
	changed, err := s.players.UpdatePersonalRankings(ctx, sub.PlayerID, func(slots []domain.PersonalSlot) ([]domain.PersonalSlot, bool) {
		return domain.AdmitPersonal(slots, entry, s.personalCap)
	})
	if err != nil {
		return false, persistenceError("updating personal rankings", err)
	}
	return changed, nil
}

// promote gives a staged replay its permanent name. A missing upload is
// logged and does not fail the submission.
func (s *LeaderboardService) promote(ctx context.Context, staged storage.TempHandle, recordID string) error {
	if staged == "" {
		return nil
	}
	err := s.artifacts.Promote(ctx, staged, recordID)
	s.metrics.ObserveArtifactOp("promote", err)
	if errors.Is(err, domain.ErrArtifactMissing) {
		s.logger.Warn("staged replay missing on promote", "handle", staged, "record_id", recordID)
		return nil
	}
	if err != nil {
		return persistenceError("promoting replay", err)
	}
	return nil
}

// discard drops a staged replay; failures are logged only since the
// janitor reclaims leftovers.
func (s *LeaderboardService) discard(ctx context.Context, staged storage.TempHandle) {
	if staged == "" {
		return
	}
	err := s.artifacts.Discard(ctx, staged)
	s.metrics.ObserveArtifactOp("discard", err)
	if err != nil {
		s.logger.Warn("failed to discard staged replay", "handle", staged, "error", err)
	}
}

func (s *LeaderboardService) remove(ctx context.Context, recordID string) error {
	err := s.artifacts.Remove(ctx, recordID)
	s.metrics.ObserveArtifactOp("remove", err)
	if errors.Is(err, domain.ErrArtifactMissing) {
		s.logger.Warn("superseded replay already absent", "record_id", recordID)
		return nil
	}
	if err != nil {
		return persistenceError("removing replay", err)
	}
	return nil
}

func (s *LeaderboardService) publish(ctx context.Context, sub domain.ScoreSubmission, result *domain.SubmissionResult) {
	if len(s.sinks) == 0 {
		return
	}
	event := domain.ScoreEvent{
		PlayerID:  sub.PlayerID,
		RecordID:  result.RecordID,
		Mode:      sub.Mode,
		Score:     sub.Score,
		Outcome:   result.Outcome,
		Timestamp: time.Now(),
	}
	for _, sink := range s.sinks {
		if err := sink.RecordEvent(ctx, event); err != nil {
			s.logger.Warn("failed to record score event", "player_id", sub.PlayerID, "error", err)
		}
	}
}

func (s *LeaderboardService) broadcast(ctx context.Context, mode domain.Mode) {
	if s.hub == nil {
		return
	}
	view, err := s.GetGlobalRanking(ctx, mode, "", 0)
	if err != nil {
		s.logger.Warn("failed to build ranking update", "mode", mode, "error", err)
		return
	}
	s.hub.BroadcastRankingUpdate(mode, *view)
}
