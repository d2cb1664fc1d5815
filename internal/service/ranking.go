package service

import (
	"context"
	"errors"
	"sort"

	"github.com/jmr-leaderboard/internal/domain"
)

// GetPersonalRanking returns a player's personal slots for mode, best first.
// An unknown player yields an empty list.
func (s *LeaderboardService) GetPersonalRanking(ctx context.Context, playerID string, mode domain.Mode) ([]domain.LeaderboardRow, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}
	s.metrics.ObserveRankingQuery("personal")

	player, err := s.players.GetPlayer(ctx, playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return []domain.LeaderboardRow{}, nil
	}
	if err != nil {
		return nil, persistenceError("getting player", err)
	}

	slots := player.SlotsForMode(mode)
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Score > slots[j].Score
	})

	rows := make([]domain.LeaderboardRow, 0, len(slots))
	for i, slot := range slots {
		rows = append(rows, domain.LeaderboardRow{
			Personal: true,
			PlayerID: player.ID,
			Rank:     i + 1,
			Payload:  slot.Payload,
		})
	}
	return rows, nil
}

// GetGlobalRanking returns one page of the global board for mode. When
// playerID holds a record, the page containing it is returned and that row
// is lit regardless of view.
func (s *LeaderboardService) GetGlobalRanking(ctx context.Context, mode domain.Mode, playerID string, view int) (*domain.RankingView, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}
	s.metrics.ObserveRankingQuery("global")

	records, err := s.rankings.ListRankings(ctx, mode)
	if err != nil {
		return nil, persistenceError("listing rankings", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})

	found := -1
	if playerID != "" {
		for i, rec := range records {
			if rec.PlayerID == playerID {
				found = i
				break
			}
		}
	}

	page := view
	if found >= 0 {
		page = found / domain.PageSize
	}
	if page < 0 {
		page = 0
	}

	total := len(records)
	result := &domain.RankingView{Page: page, Total: total, Rows: []domain.LeaderboardRow{}}
	if total == 0 || page > (total-1)/domain.PageSize {
		return result, nil
	}

	start := page * domain.PageSize
	for i := start; i < start+domain.PageSize && i < total; i++ {
		rec := records[i]
		rank := (i + 1) * (page + 1)
		result.Rows = append(result.Rows, domain.LeaderboardRow{
			Page:      page,
			RecordID:  rec.ID,
			PlayerID:  rec.PlayerID,
			Rank:      rank,
			RankClass: domain.ClassifyRank(mode, rank, total, rec.Score),
			Lit:       i == found,
			Payload:   rec.Payload,
		})
	}
	return result, nil
}
