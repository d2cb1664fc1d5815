package handler

import (
	"strconv"
	"strings"

	"github.com/jmr-leaderboard/internal/domain"
)

const (
	fieldSep = "\n"
	rowSep   = "."
)

// encodeRows renders rows in the game client's ranking grammar: ten
// newline-joined fields per row, rows joined by '.'.
func encodeRows(rows []domain.LeaderboardRow) string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, encodeRow(row))
	}
	return strings.Join(out, rowSep)
}

func encodeRow(row domain.LeaderboardRow) string {
	page, recordID, tier, lit := "0", "0", "0", "0"
	if !row.Personal {
		page = strconv.Itoa(row.Page)
		recordID = row.RecordID
		tier = strconv.Itoa(row.Mode.Code()) + "0" + strconv.Itoa(row.RankClass)
		if row.Lit {
			lit = "1"
		}
	}

	return strings.Join([]string{
		page,
		recordID,
		row.PlayerID,
		strconv.FormatInt(row.Score, 10),
		"0",
		strconv.FormatInt(row.Level, 10),
		tier,
		strconv.FormatInt(row.Time, 10),
		strconv.FormatInt(row.Jewel, 10),
		lit,
	}, fieldSep)
}
