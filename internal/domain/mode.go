package domain

import (
	"fmt"
	"strconv"
)

// Mode is the game variant a score was recorded under
type Mode int

const (
	ModeNormal Mode = iota
	ModeMaster
	ModeUltimate
)

// ParseMode decodes the wire representation of a mode
func ParseMode(s string) (Mode, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	m := Mode(n)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, n)
	}
	return m, nil
}

// Valid reports whether the mode is one of the supported variants
func (m Mode) Valid() bool {
	_, ok := rankThresholds[m]
	return ok
}

// Code is the one-based mode number the client prints next to the rank class
func (m Mode) Code() int {
	return int(m) + 1
}

func (m Mode) String() string {
	return strconv.Itoa(int(m))
}

// RankThresholds holds the score floors used to classify a leaderboard row
type RankThresholds struct {
	Top1          int64
	Top1Secondary int64
	Top30         int64
}

const million = 1_000_000

var rankThresholds = map[Mode]RankThresholds{
	ModeNormal:   {Top1: 5 * million, Top1Secondary: 5 * million, Top30: 1 * million},
	ModeMaster:   {Top1: 10 * million, Top1Secondary: 5 * million, Top30: 10 * million},
	ModeUltimate: {Top1: 50 * million, Top1Secondary: 10 * million, Top30: 10 * million},
}

// Thresholds returns the rank class table entry for the mode
func (m Mode) Thresholds() (RankThresholds, bool) {
	t, ok := rankThresholds[m]
	return t, ok
}

// Rank classes shown alongside a leaderboard entry
const (
	RankClassNone    = 0
	RankClassTop     = 1
	RankClassNotable = 2
)

// top30Ratio is the rank/total ratio from which the notable tier applies
const top30Ratio = 0.3

// ClassifyRank computes the rank class of a row at the given rank on a board
// holding total records.
//
// The top-30% clause is also checked at rank 1, unlike the legacy client,
// which only considered the top-1 thresholds there. This matters only on
// boards of three or fewer records.
func ClassifyRank(mode Mode, rank, total int, score int64) int {
	t, ok := mode.Thresholds()
	if !ok || total <= 0 {
		return RankClassNone
	}
	if rank == 1 && score >= t.Top1 {
		return RankClassTop
	}
	if rank == 1 && score >= t.Top1Secondary {
		return RankClassNotable
	}
	if float64(rank)/float64(total) >= top30Ratio && score >= t.Top30 {
		return RankClassNotable
	}
	return RankClassNone
}
