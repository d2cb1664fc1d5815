package domain

import "time"

// Player represents a registered player and their personal rankings
type Player struct {
	ID               string         `json:"id"`
	PasswordHash     string         `json:"pass"`
	PersonalRankings []PersonalSlot `json:"rankings"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SlotsForMode returns the player's slots recorded under mode, in list order
func (p *Player) SlotsForMode(mode Mode) []PersonalSlot {
	var out []PersonalSlot
	for _, s := range p.PersonalRankings {
		if s.Mode == mode {
			out = append(out, s)
		}
	}
	return out
}
