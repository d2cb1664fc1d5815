package redis

import "fmt"

const rankingSeqKey = "rankings:seq"

// rankingKey returns the key of a ranking record hash
func rankingKey(id string) string {
	return fmt.Sprintf("ranking:%s", id)
}

// modeIndexKey returns the sorted set holding a mode's record IDs scored by
// insertion sequence
func modeIndexKey(mode fmt.Stringer) string {
	return fmt.Sprintf("rankings:mode:%s", mode)
}

// ownerKey returns the key pointing at a player's record for a mode
func ownerKey(playerID string, mode fmt.Stringer) string {
	return fmt.Sprintf("ranking:owner:%s:%s", playerID, mode)
}

// playerKey returns the key of a player document
func playerKey(id string) string {
	return fmt.Sprintf("player:%s", id)
}
