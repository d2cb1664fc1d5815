package domain

// AdmitPersonal applies a new slot to a player's personal list. While the
// mode has fewer than limit slots the entry is appended; at the limit it
// replaces the lowest-scoring slot of that mode if strictly higher. The
// returned bool reports whether the list changed.
func AdmitPersonal(slots []PersonalSlot, entry PersonalSlot, limit int) ([]PersonalSlot, bool) {
	if limit <= 0 {
		limit = DefaultPersonalCap
	}

	count := 0
	minIdx := -1
	for i, s := range slots {
		if s.Mode != entry.Mode {
			continue
		}
		count++
		if minIdx == -1 || s.Score < slots[minIdx].Score {
			minIdx = i
		}
	}

	if count < limit {
		out := make([]PersonalSlot, len(slots), len(slots)+1)
		copy(out, slots)
		return append(out, entry), true
	}

	if entry.Score <= slots[minIdx].Score {
		return slots, false
	}

	out := make([]PersonalSlot, len(slots))
	copy(out, slots)
	out[minIdx] = entry
	return out, true
}
