package postgres

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmr-leaderboard/internal/domain"
)

func TestEncodeSlotsNilIsEmptyArray(t *testing.T) {
	data, err := encodeSlots(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestEncodeSlotsUsesPlayerDocumentKeys(t *testing.T) {
	data, err := encodeSlots([]domain.PersonalSlot{{
		PlayerID: "alice",
		Payload:  domain.Payload{Mode: domain.ModeMaster, Score: 10, Jewel: 1, Level: 2, Class: 3, Time: 4},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"alice","mode":1,"score":10,"jewel":1,"level":2,"class":3,"time":4}]`, string(data))

	var back []domain.PersonalSlot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "alice", back[0].PlayerID)
}
