package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmr-leaderboard/internal/domain"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "scores" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type collectingHandler struct {
	events []domain.ScoreEvent
}

func (h *collectingHandler) RecordEvent(_ context.Context, e domain.ScoreEvent) error {
	h.events = append(h.events, e)
	return nil
}

func TestConsumeClaimDeliversEventsInOrder(t *testing.T) {
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	for i, e := range []domain.ScoreEvent{
		{PlayerID: "alice", Score: 10, Outcome: domain.OutcomeInserted},
		{PlayerID: "bob", Score: 20, Outcome: domain.OutcomeRejected},
	} {
		raw, err := json.Marshal(e)
		require.NoError(t, err)
		claim.messages <- &sarama.ConsumerMessage{Offset: int64(i * 2), Value: raw}
	}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("not json")}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	collector := &collectingHandler{}
	h := &groupHandler{handler: collector, logger: testLogger()}

	require.NoError(t, h.Setup(session))
	require.NoError(t, h.ConsumeClaim(session, claim))

	require.Len(t, collector.events, 2)
	assert.Equal(t, "alice", collector.events[0].PlayerID)
	assert.Equal(t, domain.OutcomeRejected, collector.events[1].Outcome)
	assert.Equal(t, []int64{0, 2, 1}, session.marked)
}

func TestConsumeClaimStopsOnSessionEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	h := &groupHandler{handler: &collectingHandler{}, logger: testLogger()}

	assert.NoError(t, h.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}
