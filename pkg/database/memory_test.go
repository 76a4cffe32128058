package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "callinsights-server/pkg/errors"
)

func newTestRecord(callID, agentID string, start time.Time, sentiment float64) *CallRecord {
	return &CallRecord{
		CallID:                 callID,
		AgentID:                agentID,
		CustomerID:             "cust-1",
		Language:               "en",
		StartTime:              start,
		DurationSeconds:        300,
		Transcript:             "Agent: hello. Customer: hi there.",
		CustomerSentimentScore: sentiment,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("call-1", "agent-1", time.Now().UTC(), 0.4)
	require.NoError(t, store.CreateCall(ctx, record))
	assert.NotEmpty(t, record.ID, "create should assign an id")

	got, err := store.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "call-1", got.CallID)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStoreDuplicateCall(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-1", "agent-1", time.Now().UTC(), 0)))

	err := store.CreateCall(ctx, newTestRecord("call-1", "agent-2", time.Now().UTC(), 0))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrCallAlreadyExists))
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetCall(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrCallNotFound))
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("call-1", "agent-1", time.Now().UTC(), 0)
	record.Embedding = []byte{1, 2, 3, 4}
	require.NoError(t, store.CreateCall(ctx, record))

	got, err := store.GetCall(ctx, "call-1")
	require.NoError(t, err)
	got.Embedding[0] = 99
	got.AgentID = "mutated"

	again, err := store.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Embedding[0])
	assert.Equal(t, "agent-1", again.AgentID)
}

func TestMemoryStoreListCallsFilterAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-1", "agent-1", base, -0.5)))
	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-2", "agent-1", base.Add(time.Hour), 0.2)))
	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-3", "agent-2", base.Add(2*time.Hour), 0.8)))

	// Agent filter
	records, total, err := store.ListCalls(ctx, CallFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	// Newest first
	assert.Equal(t, "call-2", records[0].CallID)
	assert.Equal(t, "call-1", records[1].CallID)

	// Sentiment bounds
	minS := 0.0
	records, total, err = store.ListCalls(ctx, CallFilter{MinSentiment: &minS})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)

	// Paging keeps the total over the whole filtered set
	records, total, err = store.ListCalls(ctx, CallFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 1)
	assert.Equal(t, "call-2", records[0].CallID)

	// Offset beyond the corpus yields an empty page, not an error
	records, total, err = store.ListCalls(ctx, CallFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, records)
}

func TestMemoryStoreListCallsDateRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-1", "agent-1", base, 0)))
	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-2", "agent-1", base.AddDate(0, 0, 5), 0)))

	from := base.AddDate(0, 0, 1)
	records, total, err := store.ListCalls(ctx, CallFilter{FromDate: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "call-2", records[0].CallID)
}

func TestMemoryStoreListAllCallsOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-b", "agent-1", now, 0)))
	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-a", "agent-1", now, 0)))
	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-c", "agent-1", now, 0)))

	records, err := store.ListAllCalls(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "call-a", records[0].CallID)
	assert.Equal(t, "call-b", records[1].CallID)
	assert.Equal(t, "call-c", records[2].CallID)
}

func TestMemoryStoreUpdateInsights(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateCall(ctx, newTestRecord("call-1", "agent-1", time.Now().UTC(), 0)))

	insights := CallInsights{
		AgentTalkRatio:         0.65,
		CustomerSentimentScore: 0.3,
		Embedding:              []byte{0, 0, 128, 63},
	}
	require.NoError(t, store.UpdateInsights(ctx, "call-1", insights))

	got, err := store.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.65, got.AgentTalkRatio, 1e-9)
	assert.InDelta(t, 0.3, got.CustomerSentimentScore, 1e-9)
	assert.Equal(t, insights.Embedding, got.Embedding)

	err = store.UpdateInsights(ctx, "missing", insights)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrCallNotFound))
}

func TestMemoryStoreAgentAggregates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertAgentAggregate(ctx, &AgentAggregate{
		AgentID: "agent-1", AvgSentiment: 0.2, AvgTalkRatio: 0.5, CallCount: 3,
	}))
	require.NoError(t, store.UpsertAgentAggregate(ctx, &AgentAggregate{
		AgentID: "agent-2", AvgSentiment: 0.7, AvgTalkRatio: 0.4, CallCount: 2,
	}))
	// Upsert replaces
	require.NoError(t, store.UpsertAgentAggregate(ctx, &AgentAggregate{
		AgentID: "agent-1", AvgSentiment: 0.9, AvgTalkRatio: 0.6, CallCount: 4,
	}))

	aggregates, err := store.ListAgentAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggregates, 2)
	assert.Equal(t, "agent-1", aggregates[0].AgentID)
	assert.InDelta(t, 0.9, aggregates[0].AvgSentiment, 1e-9)
	assert.Equal(t, 4, aggregates[0].CallCount)
	assert.Equal(t, "agent-2", aggregates[1].AgentID)
	assert.False(t, aggregates[0].ComputedAt.IsZero())
}
