package scheduler

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	pkgerrors "callinsights-server/pkg/errors"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.EnableMetrics(false)
	os.Exit(m.Run())
}

type fakeAnalyzer struct {
	result insights.Insights
	block  chan struct{}
	calls  atomic.Int32
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, transcript, trigger string) insights.Insights {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.result
}

func newTestScheduler(store database.Store, analyzer Analyzer) *Scheduler {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return New(store, analyzer, nil, config.SchedulerConfig{Enabled: false, DailyAt: "02:30"}, logger)
}

func seedCall(t *testing.T, store database.Store, callID, agentID string) {
	t.Helper()
	require.NoError(t, store.CreateCall(context.Background(), &database.CallRecord{
		CallID:          callID,
		AgentID:         agentID,
		CustomerID:      "cust-1",
		Language:        "en",
		StartTime:       time.Now().UTC(),
		DurationSeconds: 60,
		Transcript:      "Agent: hello\nCustomer: hi",
	}))
}

func waitForIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, 5*time.Second, 10*time.Millisecond)
}

func TestTriggerRecompute(t *testing.T) {
	store := database.NewMemoryStore()
	seedCall(t, store, "call-1", "agent-1")
	seedCall(t, store, "call-2", "agent-1")
	seedCall(t, store, "call-3", "agent-2")

	analyzer := &fakeAnalyzer{result: insights.Insights{
		AgentTalkRatio:         0.6,
		CustomerSentimentScore: 0.4,
		Embedding:              []float32{1, 0},
	}}
	s := newTestScheduler(store, analyzer)

	require.NoError(t, s.TriggerRecompute())
	waitForIdle(t, s)
	s.Stop()

	assert.Equal(t, int32(3), analyzer.calls.Load())

	record, err := store.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, record.AgentTalkRatio, 1e-9)
	assert.InDelta(t, 0.4, record.CustomerSentimentScore, 1e-9)
	assert.NotEmpty(t, record.Embedding)

	aggregates, err := store.ListAgentAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggregates, 2)
	for _, agg := range aggregates {
		assert.InDelta(t, 0.4, agg.AvgSentiment, 1e-9)
		assert.InDelta(t, 0.6, agg.AvgTalkRatio, 1e-9)
	}
}

func TestTriggerRecomputeRejectsConcurrent(t *testing.T) {
	store := database.NewMemoryStore()
	seedCall(t, store, "call-1", "agent-1")

	analyzer := &fakeAnalyzer{block: make(chan struct{})}
	s := newTestScheduler(store, analyzer)

	require.NoError(t, s.TriggerRecompute())

	assert.Eventually(t, s.IsRunning, 5*time.Second, 10*time.Millisecond)

	err := s.TriggerRecompute()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrRecomputeInProgress))

	close(analyzer.block)
	waitForIdle(t, s)
	s.Stop()

	// The rejected trigger never queues a second run
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

type updateFailingStore struct {
	database.Store
	failCallID string
}

func (s *updateFailingStore) UpdateInsights(ctx context.Context, callID string, insights database.CallInsights) error {
	if callID == s.failCallID {
		return pkgerrors.NewInternalError("simulated write failure")
	}
	return s.Store.UpdateInsights(ctx, callID, insights)
}

func TestRecomputeSkipsFailedRecords(t *testing.T) {
	memory := database.NewMemoryStore()
	seedCall(t, memory, "call-1", "agent-1")
	seedCall(t, memory, "call-2", "agent-1")
	store := &updateFailingStore{Store: memory, failCallID: "call-1"}

	analyzer := &fakeAnalyzer{result: insights.Insights{
		AgentTalkRatio:         0.7,
		CustomerSentimentScore: 0.2,
		Embedding:              []float32{0, 1},
	}}
	s := newTestScheduler(store, analyzer)

	require.NoError(t, s.TriggerRecompute())
	waitForIdle(t, s)
	s.Stop()

	// The failing record keeps its prior values
	failedRecord, err := memory.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Zero(t, failedRecord.CustomerSentimentScore)

	updated, err := memory.GetCall(context.Background(), "call-2")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, updated.CustomerSentimentScore, 1e-9)

	// Aggregates are still rebuilt over the whole corpus
	aggregates, err := memory.ListAgentAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	assert.Equal(t, 2, aggregates[0].CallCount)
}

func TestRecomputeCanceled(t *testing.T) {
	store := database.NewMemoryStore()
	seedCall(t, store, "call-1", "agent-1")

	analyzer := &fakeAnalyzer{}
	s := newTestScheduler(store, analyzer)

	s.Stop()
	require.NoError(t, s.TriggerRecompute())
	waitForIdle(t, s)

	// The run observed cancellation before touching any record
	record, err := store.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Empty(t, record.Embedding)
}

func TestStopInterruptsManualRun(t *testing.T) {
	store := database.NewMemoryStore()
	seedCall(t, store, "call-1", "agent-1")
	seedCall(t, store, "call-2", "agent-1")
	seedCall(t, store, "call-3", "agent-1")

	analyzer := &fakeAnalyzer{block: make(chan struct{})}
	s := newTestScheduler(store, analyzer)

	require.NoError(t, s.TriggerRecompute())
	assert.Eventually(t, s.IsRunning, 5*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Wait for Stop to cancel the lifecycle before releasing the analyzer,
	// then the run must observe cancellation at the next record boundary
	assert.Eventually(t, func() bool { return s.lifeCtx.Err() != nil }, 5*time.Second, 10*time.Millisecond)
	close(analyzer.block)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the in-flight record finished")
	}

	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestParentContextCancelInterruptsManualRun(t *testing.T) {
	store := database.NewMemoryStore()
	seedCall(t, store, "call-1", "agent-1")
	seedCall(t, store, "call-2", "agent-1")

	analyzer := &fakeAnalyzer{block: make(chan struct{})}
	s := newTestScheduler(store, analyzer)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.NoError(t, s.TriggerRecompute())
	assert.Eventually(t, s.IsRunning, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return s.lifeCtx.Err() != nil }, 5*time.Second, 10*time.Millisecond)
	close(analyzer.block)

	waitForIdle(t, s)
	s.Stop()

	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)

	next := nextOccurrence(now, 2, 30)
	assert.Equal(t, time.Date(2025, 6, 10, 2, 30, 0, 0, time.UTC), next)

	// Already past today's slot rolls to tomorrow
	next = nextOccurrence(time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC), 2, 30)
	assert.Equal(t, time.Date(2025, 6, 11, 2, 30, 0, 0, time.UTC), next)

	// Exactly at the slot also rolls forward
	next = nextOccurrence(time.Date(2025, 6, 10, 2, 30, 0, 0, time.UTC), 2, 30)
	assert.Equal(t, time.Date(2025, 6, 11, 2, 30, 0, 0, time.UTC), next)
}
