package messaging

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.EnableMetrics(false)
	os.Exit(m.Run())
}

func TestNewPublisherUnconfigured(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	publisher := NewPublisher(config.MessagingConfig{}, logger)

	_, isNoop := publisher.(*NoopPublisher)
	assert.True(t, isNoop, "empty AMQP URL should disable publishing")
}

func TestNoopPublisher(t *testing.T) {
	publisher := &NoopPublisher{}
	ctx := context.Background()

	assert.NoError(t, publisher.PublishInsightsUpdated(ctx, "call-1", "ingest"))
	assert.NoError(t, publisher.PublishRecomputeCompleted(ctx, 10, 2))
	assert.False(t, publisher.IsConnected())
	publisher.Close()
}

func TestInsightEventEncoding(t *testing.T) {
	event := InsightEvent{
		Event:     EventRecomputeCompleted,
		Processed: 42,
		Failed:    3,
		Timestamp: time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC),
	}

	body, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "recompute.completed", decoded["event"])
	assert.EqualValues(t, 42, decoded["processed"])
	assert.EqualValues(t, 3, decoded["failed"])
	// Zero-valued call fields stay off the wire
	assert.NotContains(t, decoded, "call_id")
	assert.NotContains(t, decoded, "trigger")
}
