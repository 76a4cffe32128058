package insights

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.EnableMetrics(false)
	os.Exit(m.Run())
}

const recoveryTranscript = "Agent: I'm very sorry for the trouble.\nCustomer: thank you for fixing this."

func fallbackEngine(dim int) *Engine {
	cfg := testInsightsConfig("http://localhost:0", dim)
	cfg.Variant = config.VariantFallback
	return NewEngine(cfg, testLogger())
}

func TestEngineFallbackAnalyze(t *testing.T) {
	engine := fallbackEngine(64)

	result := engine.Analyze(context.Background(), recoveryTranscript, TriggerAnalyze)

	assert.Greater(t, result.CustomerSentimentScore, 0.0, "service recovery transcript should score positive")
	assert.GreaterOrEqual(t, result.AgentTalkRatio, 0.0)
	assert.LessOrEqual(t, result.AgentTalkRatio, 1.0)
	assert.Len(t, result.Embedding, 64)
}

func TestEngineAnalyzeIdempotent(t *testing.T) {
	engine := fallbackEngine(64)
	ctx := context.Background()

	first := engine.Analyze(ctx, recoveryTranscript, TriggerAnalyze)
	second := engine.Analyze(ctx, recoveryTranscript, TriggerRecompute)

	assert.Equal(t, first.AgentTalkRatio, second.AgentTalkRatio)
	assert.Equal(t, first.CustomerSentimentScore, second.CustomerSentimentScore)
	assert.Equal(t, first.Embedding, second.Embedding)
}

func TestEngineEmptyTranscript(t *testing.T) {
	engine := fallbackEngine(16)

	result := engine.Analyze(context.Background(), "", TriggerIngest)

	assert.Equal(t, 0.5, result.AgentTalkRatio)
	assert.Zero(t, result.CustomerSentimentScore)
	require.Len(t, result.Embedding, 16)
	for _, v := range result.Embedding {
		assert.Zero(t, v)
	}
}

func TestEngineModelVariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed":
			json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0, 1, 0, 0}})
		case "/sentiment":
			json.NewEncoder(w).Encode(sentimentResponse{Label: "positive", Score: 0.85})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine := NewEngine(testInsightsConfig(server.URL, 4), testLogger())

	result := engine.Analyze(context.Background(), recoveryTranscript, TriggerAnalyze)

	assert.InDelta(t, 0.85, result.CustomerSentimentScore, 1e-9)
	assert.Equal(t, []float32{0, 1, 0, 0}, result.Embedding)
	assert.Greater(t, result.AgentTalkRatio, 0.0)
}

func TestEngineModelVariantDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	engine := NewEngine(testInsightsConfig(server.URL, 32), testLogger())

	result := engine.Analyze(context.Background(), recoveryTranscript, TriggerAnalyze)

	// Both sub-results degrade to the deterministic fallbacks
	assert.Greater(t, result.CustomerSentimentScore, 0.0)
	assert.Len(t, result.Embedding, 32)

	fallback := fallbackEngine(32)
	expected := fallback.Analyze(context.Background(), recoveryTranscript, TriggerAnalyze)
	assert.Equal(t, expected.Embedding, result.Embedding)
	assert.Equal(t, expected.CustomerSentimentScore, result.CustomerSentimentScore)
}
