package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	logger := logrus.New()

	cfg, err := Load(logger)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "fallback", cfg.Insights.Variant)
	assert.Equal(t, 384, cfg.Insights.EmbeddingDim)
	assert.Equal(t, 5, cfg.Insights.TopK)
	assert.Equal(t, "02:30", cfg.Scheduler.DailyAt)
	assert.Equal(t, 2*time.Second, cfg.Streaming.DefaultInterval)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadInsightsOverrides(t *testing.T) {
	t.Setenv("INSIGHTS_VARIANT", "model")
	t.Setenv("INSIGHTS_EMBEDDING_DIM", "128")
	t.Setenv("INSIGHTS_TOP_K", "3")
	t.Setenv("INSIGHTS_FILLER_WORDS", "um, uh ,Okay")

	cfg, err := Load(logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "model", cfg.Insights.Variant)
	assert.Equal(t, 128, cfg.Insights.EmbeddingDim)
	assert.Equal(t, 3, cfg.Insights.TopK)
	assert.Equal(t, []string{"um", "uh", "okay"}, cfg.Insights.FillerWords)
}

func TestLoadRejectsBadVariant(t *testing.T) {
	t.Setenv("INSIGHTS_VARIANT", "quantum")

	_, err := Load(logrus.New())
	assert.Error(t, err)
}

func TestLoadRejectsBadDailyAt(t *testing.T) {
	t.Setenv("SCHEDULER_DAILY_AT", "25:99")

	_, err := Load(logrus.New())
	assert.Error(t, err)
}

func TestParseDailyAt(t *testing.T) {
	hour, minute, err := ParseDailyAt("02:30")
	require.NoError(t, err)
	assert.Equal(t, 2, hour)
	assert.Equal(t, 30, minute)

	_, _, err = ParseDailyAt("0230")
	assert.Error(t, err)

	_, _, err = ParseDailyAt("12:60")
	assert.Error(t, err)
}

func TestDatabasePasswordRequiredWhenEnabled(t *testing.T) {
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_PASSWORD", "")

	_, err := Load(logrus.New())
	assert.Error(t, err)
}
