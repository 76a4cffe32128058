package insights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconScorerEmptyText(t *testing.T) {
	scorer := NewLexiconScorer()

	for _, text := range []string{"", "   ", "\n"} {
		score, err := scorer.Score(context.Background(), text)
		require.NoError(t, err)
		assert.Zero(t, score)
	}
}

func TestLexiconScorerIndicatorFreeText(t *testing.T) {
	scorer := NewLexiconScorer()

	score, err := scorer.Score(context.Background(), "the meeting is scheduled for tuesday at noon")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestLexiconScorerPositive(t *testing.T) {
	scorer := NewLexiconScorer()

	score, err := scorer.Score(context.Background(), "thank you for fixing this, the solution works great")
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestLexiconScorerNegative(t *testing.T) {
	scorer := NewLexiconScorer()

	score, err := scorer.Score(context.Background(), "this is terrible, the product is broken and support was useless")
	require.NoError(t, err)
	assert.Less(t, score, 0.0)
	assert.GreaterOrEqual(t, score, -1.0)
}

func TestLexiconScorerNegationFlip(t *testing.T) {
	scorer := NewLexiconScorer()
	ctx := context.Background()

	negatedPositive, err := scorer.Score(ctx, "the onboarding was not good")
	require.NoError(t, err)
	assert.Less(t, negatedPositive, 0.0)

	negatedNegative, err := scorer.Score(ctx, "the setup was not difficult at all")
	require.NoError(t, err)
	assert.Greater(t, negatedNegative, 0.0)
}

func TestLexiconScorerEscalationCue(t *testing.T) {
	scorer := NewLexiconScorer()

	score, err := scorer.Score(context.Background(), "let me speak to your manager right now")
	require.NoError(t, err)
	assert.Less(t, score, 0.0)
}

func TestLexiconScorerLongTranscriptBounded(t *testing.T) {
	scorer := NewLexiconScorer()

	text := ""
	for i := 0; i < 200; i++ {
		text += "great excellent wonderful "
	}

	score, err := scorer.Score(context.Background(), text)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
