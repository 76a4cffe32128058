package insights

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/metrics"
)

// Analysis triggers, used as the metrics label for where a run originated
const (
	TriggerIngest    = "ingest"
	TriggerAnalyze   = "analyze"
	TriggerRecompute = "recompute"
)

// Insights is the derived trio computed for one transcript
type Insights struct {
	AgentTalkRatio         float64   `json:"agent_talk_ratio"`
	CustomerSentimentScore float64   `json:"customer_sentiment_score"`
	Embedding              []float32 `json:"-"`
}

// Engine computes insights for transcripts. The "model" variant calls the
// inference sidecar and degrades each sub-result independently to the
// deterministic fallback on failure, so Analyze always produces a complete
// result. The "fallback" variant skips the sidecar entirely.
type Engine struct {
	cfg        config.InsightsConfig
	logger     *logrus.Entry
	baseLogger *logrus.Logger

	talkRatio        *TalkRatioCalculator
	fallbackEmbedder *HashingEmbedder
	fallbackScorer   *LexiconScorer

	modelOnce   sync.Once
	modelClient *ModelClient
}

// NewEngine creates an insights engine for the configured variant
func NewEngine(cfg config.InsightsConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		cfg:              cfg,
		logger:           logger.WithField("component", "insights_engine"),
		baseLogger:       logger,
		talkRatio:        NewTalkRatioCalculator(cfg.FillerWords),
		fallbackEmbedder: NewHashingEmbedder(cfg.EmbeddingDim),
		fallbackScorer:   NewLexiconScorer(),
	}
}

// Dimension reports the embedding dimensionality of the engine's output
func (e *Engine) Dimension() int {
	return e.cfg.EmbeddingDim
}

// Variant reports which computation variant is active
func (e *Engine) Variant() string {
	return e.cfg.Variant
}

// Analyze computes the derived trio for a transcript. It never fails:
// model errors degrade to the fallback implementations per sub-result.
// Sentiment is scored on customer turns only; the embedding covers the
// whole transcript.
func (e *Engine) Analyze(ctx context.Context, transcript, trigger string) Insights {
	start := time.Now()

	_, customerText := SplitSpeakerTurns(transcript)

	result := Insights{
		AgentTalkRatio:         e.talkRatio.Ratio(transcript),
		CustomerSentimentScore: e.score(ctx, customerText),
		Embedding:              e.embed(ctx, transcript),
	}

	metrics.RecordAnalysis(trigger, e.cfg.Variant, time.Since(start))
	return result
}

// Score computes sentiment for text through the active variant with
// fallback degradation. Stream sessions use it to re-score snapshots.
func (e *Engine) Score(ctx context.Context, text string) (float64, error) {
	return e.score(ctx, text), nil
}

func (e *Engine) score(ctx context.Context, text string) float64 {
	if e.cfg.Variant == config.VariantModel {
		score, err := e.model().Score(ctx, text)
		if err == nil {
			return score
		}
		metrics.RecordModelFallback("sentiment")
		e.logger.WithError(err).Debug("Model sentiment unavailable, using lexicon fallback")
	}

	score, _ := e.fallbackScorer.Score(ctx, text)
	return score
}

func (e *Engine) embed(ctx context.Context, text string) []float32 {
	if e.cfg.Variant == config.VariantModel {
		vector, err := e.model().Embed(ctx, text)
		if err == nil {
			return vector
		}
		metrics.RecordModelFallback("embedding")
		e.logger.WithError(err).Debug("Model embedding unavailable, using hashing fallback")
	}

	vector, _ := e.fallbackEmbedder.Embed(ctx, text)
	return vector
}

// model lazily constructs the sidecar client on first use
func (e *Engine) model() *ModelClient {
	e.modelOnce.Do(func() {
		e.modelClient = NewModelClient(e.cfg, e.baseLogger)
		e.logger.WithField("url", e.cfg.ModelServiceURL).Info("Model service client initialized")
	})
	return e.modelClient
}
