package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

// SimilarCall is one ranked neighbor in a recommendation result
type SimilarCall struct {
	CallID                 string  `json:"call_id"`
	Similarity             float64 `json:"similarity"`
	AgentID                string  `json:"agent_id"`
	CustomerSentimentScore float64 `json:"customer_sentiment_score"`
}

// Result pairs the ranked similar calls with exactly three coaching nudges
type Result struct {
	SimilarCalls   []SimilarCall `json:"similar_calls"`
	CoachingNudges []string      `json:"coaching_nudges"`
}

// Recommender ranks stored calls by embedding similarity against a target
// call and derives coaching nudges from the target's own insights. The scan
// is a brute-force pass over the corpus; at the intended corpus scale this
// stays well under interactive latency and avoids an index to keep fresh.
type Recommender struct {
	store  database.Store
	topK   int
	logger *logrus.Entry
}

// New creates a recommender over the given store
func New(store database.Store, cfg config.InsightsConfig, logger *logrus.Logger) *Recommender {
	return &Recommender{
		store:  store,
		topK:   cfg.TopK,
		logger: logger.WithField("component", "recommender"),
	}
}

// Recommend returns the top-K most similar calls and three coaching nudges
// for the given call. An unknown call is an error; a target without an
// embedding or an effectively empty corpus yields an empty similarity list
// with default nudges.
func (r *Recommender) Recommend(ctx context.Context, callID string) (*Result, error) {
	start := time.Now()

	target, err := r.store.GetCall(ctx, callID)
	if err != nil {
		metrics.RecordRecommendation("not_found", 0, time.Since(start))
		return nil, err
	}

	targetVector, err := insights.DecodeVector(target.Embedding)
	if err != nil {
		r.logger.WithError(err).WithField("call_id", callID).Warn("Stored embedding is unreadable")
		targetVector = nil
	}

	nudges := coachingNudges(target.CustomerSentimentScore, target.AgentTalkRatio)

	if len(targetVector) == 0 {
		metrics.RecordRecommendation("no_embedding", 0, time.Since(start))
		return &Result{SimilarCalls: []SimilarCall{}, CoachingNudges: nudges}, nil
	}

	corpus, err := r.store.ListAllCalls(ctx)
	if err != nil {
		metrics.RecordRecommendation("error", 0, time.Since(start))
		return nil, err
	}

	scored := make([]SimilarCall, 0, len(corpus))
	for _, record := range corpus {
		if record.CallID == target.CallID || len(record.Embedding) == 0 {
			continue
		}

		vector, decodeErr := insights.DecodeVector(record.Embedding)
		if decodeErr != nil {
			r.logger.WithError(decodeErr).WithField("call_id", record.CallID).Warn("Skipping record with unreadable embedding")
			continue
		}

		scored = append(scored, SimilarCall{
			CallID:                 record.CallID,
			Similarity:             insights.CosineSimilarity(targetVector, vector),
			AgentID:                record.AgentID,
			CustomerSentimentScore: record.CustomerSentimentScore,
		})
	}

	// Descending similarity, ascending call_id on ties, for a stable ranking
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity == scored[j].Similarity {
			return scored[i].CallID < scored[j].CallID
		}
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}

	metrics.RecordRecommendation("success", len(corpus), time.Since(start))

	return &Result{SimilarCalls: scored, CoachingNudges: nudges}, nil
}
