package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/database"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

// run executes one full-corpus recompute: re-analyze every stored call,
// then rebuild all agent aggregates from the store's current state. One
// record's failure is logged and skipped; cancellation is honored between
// records so a shutdown never waits on the whole corpus.
func (s *Scheduler) run(ctx context.Context, trigger string) {
	start := time.Now()
	logger := s.logger.WithField("trigger", trigger)
	logger.Info("Recompute run started")

	records, err := s.store.ListAllCalls(ctx)
	if err != nil {
		logger.WithError(err).Error("Recompute run failed to list corpus")
		metrics.RecordRecomputeRun(trigger, "error", time.Since(start))
		return
	}

	processed, failed := 0, 0
	for _, record := range records {
		if ctx.Err() != nil {
			logger.WithFields(logrus.Fields{
				"processed": processed,
				"remaining": len(records) - processed - failed,
			}).Warn("Recompute run canceled")
			metrics.RecordRecomputeRun(trigger, "canceled", time.Since(start))
			return
		}

		result := s.engine.Analyze(ctx, record.Transcript, insights.TriggerRecompute)

		err := s.store.UpdateInsights(ctx, record.CallID, database.CallInsights{
			AgentTalkRatio:         result.AgentTalkRatio,
			CustomerSentimentScore: result.CustomerSentimentScore,
			Embedding:              insights.EncodeVector(result.Embedding),
		})
		if err != nil {
			failed++
			metrics.RecordRecomputeRecord(true)
			logger.WithError(err).WithField("call_id", record.CallID).Warn("Skipping record, insights update failed")
			continue
		}

		processed++
		metrics.RecordRecomputeRecord(false)
	}

	if err := s.rebuildAggregates(ctx); err != nil {
		logger.WithError(err).Error("Recompute run failed to rebuild aggregates")
		metrics.RecordRecomputeRun(trigger, "error", time.Since(start))
		return
	}

	metrics.RecordRecomputeRun(trigger, "success", time.Since(start))
	logger.WithFields(logrus.Fields{
		"processed":   processed,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Recompute run completed")

	if s.publisher != nil {
		if err := s.publisher.PublishRecomputeCompleted(ctx, processed, failed); err != nil {
			logger.WithError(err).Warn("Failed to publish recompute completion event")
		}
	}
}

// rebuildAggregates recomputes every agent's averages from the store's
// current records and upserts them wholesale
func (s *Scheduler) rebuildAggregates(ctx context.Context) error {
	records, err := s.store.ListAllCalls(ctx)
	if err != nil {
		return err
	}

	type accumulator struct {
		sentimentSum float64
		talkRatioSum float64
		count        int
	}

	byAgent := make(map[string]*accumulator)
	for _, record := range records {
		acc, ok := byAgent[record.AgentID]
		if !ok {
			acc = &accumulator{}
			byAgent[record.AgentID] = acc
		}
		acc.sentimentSum += record.CustomerSentimentScore
		acc.talkRatioSum += record.AgentTalkRatio
		acc.count++
	}

	computedAt := time.Now().UTC()
	for agentID, acc := range byAgent {
		aggregate := &database.AgentAggregate{
			AgentID:      agentID,
			AvgSentiment: acc.sentimentSum / float64(acc.count),
			AvgTalkRatio: acc.talkRatioSum / float64(acc.count),
			CallCount:    acc.count,
			ComputedAt:   computedAt,
		}
		if err := s.store.UpsertAgentAggregate(ctx, aggregate); err != nil {
			return err
		}
	}

	return nil
}
