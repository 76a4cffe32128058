package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	pkgerrors "callinsights-server/pkg/errors"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

// Run triggers, used as metrics labels
const (
	TriggerDaily  = "daily"
	TriggerManual = "manual"
)

// Analyzer recomputes the derived trio for a transcript
type Analyzer interface {
	Analyze(ctx context.Context, transcript, trigger string) insights.Insights
}

// EventPublisher is notified when a recompute run finishes. A nil publisher
// disables notification.
type EventPublisher interface {
	PublishRecomputeCompleted(ctx context.Context, processed, failed int) error
}

// Scheduler owns full-corpus recompute runs: a daily run at a configured
// wall-clock time plus manual triggers. At most one run executes at a time;
// overlapping triggers are rejected, never queued.
type Scheduler struct {
	store     database.Store
	engine    Analyzer
	publisher EventPublisher
	cfg       config.SchedulerConfig
	logger    *logrus.Entry

	running atomic.Bool
	lifeCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. publisher may be nil. The scheduler owns its
// lifecycle context; every run, daily or manual, executes under it so that
// Stop interrupts in-flight runs between records.
func New(store database.Store, engine Analyzer, publisher EventPublisher, cfg config.SchedulerConfig, logger *logrus.Logger) *Scheduler {
	lifeCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     store,
		engine:    engine,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.WithField("component", "scheduler"),
		lifeCtx:   lifeCtx,
		cancel:    cancel,
	}
}

// Start ties the scheduler's lifetime to ctx and launches the daily run
// loop. It returns immediately; runs execute on background goroutines
// until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.lifeCtx.Done():
		}
	}()

	if !s.cfg.Enabled {
		s.logger.Info("Daily recompute disabled")
		return
	}

	s.wg.Add(1)
	go s.runDaily(s.lifeCtx)

	s.logger.WithField("daily_at", s.cfg.DailyAt).Info("Daily recompute scheduled")
}

// Stop cancels the daily loop and any in-flight run, then waits for
// goroutines to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// IsRunning reports whether a recompute run is currently executing
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// TriggerRecompute starts a manual run on a background goroutine. The run
// executes under the scheduler's lifecycle context, not the caller's, so
// it outlives the triggering request but still stops on Stop. Returns
// ErrRecomputeInProgress when a run is already executing.
func (s *Scheduler) TriggerRecompute() error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordRecomputeRejected()
		return pkgerrors.Wrap(pkgerrors.ErrRecomputeInProgress, "manual recompute rejected")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(s.lifeCtx, TriggerManual)
	}()

	return nil
}

// runDaily fires a run at the configured wall-clock time, computing the
// next occurrence from the current moment so restarts never double-fire
func (s *Scheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	hour, minute, err := config.ParseDailyAt(s.cfg.DailyAt)
	if err != nil {
		// Config validation catches this at startup; a bad value here only
		// means the loop cannot run.
		s.logger.WithError(err).Error("Invalid daily run time, daily recompute disabled")
		return
	}

	for {
		next := nextOccurrence(time.Now(), hour, minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.running.CompareAndSwap(false, true) {
			metrics.RecordRecomputeRejected()
			s.logger.Warn("Skipping daily recompute, a run is already in progress")
			continue
		}

		s.run(ctx, TriggerDaily)
		s.running.Store(false)
	}
}

// nextOccurrence returns the next wall-clock occurrence of hour:minute
// strictly after now
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
