package messaging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
)

// Event routing keys
const (
	EventInsightsUpdated    = "insights.updated"
	EventRecomputeCompleted = "recompute.completed"
)

// InsightEvent is the wire format for published events
type InsightEvent struct {
	Event     string    `json:"event"`
	CallID    string    `json:"call_id,omitempty"`
	Trigger   string    `json:"trigger,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits insight events to downstream consumers. Publishing is
// best-effort: callers log failures and move on, an event is never worth
// failing a request over.
type Publisher interface {
	PublishInsightsUpdated(ctx context.Context, callID, trigger string) error
	PublishRecomputeCompleted(ctx context.Context, processed, failed int) error
	IsConnected() bool
	Close()
}

// NewPublisher returns an AMQP-backed publisher when an AMQP URL is
// configured, and a no-op publisher otherwise
func NewPublisher(cfg config.MessagingConfig, logger *logrus.Logger) Publisher {
	if cfg.AMQPUrl == "" {
		logger.Info("AMQP_URL not set, event publishing disabled")
		return &NoopPublisher{}
	}
	return NewAMQPPublisher(cfg, logger)
}

// NoopPublisher drops all events
type NoopPublisher struct{}

func (n *NoopPublisher) PublishInsightsUpdated(ctx context.Context, callID, trigger string) error {
	return nil
}

func (n *NoopPublisher) PublishRecomputeCompleted(ctx context.Context, processed, failed int) error {
	return nil
}

func (n *NoopPublisher) IsConnected() bool { return false }

func (n *NoopPublisher) Close() {}
