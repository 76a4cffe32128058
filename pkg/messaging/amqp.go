package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/metrics"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 200 * time.Millisecond
)

// AMQPPublisher publishes insight events to a topic exchange. The
// connection is established lazily on first use and re-established in the
// background when the broker drops it; a disconnected publisher fails fast
// rather than blocking callers.
type AMQPPublisher struct {
	cfg    config.MessagingConfig
	logger *logrus.Entry

	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPPublisher creates a publisher for the configured broker
func NewAMQPPublisher(cfg config.MessagingConfig, logger *logrus.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		cfg:      cfg,
		logger:   logger.WithField("component", "amqp_publisher"),
		stopChan: make(chan struct{}),
	}

	if err := p.connect(); err != nil {
		// The monitor goroutine keeps retrying; the service stays up with
		// publishing degraded.
		p.logger.WithError(err).Warn("Initial AMQP connection failed, will retry in background")
		go p.reconnectWithBackoff()
	}

	return p
}

// PublishInsightsUpdated emits an event after a call's derived fields change
func (p *AMQPPublisher) PublishInsightsUpdated(ctx context.Context, callID, trigger string) error {
	return p.publish(ctx, EventInsightsUpdated, InsightEvent{
		Event:     EventInsightsUpdated,
		CallID:    callID,
		Trigger:   trigger,
		Timestamp: time.Now().UTC(),
	})
}

// PublishRecomputeCompleted emits an event after a recompute run finishes
func (p *AMQPPublisher) PublishRecomputeCompleted(ctx context.Context, processed, failed int) error {
	return p.publish(ctx, EventRecomputeCompleted, InsightEvent{
		Event:     EventRecomputeCompleted,
		Processed: processed,
		Failed:    failed,
		Timestamp: time.Now().UTC(),
	})
}

// IsConnected reports the broker connection status
func (p *AMQPPublisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// Close shuts down the connection and stops the reconnect monitor
func (p *AMQPPublisher) Close() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	close(p.stopChan)

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.connected = false
	metrics.SetAMQPConnectionStatus(false)
	p.logger.Info("Disconnected from AMQP broker")
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event InsightEvent) error {
	if !p.IsConnected() {
		metrics.RecordAMQPPublish(routingKey, "disconnected")
		return fmt.Errorf("not connected to AMQP broker")
	}

	body, err := json.Marshal(event)
	if err != nil {
		metrics.RecordAMQPPublish(routingKey, "error")
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// Publish on a goroutine so a stalled broker cannot block the caller
	// past the timeout
	errChan := make(chan error, 1)
	go func() {
		p.connMutex.RLock()
		defer p.connMutex.RUnlock()

		if !p.connected || p.channel == nil {
			errChan <- fmt.Errorf("lost AMQP connection before publishing")
			return
		}

		errChan <- p.channel.Publish(
			p.cfg.AMQPExchange,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			metrics.RecordAMQPPublish(routingKey, "error")
			return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(routingKey, "timeout")
		return fmt.Errorf("publishing %s event timed out", routingKey)
	}

	metrics.RecordAMQPPublish(routingKey, "success")
	p.logger.WithField("event", routingKey).Debug("Published insight event")
	return nil
}

func (p *AMQPPublisher) connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}

	conn, err := dialWithTimeout(p.cfg.AMQPUrl, connectTimeout)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.cfg.AMQPExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if p.cfg.AMQPQueue != "" {
		if _, err := channel.QueueDeclare(p.cfg.AMQPQueue, true, false, false, false, nil); err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		if err := channel.QueueBind(p.cfg.AMQPQueue, "#", p.cfg.AMQPExchange, false, nil); err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	p.conn = conn
	p.channel = channel
	p.connected = true
	p.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	p.logger.WithField("exchange", p.cfg.AMQPExchange).Info("Connected to AMQP broker")

	go p.monitorConnection()
	return nil
}

// dialWithTimeout bounds amqp.Dial, which has no context support
func dialWithTimeout(url string, timeout time.Duration) (*amqp.Connection, error) {
	type result struct {
		conn *amqp.Connection
		err  error
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resultChan := make(chan result, 1)
	go func() {
		conn, err := amqp.Dial(url)
		select {
		case resultChan <- result{conn, err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	select {
	case r := <-resultChan:
		if r.err != nil {
			return nil, fmt.Errorf("failed to connect to AMQP broker: %w", r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("connection to AMQP broker timed out")
	}
}

// monitorConnection watches for broker-side closes and reconnects
func (p *AMQPPublisher) monitorConnection() {
	closeChan := make(chan *amqp.Error)

	p.connMutex.RLock()
	stop := p.stopChan
	if p.conn != nil {
		p.conn.NotifyClose(closeChan)
	}
	p.connMutex.RUnlock()

	select {
	case <-stop:
		return
	case closeErr := <-closeChan:
		p.connMutex.Lock()
		p.connected = false
		p.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		p.logger.WithError(closeErr).Warn("AMQP connection closed, reconnecting")
		p.reconnectWithBackoff()
	}
}

func (p *AMQPPublisher) reconnectWithBackoff() {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // retry until shutdown

	err := backoff.Retry(func() error {
		select {
		case <-p.stopChan:
			return backoff.Permanent(fmt.Errorf("publisher closed"))
		default:
		}
		return p.connect()
	}, policy)

	if err == nil {
		p.logger.Info("Reconnected to AMQP broker")
	}
}
