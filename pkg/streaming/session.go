package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

// SessionState is the lifecycle of one stream session
type SessionState int32

const (
	StateConnected SessionState = iota
	StateStreaming
	StatePaused
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is the transport a session runs over. *websocket.Conn satisfies it;
// tests use an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Scorer re-scores customer sentiment for each snapshot
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// Session streams periodic sentiment snapshots for one call over one
// connection. All writes happen on the run loop goroutine; the read loop
// only parses frames and forwards control events. Sessions for the same
// call are fully independent.
type Session struct {
	callID string
	conn   Conn
	store  database.Store
	scorer Scorer
	cfg    config.StreamingConfig
	logger *logrus.Entry

	mutex    sync.RWMutex
	state    SessionState
	interval time.Duration

	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewSession creates a session for an already-validated call
func NewSession(conn Conn, callID string, store database.Store, scorer Scorer, cfg config.StreamingConfig, logger *logrus.Logger) *Session {
	return &Session{
		callID:   callID,
		conn:     conn,
		store:    store,
		scorer:   scorer,
		cfg:      cfg,
		logger:   logger.WithFields(logrus.Fields{"component": "stream_session", "call_id": callID}),
		state:    StateConnected,
		interval: cfg.DefaultInterval,
		closedCh: make(chan struct{}),
	}
}

// State reports the current lifecycle state
func (s *Session) State() SessionState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

// Run drives the session until the client disconnects, the transport
// fails, or ctx is canceled. It blocks; the ticker and the read goroutine
// are released before it returns.
func (s *Session) Run(ctx context.Context) {
	stopTimer := metrics.StartStreamSessionTimer()
	defer stopTimer()
	defer s.close()

	s.logger.Info("Stream session connected")

	inbound := make(chan InboundMessage, 8)
	readDone := make(chan struct{})
	go s.readLoop(inbound, readDone)

	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	pings := time.NewTicker(s.cfg.PingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-readDone:
			return

		case msg := <-inbound:
			switch msg.Type {
			case MessageStartStreaming:
				s.mutex.Lock()
				s.interval = s.clampInterval(msg.Interval)
				s.state = StateStreaming
				interval := s.interval
				s.mutex.Unlock()

				if ticker != nil {
					ticker.Stop()
				}
				ticker = time.NewTicker(interval)
				tick = ticker.C
				s.logger.WithField("interval", interval).Debug("Streaming started")

			case MessageStopStreaming:
				s.setState(StatePaused)
				if ticker != nil {
					ticker.Stop()
					ticker = nil
					tick = nil
				}
				s.logger.Debug("Streaming paused")

			case MessageCustom:
				s.write(EchoFrame{Type: MessageCustom, Data: msg.Data, Timestamp: time.Now().UTC()})

			default:
				// Malformed frames surface as an error to this connection
				// only; the session stays open.
				s.write(newErrorFrame(msg.errorText()))
			}

		case <-tick:
			if !s.emitSnapshot(ctx) {
				return
			}

		case <-pings.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop parses inbound frames. Unparseable input becomes a frame with
// an empty type, which the run loop answers with an error message.
func (s *Session) readLoop(inbound chan<- InboundMessage, done chan<- struct{}) {
	defer close(done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg InboundMessage
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil {
			msg = InboundMessage{}
		}

		select {
		case inbound <- msg:
		case <-s.closedCh:
			return
		}
	}
}

// emitSnapshot re-reads the record, re-scores customer sentiment, and
// writes one snapshot. Returns false when the transport is gone.
func (s *Session) emitSnapshot(ctx context.Context) bool {
	record, err := s.store.GetCall(ctx, s.callID)
	if err != nil {
		metrics.RecordStreamSnapshot("error")
		s.logger.WithError(err).Warn("Snapshot read failed")
		return s.write(newErrorFrame("call record unavailable"))
	}

	_, customerText := insights.SplitSpeakerTurns(record.Transcript)
	sentiment, err := s.scorer.Score(ctx, customerText)
	if err != nil {
		metrics.RecordStreamSnapshot("error")
		s.logger.WithError(err).Warn("Snapshot scoring failed")
		return s.write(newErrorFrame("sentiment unavailable"))
	}

	metrics.RecordStreamSnapshot("success")
	return s.write(Snapshot{
		Type:      "sentiment_snapshot",
		CallID:    s.callID,
		Sentiment: sentiment,
		Timestamp: time.Now().UTC(),
		Status:    s.State().String(),
	})
}

// write sends one frame; false means the transport failed and the session
// should end
func (s *Session) write(v interface{}) bool {
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.WithError(err).Debug("Write failed, closing session")
		return false
	}
	return true
}

func (s *Session) clampInterval(seconds float64) time.Duration {
	if seconds <= 0 {
		return s.cfg.DefaultInterval
	}
	interval := time.Duration(seconds * float64(time.Second))
	if interval < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}
	return interval
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closedCh) })
	s.setState(StateClosed)
	s.conn.Close()
	s.logger.Info("Stream session closed")
}

func (m InboundMessage) errorText() string {
	if m.Type == "" {
		return "malformed message"
	}
	return fmt.Sprintf("unknown message type %q", m.Type)
}
