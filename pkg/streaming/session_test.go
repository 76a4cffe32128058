package streaming

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.EnableMetrics(false)
	os.Exit(m.Run())
}

// fakeConn is an in-memory Conn: inbound frames are fed through a channel,
// outbound frames are collected for assertions
type fakeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written []map[string]interface{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 8),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.written = append(c.written, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, frame string) {
	t.Helper()
	select {
	case c.inbound <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("timed out feeding inbound frame")
	}
}

func (c *fakeConn) framesOfType(frameType string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	var frames []map[string]interface{}
	for _, frame := range c.written {
		if frame["type"] == frameType {
			frames = append(frames, frame)
		}
	}
	return frames
}

func (c *fakeConn) waitForFrame(t *testing.T, frameType string) map[string]interface{} {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.framesOfType(frameType)) > 0
	}, 5*time.Second, 5*time.Millisecond, "no %q frame arrived", frameType)
	return c.framesOfType(frameType)[0]
}

func testStreamingConfig() config.StreamingConfig {
	return config.StreamingConfig{
		DefaultInterval: 20 * time.Millisecond,
		MinInterval:     5 * time.Millisecond,
		WriteTimeout:    time.Second,
		PingInterval:    time.Hour,
	}
}

func startSession(t *testing.T, store database.Store, callID string) (*Session, *fakeConn, func()) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	conn := newFakeConn()
	session := NewSession(conn, callID, store, insights.NewLexiconScorer(), testStreamingConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	stop := func() {
		cancel()
		conn.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("session did not shut down")
		}
	}
	return session, conn, stop
}

func seedStore(t *testing.T) database.Store {
	t.Helper()
	store := database.NewMemoryStore()
	require.NoError(t, store.CreateCall(context.Background(), &database.CallRecord{
		CallID:          "call-1",
		AgentID:         "agent-1",
		CustomerID:      "cust-1",
		Language:        "en",
		StartTime:       time.Now().UTC(),
		DurationSeconds: 60,
		Transcript:      "Agent: how can I help\nCustomer: thank you, this is great",
	}))
	return store
}

func TestSessionSnapshots(t *testing.T) {
	session, conn, stop := startSession(t, seedStore(t), "call-1")
	defer stop()

	conn.send(t, `{"type":"start_streaming","interval":0.01}`)

	frame := conn.waitForFrame(t, "sentiment_snapshot")
	assert.Equal(t, "call-1", frame["call_id"])
	assert.Equal(t, "streaming", frame["status"])
	sentiment, ok := frame["sentiment"].(float64)
	require.True(t, ok)
	assert.Greater(t, sentiment, 0.0)
	assert.Equal(t, StateStreaming, session.State())
}

func TestSessionStopStreaming(t *testing.T) {
	session, conn, stop := startSession(t, seedStore(t), "call-1")
	defer stop()

	conn.send(t, `{"type":"start_streaming"}`)
	conn.waitForFrame(t, "sentiment_snapshot")

	conn.send(t, `{"type":"stop_streaming"}`)
	require.Eventually(t, func() bool {
		return session.State() == StatePaused
	}, 5*time.Second, 5*time.Millisecond)

	// No further snapshots while paused
	time.Sleep(60 * time.Millisecond)
	count := len(conn.framesOfType("sentiment_snapshot"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, len(conn.framesOfType("sentiment_snapshot")))

	// Streaming resumes on a fresh start
	conn.send(t, `{"type":"start_streaming"}`)
	require.Eventually(t, func() bool {
		return len(conn.framesOfType("sentiment_snapshot")) > count
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSessionCustomMessageEcho(t *testing.T) {
	_, conn, stop := startSession(t, seedStore(t), "call-1")
	defer stop()

	conn.send(t, `{"type":"custom_message","data":{"hello":"world"}}`)

	frame := conn.waitForFrame(t, "custom_message")
	data, ok := frame["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "world", data["hello"])
}

func TestSessionMalformedMessageKeepsSessionOpen(t *testing.T) {
	session, conn, stop := startSession(t, seedStore(t), "call-1")
	defer stop()

	conn.send(t, `this is not json`)

	frame := conn.waitForFrame(t, "error")
	assert.Equal(t, "malformed message", frame["message"])
	assert.NotEqual(t, StateClosed, session.State())

	// The session still answers control frames afterwards
	conn.send(t, `{"type":"custom_message","data":"ping"}`)
	conn.waitForFrame(t, "custom_message")
}

func TestSessionUnknownMessageType(t *testing.T) {
	_, conn, stop := startSession(t, seedStore(t), "call-1")
	defer stop()

	conn.send(t, `{"type":"rewind_tape"}`)

	frame := conn.waitForFrame(t, "error")
	assert.Contains(t, frame["message"], "rewind_tape")
}

func TestSessionSnapshotErrorKeepsSessionOpen(t *testing.T) {
	// The record disappears between validation and streaming
	session, conn, stop := startSession(t, database.NewMemoryStore(), "call-gone")
	defer stop()

	conn.send(t, `{"type":"start_streaming","interval":0.01}`)

	conn.waitForFrame(t, "error")
	assert.Equal(t, StateStreaming, session.State())
}

func TestSessionClosesOnContextCancel(t *testing.T) {
	session, _, stop := startSession(t, seedStore(t), "call-1")

	stop()
	assert.Equal(t, StateClosed, session.State())
}

func TestSessionClosesOnDisconnect(t *testing.T) {
	session, conn, _ := startSession(t, seedStore(t), "call-1")

	conn.Close()
	require.Eventually(t, func() bool {
		return session.State() == StateClosed
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSessionsAreIndependent(t *testing.T) {
	store := seedStore(t)

	first, firstConn, stopFirst := startSession(t, store, "call-1")
	second, secondConn, stopSecond := startSession(t, store, "call-1")
	defer stopSecond()

	firstConn.send(t, `{"type":"start_streaming"}`)
	firstConn.waitForFrame(t, "sentiment_snapshot")

	stopFirst()
	assert.Equal(t, StateClosed, first.State())
	assert.NotEqual(t, StateClosed, second.State())

	secondConn.send(t, `{"type":"start_streaming"}`)
	secondConn.waitForFrame(t, "sentiment_snapshot")
}
