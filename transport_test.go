package tenuki

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOpenFrame = `0{"sid":"abc123","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`

// fakeConn is an in-memory wsConn. Frames pushed to in come out of
// ReadMessage; errors pushed to errc fail the next read.
type fakeConn struct {
	in   chan string
	errc chan error

	mu     sync.Mutex
	writes []string
	wErr   error // when set, writes fail instead of recording

	closeOnce sync.Once
	done      chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan string, 16),
		errc: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.in:
		return websocket.TextMessage, []byte(msg), nil
	case err := <-c.errc:
		return 0, nil, err
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wErr != nil {
		return c.wErr
	}
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wErr = err
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) hasWrite(frame string) bool {
	for _, w := range c.written() {
		if w == frame {
			return true
		}
	}
	return false
}

func newTestTransport(t *testing.T, fc *fakeConn) *transport {
	t.Helper()
	tr := newTransport("ws://fake/socket.io/?EIO=3&transport=websocket", zap.NewNop())
	tr.dial = func(string) (wsConn, error) { return fc, nil }
	tr.heartbeatInterval = time.Hour // tests trigger pings explicitly
	tr.retryInterval = 5 * time.Millisecond
	t.Cleanup(tr.stop)
	return tr
}

func TestTransportHandshake(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	tr.pingPayload = func() any {
		return map[string]any{"client": int64(1), "drift": int64(0), "latency": int64(0)}
	}
	up := make(chan struct{}, 1)
	tr.onUp = func() { up <- struct{}{} }

	require.NoError(t, tr.start())
	assert.True(t, tr.isConnected())

	fc.in <- testOpenFrame

	select {
	case <-up:
	case <-time.After(2 * time.Second):
		t.Fatal("onUp never fired")
	}
	assert.Eventually(t, func() bool { return fc.hasWrite("40") },
		2*time.Second, 5*time.Millisecond, "namespace connect not sent")
	assert.Eventually(t, func() bool {
		return fc.hasWrite(`42["net/ping",{"client":1,"drift":0,"latency":0}]`)
	}, 2*time.Second, 5*time.Millisecond, "heartbeat ping not sent")
	assert.True(t, tr.heartbeatActive())
}

func TestTransportAnswersPing(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	require.NoError(t, tr.start())

	fc.in <- "2"
	assert.Eventually(t, func() bool { return fc.hasWrite("3") },
		2*time.Second, 5*time.Millisecond)
}

func TestTransportForwardsEventsAndAcks(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	packets := make(chan Packet, 4)
	tr.onPacket = func(p Packet) { packets <- p }
	require.NoError(t, tr.start())

	fc.in <- `42["active_game",{"id":31337}]`
	fc.in <- `43[7,{"ok":true}]`

	p := <-packets
	assert.Equal(t, PacketEvent, p.Kind)
	assert.Equal(t, "active_game", p.Event)
	assert.JSONEq(t, `{"id":31337}`, string(p.Data))

	p = <-packets
	assert.Equal(t, PacketAck, p.Kind)
	assert.EqualValues(t, 7, p.AckID)
}

func TestTransportDropsMalformedFrames(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	packets := make(chan Packet, 4)
	tr.onPacket = func(p Packet) { packets <- p }
	require.NoError(t, tr.start())

	// Garbage must not kill the receive loop.
	fc.in <- `42{"not":"an array"}`
	fc.in <- "9"
	fc.in <- `42["game/1/move",{"move_number":5}]`

	select {
	case p := <-packets:
		assert.Equal(t, "game/1/move", p.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop died on malformed input")
	}
	assert.Len(t, packets, 0)
}

func TestTransportSendWhileDisconnected(t *testing.T) {
	tr := newTransport("ws://fake", zap.NewNop())
	err := tr.sendEvent("game/move", map[string]any{"game_id": 1})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportSendEventRejectsBadPayload(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	require.NoError(t, tr.start())

	err := tr.sendEvent("game/move", map[string]any{"ch": make(chan int)})
	assert.ErrorContains(t, err, "encode game/move payload")
	assert.Empty(t, fc.written(), "nothing goes on the wire for an unmarshalable payload")
}

func TestTransportReconnects(t *testing.T) {
	fc1, fc2 := newFakeConn(), newFakeConn()
	conns := []*fakeConn{fc1, fc2}
	var dials int32

	tr := newTransport("ws://fake", zap.NewNop())
	tr.heartbeatInterval = time.Hour
	tr.retryInterval = 5 * time.Millisecond
	tr.dial = func(string) (wsConn, error) {
		n := atomic.AddInt32(&dials, 1)
		if int(n) > len(conns) {
			return nil, errors.New("no more connections")
		}
		return conns[n-1], nil
	}
	down := make(chan error, 1)
	tr.onDown = func(err error) { down <- err }
	t.Cleanup(tr.stop)

	require.NoError(t, tr.start())
	fc1.errc <- errors.New("network blip")

	select {
	case err := <-down:
		assert.ErrorContains(t, err, "network blip")
	case <-time.After(2 * time.Second):
		t.Fatal("onDown never fired")
	}

	assert.Eventually(t, tr.isConnected, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&dials))

	// The replacement connection handshakes from scratch.
	fc2.in <- testOpenFrame
	assert.Eventually(t, func() bool { return fc2.hasWrite("40") },
		2*time.Second, 5*time.Millisecond)
}

func TestTransportStopPreventsRestart(t *testing.T) {
	fc := newFakeConn()
	tr := newTestTransport(t, fc)
	require.NoError(t, tr.start())

	tr.stop()
	assert.False(t, tr.isConnected())
	assert.Error(t, tr.start())
}
