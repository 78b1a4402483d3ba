package tenuki

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn is the slice of *websocket.Conn the transport needs; tests inject
// fakes through dialFunc.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(url string) (wsConn, error)

func gorillaDial(url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// transport owns the single websocket connection: the receive loop, the
// application heartbeat and reconnection. It never resends unacknowledged
// application messages; higher layers re-issue what matters.
type transport struct {
	log  *zap.Logger
	url  string
	dial dialFunc

	heartbeatInterval time.Duration
	retryInterval     time.Duration

	onPacket    func(Packet) // decoded Event/Ack frames
	onUp        func()       // namespace connection established
	onDown      func(error)  // connection lost, before reconnect is scheduled
	pingPayload func() any   // net/ping body

	wmu sync.Mutex // serializes writes on conn

	mu        sync.Mutex
	conn      wsConn
	connected bool
	closed    bool
	gen       uint64 // bumped on every (re)connect and on stop
	hbStop    chan struct{}
	retry     *time.Timer
}

func newTransport(url string, log *zap.Logger) *transport {
	return &transport{
		log:               log,
		url:               url,
		dial:              gorillaDial,
		heartbeatInterval: 25 * time.Second,
		retryInterval:     5 * time.Second,
	}
}

// start dials the socket and launches the receive loop. Safe to call again
// after a failure; a no-op while already connected.
func (t *transport) start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is stopped")
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.dial(t.url)
	if err != nil {
		t.log.Warn("socket dial failed", zap.Error(err))
		t.scheduleRetry()
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport is stopped")
	}
	t.conn = conn
	t.connected = true
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	t.log.Info("socket connected", zap.String("url", t.url))
	go t.receiveLoop(conn, gen)
	return nil
}

// stop closes the connection and cancels all transport timers. The transport
// cannot be restarted afterwards.
func (t *transport) stop() {
	t.mu.Lock()
	t.closed = true
	t.gen++
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.stopHeartbeatLocked()
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (t *transport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// send encodes and writes one packet.
func (t *transport) send(p Packet) error {
	return t.sendRaw(EncodePacket(p))
}

// sendEvent marshals payload and emits it as a plain event frame.
func (t *transport) sendEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}
	return t.send(Packet{Kind: PacketEvent, Event: name, Data: data, AckID: -1})
}

func (t *transport) sendRaw(text string) error {
	t.mu.Lock()
	conn := t.conn
	ok := t.connected
	t.mu.Unlock()
	if !ok || conn == nil {
		return ErrNotConnected
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

func (t *transport) receiveLoop(conn wsConn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.markDown(gen, err)
			return
		}
		t.handleFrame(string(raw))
	}
}

func (t *transport) handleFrame(raw string) {
	p, err := DecodePacket(raw)
	if err != nil {
		// Malformed frames are dropped, never fatal.
		t.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch p.Kind {
	case PacketOpen:
		if err := t.send(Packet{Kind: PacketNamespaceConnect, AckID: -1}); err != nil {
			t.log.Warn("namespace connect failed", zap.Error(err))
			return
		}
		t.startHeartbeat()
		if t.onUp != nil {
			t.onUp()
		}
	case PacketNamespaceConnect:
		// Server-side acknowledgment; the client re-checks auth state.
		if t.onUp != nil {
			t.onUp()
		}
	case PacketPing:
		if err := t.send(Packet{Kind: PacketPong, AckID: -1}); err != nil {
			t.log.Warn("pong failed", zap.Error(err))
		}
	case PacketPong:
		// Heartbeat answer at the framing level, nothing to do.
	default:
		if t.onPacket != nil {
			t.onPacket(p)
		}
	}
}

// markDown flips the transport to disconnected and schedules a reconnect,
// unless a newer connection generation has already taken over.
func (t *transport) markDown(gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen || t.closed {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.gen++
	t.stopHeartbeatLocked()
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.log.Warn("socket down", zap.Error(err))
	if t.onDown != nil {
		t.onDown(err)
	}
	t.scheduleRetry()
}

// Reconnection uses a fixed short interval; the client's handshake monitor
// repairs auth and room state once the socket is back.
func (t *transport) scheduleRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.retry != nil {
		return
	}
	t.retry = time.AfterFunc(t.retryInterval, func() {
		t.mu.Lock()
		t.retry = nil
		closed, connected := t.closed, t.connected
		t.mu.Unlock()
		if closed || connected {
			return
		}
		t.start() // schedules the next retry itself on failure
	})
}

func (t *transport) startHeartbeat() {
	t.mu.Lock()
	t.stopHeartbeatLocked()
	stop := make(chan struct{})
	t.hbStop = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.heartbeatInterval)
		defer ticker.Stop()
		t.sendPing()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.sendPing()
			}
		}
	}()
}

func (t *transport) stopHeartbeatLocked() {
	if t.hbStop != nil {
		close(t.hbStop)
		t.hbStop = nil
	}
}

func (t *transport) sendPing() {
	if t.pingPayload == nil || !t.isConnected() {
		return
	}
	if err := t.sendEvent("net/ping", t.pingPayload()); err != nil {
		t.log.Debug("heartbeat send failed", zap.Error(err))
	}
}

// heartbeatActive reports whether the application heartbeat is running.
func (t *transport) heartbeatActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hbStop != nil
}
