package tenuki

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoActiveGame     = errors.New("no active game")
	ErrUndoPending      = errors.New("an undo request is already pending")
)

type ConnStatus int

const (
	StatusDisconnected ConnStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnStatus) String() string {
	return [...]string{"Disconnected", "Connecting", "Connected"}[s]
}

// Option customizes a Client at construction time.
type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithSocketURL(url string) Option {
	return func(c *Client) { c.socketURL = url }
}

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// Client maintains one authenticated session to the server and mirrors the
// active game's state. All exported methods are safe for concurrent use;
// actions are asynchronous, their effects arrive as notices on the
// subscription channel.
type Client struct {
	log       *zap.Logger
	baseURL   string
	socketURL string
	httpc     *http.Client
	bus       *bus

	// Timer intervals, shortened in tests.
	monitorInterval   time.Duration
	pulseInterval     time.Duration
	clockTickInterval time.Duration
	keepaliveInterval time.Duration

	mu  sync.Mutex
	gen uuid.UUID // session generation; stale async completions are dropped

	// Identity, established over REST.
	userID   int64
	username string
	jwt      string

	status       ConnStatus
	socketAuthed bool

	transport *transport

	session   *gameSession
	finished  map[int64]struct{} // game ids latched as finished
	target    int64              // game id we want to be attached to
	searching bool               // automatch/challenge outstanding

	lobby           map[int64]ChallengeListing
	lobbyPrimed     bool // next seek-graph payload is the full dump
	challengeID     int64
	challengeGameID int64

	latencyMS int64
	driftMS   int64

	monitorStop   chan struct{}
	pulseStop     chan struct{}
	clockStop     chan struct{}
	keepaliveStop chan struct{}
}

// NewClient creates a disconnected Client. Call Login then Connect.
func NewClient(opts ...Option) *Client {
	c := &Client{
		log:               zap.NewNop(),
		baseURL:           defaultBaseURL,
		socketURL:         defaultSocketURL,
		monitorInterval:   2 * time.Second,
		pulseInterval:     10 * time.Second,
		clockTickInterval: 100 * time.Millisecond,
		keepaliveInterval: 10 * time.Second,
		gen:               uuid.New(),
		finished:          make(map[int64]struct{}),
		lobby:             make(map[int64]ChallengeListing),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bus = newBus(c.log)
	if c.httpc == nil {
		jar, _ := cookiejar.New(nil)
		c.httpc = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	} else if c.httpc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpc.Jar = jar
	}
	return c
}

// Subscribe returns a channel of typed notices. A subscriber that stops
// draining loses notices, never blocks the session. The returned cancel
// closes the channel.
func (c *Client) Subscribe(buffer int) (<-chan Notice, func()) {
	return c.bus.subscribe(buffer)
}

// Login establishes the REST session. If the config endpoint does not yield
// a logged-in identity, a username/password login is performed first and the
// config re-fetched.
func (c *Client) Login(username, password string) error {
	cfg, err := c.Config()
	if err != nil || cfg.UserJWT == "" || cfg.User.ID == 0 {
		if err := c.restLogin(username, password); err != nil {
			return err
		}
		if cfg, err = c.Config(); err != nil {
			return err
		}
	}
	if cfg.UserJWT == "" {
		return fmt.Errorf("config has no user token: %w", ErrNotAuthenticated)
	}

	id, name := cfg.User.ID, cfg.User.Username
	if id == 0 {
		id, name = identityFromJWT(cfg.UserJWT)
	}
	if id == 0 {
		return fmt.Errorf("cannot resolve player identity: %w", ErrNotAuthenticated)
	}

	c.mu.Lock()
	c.userID = id
	c.username = name
	c.jwt = cfg.UserJWT
	c.mu.Unlock()
	c.log.Info("logged in", zap.Int64("user_id", id), zap.String("username", name))
	return nil
}

func (c *Client) restLogin(username, password string) error {
	if username == "" {
		return fmt.Errorf("no credentials: %w", ErrNotAuthenticated)
	}
	// First GET primes the CSRF cookie that protects the login POST.
	if c.csrfToken() == "" {
		var discard struct{}
		c.Get("/api/v1/ui/config/", nil, &discard)
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.postJSON("/api/v0/login", body, nil); err != nil {
		return fmt.Errorf("login rejected: %w", err)
	}
	return nil
}

// identityFromJWT extracts the player identity from the unverified claims of
// the server-issued token. The server remains the authority, the token is
// only decoded, never trusted for authorization decisions locally.
func identityFromJWT(token string) (int64, string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, ""
	}
	var id int64
	for _, key := range []string{"player_id", "user_id", "id"} {
		if v, ok := claims[key].(float64); ok {
			id = int64(v)
			break
		}
	}
	name, _ := claims["username"].(string)
	return id, name
}

// Connect opens the realtime socket and starts the background machinery.
// Confirmation arrives as EventConnected then EventAuthenticated notices.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.jwt == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	if c.transport != nil {
		c.mu.Unlock()
		return nil
	}
	t := newTransport(c.socketURL, c.log)
	t.onPacket = c.route
	t.onUp = c.onSocketUp
	t.onDown = c.onSocketDown
	t.pingPayload = c.pingBody
	c.transport = t
	c.status = StatusConnecting
	c.mu.Unlock()

	c.startMonitor()
	return t.start()
}

// Disconnect tears down the socket and every timer. The client keeps its
// REST session; Connect may be called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.status = StatusDisconnected
	c.socketAuthed = false
	c.gen = uuid.New() // invalidate in-flight async completions
	c.stopTimersLocked()
	c.mu.Unlock()

	if t != nil {
		t.stop()
	}
	c.bus.publish(Notice{Kind: EventDisconnected})
}

// Logout resets the whole session: socket, timers, identity and cookies.
func (c *Client) Logout() {
	c.Disconnect()

	c.mu.Lock()
	c.userID = 0
	c.username = ""
	c.jwt = ""
	c.session = nil
	c.target = 0
	c.searching = false
	c.challengeID = 0
	c.challengeGameID = 0
	c.finished = make(map[int64]struct{})
	c.lobby = make(map[int64]ChallengeListing)
	jar, _ := cookiejar.New(nil)
	c.httpc.Jar = jar
	c.mu.Unlock()
	c.log.Info("logged out")
}

// Close disconnects and closes all subscription channels.
func (c *Client) Close() {
	c.Disconnect()
	c.bus.closeAll()
}

func (c *Client) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) SocketAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketAuthed
}

func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Latency returns the last measured round-trip and clock drift in
// milliseconds.
func (c *Client) Latency() (latencyMS, driftMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latencyMS, c.driftMS
}

func (c *Client) onSocketUp() {
	c.mu.Lock()
	c.status = StatusConnected
	c.socketAuthed = false
	token, uid, name := c.jwt, c.userID, c.username
	session := c.session
	c.mu.Unlock()

	c.bus.publish(Notice{Kind: EventConnected})
	c.sendAuthenticate(token, uid, name)
	if session != nil {
		c.sendGameConnect(session.GameID)
		c.startPulse()
		c.startClockLoop()
	}
}

func (c *Client) onSocketDown(err error) {
	c.mu.Lock()
	c.status = StatusDisconnected
	c.socketAuthed = false
	// The monitor keeps running; it re-checks its preconditions at fire
	// time and repairs the handshake once the transport reconnects.
	c.stopLoopLocked(&c.pulseStop)
	c.stopLoopLocked(&c.clockStop)
	c.stopLoopLocked(&c.keepaliveStop)
	c.mu.Unlock()

	c.bus.publish(Notice{Kind: EventDisconnected})
}

func (c *Client) sendAuthenticate(token string, uid int64, name string) {
	t := c.currentTransport()
	if t == nil {
		return
	}
	err := t.sendEvent("authenticate", map[string]any{
		"jwt":       token,
		"player_id": uid,
		"username":  name,
	})
	if err != nil {
		c.log.Debug("authenticate send failed", zap.Error(err))
	}
}

func (c *Client) sendGameConnect(gameID int64) {
	t := c.currentTransport()
	if t == nil {
		return
	}
	err := t.sendEvent("game/connect", map[string]any{
		"game_id": gameID,
		"chat":    true,
	})
	if err != nil {
		c.log.Debug("game connect send failed", zap.Error(err))
	}
}

// markAuthed records socket-level authentication. The server's confirmation
// is best-effort inferred: an explicit ack or any authenticated-only event
// counts.
func (c *Client) markAuthed() {
	c.mu.Lock()
	already := c.socketAuthed
	c.socketAuthed = true
	c.mu.Unlock()
	if !already {
		c.bus.publish(Notice{Kind: EventAuthenticated})
	}
}

func (c *Client) pingBody() any {
	c.mu.Lock()
	drift, latency := c.driftMS, c.latencyMS
	c.mu.Unlock()
	return map[string]any{
		"client":  time.Now().UnixMilli(),
		"drift":   drift,
		"latency": latency,
	}
}

func (c *Client) handleNetPong(p *NetPong, receivedAt time.Time) {
	latency := receivedAt.Sub(p.Client.Time).Milliseconds()
	drift := receivedAt.Add(-time.Duration(latency/2)*time.Millisecond).Sub(p.Server.Time).Milliseconds()

	c.mu.Lock()
	c.latencyMS = latency
	c.driftMS = drift
	c.mu.Unlock()
	c.bus.publish(Notice{Kind: EventLatency, LatencyMS: latency, DriftMS: drift})
}

func (c *Client) currentTransport() *transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

func (c *Client) generation() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// The monitor compensates for lost or late handshake confirmations: while
// connected but not socket-auth'd it re-issues the authenticate event, and
// while targeting a game room not yet entered it re-issues the join.
func (c *Client) startMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLoopLocked(&c.monitorStop, c.monitorInterval, c.monitorTick)
}

func (c *Client) monitorTick() {
	c.mu.Lock()
	t := c.transport
	connected := c.status == StatusConnected
	authed := c.socketAuthed
	token, uid, name := c.jwt, c.userID, c.username
	var rejoin int64
	if c.target != 0 && (c.session == nil || !c.session.joined) {
		rejoin = c.target
	}
	c.mu.Unlock()

	if t == nil || !connected {
		return
	}
	if !authed {
		c.sendAuthenticate(token, uid, name)
	}
	if rejoin != 0 {
		c.sendGameConnect(rejoin)
	}
}

// The engine pulse tells the game room the client is alive while a game is
// attached.
func (c *Client) startPulse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLoopLocked(&c.pulseStop, c.pulseInterval, c.pulseTick)
}

func (c *Client) pulseTick() {
	c.mu.Lock()
	t := c.transport
	var gameID int64
	if c.session != nil && c.status == StatusConnected {
		gameID = c.session.GameID
	}
	latency := c.latencyMS
	c.mu.Unlock()

	if t == nil || gameID == 0 {
		return
	}
	err := t.sendEvent("game/latency", map[string]any{
		"game_id": gameID,
		"latency": latency,
	})
	if err != nil {
		c.log.Debug("pulse send failed", zap.Error(err))
	}
}

func (c *Client) startClockLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLoopLocked(&c.clockStop, c.clockTickInterval, c.clockTick)
}

func (c *Client) clockTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.clock == nil || c.session.phase != SessionPlaying {
		return
	}
	c.session.clock.tick(time.Now())
}

func (c *Client) startKeepalive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLoopLocked(&c.keepaliveStop, c.keepaliveInterval, c.keepaliveTick)
}

func (c *Client) keepaliveTick() {
	c.mu.Lock()
	t := c.transport
	challengeID, gameID := c.challengeID, c.challengeGameID
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if t == nil || !connected || challengeID == 0 {
		return
	}
	err := t.sendEvent("challenge/keepalive", map[string]any{
		"challenge_id": challengeID,
		"game_id":      gameID,
	})
	if err != nil {
		c.log.Debug("challenge keepalive failed", zap.Error(err))
	}
}

// startLoopLocked launches a ticker goroutine bound to a stop channel slot.
// Starting an already-running loop is a no-op.
func (c *Client) startLoopLocked(slot *chan struct{}, interval time.Duration, fn func()) {
	if *slot != nil {
		return
	}
	stop := make(chan struct{})
	*slot = stop
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (c *Client) stopLoopLocked(slot *chan struct{}) {
	if *slot != nil {
		close(*slot)
		*slot = nil
	}
}

func (c *Client) stopTimersLocked() {
	c.stopLoopLocked(&c.monitorStop)
	c.stopLoopLocked(&c.pulseStop)
	c.stopLoopLocked(&c.clockStop)
	c.stopLoopLocked(&c.keepaliveStop)
}
