package tenuki

import (
	"time"

	"go.uber.org/zap"
)

// SessionPhase is the local lifecycle of the active game session, distinct
// from the server's GamePhase.
type SessionPhase int

const (
	SessionIdle SessionPhase = iota
	SessionJoining
	SessionPlaying
	SessionScoring
	SessionFinished
)

func (p SessionPhase) String() string {
	return [...]string{"Idle", "Joining", "Playing", "Scoring", "Finished"}[p]
}

// gameSession is the client-side mirror of one game room. All fields are
// guarded by the owning Client's lock.
type gameSession struct {
	GameID int64

	phase  SessionPhase
	joined bool // first full snapshot received

	game        *Game
	black       Player
	white       Player
	myColor     PlayerColor
	handicap    int
	komi        float32
	rules       string
	ranked      bool
	timeControl TimeControl
	authToken   string

	stateVersion int64

	moves      []MoveRecord
	moveNumber int // last server-confirmed sequence number

	capturesBlack int
	capturesWhite int

	clock   *clockEngine
	undo    *UndoRequest
	removed map[OriginCoordinate]struct{}
}

// SessionInfo is a point-in-time copy of the active session for callers.
type SessionInfo struct {
	GameID        int64
	Phase         SessionPhase
	Joined        bool
	MyColor       PlayerColor
	Black         Player
	White         Player
	Handicap      int
	Komi          float32
	Rules         string
	Ranked        bool
	TimeControl   TimeControl
	StateVersion  int64
	MoveNumber    int
	Moves         []MoveRecord
	CapturesBlack int
	CapturesWhite int
	Undo          *UndoRequest
	Removed       []OriginCoordinate
}

// Session returns a snapshot of the active game session, or nil when idle.
func (c *Client) Session() *SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil {
		return nil
	}
	info := &SessionInfo{
		GameID:        s.GameID,
		Phase:         s.phase,
		Joined:        s.joined,
		MyColor:       s.myColor,
		Black:         s.black,
		White:         s.white,
		Handicap:      s.handicap,
		Komi:          s.komi,
		Rules:         s.rules,
		Ranked:        s.ranked,
		TimeControl:   s.timeControl,
		StateVersion:  s.stateVersion,
		MoveNumber:    s.moveNumber,
		Moves:         append([]MoveRecord(nil), s.moves...),
		CapturesBlack: s.capturesBlack,
		CapturesWhite: s.capturesWhite,
	}
	if s.undo != nil {
		u := *s.undo
		info.Undo = &u
	}
	for coord := range s.removed {
		info.Removed = append(info.Removed, coord)
	}
	return info
}

// CurrentClock returns the simulated clocks of the active game, or nil.
func (c *Client) CurrentClock() *ComputedClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.clock == nil {
		return nil
	}
	return c.session.clock.computed()
}

// ConnectGame attaches to a game room. Attachment is idempotent: calling it
// again for the already-active game neither restarts timers nor resends the
// join. The first full snapshot arrives as an EventGameData notice.
func (c *Client) ConnectGame(gameID int64) error {
	c.mu.Lock()
	if c.session != nil && c.session.GameID == gameID {
		c.mu.Unlock()
		return nil
	}
	old := c.session
	c.session = &gameSession{
		GameID:  gameID,
		phase:   SessionJoining,
		removed: make(map[OriginCoordinate]struct{}),
	}
	c.target = gameID
	connected := c.status == StatusConnected
	t := c.transport
	c.mu.Unlock()

	// Leave the previous room; otherwise it keeps counting us as present.
	if old != nil && t != nil && connected {
		err := t.sendEvent("game/disconnect", map[string]any{
			"game_id": old.GameID,
		})
		if err != nil {
			c.log.Debug("game disconnect send failed", zap.Error(err))
		}
	}

	c.log.Info("joining game room", zap.Int64("game_id", gameID))
	if connected {
		c.sendGameConnect(gameID)
	}
	// If not connected yet, the monitor issues the join once we are.
	c.startClockLoop()
	c.startPulse()
	return nil
}

// attachFromBroadcast attaches to a game announced by the server, if the
// client was searching for one (or already targets it) and the game is not
// latched as finished.
func (c *Client) attachFromBroadcast(gameID int64, blackID, whiteID int64, phase GamePhase) {
	c.mu.Lock()
	if _, done := c.finished[gameID]; done {
		c.mu.Unlock()
		c.log.Debug("ignoring activation of finished game", zap.Int64("game_id", gameID))
		return
	}
	mine := blackID == c.userID || whiteID == c.userID
	wanted := c.searching || c.target == gameID
	already := c.session != nil && c.session.GameID == gameID
	if already || !mine || !wanted || !phase.InProgress() {
		c.mu.Unlock()
		return
	}
	c.searching = false
	c.mu.Unlock()

	c.log.Info("game started", zap.Int64("game_id", gameID))
	c.ConnectGame(gameID)
}

// ReturnToLobby detaches from the active game and stops its timers.
func (c *Client) ReturnToLobby() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.target = 0
	c.stopLoopLocked(&c.pulseStop)
	c.stopLoopLocked(&c.clockStop)
	t := c.transport
	c.mu.Unlock()

	if s == nil {
		return
	}
	if t != nil {
		err := t.sendEvent("game/disconnect", map[string]any{
			"game_id": s.GameID,
		})
		if err != nil {
			c.log.Debug("game disconnect send failed", zap.Error(err))
		}
	}
	c.log.Info("returned to lobby", zap.Int64("game_id", s.GameID))
}

// Searching toggles automatch/challenge-pending mode: while on, a
// game-started broadcast naming the local player triggers attachment.
func (c *Client) Searching(on bool) {
	c.mu.Lock()
	c.searching = on
	c.mu.Unlock()
}

// applyGameData folds a full authoritative snapshot into the session.
func (c *Client) applyGameData(g *Game) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != g.GameID {
		c.mu.Unlock()
		return
	}

	// Monotonic-max fold; a stale snapshot never regresses the session.
	if g.StateVersion > 0 && g.StateVersion < s.stateVersion {
		c.mu.Unlock()
		c.log.Debug("dropping stale game data",
			zap.Int64("game_id", g.GameID),
			zap.Int64("state_version", g.StateVersion),
			zap.Int64("have", s.stateVersion))
		return
	}
	if g.StateVersion > s.stateVersion {
		s.stateVersion = g.StateVersion
	}

	s.game = g
	s.black = g.Players.Black
	s.white = g.Players.White
	if s.black.ID == 0 {
		s.black.ID = g.BlackPlayerID
	}
	if s.white.ID == 0 {
		s.white.ID = g.WhitePlayerID
	}
	s.myColor = g.ColorOf(c.userID)
	s.handicap = g.Handicap
	s.komi = g.Komi
	s.rules = g.Rules
	s.ranked = g.Ranked
	s.timeControl = g.TimeControl
	if g.AuthToken != "" {
		s.authToken = g.AuthToken
	}

	// Moves and captures come from the authoritative list, the client never
	// derives them itself. Fixed handicap placements shift the sequence.
	offset := len(g.InitialState.Black) / 2
	s.moves = s.moves[:0]
	for i, m := range g.Moves {
		s.moves = append(s.moves, MoveRecord{
			Number: offset + i + 1,
			Coord:  m.OriginCoordinate,
			Pass:   m.IsPass(),
		})
	}
	s.moveNumber = offset + len(g.Moves)
	s.capturesBlack = g.Score.Black.Prisoners
	s.capturesWhite = g.Score.White.Prisoners

	if s.clock == nil {
		s.clock = newClockEngine(g.TimeControl)
	}
	if g.Clock.GameID == g.GameID || g.Clock.CurrentPlayerID != 0 {
		s.clock.applySnapshot(&g.Clock, time.Now())
	}

	// A new authoritative snapshot settles any undo negotiation.
	s.undo = nil

	if removed, err := ParseSGFList(g.Removed); err == nil && g.Removed != "" {
		s.removed = make(map[OriginCoordinate]struct{}, len(removed))
		for _, coord := range removed {
			s.removed[coord] = struct{}{}
		}
	}

	first := !s.joined
	s.joined = true
	gameID := s.GameID
	c.applyPhaseLocked(s, g.Phase)
	c.mu.Unlock()

	if first {
		c.bus.publish(Notice{Kind: EventGameStarted, GameID: gameID, Game: g})
	}
	c.bus.publish(Notice{Kind: EventGameData, GameID: gameID, Game: g})
	// A full snapshot only arrives for authenticated sockets.
	c.markAuthed()
}

// applyMove folds one confirmed server move into the session.
func (c *Client) applyMove(m *GameMove) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != m.GameID {
		c.mu.Unlock()
		return
	}
	if m.MoveNumber > 0 && m.MoveNumber <= s.moveNumber {
		// Duplicate or out-of-order delivery.
		c.mu.Unlock()
		return
	}
	s.moves = append(s.moves, MoveRecord{
		Number: m.MoveNumber,
		Coord:  m.Move.OriginCoordinate,
		Pass:   m.Move.IsPass(),
	})
	if m.MoveNumber > 0 {
		s.moveNumber = m.MoveNumber
	} else {
		s.moveNumber++
	}

	// Any new server move settles an outstanding undo request.
	cleared := s.undo != nil
	s.undo = nil
	gameID := s.GameID
	c.mu.Unlock()

	if cleared {
		c.log.Debug("undo request cleared by new move", zap.Int64("game_id", gameID))
	}
	c.bus.publish(Notice{Kind: EventMove, GameID: gameID, Move: m})
}

// applyClock folds an authoritative clock snapshot into the clock engine.
func (c *Client) applyClock(clk *Clock) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != clk.GameID {
		c.mu.Unlock()
		return
	}
	if s.clock == nil {
		s.clock = newClockEngine(s.timeControl)
	}
	s.clock.applySnapshot(clk, time.Now())
	computed := s.clock.computed()
	gameID := s.GameID
	c.mu.Unlock()

	c.bus.publish(Notice{Kind: EventClock, GameID: gameID, Clock: computed})
}

// applyPhase folds a phase announcement into the session.
func (c *Client) applyPhase(gameID int64, phase GamePhase) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != gameID {
		c.mu.Unlock()
		return
	}
	changed := c.applyPhaseLocked(s, phase)
	c.mu.Unlock()

	if changed {
		c.bus.publish(Notice{Kind: EventPhaseChanged, GameID: gameID, Phase: phase})
	}
}

// applyPhaseLocked maps the server phase onto the session state machine.
// Finished is a latch: an update that omits the phase, or a noisy broadcast
// claiming the game is live again, never clears it.
func (c *Client) applyPhaseLocked(s *gameSession, phase GamePhase) bool {
	if s.phase == SessionFinished {
		return false
	}
	before := s.phase
	switch phase {
	case PlayPhase:
		s.phase = SessionPlaying
	case StoneRemovalPhase:
		s.phase = SessionScoring
	case FinishedPhase:
		s.phase = SessionFinished
		c.finished[s.GameID] = struct{}{}
	default:
		// Partial update without a phase; keep the current state.
	}
	return s.phase != before
}

// finishGame latches the game as finished and publishes the outcome.
func (c *Client) finishGame(gameID int64, outcome *RemovedStonesAccepted) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != gameID {
		c.mu.Unlock()
		return
	}
	already := s.phase == SessionFinished
	s.phase = SessionFinished
	s.undo = nil
	c.finished[gameID] = struct{}{}
	c.mu.Unlock()

	if !already {
		c.bus.publish(Notice{Kind: EventGameEnded, GameID: gameID, Score: outcome})
	}
}

// refreshGame re-fetches authoritative state over REST and folds it in, used
// after an accepted undo instead of reconstructing the rollback locally. A
// completion from a stale session generation is dropped.
func (c *Client) refreshGame(gameID int64) {
	gen := c.generation()
	go func() {
		game, err := c.Game(gameID)
		if err != nil {
			c.log.Warn("game refresh failed", zap.Int64("game_id", gameID), zap.Error(err))
			return
		}
		if c.generation() != gen {
			return
		}
		c.applyGameData(game)
	}()
}

// Move submits a stone at the given board coordinate. Confirmation arrives
// as an EventMove notice; an illegal move is rejected by the server, never
// retried.
func (c *Client) Move(x, y int) error {
	return c.sendMove(OriginCoordinate{X: x, Y: y})
}

// Pass submits a pass.
func (c *Client) Pass() error {
	return c.sendMove(OriginCoordinate{X: -1, Y: -1})
}

func (c *Client) sendMove(coord OriginCoordinate) error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	var gameID int64
	var phase SessionPhase
	if s != nil {
		gameID = s.GameID
		phase = s.phase
	}
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	if phase != SessionPlaying && phase != SessionJoining {
		return ErrNoActiveGame
	}
	return t.sendEvent("game/move", map[string]any{
		"game_id": gameID,
		"move":    coord.SGF(),
		"blur":    0,
	})
}

// Resign concedes the active game.
func (c *Client) Resign() error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	return t.sendEvent("game/resign", map[string]any{
		"game_id": s.GameID,
	})
}

// Chat sends a main-channel chat line to the game room.
func (c *Client) Chat(body string) error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	return t.sendEvent("game/chat", map[string]any{
		"game_id": s.GameID,
		"body":    body,
		"type":    "main",
	})
}

// applyChat folds an inbound chat line and publishes it.
func (c *Client) applyChat(gameID int64, msg *ChatMessage) {
	c.mu.Lock()
	s := c.session
	uid := c.userID
	c.mu.Unlock()
	if s == nil || s.GameID != gameID {
		return
	}
	msg.Mine = msg.SenderID == uid
	c.bus.publish(Notice{Kind: EventChat, GameID: gameID, Chat: msg})
}
