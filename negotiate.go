package tenuki

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// A seek-graph payload at least this large is treated as a full dump even if
// the dump-after-connect flag was already consumed.
const seekGraphDumpSize = 64

// RequestUndo asks the opponent to roll back the last move. The target move
// number prefers the last server-confirmed number over a possibly stale
// local count, so a ghost move is never named. At most one request may be
// outstanding; it is settled by an accept, a cancel, or any new server move.
func (c *Client) RequestUndo() error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	var gameID int64
	var moveNumber int
	pending := false
	if s != nil {
		gameID = s.GameID
		moveNumber = s.moveNumber
		pending = s.undo != nil && s.undo.Status == UndoPending
	}
	uid := c.userID
	if s != nil && !pending {
		s.undo = &UndoRequest{RequesterID: uid, MoveNumber: moveNumber, Status: UndoPending}
	}
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if pending {
		return ErrUndoPending
	}
	if t == nil || !t.isConnected() {
		c.clearUndo(gameID)
		return ErrNotConnected
	}
	err := t.sendEvent("game/undo/request", map[string]any{
		"game_id":     gameID,
		"move_number": moveNumber,
	})
	if err != nil {
		// the server never saw it; a stuck pending flag would block retries
		c.clearUndo(gameID)
	}
	return err
}

// AcceptUndo grants the opponent's pending undo request.
func (c *Client) AcceptUndo() error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	var gameID int64
	var moveNumber int
	ok := false
	if s != nil && s.undo != nil && s.undo.Status == UndoPending {
		gameID = s.GameID
		moveNumber = s.undo.MoveNumber
		ok = true
	}
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if !ok {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	return t.sendEvent("game/undo/accept", map[string]any{
		"game_id":     gameID,
		"move_number": moveNumber,
	})
}

// CancelUndo withdraws our own pending undo request.
func (c *Client) CancelUndo() error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	var gameID int64
	if s != nil {
		gameID = s.GameID
		s.undo = nil
	}
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	return t.sendEvent("game/undo/cancel", map[string]any{
		"game_id": gameID,
	})
}

func (c *Client) clearUndo(gameID int64) {
	c.mu.Lock()
	if c.session != nil && c.session.GameID == gameID {
		c.session.undo = nil
	}
	c.mu.Unlock()
}

// handleUndoRequested records the opponent's (or our echoed) request.
func (c *Client) handleUndoRequested(gameID int64, moveNumber int) {
	c.mu.Lock()
	s := c.session
	uid := c.userID
	if s == nil || s.GameID != gameID {
		c.mu.Unlock()
		return
	}
	if s.undo != nil && s.undo.Status == UndoPending {
		// Already tracked; our own request echoes back from the server.
		c.mu.Unlock()
		return
	}
	requester := s.black.ID
	if requester == uid {
		requester = s.white.ID
	}
	undo := &UndoRequest{RequesterID: requester, MoveNumber: moveNumber, Status: UndoPending}
	s.undo = undo
	c.mu.Unlock()

	u := *undo
	c.bus.publish(Notice{Kind: EventUndoRequested, GameID: gameID, Undo: &u})
}

// handleUndoAccepted settles the negotiation and re-fetches authoritative
// state; the rollback is never reconstructed locally.
func (c *Client) handleUndoAccepted(gameID int64, moveNumber int) {
	c.mu.Lock()
	s := c.session
	var undo UndoRequest
	if s != nil && s.GameID == gameID {
		if s.undo != nil {
			undo = *s.undo
		}
		undo.Status = UndoAccepted
		undo.MoveNumber = moveNumber
		s.undo = nil
	}
	c.mu.Unlock()
	if s == nil || s.GameID != gameID {
		return
	}

	c.bus.publish(Notice{Kind: EventUndoAccepted, GameID: gameID, Undo: &undo})
	c.refreshGame(gameID)
}

// handleUndoCanceled clears the pending flag; nothing is retried.
func (c *Client) handleUndoCanceled(gameID int64) {
	c.mu.Lock()
	s := c.session
	var undo *UndoRequest
	if s != nil && s.GameID == gameID && s.undo != nil {
		u := *s.undo
		u.Status = UndoRejected
		undo = &u
		s.undo = nil
	}
	c.mu.Unlock()

	if undo != nil {
		c.bus.publish(Notice{Kind: EventUndoRejected, GameID: gameID, Undo: undo})
	}
}

// SetRemovedStones marks or unmarks dead stones during scoring.
func (c *Client) SetRemovedStones(coords []OriginCoordinate, removed bool) error {
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
	var sb strings.Builder
	for _, coord := range coords {
		sb.WriteString(coord.SGF())
	}
	return t.sendEvent("game/removed_stones/set", map[string]any{
		"game_id": s.GameID,
		"removed": removed,
		"stones":  sb.String(),
	})
}

// AcceptScore accepts the current dead-stone set, fire-and-forget.
func (c *Client) AcceptScore() error {
	c.mu.Lock()
	s := c.session
	t := c.transport
	var stones string
	if s != nil {
		coords := make([]OriginCoordinate, 0, len(s.removed))
		for coord := range s.removed {
			coords = append(coords, coord)
		}
		sort.Slice(coords, func(i, j int) bool {
			if coords[i].Y != coords[j].Y {
				return coords[i].Y < coords[j].Y
			}
			return coords[i].X < coords[j].X
		})
		var sb strings.Builder
		for _, coord := range coords {
			sb.WriteString(coord.SGF())
		}
		stones = sb.String()
	}
	c.mu.Unlock()

	if s == nil {
		return ErrNoActiveGame
	}
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	return t.sendEvent("game/removed_stones/accept", map[string]any{
		"game_id": s.GameID,
		"stones":  stones,
		"strict":  false,
	})
}

// RejectScore rejects the proposed scoring and returns the game to play.
func (c *Client) RejectScore() error {
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
	return t.sendEvent("game/removed_stones/reject", map[string]any{
		"game_id": s.GameID,
	})
}

// handleRemovedStones rebuilds the dead-stone set wholesale from the
// update's coordinate string; incremental diffing drifts.
func (c *Client) handleRemovedStones(gameID int64, rs *RemovedStones) {
	coords, err := ParseSGFList(rs.AllRemoved)
	if err != nil {
		c.log.Warn("bad removed-stones payload", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}

	c.mu.Lock()
	s := c.session
	if s == nil || s.GameID != gameID {
		c.mu.Unlock()
		return
	}
	s.removed = make(map[OriginCoordinate]struct{}, len(coords))
	for _, coord := range coords {
		s.removed[coord] = struct{}{}
	}
	c.mu.Unlock()

	c.bus.publish(Notice{Kind: EventRemovedStones, GameID: gameID, Stones: coords})
}

// handleRemovedStonesAccepted publishes the acceptance; when both sides
// accepted the phase flips to finished.
func (c *Client) handleRemovedStonesAccepted(gameID int64, acc *RemovedStonesAccepted) {
	c.bus.publish(Notice{Kind: EventScoreAccepted, GameID: gameID, Score: acc})
	if acc.Phase == FinishedPhase {
		c.finishGame(gameID, acc)
	}
}

// ConnectLobby subscribes to the global seek graph. The next payload is the
// full dump replacing the listing.
func (c *Client) ConnectLobby() error {
	t := c.currentTransport()
	if t == nil || !t.isConnected() {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.lobbyPrimed = true
	c.mu.Unlock()
	return t.sendEvent("seek_graph/connect", map[string]any{
		"channel": "global",
	})
}

// Challenges returns the current seek-graph listing.
func (c *Client) Challenges() []ChallengeListing {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]ChallengeListing, 0, len(c.lobby))
	for _, entry := range c.lobby {
		res = append(res, entry)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChallengeID < res[j].ChallengeID })
	return res
}

// CreateChallenge posts an open challenge over REST and starts its
// keep-alive; a game-started marker or withdrawal ends it.
func (c *Client) CreateChallenge(req *ChallengeRequest) (*ChallengeCreated, error) {
	created, err := c.PostChallenge(req)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.challengeID = created.ChallengeID
	c.challengeGameID = created.GameID
	c.searching = true
	c.mu.Unlock()
	c.startKeepalive()
	return created, nil
}

// WithdrawChallenge removes our outstanding challenge.
func (c *Client) WithdrawChallenge() error {
	c.mu.Lock()
	challengeID := c.challengeID
	c.challengeID = 0
	c.challengeGameID = 0
	c.searching = false
	t := c.transport
	c.stopLoopLocked(&c.keepaliveStop)
	c.mu.Unlock()

	if challengeID == 0 {
		return nil
	}
	if t != nil && t.isConnected() {
		err := t.sendEvent("seek_graph/remove", map[string]any{
			"challenge_id": challengeID,
		})
		if err != nil {
			c.log.Debug("seek graph remove failed", zap.Error(err))
		}
	}
	return c.DeleteChallenge(challengeID)
}

// handleSeekGraph maintains the lobby listing. A full dump replaces the
// whole listing; smaller payloads are deltas keyed by challenge id.
func (c *Client) handleSeekGraph(entries []ChallengeListing) {
	c.mu.Lock()
	fullDump := c.lobbyPrimed || len(entries) >= seekGraphDumpSize
	c.lobbyPrimed = false
	if fullDump {
		c.lobby = make(map[int64]ChallengeListing, len(entries))
	}

	var started []int64 // game ids of our own converted challenges
	for _, entry := range entries {
		switch {
		case entry.Delete:
			delete(c.lobby, entry.ChallengeID)
		case entry.GameStarted:
			// The challenge converted into a live game; it must not
			// remain a pending listing.
			if entry.ChallengeID != 0 {
				delete(c.lobby, entry.ChallengeID)
			} else {
				for id, listed := range c.lobby {
					if listed.GameID == entry.GameID {
						delete(c.lobby, id)
					}
				}
			}
			if entry.ChallengeID != 0 && entry.ChallengeID == c.challengeID {
				c.challengeID = 0
				c.challengeGameID = 0
				c.stopLoopLocked(&c.keepaliveStop)
				c.target = entry.GameID
				started = append(started, entry.GameID)
			}
		default:
			c.lobby[entry.ChallengeID] = entry
		}
	}
	c.mu.Unlock()

	c.bus.publish(Notice{Kind: EventSeekGraph})
	// Receiving the seek graph implies the socket is authenticated.
	c.markAuthed()
	for _, gameID := range started {
		c.ConnectGame(gameID)
	}
}
