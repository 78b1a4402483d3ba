package tenuki

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// route demultiplexes one inbound application packet. Scoped events (names
// embedding a game id) are dropped unless they belong to the active game;
// global events are processed unconditionally.
func (c *Client) route(p Packet) {
	if p.Kind != PacketEvent {
		// Ack payloads carry no state this client depends on.
		c.log.Debug("ignoring packet", zap.Stringer("kind", p.Kind), zap.Int64("ack_id", p.AckID))
		return
	}

	if gameID, sub, ok := splitScoped(p.Event); ok {
		c.routeScoped(gameID, sub, p.Data)
		return
	}
	c.routeGlobal(p.Event, p.Data)
}

// splitScoped parses names of the form "game/<id>/<sub>".
func splitScoped(name string) (int64, string, bool) {
	rest, found := strings.CutPrefix(name, "game/")
	if !found {
		return 0, "", false
	}
	idStr, sub, found := strings.Cut(rest, "/")
	if !found {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, sub, true
}

func (c *Client) routeScoped(gameID int64, sub string, data json.RawMessage) {
	c.mu.Lock()
	active := c.session != nil && c.session.GameID == gameID
	c.mu.Unlock()
	if !active {
		// Stale data from a previous or unrelated room must never
		// corrupt the active session.
		c.log.Debug("dropping event for non-active game",
			zap.Int64("game_id", gameID), zap.String("event", sub))
		return
	}

	switch sub {
	case "gamedata":
		var g Game
		if err := json.Unmarshal(data, &g); err != nil {
			c.dropPayload(sub, err)
			return
		}
		if g.GameID == 0 {
			g.GameID = gameID
		}
		c.applyGameData(&g)

	case "move":
		var m GameMove
		if err := json.Unmarshal(data, &m); err != nil {
			c.dropPayload(sub, err)
			return
		}
		if m.GameID == 0 {
			m.GameID = gameID
		}
		c.applyMove(&m)

	case "clock":
		var clk Clock
		if err := json.Unmarshal(data, &clk); err != nil {
			c.dropPayload(sub, err)
			return
		}
		if clk.GameID == 0 {
			clk.GameID = gameID
		}
		c.applyClock(&clk)

	case "phase":
		var phase GamePhase
		if err := json.Unmarshal(data, &phase); err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.applyPhase(gameID, phase)

	case "undo_requested":
		moveNumber, err := intPayload(data)
		if err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.handleUndoRequested(gameID, moveNumber)

	case "undo_accepted":
		moveNumber, err := intPayload(data)
		if err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.handleUndoAccepted(gameID, moveNumber)

	case "undo_canceled":
		c.handleUndoCanceled(gameID)

	case "removed_stones":
		var rs RemovedStones
		if err := json.Unmarshal(data, &rs); err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.handleRemovedStones(gameID, &rs)

	case "removed_stones_accepted":
		var acc RemovedStonesAccepted
		if err := json.Unmarshal(data, &acc); err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.handleRemovedStonesAccepted(gameID, &acc)

	case "chat":
		msg, err := decodeChat(data)
		if err != nil {
			c.dropPayload(sub, err)
			return
		}
		c.applyChat(gameID, msg)

	case "error":
		c.log.Warn("game room error", zap.Int64("game_id", gameID), zap.ByteString("payload", data))

	default:
		c.log.Debug("unhandled scoped event", zap.Int64("game_id", gameID), zap.String("event", sub))
	}
}

func (c *Client) routeGlobal(name string, data json.RawMessage) {
	switch name {
	case "net/pong":
		var pong NetPong
		if err := json.Unmarshal(data, &pong); err != nil {
			c.dropPayload(name, err)
			return
		}
		c.handleNetPong(&pong, time.Now())

	case "seekgraph/global":
		var entries []ChallengeListing
		if err := json.Unmarshal(data, &entries); err != nil {
			c.dropPayload(name, err)
			return
		}
		c.handleSeekGraph(entries)

	case "active_game":
		var entry ActiveGameEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			c.dropPayload(name, err)
			return
		}
		// An active_game broadcast only reaches authenticated sockets.
		c.markAuthed()
		c.attachFromBroadcast(entry.ID, entry.Black.ID, entry.White.ID, entry.Phase)

	case "notification":
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			c.dropPayload(name, err)
			return
		}
		c.markAuthed()
		if n.Type == "gameStarted" || n.Type == "gameResumedFromStoneRemoval" {
			phase := n.Phase
			if phase == "" {
				phase = PlayPhase
			}
			c.attachFromBroadcast(n.GameID, n.BlackID, n.WhiteID, phase)
		}

	case "authenticate", "authenticated":
		// Explicit confirmation; some server variants omit it entirely
		// and auth is inferred from other events instead.
		c.markAuthed()

	default:
		c.log.Debug("unhandled global event", zap.String("event", name))
	}
}

func (c *Client) dropPayload(event string, err error) {
	// A single bad frame is discarded, processing continues.
	c.log.Warn("dropping undecodable payload", zap.String("event", event), zap.Error(err))
}

// intPayload decodes a payload that is either a bare number or an object
// with a move_number field; both shapes are observed.
func intPayload(data json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return n, nil
	}
	var obj struct {
		MoveNumber int `json:"move_number"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, err
	}
	return obj.MoveNumber, nil
}

// decodeChat handles the room chat envelope.
func decodeChat(data json.RawMessage) (*ChatMessage, error) {
	var envelope struct {
		Channel string
		Line    struct {
			Username   string
			PlayerID   int64 `json:"player_id"`
			Body       string
			Date       Timestamp
			MoveNumber int `json:"move_number"`
		}
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &ChatMessage{
		Sender:     envelope.Line.Username,
		SenderID:   envelope.Line.PlayerID,
		Body:       envelope.Line.Body,
		At:         envelope.Line.Date.Time,
		MoveNumber: envelope.Line.MoveNumber,
	}, nil
}
