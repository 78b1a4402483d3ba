package tenuki

import (
	"sync"

	"go.uber.org/zap"
)

// EventKind identifies one class of client notification. Collaborators
// subscribe to the typed stream instead of matching wire event names.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventAuthenticated
	EventGameStarted // attached to a game and received its first snapshot
	EventGameData    // full authoritative snapshot applied
	EventMove
	EventClock
	EventPhaseChanged
	EventGameEnded
	EventUndoRequested
	EventUndoAccepted
	EventUndoRejected
	EventRemovedStones
	EventScoreAccepted
	EventChat
	EventSeekGraph
	EventLatency
)

func (k EventKind) String() string {
	return [...]string{
		"Connected", "Disconnected", "Authenticated", "GameStarted",
		"GameData", "Move", "Clock", "PhaseChanged", "GameEnded",
		"UndoRequested", "UndoAccepted", "UndoRejected", "RemovedStones",
		"ScoreAccepted", "Chat", "SeekGraph", "Latency",
	}[k]
}

// Notice is one published notification. Only the fields relevant to its Kind
// are populated.
type Notice struct {
	Kind   EventKind
	GameID int64

	Game   *Game
	Move   *GameMove
	Clock  *ComputedClock
	Phase  GamePhase
	Undo   *UndoRequest
	Stones []OriginCoordinate
	Score  *RemovedStonesAccepted
	Chat   *ChatMessage

	// Latency/drift in milliseconds, for EventLatency.
	LatencyMS int64
	DriftMS   int64
}

// bus fans notifications out to subscribers. Publishing never blocks; a
// subscriber that stops draining its channel loses notices, not the session.
type bus struct {
	mu   sync.Mutex
	log  *zap.Logger
	subs map[int]chan Notice
	next int
}

func newBus(log *zap.Logger) *bus {
	return &bus{log: log, subs: make(map[int]chan Notice)}
}

// subscribe registers a buffered notice channel and returns it with its
// cancel function. Cancel closes the channel.
func (b *bus) subscribe(buffer int) (<-chan Notice, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notice, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *bus) publish(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.log.Warn("dropping notice for slow subscriber",
				zap.Stringer("kind", n.Kind), zap.Int64("game_id", n.GameID))
		}
	}
}

func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
