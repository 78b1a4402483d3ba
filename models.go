package tenuki

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type PlayerColor int

const (
	PlayerUnknown PlayerColor = iota
	PlayerBlack
	PlayerWhite
)

func (p PlayerColor) String() string {
	return [...]string{"Unknown", "Black", "White"}[p]
}

type GamePhase string

const (
	PlayPhase         GamePhase = "play"
	StoneRemovalPhase GamePhase = "stone removal"
	FinishedPhase     GamePhase = "finished"
)

// InProgress reports whether the phase describes a game still being played.
func (p GamePhase) InProgress() bool {
	return p == PlayPhase || p == StoneRemovalPhase
}

// Timestamp decodes server timestamps represented in either seconds or
// milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	ts, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("Timestamp.UnmarshalJSON: expected a numeric Unix timestamp, but got %q: %w", string(b), err)
	}
	if ts > 1_000_000_000_000 { // Assume milliseconds
		t.Time = time.UnixMilli(ts)
	} else {
		t.Time = time.Unix(ts, 0)
	}
	return nil
}

// User is the profile returned by the config and profile endpoints.
type User struct {
	ID           int64
	Username     string
	Country      string
	Professional bool
	Ranking      float32
	IsBot        bool   `json:"is_bot"`
	UIClass      string `json:"ui_class"`
}

// Player contains per-game user information.
type Player struct {
	ID           int64
	Username     string
	Country      string
	Professional bool
	Rank         float32

	// Accepted removals during the stone removal phase.
	AcceptedStones string `json:"accepted_stones"`
}

func (p Player) String() string {
	return p.Username + "[" + p.Ranking() + "]"
}

// Ranking returns the player's rank in notation like "1p", "2d", "3k".
func (p *Player) Ranking() string {
	if p.Professional {
		return fmt.Sprintf("%.fp", p.Rank-36)
	}
	if p.Rank >= 1037 {
		return fmt.Sprintf("%.fp", p.Rank-1036)
	} else if p.Rank >= 30 {
		return fmt.Sprintf("%.fd", p.Rank-29)
	} else if p.Rank >= 1 {
		return fmt.Sprintf("%.fk", 30-math.Floor(float64(p.Rank)))
	}
	return "?"
}

type Players struct {
	Black Player
	White Player
}

// TimeControl describes the agreed time system of a game.
type TimeControl struct {
	MainTime        float64 `json:"main_time"`
	PauseOnWeekends bool    `json:"pause_on_weekends"`
	PeriodTime      float64 `json:"period_time"`
	Periods         int
	Speed           string
	System          string
	TimeControl     string `json:"time_control"`
}

func (t TimeControl) String() string {
	return fmt.Sprintf("%s %s+%sx%d", t.System, prettyTime(t.MainTime), prettyTime(t.PeriodTime), t.Periods)
}

// PlayerTime is one color's half of a clock snapshot. Rengo games report a
// bare timestamp instead of the detailed struct, hence the custom decoder.
type PlayerTime struct {
	Value Timestamp // Only for Rengo games

	PeriodTime     float64 `json:"period_time"`
	PeriodTimeLeft float64 `json:"period_time_left"`
	Periods        int
	ThinkingTime   float64 `json:"thinking_time"`
}

func (t *PlayerTime) UnmarshalJSON(data []byte) error {
	if json.Unmarshal(data, &t.Value) == nil {
		return nil
	}

	type alias PlayerTime // Avoid recursive decoding
	var pt alias
	if err := json.Unmarshal(data, &pt); err != nil {
		return err
	}
	*t = PlayerTime(pt)
	return nil
}

// Clock is the server's authoritative clock snapshot, received infrequently.
type Clock struct {
	BlackPlayerID   int64      `json:"black_player_id"`
	BlackTime       PlayerTime `json:"black_time"`
	CurrentPlayerID int64      `json:"current_player"`
	Expiration      Timestamp
	GameID          int64      `json:"game_id"`
	LastMove        Timestamp  `json:"last_move"`
	PausedSince     Timestamp  `json:"paused_since"`
	WhitePlayerID   int64      `json:"white_player_id"`
	WhiteTime       PlayerTime `json:"white_time"`
	Now             Timestamp
}

// Move is a wire move entry, a list of [x, y, timeDelta] values.
type Move struct {
	OriginCoordinate
	TimeDelta float64
}

func (m *Move) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 2 {
		return fmt.Errorf("expected at least 2 elements in move array, got %d", len(raw))
	}

	if err := json.Unmarshal(raw[0], &m.X); err != nil {
		return fmt.Errorf("error unmarshaling move.X: %w", err)
	}
	if err := json.Unmarshal(raw[1], &m.Y); err != nil {
		return fmt.Errorf("error unmarshaling move.Y: %w", err)
	}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw[2], &m.TimeDelta); err != nil {
			return fmt.Errorf("error unmarshaling move.TimeDelta: %w", err)
		}
	}
	return nil
}

// GameMove is the payload of a scoped move event.
type GameMove struct {
	GameID     int64 `json:"game_id"`
	Move       Move
	MoveNumber int `json:"move_number"`
}

// Game is the full game-data snapshot. It is authoritative for identities,
// rules, handicap, komi, time control, moves and phase.
type Game struct {
	BlackPlayerID int64  `json:"black_player_id"`
	Clock         Clock
	GameID        int64  `json:"game_id"`
	GameName      string `json:"game_name"`
	Handicap      int
	Height        int
	InitialPlayer string `json:"initial_player"`
	InitialState  struct {
		Black string
		White string
	} `json:"initial_state"`
	Komi          float32
	Moves         []Move
	Phase         GamePhase
	Players       Players
	Private       bool
	Ranked        bool
	Removed       string
	Rules         string
	Score         Score       // Only available when Phase is "finished"
	StartTime     Timestamp   `json:"start_time"`
	StateVersion  int64       `json:"state_version"`
	TimeControl   TimeControl `json:"time_control"`
	AuthToken     string      `json:"auth"`
	WhitePlayerID int64       `json:"white_player_id"`
	Width         int
	WinnerID      int64 `json:"winner"` // Only when Phase is "finished"
	Outcome       string
}

func (g *Game) String() string {
	return fmt.Sprintf("%d %q (B) %s vs (W) %s, %d moves",
		g.GameID, g.GameName, g.Players.Black, g.Players.White, len(g.Moves))
}

func (g *Game) BoardSize() int {
	return g.Height
}

func (g *Game) IsMyGame(myUserID int64) bool {
	return g.BlackPlayerID == myUserID || g.WhitePlayerID == myUserID
}

func (g *Game) IsMyTurn(myUserID int64) bool {
	return g.Clock.CurrentPlayerID == myUserID
}

func (g *Game) Opponent(myUserID int64) Player {
	if g.BlackPlayerID == myUserID {
		return g.Players.White
	}
	return g.Players.Black
}

// ColorOf resolves a user id against the game's seats. Spectators resolve to
// PlayerUnknown.
func (g *Game) ColorOf(userID int64) PlayerColor {
	switch userID {
	case g.BlackPlayerID:
		return PlayerBlack
	case g.WhitePlayerID:
		return PlayerWhite
	}
	return PlayerUnknown
}

// Score holds the final counting result of a finished game.
type Score struct {
	Black PlayerScore
	White PlayerScore
}

type PlayerScore struct {
	Handicap         int
	Komi             float32
	Prisoners        int
	ScoringPositions string `json:"scoring_positions"`
	Stones           int
	Territory        float32
	Total            float32
}

// GameState is the REST state snapshot with the board matrix, used to
// re-fetch authoritative state after an accepted undo.
type GameState struct {
	Phase        GamePhase
	MoveNumber   int              `json:"move_number"`
	LastMove     OriginCoordinate `json:"last_move"`
	PlayerToMove int64            `json:"player_to_move"`
	Outcome      string

	// The 2-D array with value 0=Empty, 1=Black, 2=White
	Board   [][]int
	Removal [][]int
}

func (g *GameState) BoardSize() int {
	return len(g.Board)
}

func (g *GameState) IsMyTurn(myUserID int64) bool {
	return g.PlayerToMove == myUserID
}

// MoveRecord is one confirmed move of the active session. Records are
// append-only; they are never mutated once confirmed by the server.
type MoveRecord struct {
	Number int // sequence number, handicap offset included
	Coord  OriginCoordinate
	Pass   bool
}

// UndoRequestState describes the single undo negotiation a session may have
// outstanding.
type UndoRequestState int

const (
	UndoPending UndoRequestState = iota
	UndoAccepted
	UndoRejected
)

type UndoRequest struct {
	RequesterID int64
	MoveNumber  int
	Status      UndoRequestState
}

// ChatMessage is one line of in-game chat.
type ChatMessage struct {
	Sender     string
	SenderID   int64
	Body       string
	At         time.Time
	MoveNumber int
	Mine       bool
}

// RemovedStones is the payload of a scoped removed_stones event. The stones
// string is a sequence of SGF coordinate pairs, e.g. "edhdid" is (4,3) (7,3)
// (8,3).
type RemovedStones struct {
	AllRemoved string `json:"all_removed"`
	Removed    bool
	Stones     string
}

// RemovedStonesAccepted is the payload of a scoped removed_stones_accepted
// event. Phase changes to "finished" when both sides accepted.
type RemovedStonesAccepted struct {
	PlayerID int64 `json:"player_id"`
	Stones   string
	Players  Players

	Phase GamePhase
	Score Score

	// Only available when Phase is "finished"
	EndTime  Timestamp `json:"end_time"`
	Outcome  string
	WinnerID int64 `json:"winner"`
}

// ChallengeListing is one open challenge in the seek graph.
type ChallengeListing struct {
	ChallengeID int64 `json:"challenge_id"`
	UserID      int64 `json:"user_id"`
	Username    string
	Rank        float32 `json:"ranking"`
	MinRank     float32 `json:"min_ranking"`
	MaxRank     float32 `json:"max_ranking"`
	GameID      int64   `json:"game_id"`
	Name        string
	Width       int
	Height      int
	Rules       string
	Ranked      bool
	Handicap    int
	TimeControl TimeControl `json:"time_control_parameters"`

	// Delta markers
	Delete      bool `json:"delete"`
	GameStarted bool `json:"game_started"`
}

// ActiveGameEntry is the payload of an active_game broadcast, also embedded
// in "gameStarted" notifications.
type ActiveGameEntry struct {
	ID     int64
	Phase  GamePhase
	Name   string
	Black  Player
	White  Player
	Width  int
	Height int
}

// Notification is the generic shape of a notification event; only the fields
// this client acts on are decoded.
type Notification struct {
	Type    string
	GameID  int64 `json:"game_id"`
	BlackID int64 `json:"black"`
	WhiteID int64 `json:"white"`
	Phase   GamePhase
}

// Overview contains the active games visible after login.
type Overview struct {
	ActiveGames []GameOverview `json:"active_games"`
}

// GameOverview is almost identical to Game but decoded using a different
// json tag.
type GameOverview struct {
	Game `json:"json"` // Embedded
}

// NetPong is the payload answering a net/ping, used for latency and clock
// drift estimation.
type NetPong struct {
	Client Timestamp
	Server Timestamp
}

// passSGF is the reserved two-character pass marker of the move wire format.
const passSGF = ".."

// OriginCoordinate is a zero-based board coordinate. X==-1 or Y==-1 marks a
// pass.
type OriginCoordinate struct {
	X int
	Y int
}

func (c OriginCoordinate) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Y)
}

func (c OriginCoordinate) IsPass() bool {
	return c.X == -1 || c.Y == -1
}

// SGF encodes the coordinate into the two-character alphabetic wire form;
// a pass encodes to "..".
func (c OriginCoordinate) SGF() string {
	if c.IsPass() {
		return passSGF
	}
	return fmt.Sprintf("%c%c", rune('a'+c.X), rune('a'+c.Y))
}

// ParseSGF decodes a single two-character coordinate pair.
func ParseSGF(s string) (OriginCoordinate, error) {
	if s == passSGF {
		return OriginCoordinate{X: -1, Y: -1}, nil
	}
	if len(s) != 2 || s[0] < 'a' || s[0] > 'z' || s[1] < 'a' || s[1] > 'z' {
		return OriginCoordinate{}, fmt.Errorf("invalid SGF coordinate %q", s)
	}
	return OriginCoordinate{X: int(s[0] - 'a'), Y: int(s[1] - 'a')}, nil
}

// ParseSGFList decodes a compact sequence of coordinate pairs such as the
// removed-stones string.
func ParseSGFList(s string) ([]OriginCoordinate, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length SGF coordinate list %q", s)
	}
	coords := make([]OriginCoordinate, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		c, err := ParseSGF(s[i : i+2])
		if err != nil {
			return nil, err
		}
		coords = append(coords, c)
	}
	return coords, nil
}

func (c OriginCoordinate) ToA1Coordinate(boardSize int) (*A1Coordinate, error) {
	if c.X < 0 || c.X >= boardSize || c.Y < 0 || c.Y >= boardSize {
		return nil, fmt.Errorf("OriginCoordinate %s is out of board bounds [0-%d]", c, boardSize-1)
	}

	col := 'A' + rune(c.X)
	if c.X >= 8 { // Skip 'I'
		col += 1
	}
	row := boardSize - c.Y // Reverse counting
	return &A1Coordinate{Col: col, Row: row}, nil
}

// A1Coordinate is a coordinate in display format like "A1", letter 'I' is
// skipped.
type A1Coordinate struct {
	Col rune // 'A', 'B', ... (skip 'I')
	Row int  // 1, 2, ...
}

// NewA1Coordinate creates an instance from a coordinate string like "A1".
func NewA1Coordinate(coord string) (*A1Coordinate, error) {
	if len(coord) < 2 {
		return nil, fmt.Errorf("invalid coordinate string %q", coord)
	}

	col := rune(strings.ToUpper(coord)[0])
	row := coord[1:]

	if col < 'A' || col > 'Z' || col == 'I' {
		return nil, fmt.Errorf("invalid column letter '%c' in coordinate %q: must be A-H or J-Z (or a-h or j-z)", col, coord)
	}
	rowNum, err := strconv.Atoi(row)
	if err != nil || rowNum <= 0 || rowNum > 25 {
		return nil, fmt.Errorf("invalid row number format in coordinate %q: %w", coord, err)
	}
	return &A1Coordinate{Col: col, Row: rowNum}, nil
}

func (c A1Coordinate) String() string {
	return fmt.Sprintf("%c%d", c.Col, c.Row)
}

func (c A1Coordinate) ToOriginCoordinate(boardSize int) (*OriginCoordinate, error) {
	col := c.Col
	if col >= 'a' && col <= 'z' {
		col -= 'a' - 'A' // to upper case
	}

	var x int
	if col >= 'A' && col <= 'H' {
		x = int(col - 'A')
	} else if col >= 'J' && col <= 'T' { // Account for skipped 'I'
		x = int(col - 'A' - 1)
	} else {
		return nil, fmt.Errorf("invalid column letter '%c' in A1Coordinate %q: must be A-H or J-T (or a-h or j-t)", col, c)
	}

	y := boardSize - c.Row
	if x < 0 || x >= boardSize || y < 0 || y >= boardSize {
		return nil, fmt.Errorf("coordinate %q is out of board bounds [0-%d]", c, boardSize-1)
	}
	return &OriginCoordinate{X: x, Y: y}, nil
}

func prettyTime(seconds float64) string {
	days := math.Floor(seconds / 86400)
	seconds -= days * 86400
	hours := math.Floor(seconds / 3600)
	seconds -= hours * 3600
	minutes := math.Floor(seconds / 60)
	seconds -= minutes * 60

	if days > 0 {
		if hours > 0 {
			return fmt.Sprintf("%.0fd%.0fh", days, hours)
		}
		// "1d" is confusing, use "24h" instead
		return fmt.Sprintf("%.0fh", days*24)
	}
	if hours > 0 {
		return fmt.Sprintf("%.0fh%.0fm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%.0f:%02.0f", minutes, seconds)
	}
	return fmt.Sprintf("%.0fs", seconds)
}
