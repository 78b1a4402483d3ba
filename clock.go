package tenuki

import (
	"fmt"
	"math"
	"time"
)

// ClockState is the simulated clock of one color. MainTime and PeriodTime
// are seconds; both are clamped at zero, the server adjudicates timeouts.
type ClockState struct {
	MainTime     float64
	Periods      int
	PeriodTime   float64 // remaining in the current period
	PeriodLength float64
}

func (s ClockState) String() string {
	if s.MainTime > 0 {
		if s.Periods > 0 {
			return fmt.Sprintf("%s + %s (%d)", prettyTime(s.MainTime), prettyTime(s.PeriodLength), s.Periods)
		}
		return prettyTime(s.MainTime)
	}
	if s.Periods > 0 {
		return fmt.Sprintf("%s (%d)", prettyTime(s.PeriodTime), s.Periods)
	}
	return "Timeout"
}

// advance consumes dt seconds, crossing from main time into byoyomi periods
// as needed. Reports whether the color ran out of time entirely.
func (s *ClockState) advance(dt float64) bool {
	if s.MainTime > 0 {
		s.MainTime -= dt
		if s.MainTime > 0 {
			return false
		}
		dt = -s.MainTime
		s.MainTime = 0
		if s.Periods > 0 && s.PeriodTime <= 0 {
			s.PeriodTime = s.PeriodLength
		}
	}
	for dt > 0 && s.Periods > 0 {
		if s.PeriodTime > dt {
			s.PeriodTime -= dt
			return false
		}
		dt -= s.PeriodTime
		s.Periods--
		if s.Periods > 0 {
			s.PeriodTime = s.PeriodLength
		} else {
			s.PeriodTime = 0
		}
	}
	return s.MainTime <= 0 && s.Periods <= 0 && s.PeriodTime <= 0
}

// ComputedClock is the published view of both clocks.
type ComputedClock struct {
	System   string
	Active   PlayerColor
	Black    ClockState
	White    ClockState
	TimedOut bool
}

func (c ComputedClock) String() string {
	return fmt.Sprintf("B %s / W %s, %s to play", c.Black, c.White, c.Active)
}

// clockEngine simulates both clocks between server snapshots. All methods
// are called with the owning client's lock held.
type clockEngine struct {
	system       string
	periodLength float64

	black, white ClockState
	active       PlayerColor
	blackID      int64
	whiteID      int64

	timedOut bool
	syncedAt time.Time // wall clock of last snapshot receipt
	lastTick time.Time
}

func newClockEngine(tc TimeControl) *clockEngine {
	return &clockEngine{
		system:       tc.System,
		periodLength: tc.PeriodTime,
		black: ClockState{
			MainTime:     tc.MainTime,
			Periods:      tc.Periods,
			PeriodTime:   tc.PeriodTime,
			PeriodLength: tc.PeriodTime,
		},
		white: ClockState{
			MainTime:     tc.MainTime,
			Periods:      tc.Periods,
			PeriodTime:   tc.PeriodTime,
			PeriodLength: tc.PeriodTime,
		},
	}
}

// applySnapshot reconciles both clocks against an authoritative snapshot.
//
// The snapshot's expiration encodes time remaining across ALL byoyomi
// periods, so the live estimate for the color on the clock subtracts the
// full period buffer first. Taking the minimum of the snapshot value and the
// live estimate avoids both forward jumps from a stale snapshot and drift
// from pure local ticking.
func (e *clockEngine) applySnapshot(c *Clock, receivedAt time.Time) {
	e.blackID = c.BlackPlayerID
	e.whiteID = c.WhitePlayerID
	switch c.CurrentPlayerID {
	case c.BlackPlayerID:
		e.active = PlayerBlack
	case c.WhitePlayerID:
		e.active = PlayerWhite
	default:
		e.active = PlayerUnknown
	}

	e.black = e.reconcile(c.BlackTime, e.active == PlayerBlack, c)
	e.white = e.reconcile(c.WhiteTime, e.active == PlayerWhite, c)
	e.timedOut = false
	e.syncedAt = receivedAt
	e.lastTick = receivedAt
}

func (e *clockEngine) reconcile(pt PlayerTime, onTurn bool, c *Clock) ClockState {
	s := ClockState{
		MainTime:     math.Max(0, pt.ThinkingTime),
		Periods:      pt.Periods,
		PeriodLength: e.periodLength,
	}
	s.PeriodTime = pt.PeriodTimeLeft
	if s.PeriodTime <= 0 {
		s.PeriodTime = math.Max(pt.PeriodTime, e.periodLength)
	}

	if !onTurn || c.Expiration.IsZero() || c.Now.IsZero() {
		return s
	}

	remaining := c.Expiration.Sub(c.Now.Time).Seconds()
	if s.MainTime > 0 {
		buffer := float64(s.Periods) * s.PeriodLength
		live := math.Max(0, remaining-buffer)
		s.MainTime = math.Min(s.MainTime, live)
	} else if s.Periods > 0 {
		buffer := float64(s.Periods-1) * s.PeriodLength
		live := math.Max(0, remaining-buffer)
		s.PeriodTime = math.Min(s.PeriodTime, live)
	}
	return s
}

// tick advances the active color's clock by the wall time elapsed since the
// previous tick or snapshot.
func (e *clockEngine) tick(now time.Time) {
	if e.lastTick.IsZero() {
		e.lastTick = now
		return
	}
	dt := now.Sub(e.lastTick).Seconds()
	e.lastTick = now
	if dt <= 0 || e.timedOut {
		return
	}

	switch e.active {
	case PlayerBlack:
		e.timedOut = e.black.advance(dt)
	case PlayerWhite:
		e.timedOut = e.white.advance(dt)
	}
}

func (e *clockEngine) computed() *ComputedClock {
	return &ComputedClock{
		System:   e.system,
		Active:   e.active,
		Black:    e.black,
		White:    e.white,
		TimedOut: e.timedOut,
	}
}
