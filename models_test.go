package tenuki

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayer_Ranking(t *testing.T) {
	tests := []struct {
		name   string
		player Player
		want   string
	}{
		{
			name:   "Professional rank 39",
			player: Player{ID: 1086650, Rank: 39, Professional: true},
			want:   "3p",
		},
		{
			name:   "Professional rank 44",
			player: Player{ID: 59468, Rank: 44, Professional: true},
			want:   "8p",
		},
		{
			name:   "Rank above or equal to 1037",
			player: Player{Rank: 1037.1},
			want:   "1p",
		},
		{
			name:   "Rank between 30 and 1037",
			player: Player{Rank: 30.0001},
			want:   "1d",
		},
		{
			name:   "Rank between 1 and 30",
			player: Player{Rank: 29.9999},
			want:   "1k",
		},
		{
			name:   "Rank less than 1",
			player: Player{Rank: 0.9999},
			want:   "?",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.player.Ranking())
		})
	}
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "valid unix timestamp (seconds)",
			input: "1672531200", // 2023-01-01 00:00:00 UTC
			want:  time.Unix(1672531200, 0),
		},
		{
			name:  "valid unix timestamp (milliseconds)",
			input: "1672531200000", // 2023-01-01 00:00:00 UTC in ms
			want:  time.UnixMilli(1672531200000),
		},
		{
			name:    "invalid timestamp (not a number)",
			input:   `"not a number"`,
			wantErr: true,
		},
		{
			name:    "invalid timestamp (empty string)",
			input:   `""`,
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got Timestamp
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "want %v, got %v", tc.want, got)
		})
	}
}

func TestPlayerTime_UnmarshalJSON(t *testing.T) {
	t.Run("detailed form", func(t *testing.T) {
		var pt PlayerTime
		input := `{"thinking_time":120.5,"periods":3,"period_time":30,"period_time_left":12.25}`
		require.NoError(t, json.Unmarshal([]byte(input), &pt))
		assert.Equal(t, 120.5, pt.ThinkingTime)
		assert.Equal(t, 3, pt.Periods)
		assert.Equal(t, 30.0, pt.PeriodTime)
		assert.Equal(t, 12.25, pt.PeriodTimeLeft)
	})

	t.Run("bare timestamp form", func(t *testing.T) {
		var pt PlayerTime
		require.NoError(t, json.Unmarshal([]byte("1672531200"), &pt))
		assert.True(t, pt.Value.Equal(time.Unix(1672531200, 0)))
		assert.Zero(t, pt.ThinkingTime)
	})
}

func TestMove_UnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		want    Move
		wantErr bool
	}{
		{
			name:  "three elements",
			input: "[3,3,1.5]",
			want:  Move{OriginCoordinate: OriginCoordinate{X: 3, Y: 3}, TimeDelta: 1.5},
		},
		{
			name:  "two elements",
			input: "[15,2]",
			want:  Move{OriginCoordinate: OriginCoordinate{X: 15, Y: 2}},
		},
		{
			name:  "pass",
			input: "[-1,-1,4]",
			want:  Move{OriginCoordinate: OriginCoordinate{X: -1, Y: -1}, TimeDelta: 4},
		},
		{
			name:  "extra elements ignored",
			input: `[3,3,1.5,{"blur":100}]`,
			want:  Move{OriginCoordinate: OriginCoordinate{X: 3, Y: 3}, TimeDelta: 1.5},
		},
		{
			name:    "not an array",
			input:   `{"x":3,"y":3}`,
			wantErr: true,
		},
		{
			name:    "too short",
			input:   "[3]",
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got Move
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOriginCoordinate_SGF(t *testing.T) {
	for _, tc := range []struct {
		coord OriginCoordinate
		want  string
	}{
		{OriginCoordinate{X: 0, Y: 0}, "aa"},
		{OriginCoordinate{X: 3, Y: 3}, "dd"},
		{OriginCoordinate{X: 15, Y: 2}, "pc"},
		{OriginCoordinate{X: -1, Y: -1}, ".."},
		{OriginCoordinate{X: -1, Y: 5}, ".."},
	} {
		assert.Equal(t, tc.want, tc.coord.SGF(), "coord %s", tc.coord)
	}
}

func TestParseSGF(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    OriginCoordinate
		wantErr bool
	}{
		{input: "dd", want: OriginCoordinate{X: 3, Y: 3}},
		{input: "aa", want: OriginCoordinate{X: 0, Y: 0}},
		{input: "..", want: OriginCoordinate{X: -1, Y: -1}},
		{input: "D4", wantErr: true},
		{input: "d", wantErr: true},
		{input: "ddd", wantErr: true},
		{input: "", wantErr: true},
	} {
		got, err := ParseSGF(tc.input)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.input)
			continue
		}
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		if !got.IsPass() {
			assert.Equal(t, tc.input, got.SGF())
		}
	}
}

func TestParseSGFList(t *testing.T) {
	got, err := ParseSGFList("edhdid")
	require.NoError(t, err)
	assert.Equal(t, []OriginCoordinate{{X: 4, Y: 3}, {X: 7, Y: 3}, {X: 8, Y: 3}}, got)

	got, err = ParseSGFList("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseSGFList("edh")
	assert.Error(t, err)

	_, err = ParseSGFList("edH4")
	assert.Error(t, err)
}

func TestGamePhase_InProgress(t *testing.T) {
	assert.True(t, PlayPhase.InProgress())
	assert.True(t, StoneRemovalPhase.InProgress())
	assert.False(t, FinishedPhase.InProgress())
	assert.False(t, GamePhase("").InProgress())
}

func TestOriginCoordinate_ToA1Coordinate(t *testing.T) {
	for _, tc := range []struct {
		name      string
		coord     OriginCoordinate
		boardSize int
		want      *A1Coordinate
		wantErr   bool
	}{
		{
			name:      "valid coordinate",
			coord:     OriginCoordinate{X: 1, Y: 0},
			boardSize: 9,
			want:      &A1Coordinate{Col: 'B', Row: 9},
		},
		{
			name:      "valid coordinate (X > 8, skip 'I')",
			coord:     OriginCoordinate{X: 8, Y: 0},
			boardSize: 9,
			want:      &A1Coordinate{Col: 'J', Row: 9},
		},
		{
			name:      "valid coordinate (Y = 8)",
			coord:     OriginCoordinate{X: 0, Y: 8},
			boardSize: 9,
			want:      &A1Coordinate{Col: 'A', Row: 1},
		},
		{
			name:      "invalid coordinate (X out of bounds)",
			coord:     OriginCoordinate{X: 9, Y: 0},
			boardSize: 9,
			wantErr:   true,
		},
		{
			name:      "invalid coordinate (Y out of bounds)",
			coord:     OriginCoordinate{X: 0, Y: 9},
			boardSize: 9,
			wantErr:   true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.coord.ToA1Coordinate(tc.boardSize)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewA1Coordinate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		coord   string
		want    *A1Coordinate
		wantErr bool
	}{
		{
			name:  "valid coordinate",
			coord: "A1",
			want:  &A1Coordinate{Col: 'A', Row: 1},
		},
		{
			name:  "valid coordinate (lowercase)",
			coord: "j10",
			want:  &A1Coordinate{Col: 'J', Row: 10},
		},
		{
			name:    "invalid column (I)",
			coord:   "I1",
			wantErr: true,
		},
		{
			name:    "invalid column (too high)",
			coord:   "[1", // Next to 'Z'
			wantErr: true,
		},
		{
			name:    "invalid row (zero)",
			coord:   "A0",
			wantErr: true,
		},
		{
			name:    "invalid row (negative)",
			coord:   "A-1",
			wantErr: true,
		},
		{
			name:    "invalid row (too large)",
			coord:   "A26",
			wantErr: true,
		},
		{
			name:    "invalid input (short)",
			coord:   "A",
			wantErr: true,
		},
		{
			name:    "invalid input (empty)",
			coord:   "",
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewA1Coordinate(tc.coord)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestA1Coordinate_ToOriginCoordinate(t *testing.T) {
	for _, tc := range []struct {
		name      string
		coord     A1Coordinate
		boardSize int
		want      *OriginCoordinate
		wantErr   bool
	}{
		{
			name:      "valid coordinate (A1 on 9x9)",
			coord:     A1Coordinate{Col: 'A', Row: 1},
			boardSize: 9,
			want:      &OriginCoordinate{X: 0, Y: 8},
		},
		{
			name:      "valid coordinate (J9 on 9x9)",
			coord:     A1Coordinate{Col: 'J', Row: 9},
			boardSize: 9,
			want:      &OriginCoordinate{X: 8, Y: 0},
		},
		{
			name:      "valid coordinate (lowercase, J9 on 9x9)",
			coord:     A1Coordinate{Col: 'j', Row: 9},
			boardSize: 9,
			want:      &OriginCoordinate{X: 8, Y: 0},
		},
		{
			name:      "invalid coordinate (col too high)",
			coord:     A1Coordinate{Col: 'U', Row: 1},
			boardSize: 19,
			wantErr:   true,
		},
		{
			name:      "invalid coordinate (row out of bounds, too high)",
			coord:     A1Coordinate{Col: 'A', Row: 10},
			boardSize: 9,
			wantErr:   true,
		},
		{
			name:      "invalid coordinate (row zero)",
			coord:     A1Coordinate{Col: 'A', Row: 0},
			boardSize: 9,
			wantErr:   true,
		},
		{
			name:      "invalid coordinate (col I)",
			coord:     A1Coordinate{Col: 'I', Row: 1},
			boardSize: 9,
			wantErr:   true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.coord.ToOriginCoordinate(tc.boardSize)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
