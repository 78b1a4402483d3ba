package tenuki

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countWrites(fc *fakeConn, frame string) int {
	n := 0
	for _, w := range fc.written() {
		if w == frame {
			n++
		}
	}
	return n
}

func TestConnectRequiresLogin(t *testing.T) {
	c := NewClient()
	t.Cleanup(c.Close)
	assert.ErrorIs(t, c.Connect(), ErrNotAuthenticated)
}

func TestSocketUpAuthenticatesAndRejoins(t *testing.T) {
	h := newHarness(t)
	h.attach(t)
	h.drain()

	h.c.onSocketUp()
	h.expectNotice(t, EventConnected)
	assert.True(t, h.fc.hasWrite(`42["authenticate",{"jwt":"test-token","player_id":900,"username":"kosumi"}]`))
	// The active game room is re-entered on every (re)connect.
	assert.GreaterOrEqual(t, countWrites(h.fc, `42["game/connect",{"chat":true,"game_id":1234}]`), 2)
}

func TestMonitorRepairsAuthAndRoom(t *testing.T) {
	h := newHarness(t)
	// Joined the room but the snapshot never arrived.
	require.NoError(t, h.c.ConnectGame(testGameID))
	require.False(t, h.c.SocketAuthenticated())

	h.c.monitorTick()
	assert.True(t, h.fc.hasWrite(`42["authenticate",{"jwt":"test-token","player_id":900,"username":"kosumi"}]`))
	assert.Equal(t, 2, countWrites(h.fc, `42["game/connect",{"chat":true,"game_id":1234}]`))

	// Once authenticated and joined, the monitor goes quiet.
	h.deliver(t, gamedataFrame(testGameID, 1, "play", "[]"))
	before := len(h.fc.written())
	h.c.monitorTick()
	assert.Equal(t, before, len(h.fc.written()))
}

func TestDisconnectResetsSocketState(t *testing.T) {
	h := newHarness(t)
	h.attach(t)
	h.drain()

	h.c.Disconnect()
	h.expectNotice(t, EventDisconnected)
	assert.Equal(t, StatusDisconnected, h.c.Status())
	assert.False(t, h.c.SocketAuthenticated())
	// The session survives for a later reconnect; only the socket is gone.
	assert.NotNil(t, h.c.Session())
}

func TestKeepaliveReportsChallenge(t *testing.T) {
	h := newHarness(t)
	h.c.mu.Lock()
	h.c.challengeID = 777
	h.c.challengeGameID = 4242
	h.c.mu.Unlock()

	h.c.keepaliveTick()
	assert.True(t, h.fc.hasWrite(`42["challenge/keepalive",{"challenge_id":777,"game_id":4242}]`))
}

func TestIdentityFromJWT(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"player_id": 900,
		"username":  "kosumi",
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	id, name := identityFromJWT(signed)
	assert.Equal(t, int64(900), id)
	assert.Equal(t, "kosumi", name)

	id, _ = identityFromJWT("not-a-token")
	assert.Zero(t, id)
}

func TestPingBodyShape(t *testing.T) {
	h := newHarness(t)
	h.c.mu.Lock()
	h.c.latencyMS = 120
	h.c.driftMS = -5
	h.c.mu.Unlock()

	body, ok := h.c.pingBody().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(120), body["latency"])
	assert.Equal(t, int64(-5), body["drift"])
	assert.NotZero(t, body["client"])
}
