package tenuki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacket(t *testing.T) {
	for _, tc := range []struct {
		name    string
		raw     string
		want    Packet
		wantErr bool
	}{
		{
			name: "open with handshake",
			raw:  `0{"sid":"abc","pingInterval":25000,"pingTimeout":60000}`,
			want: Packet{Kind: PacketOpen, AckID: -1,
				Handshake: &Handshake{SID: "abc", PingInterval: 25000, PingTimeout: 60000}},
		},
		{
			name: "bare open",
			raw:  "0",
			want: Packet{Kind: PacketOpen, AckID: -1},
		},
		{
			name: "namespace connect",
			raw:  "40",
			want: Packet{Kind: PacketNamespaceConnect, AckID: -1},
		},
		{
			name: "ping",
			raw:  "2",
			want: Packet{Kind: PacketPing, AckID: -1},
		},
		{
			name: "pong",
			raw:  "3",
			want: Packet{Kind: PacketPong, AckID: -1},
		},
		{
			name: "event",
			raw:  `42["net/pong",{"client":1,"server":2}]`,
			want: Packet{Kind: PacketEvent, Event: "net/pong",
				Data: []byte(`{"client":1,"server":2}`), AckID: -1},
		},
		{
			name: "event with leading ack id",
			raw:  `427["game/connect",{"game_id":1}]`,
			want: Packet{Kind: PacketEvent, Event: "game/connect",
				Data: []byte(`{"game_id":1}`), AckID: 7},
		},
		{
			name: "event with trailing sequence element",
			raw:  `42["game/connect",{"game_id":1},9]`,
			want: Packet{Kind: PacketEvent, Event: "game/connect",
				Data: []byte(`{"game_id":1}`), AckID: 9},
		},
		{
			name: "event without payload",
			raw:  `42["hostinfo"]`,
			want: Packet{Kind: PacketEvent, Event: "hostinfo", AckID: -1},
		},
		{
			name: "ack with leading sequence",
			raw:  `435[{"ok":true}]`,
			want: Packet{Kind: PacketAck, Data: []byte(`{"ok":true}`), AckID: 5},
		},
		{
			name: "ack with embedded sequence",
			raw:  `43[5,{"ok":true}]`,
			want: Packet{Kind: PacketAck, Data: []byte(`{"ok":true}`), AckID: 5},
		},
		{name: "empty frame", raw: "", wantErr: true},
		{name: "unknown prefix", raw: "9hello", wantErr: true},
		{name: "truncated type", raw: "4", wantErr: true},
		{name: "event with broken json", raw: `42["name"`, wantErr: true},
		{name: "event with empty array", raw: "42[]", wantErr: true},
		{name: "event with numeric name", raw: "42[42]", wantErr: true},
		{name: "ack without sequence", raw: `43[{"ok":true}]`, wantErr: true},
		{name: "open with broken handshake", raw: "0{bad", wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePacket(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want.Kind, got.Kind)
			assert.Equal(t, tc.want.Event, got.Event)
			assert.Equal(t, tc.want.AckID, got.AckID)
			assert.JSONEq(t, orNull(tc.want.Data), orNull(got.Data))
			assert.Equal(t, tc.want.Handshake, got.Handshake)
		})
	}
}

func orNull(data []byte) string {
	if len(data) == 0 {
		return "null"
	}
	return string(data)
}

func TestEncodePacket(t *testing.T) {
	for _, tc := range []struct {
		name string
		p    Packet
		want string
	}{
		{
			name: "namespace connect",
			p:    Packet{Kind: PacketNamespaceConnect, AckID: -1},
			want: "40",
		},
		{
			name: "pong",
			p:    Packet{Kind: PacketPong, AckID: -1},
			want: "3",
		},
		{
			name: "event",
			p:    Packet{Kind: PacketEvent, Event: "game/resign", Data: []byte(`{"game_id":1}`), AckID: -1},
			want: `42["game/resign",{"game_id":1}]`,
		},
		{
			name: "event name needing escapes",
			p:    Packet{Kind: PacketEvent, Event: `say"hi"`, AckID: -1},
			want: `42["say\"hi\"",null]`,
		},
		{
			name: "event with ack request",
			p:    Packet{Kind: PacketEvent, Event: "x", Data: []byte("1"), AckID: 3},
			want: `42["x",1,3]`,
		},
		{
			name: "event without payload",
			p:    Packet{Kind: PacketEvent, Event: "x", AckID: -1},
			want: `42["x",null]`,
		},
		{
			name: "ack response",
			p:    Packet{Kind: PacketAck, Data: []byte(`{"ok":true}`), AckID: 5},
			want: `43[5,{"ok":true}]`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EncodePacket(tc.p))
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw := `42["game/move",{"game_id":123,"move":"dd","blur":0}]`
	p, err := DecodePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, EncodePacket(p))
}
