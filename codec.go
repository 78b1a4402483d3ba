package tenuki

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedFrame is wrapped by every decode failure. A malformed frame is
// dropped by the transport, it never terminates the connection.
var ErrMalformedFrame = errors.New("malformed frame")

type PacketKind int

const (
	PacketOpen PacketKind = iota
	PacketNamespaceConnect
	PacketPing
	PacketPong
	PacketEvent
	PacketAck
)

func (k PacketKind) String() string {
	return [...]string{"Open", "NamespaceConnect", "Ping", "Pong", "Event", "Ack"}[k]
}

// Handshake is the payload of the server's Open frame.
type Handshake struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"` // milliseconds
	PingTimeout  int64  `json:"pingTimeout"`  // milliseconds
}

// Packet is one decoded protocol frame. Event carries a name and a raw JSON
// payload; Ack carries the payload of a previously requested acknowledgment.
// AckID is -1 when the frame carries no acknowledgment id.
type Packet struct {
	Kind      PacketKind
	Event     string
	Data      json.RawMessage
	AckID     int64
	Handshake *Handshake // only for Open
}

// DecodePacket parses one raw text frame. An optional numeric acknowledgment
// id between the event prefix and the JSON array is tolerated, as is a
// trailing numeric sequence element inside the event array.
func DecodePacket(raw string) (Packet, error) {
	if raw == "" {
		return Packet{}, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}

	switch raw[0] {
	case '0':
		p := Packet{Kind: PacketOpen, AckID: -1}
		if rest := raw[1:]; rest != "" {
			var h Handshake
			if err := json.Unmarshal([]byte(rest), &h); err != nil {
				return Packet{}, fmt.Errorf("%w: open handshake: %v", ErrMalformedFrame, err)
			}
			p.Handshake = &h
		}
		return p, nil
	case '2':
		return Packet{Kind: PacketPing, AckID: -1}, nil
	case '3':
		return Packet{Kind: PacketPong, AckID: -1}, nil
	case '4':
		if len(raw) < 2 {
			return Packet{}, fmt.Errorf("%w: truncated %q", ErrMalformedFrame, raw)
		}
		switch raw[1] {
		case '0':
			return Packet{Kind: PacketNamespaceConnect, AckID: -1}, nil
		case '2':
			return decodeEvent(raw[2:])
		case '3':
			return decodeAck(raw[2:])
		}
	}
	return Packet{}, fmt.Errorf("%w: unknown prefix in %q", ErrMalformedFrame, truncateTo(raw, 32))
}

func decodeEvent(rest string) (Packet, error) {
	ackID, body := splitAckID(rest)
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil {
		return Packet{}, fmt.Errorf("%w: event body: %v", ErrMalformedFrame, err)
	}
	if len(elems) == 0 {
		return Packet{}, fmt.Errorf("%w: empty event array", ErrMalformedFrame)
	}

	var name string
	if err := json.Unmarshal(elems[0], &name); err != nil {
		return Packet{}, fmt.Errorf("%w: event name: %v", ErrMalformedFrame, err)
	}

	p := Packet{Kind: PacketEvent, Event: name, AckID: ackID}
	if len(elems) > 1 {
		p.Data = elems[1]
	}
	if len(elems) > 2 && p.AckID < 0 {
		// Some server variants append the sequence as a trailing
		// array element instead of prefixing it.
		var seq int64
		if err := json.Unmarshal(elems[2], &seq); err == nil {
			p.AckID = seq
		}
	}
	return p, nil
}

func decodeAck(rest string) (Packet, error) {
	ackID, body := splitAckID(rest)
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil {
		return Packet{}, fmt.Errorf("%w: ack body: %v", ErrMalformedFrame, err)
	}

	p := Packet{Kind: PacketAck, AckID: ackID}
	if p.AckID < 0 {
		// Sequence as the first array element: 43[seq, payload]
		if len(elems) == 0 {
			return Packet{}, fmt.Errorf("%w: ack without sequence", ErrMalformedFrame)
		}
		if err := json.Unmarshal(elems[0], &p.AckID); err != nil {
			return Packet{}, fmt.Errorf("%w: ack sequence: %v", ErrMalformedFrame, err)
		}
		elems = elems[1:]
	}
	if len(elems) > 0 {
		p.Data = elems[0]
	}
	return p, nil
}

// splitAckID consumes leading decimal digits before the JSON array, if any.
func splitAckID(s string) (int64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) || s[i] != '[' {
		return -1, s
	}
	id, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return -1, s
	}
	return id, s[i:]
}

// EncodePacket renders a packet into its wire text form.
func EncodePacket(p Packet) string {
	switch p.Kind {
	case PacketOpen:
		return "0"
	case PacketNamespaceConnect:
		return "40"
	case PacketPing:
		return "2"
	case PacketPong:
		return "3"
	case PacketEvent:
		name, _ := json.Marshal(p.Event) // a string always marshals
		var b strings.Builder
		b.WriteString("42[")
		b.Write(name)
		b.WriteByte(',')
		b.Write(payloadOrNull(p.Data))
		if p.AckID >= 0 {
			b.WriteByte(',')
			b.WriteString(strconv.FormatInt(p.AckID, 10))
		}
		b.WriteByte(']')
		return b.String()
	case PacketAck:
		var b strings.Builder
		b.WriteString("43[")
		b.WriteString(strconv.FormatInt(p.AckID, 10))
		b.WriteByte(',')
		b.Write(payloadOrNull(p.Data))
		b.WriteByte(']')
		return b.String()
	}
	return ""
}

func payloadOrNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
