// Package transportio implements the UDP wire format and the
// sender/receiver/keep-alive workers described in spec.md §4.4, §4.5
// and §6.
package transportio

import (
	"encoding/binary"
	"fmt"

	"github.com/Vladgobelen/NSQCuP/internal/clientid"
)

// registerPrefix is the literal 9-byte marker that opens a
// registration packet.
const registerPrefix = "REGISTER:"

// MaxOpusPacket bounds the Opus payload of a data packet.
const MaxOpusPacket = 4000

// MarshalRegister builds the one-shot join announcement a session
// sends immediately after opening its socket.
func MarshalRegister(id clientid.ID) []byte {
	out := make([]byte, 0, len(registerPrefix)+clientid.Len)
	out = append(out, registerPrefix...)
	out = append(out, id.Bytes()...)
	return out
}

// KeepAlive is the single-byte liveness packet sent every
// KEEP_ALIVE_INTERVAL.
var KeepAlive = []byte{0x00}

// MarshalData builds a data packet: ClientId(16) || seq(4, BE) || opus(n).
func MarshalData(id clientid.ID, seq uint32, opusData []byte) []byte {
	out := make([]byte, clientid.Len+4+len(opusData))
	copy(out, id.Bytes())
	binary.BigEndian.PutUint32(out[clientid.Len:], seq)
	copy(out[clientid.Len+4:], opusData)
	return out
}

// Kind classifies a received datagram.
type Kind int

const (
	// KindIgnore covers keep-alives and anything too short or malformed
	// to be a data packet. Registration packets are not recognised
	// specially: at 25 bytes, one classifies as KindData.
	KindIgnore Kind = iota
	// KindSelfEcho is a data packet whose sender is this session's own
	// ClientId — the reflector must not loop packets back, but a
	// misbehaving one might.
	KindSelfEcho
	// KindData is a well-formed data packet from a remote sender.
	KindData
)

// Packet is a classified, parsed inbound datagram.
type Packet struct {
	Kind   Kind
	Sender clientid.ID
	Seq    uint32
	Opus   []byte
}

// Classify parses an inbound datagram against spec.md §4.5's rules:
// a single 0x00 byte or anything shorter than ClientId+seq is ignored;
// a packet whose sender equals self is a self-echo; otherwise it is a
// data packet.
func Classify(data []byte, self clientid.ID) Packet {
	// Covers the 1-byte keep-alive and any short/garbage packet.
	if len(data) < clientid.Len+4 {
		return Packet{Kind: KindIgnore}
	}

	sender, err := clientid.FromBytes(data[:clientid.Len])
	if err != nil {
		return Packet{Kind: KindIgnore}
	}
	if sender == self {
		return Packet{Kind: KindSelfEcho, Sender: sender}
	}

	seq := binary.BigEndian.Uint32(data[clientid.Len : clientid.Len+4])
	// Copy the payload out of the caller's buffer: Receive reuses a
	// single read buffer across datagrams, so a subslice of data would
	// alias bytes the next ReadPacket call overwrites before this
	// packet reaches the jitter buffer.
	opusData := append([]byte(nil), data[clientid.Len+4:]...)
	return Packet{Kind: KindData, Sender: sender, Seq: seq, Opus: opusData}
}

// ValidateOpusLen reports whether an outbound Opus payload fits the
// wire format's packet size bound.
func ValidateOpusLen(n int) error {
	if n > MaxOpusPacket {
		return fmt.Errorf("transportio: opus payload %d exceeds MAX_OPUS_PACKET %d", n, MaxOpusPacket)
	}
	return nil
}
