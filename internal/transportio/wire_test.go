package transportio

import (
	"bytes"
	"testing"

	"github.com/Vladgobelen/NSQCuP/internal/clientid"
)

func TestMarshalRegister(t *testing.T) {
	id := clientid.New()
	pkt := MarshalRegister(id)
	if len(pkt) != len(registerPrefix)+clientid.Len {
		t.Fatalf("register packet length: got %d, want %d", len(pkt), len(registerPrefix)+clientid.Len)
	}
	if string(pkt[:len(registerPrefix)]) != registerPrefix {
		t.Fatalf("register prefix: got %q", pkt[:len(registerPrefix)])
	}
	if !bytes.Equal(pkt[len(registerPrefix):], id.Bytes()) {
		t.Fatalf("register client id mismatch")
	}
}

func TestMarshalParseDataRoundTrip(t *testing.T) {
	id := clientid.New()
	opusData := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	pkt := MarshalData(id, 42, opusData)

	self := clientid.New()
	got := Classify(pkt, self)
	if got.Kind != KindData {
		t.Fatalf("kind: got %v, want KindData", got.Kind)
	}
	if got.Sender != id {
		t.Fatalf("sender mismatch")
	}
	if got.Seq != 42 {
		t.Fatalf("seq: got %d, want 42", got.Seq)
	}
	if !bytes.Equal(got.Opus, opusData) {
		t.Fatalf("opus payload mismatch")
	}
}

func TestClassifyKeepAliveIgnored(t *testing.T) {
	got := Classify(KeepAlive, clientid.New())
	if got.Kind != KindIgnore {
		t.Fatalf("kind: got %v, want KindIgnore", got.Kind)
	}
}

func TestClassifySelfEcho(t *testing.T) {
	self := clientid.New()
	pkt := MarshalData(self, 1, []byte{0x01})
	got := Classify(pkt, self)
	if got.Kind != KindSelfEcho {
		t.Fatalf("kind: got %v, want KindSelfEcho", got.Kind)
	}
}

func TestClassifyShortGarbageIgnored(t *testing.T) {
	got := Classify([]byte{1, 2, 3}, clientid.New())
	if got.Kind != KindIgnore {
		t.Fatalf("kind: got %v, want KindIgnore", got.Kind)
	}
}

func TestValidateOpusLen(t *testing.T) {
	if err := ValidateOpusLen(MaxOpusPacket); err != nil {
		t.Fatalf("at-limit payload should be valid: %v", err)
	}
	if err := ValidateOpusLen(MaxOpusPacket + 1); err == nil {
		t.Fatalf("over-limit payload should be rejected")
	}
}
