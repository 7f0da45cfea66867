package codec

import (
	"math"
	"testing"
)

func sineFrame() []int16 {
	pcm := make([]int16, FrameSize)
	for i := range pcm {
		pcm[i] = int16(10000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return pcm
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	pcm := sineFrame()
	packet, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 || len(packet) > MaxPacketBytes {
		t.Fatalf("encoded packet size out of range: %d", len(packet))
	}

	out, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != FrameSize {
		t.Fatalf("decoded frame size: got %d, want %d", len(out), FrameSize)
	}
}

func TestConcealReturnsFullFrame(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	packet, err := enc.Encode(sineFrame())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := dec.Decode(packet); err != nil {
		t.Fatalf("priming decode: %v", err)
	}

	pcm, err := dec.Conceal()
	if err != nil {
		t.Fatalf("Conceal: %v", err)
	}
	if len(pcm) != FrameSize {
		t.Fatalf("concealed frame size: got %d, want %d", len(pcm), FrameSize)
	}
}

func TestSetPacketLossPercClamps(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := enc.SetPacketLossPerc(-5); err != nil {
		t.Fatalf("SetPacketLossPerc(-5): %v", err)
	}
	if err := enc.SetPacketLossPerc(150); err != nil {
		t.Fatalf("SetPacketLossPerc(150): %v", err)
	}
}
