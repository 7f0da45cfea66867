package notify

import "testing"

func TestFramesProducesNonEmptyFrames(t *testing.T) {
	frames := Frames(SoundConnect, 48000, 480)
	if len(frames) == 0 {
		t.Fatal("expected at least one frame")
	}
	for _, f := range frames {
		if len(f) != 480 {
			t.Fatalf("frame length: got %d, want 480", len(f))
		}
	}
}

func TestFramesUnknownSoundIsEmpty(t *testing.T) {
	frames := Frames(Sound(99), 48000, 480)
	if frames != nil {
		t.Fatalf("expected nil for unknown sound, got %d frames", len(frames))
	}
}

func TestSineToneStaysWithinAmplitudeBound(t *testing.T) {
	frames := sineTone(523, 80, 48000, 480)
	for _, f := range frames {
		for _, s := range f {
			if float64(s) > 32767*volume+1 || float64(s) < -32767*volume-1 {
				t.Fatalf("sample %d exceeds expected amplitude bound", s)
			}
		}
	}
}
