// Package notify synthesizes short PCM tones for the two connection
// events this client reports, adapted from the teacher's
// notification.go but narrowed to what spec.md's notification
// interface actually exposes: no join/leave/mute cues exist here.
package notify

import "math"

// Sound identifies which cue to synthesize.
type Sound int

const (
	SoundConnect    Sound = iota // ascending two-tone: C5 → G5
	SoundDisconnect              // descending two-tone: G5 → C5
)

// volume is the peak amplitude of a tone as a fraction of int16 full scale.
const volume = 0.18

// Frames returns sound's PCM cue chunked into frameSize-sample int16
// frames, ready to be mixed into the playback output alongside decoded
// network audio.
func Frames(sound Sound, sampleRate, frameSize int) [][]int16 {
	type tone struct {
		freq int
		ms   int
	}
	var tones []tone
	switch sound {
	case SoundConnect:
		tones = []tone{{523, 80}, {784, 120}}
	case SoundDisconnect:
		tones = []tone{{784, 80}, {523, 120}}
	default:
		return nil
	}

	var frames [][]int16
	for _, t := range tones {
		frames = append(frames, sineTone(t.freq, t.ms, sampleRate, frameSize)...)
	}
	return frames
}

// sineTone generates a single tone at freq Hz lasting durationMs, with a
// 5ms linear fade in/out to avoid clicks, chunked into frameSize slices.
func sineTone(freq, durationMs, sampleRate, frameSize int) [][]int16 {
	total := sampleRate * durationMs / 1000
	raw := make([]float64, total)

	fadeLen := sampleRate * 5 / 1000
	if fadeLen > total/2 {
		fadeLen = total / 2
	}

	for i := range raw {
		t := float64(i) / float64(sampleRate)
		s := math.Sin(2 * math.Pi * float64(freq) * t)

		env := 1.0
		if i < fadeLen {
			env = float64(i) / float64(fadeLen)
		} else if i >= total-fadeLen {
			env = float64(total-1-i) / float64(fadeLen)
		}
		raw[i] = s * env * volume
	}

	var frames [][]int16
	for off := 0; off < len(raw); off += frameSize {
		frame := make([]int16, frameSize)
		end := off + frameSize
		if end > len(raw) {
			end = len(raw)
		}
		for i, v := range raw[off:end] {
			frame[i] = int16(v * 32767)
		}
		frames = append(frames, frame)
	}
	return frames
}
