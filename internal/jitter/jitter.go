// Package jitter implements the per-sender playout buffer described in
// spec.md §4.6. It is grounded directly on the JitterBuffer class in
// original_source/voice_client_backend.py rather than on the teacher's
// ring-buffer implementation, which never performs the gap-skip-ahead
// step this algorithm requires.
package jitter

import (
	"sort"
	"sync"
	"time"
)

const (
	// MinSize is the smallest number of buffered frames before the
	// buffer is considered primed.
	MinSize = 3
	// TargetSize is the depth the buffer must reach before it will
	// skip ahead over a missing frame rather than wait for it.
	TargetSize = 6
	// MaxSize bounds memory: once exceeded, the oldest buffered
	// frames are evicted first.
	MaxSize = 50

	// skipAheadGrace is the extra delay, beyond the current playout
	// delay, a missing frame is given before the buffer gives up on it
	// and jumps to a later one.
	skipAheadGrace = 100 * time.Millisecond
	// staleAge is how long a lagging (already-passed) frame is kept
	// before being dropped outright.
	staleAge = 1 * time.Second
)

type entry struct {
	opus []byte
	at   time.Time
}

// Buffer reorders and paces out frames for a single sender, matching
// the original's per-sender JitterBuffer instance.
type Buffer struct {
	mu           sync.Mutex
	data         map[uint32]entry
	lastPlayed   *uint32
	playoutDelay time.Duration
}

// New returns an empty buffer ready to accept frames for one sender.
func New() *Buffer {
	return &Buffer{data: make(map[uint32]entry)}
}

// Put stores an arriving frame keyed by its sequence number, evicting
// the numerically oldest entries once the buffer exceeds MaxSize. It
// reports whether seq was already buffered or already played — a
// duplicate arrival is discarded rather than overwriting the original.
func (b *Buffer) Put(seq uint32, opusData []byte, now time.Time) (duplicate bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, present := b.data[seq]; present {
		return true
	}
	if b.lastPlayed != nil && !IsLater(seq, *b.lastPlayed) {
		return true
	}

	stored := make([]byte, len(opusData))
	copy(stored, opusData)
	b.data[seq] = entry{opus: stored, at: now}

	if len(b.data) <= MaxSize {
		return false
	}
	keys := b.sortedKeys()
	for _, k := range keys[:len(keys)-MaxSize] {
		delete(b.data, k)
	}
	return false
}

// Get returns the next frame to play, or ok=false if playback should
// fall back to packet loss concealment this cycle. It implements the
// selection rule from spec.md §4.6: wait for JITTER_MIN frames to
// arrive before the first playout; play the expected sequence if
// present; otherwise skip ahead to a later frame once the buffer is
// deep and stale enough; otherwise prune long-stale leftovers and wait.
func (b *Buffer) Get(now time.Time) (opusData []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil, false
	}
	// Priming: don't start playout until the buffer has had a chance to
	// absorb some reordering. Once lastPlayed is set the buffer is
	// running and this no longer applies — draining near-empty during
	// steady playout is normal, not a reason to go silent again.
	if b.lastPlayed == nil && len(b.data) < MinSize {
		return nil, false
	}

	keys := b.sortedKeys()

	var next uint32
	if b.lastPlayed == nil {
		next = keys[0]
	} else {
		next = *b.lastPlayed + 1
	}

	if e, present := b.data[next]; present {
		delete(b.data, next)
		b.lastPlayed = &next
		return e.opus, true
	}

	var earliestLater *uint32
	for _, k := range keys {
		if IsLater(k, next) {
			kk := k
			earliestLater = &kk
			break
		}
	}
	if earliestLater != nil && len(b.data) >= TargetSize {
		oldest := b.data[keys[0]]
		if now.Sub(oldest.at) > b.playoutDelay+skipAheadGrace {
			e := b.data[*earliestLater]
			delete(b.data, *earliestLater)
			b.lastPlayed = earliestLater
			return e.opus, true
		}
	}

	for _, k := range keys {
		if IsEarlier(k, next) && now.Sub(b.data[k].at) > staleAge {
			delete(b.data, k)
		}
	}

	return nil, false
}

// Depth reports how many frames are currently buffered.
func (b *Buffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *Buffer) sortedKeys() []uint32 {
	keys := make([]uint32, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// IsLater reports whether a is later than b under 32-bit wraparound
// comparison: the half of the number space "ahead" of b counts as
// later, matching the original's _is_seq_later.
func IsLater(a, b uint32) bool {
	diff := a - b
	return diff > 0 && diff < 0x80000000
}

// IsEarlier reports whether a is earlier than b under the same
// wraparound rule, matching the original's _is_seq_earlier.
func IsEarlier(a, b uint32) bool {
	diff := b - a
	return diff > 0 && diff < 0x80000000
}
