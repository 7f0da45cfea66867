package audioio

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Vladgobelen/NSQCuP/internal/clientid"
	"github.com/Vladgobelen/NSQCuP/internal/codec"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	enc, err := codec.NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return NewEngine(zap.NewNop().Sugar(), enc, -1, -1, nil)
}

func TestSenderForIsLazyAndStable(t *testing.T) {
	e := newTestEngine(t)
	id := clientid.New()

	a := e.senderFor(id)
	b := e.senderFor(id)
	if a != b {
		t.Fatalf("senderFor should return the same state for the same id")
	}
	if e.ActiveSenders() != 1 {
		t.Fatalf("ActiveSenders: got %d, want 1", e.ActiveSenders())
	}
}

func TestDecodeOnePLCStreakCaps(t *testing.T) {
	e := newTestEngine(t)
	sd := e.senderFor(clientid.New())

	seen := 0
	for i := 0; i < plcMax+3; i++ {
		if _, ok, _ := e.decodeOne(sd); ok {
			seen++
		}
	}
	// plcMax concealed frames succeed, then one cycle returns false and
	// the streak resets, so the two remaining cycles conceal again.
	if seen != plcMax+2 {
		t.Fatalf("concealed frames over %d cycles: got %d, want %d", plcMax+3, seen, plcMax+2)
	}
}

func TestCaptureDropsOldestWhenFull(t *testing.T) {
	e := newTestEngine(t)
	e.CaptureOut = make(chan []byte, 2)

	push := func(tag byte) {
		packet := []byte{tag}
		select {
		case e.CaptureOut <- packet:
		default:
			select {
			case <-e.CaptureOut:
			default:
			}
			select {
			case e.CaptureOut <- packet:
			default:
			}
		}
	}

	push(1)
	push(2)
	push(3) // queue full at [1,2]; oldest (1) must be dropped, 3 kept

	first := <-e.CaptureOut
	second := <-e.CaptureOut
	if first[0] != 2 || second[0] != 3 {
		t.Fatalf("expected [2,3], got [%d,%d]", first[0], second[0])
	}
}

func TestSenderTimeoutPrunesDecoder(t *testing.T) {
	e := newTestEngine(t)
	id := clientid.New()
	sd := e.senderFor(id)
	sd.last = time.Now().Add(-2 * senderIdleTimeout)

	e.mu.Lock()
	for sid, s := range e.senders {
		if time.Since(s.last) > senderIdleTimeout {
			delete(e.senders, sid)
		}
	}
	e.mu.Unlock()

	if e.ActiveSenders() != 0 {
		t.Fatalf("expected idle sender to be pruned")
	}
}
