// Package session supervises one voice-reflector connection: the UDP
// socket, the Opus encoder/decoder pair wired through audioio.Engine,
// and the send/receive/keepalive worker lifecycle described in
// spec.md §4.1 and §5.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vladgobelen/NSQCuP/internal/addr"
	"github.com/Vladgobelen/NSQCuP/internal/audioio"
	"github.com/Vladgobelen/NSQCuP/internal/clientid"
	"github.com/Vladgobelen/NSQCuP/internal/codec"
	"github.com/Vladgobelen/NSQCuP/internal/metrics"
	"github.com/Vladgobelen/NSQCuP/internal/notify"
	"github.com/Vladgobelen/NSQCuP/internal/transportio"
)

// sendQueueDepth bounds the outbound datagram queue between the
// capture/encode stage and the socket writer.
const sendQueueDepth = 64

// Callbacks is the narrowed notification interface from spec.md §9:
// four events, dispatched without holding any internal lock.
type Callbacks struct {
	OnStatus            func(string)
	OnLog               func(string)
	OnConnectionState   func(connected bool)
	OnTransmissionState func(transmitting bool)
}

func (c Callbacks) status(msg string) {
	if c.OnStatus != nil {
		c.OnStatus(msg)
	}
}

func (c Callbacks) logf(format string, args ...interface{}) {
	if c.OnLog != nil {
		c.OnLog(fmt.Sprintf(format, args...))
	}
}

func (c Callbacks) connectionState(connected bool) {
	if c.OnConnectionState != nil {
		c.OnConnectionState(connected)
	}
}

func (c Callbacks) transmissionState(transmitting bool) {
	if c.OnTransmissionState != nil {
		c.OnTransmissionState(transmitting)
	}
}

// Session is a single connection to one reflector. It is not safe to
// call Connect concurrently with itself; Disconnect and SetTransmitting
// are safe to call from any goroutine at any time.
type Session struct {
	log       *zap.SugaredLogger
	callbacks Callbacks
	id        clientid.ID
	metrics   *metrics.Metrics

	inputDeviceID, outputDeviceID int

	mu        sync.Mutex
	sock      *transportio.Socket
	engine    *audioio.Engine
	cancel    context.CancelFunc
	eg        *errgroup.Group
	connected atomic.Bool

	txSeq atomic.Uint32
}

// New returns a Session identified by its own freshly generated
// ClientId, reporting through callbacks. m may be nil, in which case
// the session and its engine run without reporting any metrics.
func New(log *zap.SugaredLogger, callbacks Callbacks, inputDeviceID, outputDeviceID int, m *metrics.Metrics) *Session {
	return &Session{
		log:            log,
		callbacks:      callbacks,
		id:             clientid.New(),
		metrics:        m,
		inputDeviceID:  inputDeviceID,
		outputDeviceID: outputDeviceID,
	}
}

// ID returns this session's ClientId.
func (s *Session) ID() clientid.ID { return s.id }

// Connect opens the UDP socket to the reflector, sends the REGISTER
// announcement, and starts the audio engine and network workers. It is
// idempotent: calling Connect while already connected is a no-op.
func (s *Session) Connect(ctx context.Context, rawServer string) error {
	s.mu.Lock()
	if s.connected.Load() {
		s.mu.Unlock()
		return nil
	}

	host, port, err := addr.Normalize(rawServer)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: %w", err)
	}

	sock, err := transportio.Dial(host, port)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: connect: %w", err)
	}

	if err := sock.Write(transportio.MarshalRegister(s.id)); err != nil {
		sock.Close()
		s.mu.Unlock()
		return fmt.Errorf("session: register: %w", err)
	}

	enc, err := codec.NewEncoder()
	if err != nil {
		sock.Close()
		s.mu.Unlock()
		return fmt.Errorf("session: encoder: %w", err)
	}
	engine := audioio.NewEngine(s.log, enc, s.inputDeviceID, s.outputDeviceID, s.metrics)

	workerCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(workerCtx)

	if err := engine.Start(egCtx); err != nil {
		cancel()
		sock.Close()
		s.mu.Unlock()
		return fmt.Errorf("session: audio engine: %w", err)
	}

	sendQueue := make(chan []byte, sendQueueDepth)

	eg.Go(func() error {
		s.marshalOutbound(egCtx, engine, sendQueue)
		return nil
	})
	eg.Go(func() error {
		transportio.SendQueue(egCtx, sock, sendQueue, s.log, s.metrics)
		return nil
	})
	eg.Go(func() error {
		transportio.SendKeepAlives(egCtx, sock, s.log)
		return nil
	})
	eg.Go(func() error {
		transportio.Receive(egCtx, sock, s.id, func(pkt transportio.Packet) {
			s.dispatchInbound(engine, pkt)
		}, s.log, s.metrics)
		return nil
	})

	s.sock = sock
	s.engine = engine
	s.cancel = cancel
	s.eg = eg
	s.connected.Store(true)
	s.playNotification(engine, notify.SoundConnect)
	s.mu.Unlock()

	s.callbacks.connectionState(true)
	s.callbacks.status(fmt.Sprintf("connected to %s:%d", host, port))

	return nil
}

// Disconnect cancels every worker, waits for them to exit, and tears
// down the audio engine and socket. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}

	s.playNotification(s.engine, notify.SoundDisconnect)

	s.cancel()
	if err := s.eg.Wait(); err != nil {
		s.log.Warnw("session worker returned error", "error", err)
	}

	s.engine.Stop()
	s.sock.Close()

	s.engine = nil
	s.sock = nil
	s.cancel = nil
	s.eg = nil
	s.mu.Unlock()

	s.callbacks.connectionState(false)
	s.callbacks.status("disconnected")
}

// SetTransmitting toggles outbound capture. Per spec.md Invariant 4,
// frames captured while not transmitting are discarded rather than
// queued; toggling while disconnected is a harmless no-op.
func (s *Session) SetTransmitting(on bool) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		return
	}
	engine.SetTransmitting(on)
	s.callbacks.transmissionState(on)
}

// Connected reports whether the session currently holds an open socket.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// marshalOutbound assigns the next wrapping sequence number to each
// encoded frame and hands the wire-format datagram to the send queue,
// dropping the oldest queued datagram if the queue is full rather than
// blocking capture.
func (s *Session) marshalOutbound(ctx context.Context, engine *audioio.Engine, out chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case opusData, ok := <-engine.CaptureOut:
			if !ok {
				return
			}
			seq := s.txSeq.Add(1)
			packet := transportio.MarshalData(s.id, seq, opusData)

			select {
			case out <- packet:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- packet:
				default:
				}
			}
		}
	}
}

// dispatchInbound hands a classified data packet to the audio engine's
// playback queue, dropping it (and counting the drop) if the queue is
// full per spec.md §4.7's backlog handling.
func (s *Session) dispatchInbound(engine *audioio.Engine, pkt transportio.Packet) {
	tagged := audioio.TaggedAudio{Sender: pkt.Sender, Seq: pkt.Seq, Opus: pkt.Opus}
	select {
	case engine.PlaybackIn <- tagged:
	default:
		engine.AddPlaybackDrop()
	}
}

// playNotification mixes a short connect/disconnect tone into the
// engine's playback output without blocking the caller.
func (s *Session) playNotification(engine *audioio.Engine, sound notify.Sound) {
	if engine == nil {
		return
	}
	engine.PlayLocal(notify.Frames(sound, codec.SampleRate, codec.FrameSize))
}
