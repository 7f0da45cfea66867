// Package audioio drives the capture and mix/playback device streams
// (spec.md components C1 and C6), encoding outbound audio with the
// configured codec and decoding+mixing inbound audio through one
// jitter buffer per active sender.
package audioio

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/Vladgobelen/NSQCuP/internal/clientid"
	"github.com/Vladgobelen/NSQCuP/internal/codec"
	"github.com/Vladgobelen/NSQCuP/internal/jitter"
	"github.com/Vladgobelen/NSQCuP/internal/metrics"
)

// Backlog bounds from spec.md §4.7.
const (
	MaxQueue = 25
	MinQueue = 5

	// plcMax caps consecutive concealed frames per sender before the
	// decode stage gives up on that sender for one cycle.
	plcMax = 5
	// senderIdleTimeout matches spec.md's RECEIVER_TIMEOUT; a sender
	// with no jitter activity for this long has its decoder dropped.
	senderIdleTimeout = 60 * time.Second
)

// TaggedAudio is an Opus packet received from the network, tagged with
// its originating sender. It is the in-process analogue of
// spec.md's InboundPacket.
type TaggedAudio struct {
	Sender clientid.ID
	Seq    uint32
	Opus   []byte
}

// paStream abstracts a PortAudio stream so capture/playback can be
// exercised without real hardware in tests.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

type senderDecode struct {
	dec    *codec.Decoder
	jb     *jitter.Buffer
	last   time.Time
	streak int
}

// Engine owns the capture and playback device streams, the outbound
// encoder, and one decoder+jitter buffer per active remote sender.
type Engine struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	inputDeviceID  int
	outputDeviceID int

	encoder *codec.Encoder

	mu      sync.Mutex
	senders map[clientid.ID]*senderDecode

	captureStream  paStream
	playbackStream paStream

	// CaptureOut carries encoded Opus frames ready for the sender
	// worker. Full means the sender has fallen behind; the oldest
	// queued frame is dropped to make room, per spec.md §4.3.
	CaptureOut chan []byte
	// PlaybackIn carries tagged frames arriving from the network,
	// capacity MaxQueue per spec.md §4.7.
	PlaybackIn chan TaggedAudio

	// notifyFrames carries locally synthesized PCM (connect/disconnect
	// tones), mixed into the output alongside decoded network audio.
	notifyFrames chan []int16

	transmitting atomic.Bool
	running      atomic.Bool

	captureDropped  atomic.Uint64
	playbackDropped atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine returns an Engine bound to the given input/output device
// indices (-1 selects the PortAudio default for each). m may be nil,
// in which case the engine runs without reporting any metrics.
func NewEngine(log *zap.SugaredLogger, enc *codec.Encoder, inputDeviceID, outputDeviceID int, m *metrics.Metrics) *Engine {
	return &Engine{
		log:            log,
		metrics:        m,
		inputDeviceID:  inputDeviceID,
		outputDeviceID: outputDeviceID,
		encoder:        enc,
		senders:        make(map[clientid.ID]*senderDecode),
		CaptureOut:     make(chan []byte, 64),
		PlaybackIn:     make(chan TaggedAudio, MaxQueue),
		notifyFrames:   make(chan []int16, 32),
		stopCh:         make(chan struct{}),
	}
}

// SetTransmitting toggles whether captured frames are encoded and
// queued for sending. Invariant 4 (spec.md): frames captured while not
// transmitting are discarded, not queued.
func (e *Engine) SetTransmitting(on bool) {
	e.transmitting.Store(on)
}

// Start opens the capture and playback device streams and begins the
// capture and mix/playback loops.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	inputDev, err := resolveDevice(devices, e.inputDeviceID, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}
	outputDev, err := resolveDevice(devices, e.outputDeviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}

	captureBuf := make([]int16, codec.FrameSize)
	captureStream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: codec.Channels,
			Latency:  inputDev.DefaultLowInputLatency,
		},
		SampleRate:      codec.SampleRate,
		FramesPerBuffer: codec.FrameSize,
	}, captureBuf)
	if err != nil {
		return err
	}

	playbackBuf := make([]int16, codec.FrameSize)
	playbackStream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: codec.Channels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      codec.SampleRate,
		FramesPerBuffer: codec.FrameSize,
	}, playbackBuf)
	if err != nil {
		captureStream.Close()
		return err
	}

	if err := captureStream.Start(); err != nil {
		captureStream.Close()
		playbackStream.Close()
		return err
	}
	if err := playbackStream.Start(); err != nil {
		captureStream.Stop()
		captureStream.Close()
		playbackStream.Close()
		return err
	}

	e.captureStream = captureStream
	e.playbackStream = playbackStream
	e.stopCh = make(chan struct{})
	e.running.Store(true)

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.captureLoop(ctx, captureBuf) }()
	go func() { defer e.wg.Done(); e.playbackLoop(ctx, playbackBuf) }()

	e.log.Infow("audio engine started", "input", inputDev.Name, "output", outputDev.Name)
	return nil
}

// Stop halts capture and playback. Streams are stopped (unblocking any
// in-flight Read/Write) before the loop goroutines are joined, and only
// then closed, so the native stream objects outlive every goroutine
// that might still touch them.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)

	if e.captureStream != nil {
		e.captureStream.Stop()
	}
	if e.playbackStream != nil {
		e.playbackStream.Stop()
	}

	e.wg.Wait()

	if e.captureStream != nil {
		e.captureStream.Close()
		e.captureStream = nil
	}
	if e.playbackStream != nil {
		e.playbackStream.Close()
		e.playbackStream = nil
	}

	e.log.Info("audio engine stopped")
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

func (e *Engine) captureLoop(ctx context.Context, buf []int16) {
	for e.running.Load() {
		if err := e.captureStream.Read(); err != nil {
			if e.running.Load() {
				e.log.Warnw("capture read failed", "error", err)
			}
			return
		}

		if !e.transmitting.Load() {
			continue
		}

		packet, err := e.encoder.Encode(buf)
		if err != nil {
			e.log.Warnw("encode failed", "error", err)
			continue
		}

		select {
		case e.CaptureOut <- packet:
		default:
			// Drop the oldest queued frame to make room, per
			// spec.md §4.3 — never drop the newest.
			select {
			case <-e.CaptureOut:
			default:
			}
			select {
			case e.CaptureOut <- packet:
			default:
				e.captureDropped.Add(1)
			}
		}
	}
}

// DroppedFrames returns and resets the capture/playback drop counters.
func (e *Engine) DroppedFrames() (capture, playback uint64) {
	return e.captureDropped.Swap(0), e.playbackDropped.Swap(0)
}

// AddPlaybackDrop increments the playback drop counter; called by the
// receiver worker when PlaybackIn is full.
func (e *Engine) AddPlaybackDrop() {
	e.playbackDropped.Add(1)
	if e.metrics != nil {
		e.metrics.PacketsLost.Inc()
	}
}

// PlayLocal mixes a sequence of locally synthesized PCM frames (a
// connect/disconnect tone) into the output alongside decoded network
// audio. Frames are dropped rather than blocking the caller if the
// queue is momentarily full.
func (e *Engine) PlayLocal(frames [][]int16) {
	for _, frame := range frames {
		select {
		case e.notifyFrames <- frame:
		default:
		}
	}
}

func clampInt32(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func (e *Engine) playbackLoop(ctx context.Context, buf []int16) {
	frameDuration := time.Duration(codec.FrameSize) * time.Second / codec.SampleRate
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	acc := make([]int32, codec.FrameSize)

	// statsInterval paces the periodic drop-counter log below to once
	// every ~5s instead of once per playout tick.
	const statsInterval = 500
	tick := 0

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tick++
		if tick%statsInterval == 0 {
			captureDropped, playbackDropped := e.DroppedFrames()
			if captureDropped > 0 || playbackDropped > 0 {
				e.log.Debugw("frame drop counters", "capture", captureDropped, "playback", playbackDropped, "active_senders", e.ActiveSenders())
			}
		}

		// Drain arrived frames into each sender's jitter buffer.
	drain:
		for {
			select {
			case tagged := <-e.PlaybackIn:
				sd := e.senderFor(tagged.Sender)
				if dup := sd.jb.Put(tagged.Seq, tagged.Opus, time.Now()); dup && e.metrics != nil {
					e.metrics.DuplicatePackets.Inc()
				}
				sd.last = time.Now()
			default:
				break drain
			}
		}

		// Backlog control per spec.md §4.7: a channel piling up past
		// MaxQueue means the play clock has fallen behind — drop the
		// oldest pending arrivals to catch back up.
		backlog := len(e.PlaybackIn)
		if backlog > MaxQueue {
			for i := 0; i < backlog-MaxQueue; i++ {
				select {
				case <-e.PlaybackIn:
					e.AddPlaybackDrop()
				default:
				}
			}
			e.log.Warnw("playback backlog exceeded, dropped frames to catch up", "backlog", backlog)
		} else if backlog < MinQueue {
			// Running ahead of arrivals: yield the processor rather than
			// spin into the next tick immediately.
			runtime.Gosched()
		}
		if e.metrics != nil {
			e.metrics.MixQueueDepth.Set(float64(backlog))
		}

		for i := range acc {
			acc[i] = 0
		}

		active := 0
		e.mu.Lock()
		for id, sd := range e.senders {
			pcm, decoded, concealed := e.decodeOne(sd)
			if decoded {
				for i, s := range pcm {
					acc[i] += int32(s)
				}
				active++
			}
			if concealed && e.metrics != nil {
				e.metrics.ConcealedFrames.Inc()
			}
			if e.metrics != nil {
				e.metrics.JitterDepth.WithLabelValues(id.String()).Set(float64(sd.jb.Depth()))
			}
			if time.Since(sd.last) > senderIdleTimeout {
				delete(e.senders, id)
			}
		}
		if e.metrics != nil {
			e.metrics.ActiveSenders.Set(float64(len(e.senders)))
		}
		e.mu.Unlock()

		select {
		case frame := <-e.notifyFrames:
			for i, s := range frame {
				acc[i] += int32(s)
			}
			active++
		default:
		}

		if active == 0 {
			for i := range buf {
				buf[i] = 0
			}
		} else {
			for i, s := range acc {
				buf[i] = clampInt32(s / int32(active))
			}
		}

		if err := e.playbackStream.Write(); err != nil {
			if e.running.Load() {
				e.log.Warnw("playback write failed", "error", err)
			}
			return
		}
	}
}

// decodeOne pulls the next due frame for sd, falling back to packet
// loss concealment up to plcMax consecutive times, matching spec.md
// §4.6. concealed reports whether the returned frame (if any) came
// from concealment rather than a decoded payload.
func (e *Engine) decodeOne(sd *senderDecode) (pcm []int16, decoded, concealed bool) {
	if sd.dec == nil {
		return nil, false, false
	}
	if opusData, ok := sd.jb.Get(time.Now()); ok {
		pcm, err := sd.dec.Decode(opusData)
		if err != nil {
			e.log.Warnw("decode failed", "error", err)
			return nil, false, false
		}
		sd.last = time.Now()
		sd.streak = 0
		return pcm, true, false
	}

	if sd.streak >= plcMax {
		sd.streak = 0
		return nil, false, false
	}
	pcm, err := sd.dec.Conceal()
	if err != nil {
		return nil, false, false
	}
	sd.streak++
	return pcm, true, true
}

// senderFor returns the decode state for id, lazily creating it on
// first sight the way the original backend's opus_decoders/
// jitter_buffers maps do.
func (e *Engine) senderFor(id clientid.ID) *senderDecode {
	e.mu.Lock()
	defer e.mu.Unlock()
	sd, ok := e.senders[id]
	if ok {
		return sd
	}
	dec, err := codec.NewDecoder()
	if err != nil {
		// Fall back to a decoder-less entry; decodeOne skips it, which
		// degrades to permanent silence for this sender rather than a
		// panic.
		sd = &senderDecode{jb: jitter.New(), last: time.Now()}
		e.senders[id] = sd
		return sd
	}
	sd = &senderDecode{dec: dec, jb: jitter.New(), last: time.Now()}
	e.senders[id] = sd
	return sd
}

// ActiveSenders reports how many senders currently have decode state.
func (e *Engine) ActiveSenders() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.senders)
}
