package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// ErrCodecUnavailable is returned by StartStream when codec_id has no
// registered descriptor (for example 'a', AAC, which this module does not
// implement).
var ErrCodecUnavailable = errors.New("engine: codec unavailable")

// pollInterval is how long the decode loop sleeps on OutputBuf's condition
// variable before re-checking thresholds, per spec §4.3 step 1.
const pollInterval = 100 * time.Millisecond

// Config bundles the buffer sizing the Engine is constructed with.
type Config struct {
	StreamBufCapacity uint64
	OutputBufCapacity uint64
}

// DefaultConfig matches spec §6's default buffer capacities.
func DefaultConfig() Config {
	return Config{
		StreamBufCapacity: 2 << 20, // 2 MiB
		OutputBufCapacity: 4 << 20, // 4 MiB
	}
}

// maxFlacBlockBytes is the worst-case canonical-frame footprint of one FLAC
// block: the format's largest legal blocksize (65535 samples) at 2 channels
// and BytesPerFrame/2 bytes per channel.
const maxFlacBlockBytes = 65535 * codec.BytesPerFrame

// Engine groups the two ring buffers and the shared negotiation state that
// spec §9 calls for keeping out of global scope. One Engine is constructed
// per running player instance; the stream reader, the DecodeEngine, and the
// output drain are all handed the same pointer.
type Engine struct {
	log *slog.Logger

	StreamBuf *ringbuf.RingBuffer
	OutputBuf *ringbuf.RingBuffer

	Stream *StreamState
	Decode *DecodeState
	Output *OutputState
	Fade   *FadeController

	registry map[byte]codec.Descriptor
	active   codec.Codec
	activeID byte

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once

	// callbackDone is set by OutputDrain's real-time callback the instant it
	// observes OutputBuf empty with decoding no longer running, so Run's
	// watcher goroutine can return without polling IsRunning itself.
	callbackDone atomic.Bool
}

// New constructs an Engine with its ring buffers sized per cfg. Returns an
// error if StreamBufCapacity is too small to hold at least two maximal FLAC
// blocks (an Open Question in the design this module was built from,
// resolved in favor of rejecting the configuration outright).
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if cfg.StreamBufCapacity < 2*maxFlacBlockBytes {
		return nil, fmt.Errorf("engine: stream buffer capacity %d below minimum %d (2x max FLAC block)", cfg.StreamBufCapacity, 2*maxFlacBlockBytes)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:       log,
		StreamBuf: ringbuf.New(cfg.StreamBufCapacity),
		OutputBuf: ringbuf.New(cfg.OutputBufCapacity),
		Stream:    &StreamState{},
		Decode:    &DecodeState{},
		Output:    &OutputState{},
		Fade:      NewFadeController(),
		registry:  make(map[byte]codec.Descriptor),
	}, nil
}

// Init registers every descriptor in allowed as given; it does not construct
// any codec (StartStream does, via Descriptor.New). Descriptors are
// immutable once Init returns (spec §5's "Codec descriptors are immutable
// after registration").
func (e *Engine) Init(allowed []codec.Descriptor) {
	for _, d := range allowed {
		e.registry[d.ID] = d
		e.log.Info("codec registered", "id", string(d.ID), "mime_tags", d.MimeTags)
	}
}

// NotifyTrackStart implements codec.TrackNotifier. It must be called by a
// codec while holding OutputBuf's lock, exactly when it has recovered a new
// track's real sample rate, before writing that track's first frame.
func (e *Engine) NotifyTrackStart(sampleRate uint32) {
	e.Output.NextSampleRate = sampleRate
	offset := e.OutputBuf.WritePos()
	e.Output.SetTrackStart(offset)
	e.Fade.CheckFade(true, offset, e.Output)
}

// Disconnected implements codec.StreamStatus, forwarding to StreamState. A
// codec calls this under StreamBuf's lock once it has drained StreamBuf to
// zero, to tell a starved read apart from a finished stream.
func (e *Engine) Disconnected() bool {
	return e.Stream.Disconnected()
}

// StartStream implements spec §4.3: closes the previous codec if different,
// opens the new one, and arms the decode state for a fresh track.
func (e *Engine) StartStream(codecID byte, sampleSize, sampleRate, channels, endianness byte) error {
	desc, ok := e.registry[codecID]
	if !ok {
		return fmt.Errorf("%w: id=%q", ErrCodecUnavailable, string(codecID))
	}

	if e.active != nil && e.activeID != codecID {
		if err := e.active.Close(); err != nil {
			e.log.Warn("error closing previous codec", "err", err)
		}
		e.active = nil
	}

	if e.active == nil {
		e.active = desc.New()
		e.activeID = codecID
	}

	params := codec.OpenParams{
		SampleSize: sampleSize,
		SampleRate: sampleRate,
		Channels:   channels,
		Endianness: endianness,
	}
	if err := e.active.Open(e.StreamBuf, e.OutputBuf, params); err != nil {
		return fmt.Errorf("engine: codec open: %w", err)
	}

	e.Decode.ArmNewStream()
	e.Decode.SetRunning()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.stopOnce = sync.Once{}
	e.wg.Add(1)
	go e.runDecodeLoop(ctx, desc)

	return nil
}

// Stop halts the decode loop and closes the current codec. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.Decode.SetStopped()
	})
	e.wg.Wait()
	if e.active != nil {
		if err := e.active.Close(); err != nil {
			e.log.Warn("error closing codec on stop", "err", err)
		}
	}
}

// runDecodeLoop is the decode thread: while DecodeState is RUNNING it checks
// the active codec's thresholds, yields on OutputBuf's condvar when either is
// unmet, otherwise calls Decode and propagates COMPLETE/ERROR.
func (e *Engine) runDecodeLoop(ctx context.Context, desc codec.Descriptor) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !e.thresholdsMet(desc) {
			e.OutputBuf.Lock()
			e.OutputBuf.WaitTimeout(pollInterval)
			e.OutputBuf.Unlock()
			continue
		}

		result := e.active.Decode()
		switch result {
		case codec.Running:
			continue
		case codec.Complete:
			e.log.Info("codec reported completion", "id", string(e.activeID))
			e.Decode.SetStopped()
			return
		case codec.Error:
			e.log.Error("codec reported error", "id", string(e.activeID))
			e.Decode.SetStopped()
			return
		}
	}
}

// thresholdsMet reports whether enough input and output are currently
// available for one more Decode call, per spec §4.1's starvation rule.
func (e *Engine) thresholdsMet(desc codec.Descriptor) bool {
	e.StreamBuf.Lock()
	in := e.StreamBuf.Used()
	disconnected := e.Stream.Disconnected()
	e.StreamBuf.Unlock()

	e.OutputBuf.Lock()
	out := e.OutputBuf.Space()
	e.OutputBuf.Unlock()

	if in == 0 && disconnected {
		return true // let Decode observe end-of-stream and return COMPLETE
	}
	return in >= desc.MinReadBytes && out >= desc.MinOutputSpaceBytes
}
