package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/lanplayer/internal/codec"
)

// outputFramesPerBuffer is the PortAudio callback's frames-per-buffer hint,
// matching the teacher FilePlayer's convention of a fixed small callback
// window rather than one sized to OutputBuf.
const outputFramesPerBuffer = 1024

// OutputDrain is the demo output-side external collaborator (spec's "out of
// scope: the platform audio output driver"): it drains OutputBuf directly
// from a PortAudio real-time callback, applying FadeController's gain ramp
// and switching sample rate at track_start, the same way the teacher's
// FilePlayer drives PortAudio in callback mode from an AudioFrameRingBuffer -
// except here OutputBuf itself is the SPSC ring the callback reads from,
// since the decode loop is already its producer.
type OutputDrain struct {
	log         *slog.Logger
	deviceIndex int

	stream     *portaudio.PaStream
	sampleRate uint32
	chunkBuf   []byte
}

// NewOutputDrain constructs an OutputDrain bound to the given PortAudio
// output device index.
func NewOutputDrain(deviceIndex int, log *slog.Logger) *OutputDrain {
	if log == nil {
		log = slog.Default()
	}
	return &OutputDrain{log: log, deviceIndex: deviceIndex}
}

// Run watches OutputState for a track_start / sample-rate change and opens
// or reopens the PortAudio callback stream accordingly, then blocks until
// ctx is cancelled or the callback reports playback complete. The actual
// byte draining happens in audioCallback, on PortAudio's own real-time
// thread, not in this goroutine.
func (o *OutputDrain) Run(ctx context.Context, e *Engine) error {
	defer o.closeStream()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		e.OutputBuf.Lock()
		rate := e.Output.NextSampleRate
		hasTrackStart := false
		if e.Output.TrackStartSet && e.OutputBuf.ReadPos() >= e.Output.TrackStartOffset {
			_, hasTrackStart = e.Output.ConsumeTrackStart()
		}
		e.OutputBuf.Unlock()

		if hasTrackStart && (o.stream == nil || rate != o.sampleRate) {
			if err := o.reopen(e, rate); err != nil {
				return err
			}
			o.log.Info("output stream switched rate", "sample_rate", rate)
		}

		if o.stream == nil {
			e.OutputBuf.Lock()
			e.OutputBuf.WaitTimeout(pollInterval)
			e.OutputBuf.Unlock()
			continue
		}

		if e.callbackDone.Load() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}

func (o *OutputDrain) reopen(e *Engine, rate uint32) error {
	if err := o.closeStream(); err != nil {
		o.log.Warn("error closing previous output stream", "err", err)
	}

	stream := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  o.deviceIndex,
			ChannelCount: 2,
			SampleFormat: portaudio.SampleFmtInt32,
		},
		SampleRate: float64(rate),
	}
	if err := stream.OpenCallback(outputFramesPerBuffer, func(
		input, output []byte,
		frameCount uint,
		timeInfo *portaudio.StreamCallbackTimeInfo,
		statusFlags portaudio.StreamCallbackFlags,
	) portaudio.StreamCallbackResult {
		return o.audioCallback(e, output, frameCount)
	}); err != nil {
		return fmt.Errorf("engine: open output stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("engine: start output stream: %w", err)
	}

	o.stream = stream
	o.sampleRate = rate
	return nil
}

func (o *OutputDrain) closeStream() error {
	if o.stream == nil {
		return nil
	}
	err := o.stream.StopStream()
	if cerr := o.stream.CloseCallback(); cerr != nil && err == nil {
		err = cerr
	}
	o.stream = nil
	return err
}

// audioCallback runs on PortAudio's own real-time thread, never on a Go
// goroutine the scheduler can preempt for long: it reads exactly the bytes
// needed for this buffer out of OutputBuf, applies any active fade gain, and
// fills the remainder with silence on underrun (matching the teacher
// callback's "fill with silence" behavior rather than blocking).
func (o *OutputDrain) audioCallback(e *Engine, output []byte, frameCount uint) portaudio.StreamCallbackResult {
	needed := int(frameCount) * codec.BytesPerFrame
	if cap(o.chunkBuf) < needed {
		o.chunkBuf = make([]byte, needed)
	}
	buf := o.chunkBuf[:needed]

	e.OutputBuf.Lock()
	startOffset := e.OutputBuf.ReadPos()
	mode, fadeStart, fadeEnd := e.Output.FadeMode, e.Output.FadeStart, e.Output.FadeEnd
	n := e.OutputBuf.ReadLocked(buf)
	decodeDone := !e.Decode.IsRunning()
	e.OutputBuf.Unlock()

	if n < needed {
		clear(buf[n:needed])
	}
	applyFade(buf[:n], startOffset, mode, fadeStart, fadeEnd)
	copy(output, buf)

	if n == 0 && decodeDone {
		e.callbackDone.Store(true)
		return portaudio.Complete
	}
	return portaudio.Continue
}

// applyFade multiplies each canonical frame in buf by a linearly
// interpolated gain between fadeStart and fadeEnd. The gain rises from 0 to
// 1 across the window for CROSSFADE/FADE_IN/FADE_INOUT, which differ only in
// the window placement computed by FadeController.CheckFade, and falls from
// 1 to 0 for FADE_OUT. startOffset is OutputBuf's read position at the
// instant buf was read.
func applyFade(buf []byte, startOffset uint64, mode FadeMode, fadeStart, fadeEnd uint64) {
	if mode == FadeNone || fadeEnd <= fadeStart {
		return
	}
	span := fadeEnd - fadeStart

	for i := 0; i+codec.BytesPerFrame <= len(buf); i += codec.BytesPerFrame {
		pos := startOffset + uint64(i)
		if pos < fadeStart || pos > fadeEnd {
			continue
		}
		gain := float64(pos-fadeStart) / float64(span)
		if mode == FadeOut {
			gain = 1 - gain
		}
		left := int32(le32(buf[i : i+4]))
		right := int32(le32(buf[i+4 : i+8]))
		putLE32(buf[i:i+4], int32(float64(left)*gain))
		putLE32(buf[i+4:i+8], int32(float64(right)*gain))
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
