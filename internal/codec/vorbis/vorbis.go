// Package vorbis implements the Ogg Vorbis codec (control-protocol id 'o')
// using the pure-Go github.com/jfreymuth/oggvorbis decoder, pulled directly
// from the decode loop rather than through a callback-based C ABI. Channel
// rejection and track-start sequencing are grounded on squeezelite's
// vorbis.c; decoded samples are converted from a separate float32 buffer
// into OutputBuf rather than expanded in place.
package vorbis

import (
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// streamReader adapts StreamBuf into the io.Reader oggvorbis wants. It must
// only ever be driven from inside Decode, while StreamBuf's lock is already
// held by the caller: per spec §5, "its read callback does not lock".
type streamReader struct {
	rb *ringbuf.RingBuffer
}

func (r *streamReader) Read(p []byte) (int, error) {
	n := r.rb.ReadLocked(p)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Codec implements codec.Codec for Ogg Vorbis streams.
type Codec struct {
	notifier codec.TrackNotifier

	streamBuf *ringbuf.RingBuffer
	outputBuf *ringbuf.RingBuffer

	dec       *oggvorbis.Reader
	channels  int
	sampleHz  uint32
	newStream bool
	failed    bool
	sampleBuf []float32
}

// New constructs a Vorbis codec.
func New(notifier codec.TrackNotifier) *Codec {
	return &Codec{notifier: notifier}
}

// Open resets codec state; the real oggvorbis.Reader is constructed lazily
// on the first Decode call, once StreamBuf actually has header bytes to
// parse (oggvorbis.NewReader reads the Vorbis headers eagerly).
func (c *Codec) Open(streamBuf, outputBuf *ringbuf.RingBuffer, _ codec.OpenParams) error {
	c.streamBuf = streamBuf
	c.outputBuf = outputBuf
	c.dec = nil
	c.newStream = true
	c.failed = false
	return nil
}

// Close releases the decoder.
func (c *Codec) Close() error {
	c.dec = nil
	return nil
}

// Decode pulls at most one natural Vorbis decode unit (one call to the
// underlying Read, which internally corresponds to one or more Ogg packets)
// and writes it to OutputBuf as canonical 32-bit stereo frames.
func (c *Codec) Decode() codec.DecodeResult {
	c.streamBuf.Lock()
	defer c.streamBuf.Unlock()
	c.outputBuf.Lock()
	defer c.outputBuf.Unlock()

	if c.failed {
		return codec.Error
	}

	if c.outputBuf.Space() < codec.BytesPerFrame {
		return codec.Running
	}

	if c.dec == nil {
		dec, err := oggvorbis.NewReader(&streamReader{rb: c.streamBuf})
		if err != nil {
			// Not enough header bytes buffered yet; retry on a later call
			// once the stream thread has delivered more.
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return codec.Running
			}
			c.failed = true
			return codec.Error
		}
		if dec.Channels() > 2 {
			c.failed = true
			return codec.Error
		}
		c.dec = dec
		c.channels = dec.Channels()
		c.sampleHz = uint32(dec.SampleRate())
	}

	if c.newStream {
		c.notifier.NotifyTrackStart(c.sampleHz)
		c.newStream = false
	}

	// oggvorbis hands back float32 samples in [-1,1] in a separate buffer;
	// request at most as many frames as fit in OutputBuf's contiguous write
	// span, so every decoded frame is written without wrapping.
	outSpan := c.outputBuf.ContiguousWriteSpan()
	maxFrames := len(outSpan) / codec.BytesPerFrame
	if maxFrames == 0 {
		return codec.Running
	}
	want := maxFrames * c.channels
	if cap(c.sampleBuf) < want {
		c.sampleBuf = make([]float32, want)
	}
	buf := c.sampleBuf[:want]

	n, err := c.dec.Read(buf)
	if err != nil && err != io.EOF {
		c.failed = true
		return codec.Error
	}
	if n <= 0 {
		return codec.Complete
	}
	samples := buf[:n]
	frames := n / c.channels

	written := uint64(0)
	for f := 0; f < frames; f++ {
		if int(written)+codec.BytesPerFrame > len(outSpan) {
			break
		}
		var left, right int32
		if c.channels == 1 {
			v := quantize(samples[f])
			left, right = v, v
		} else {
			left = quantize(samples[2*f])
			right = quantize(samples[2*f+1])
		}
		codec.PutFrame(outSpan[written:written+codec.BytesPerFrame], left, right)
		written += codec.BytesPerFrame
	}
	c.outputBuf.AdvanceWrite(written)

	return codec.Running
}

// quantize converts one float32 sample in [-1,1] to the canonical 32-bit
// lane, equivalent to the spec's "16-bit sample << 16" after first
// quantizing to 16 bits, clamped at the rails.
func quantize(s float32) int32 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int32(int16(s*32767)) << 16
}
