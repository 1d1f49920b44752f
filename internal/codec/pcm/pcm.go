// Package pcm implements the raw interleaved-sample codec (control-protocol
// id 'p'). It is a pure bit-shuffle with no external library: native samples
// of 1, 2, or 3 bytes, big- or little-endian, mono or stereo, are upshifted
// into the canonical 32-bit stereo frame. Semantics and the locking
// discipline below are grounded directly on squeezelite's pcm.c.
package pcm

import (
	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// maxDecodeFrames bounds how many frames one Decode call converts, keeping
// worst-case decode latency bounded.
const maxDecodeFrames = 4096

var sampleRates = [15]uint32{
	11025, 22050, 32000, 44100, 48000, 8000, 12000, 16000, 24000, 96000, 88200, 176400, 192000, 352800, 384000,
}

// Codec implements codec.Codec for raw PCM streams.
type Codec struct {
	notifier codec.TrackNotifier
	status   codec.StreamStatus

	streamBuf *ringbuf.RingBuffer
	outputBuf *ringbuf.RingBuffer

	sampleSize int // bytes per sample: 1, 2, or 3
	sampleRate uint32
	channels   int
	bigEndian  bool

	newStream bool
}

// New constructs a Pcm codec. notifier is called exactly once per track,
// from within Decode, the moment the first frame is about to be written.
// status reports whether StreamBuf's upstream has disconnected, consulted
// once Decode has drained StreamBuf to zero.
func New(notifier codec.TrackNotifier, status codec.StreamStatus) *Codec {
	return &Codec{notifier: notifier, status: status}
}

// Open parses the opaque start-stream parameters and aligns StreamBuf to a
// whole number of frames so no partial sample is ever split by a wrap.
func (c *Codec) Open(streamBuf, outputBuf *ringbuf.RingBuffer, params codec.OpenParams) error {
	c.streamBuf = streamBuf
	c.outputBuf = outputBuf

	c.sampleSize = int(params.SampleSize-'0') + 1
	idx := int(params.SampleRate - '0')
	if idx < 0 || idx >= len(sampleRates) {
		idx = 0
	}
	c.sampleRate = sampleRates[idx]
	c.channels = int(params.Channels - '0')
	c.bigEndian = params.Endianness == '0'
	c.newStream = true

	streamBuf.AdjustAlignment(uint64(c.channels * c.sampleSize))
	return nil
}

// Close restores StreamBuf's alignment to 1 byte.
func (c *Codec) Close() error {
	if c.streamBuf != nil {
		c.streamBuf.AdjustAlignment(1)
	}
	return nil
}

// Decode converts at most maxDecodeFrames frames from StreamBuf into
// canonical stereo frames in OutputBuf.
func (c *Codec) Decode() codec.DecodeResult {
	c.streamBuf.Lock()
	defer c.streamBuf.Unlock()
	c.outputBuf.Lock()
	defer c.outputBuf.Unlock()

	bytesPerInFrame := uint64(c.channels * c.sampleSize)
	in := c.streamBuf.Used() / bytesPerInFrame
	out := c.outputBuf.Space() / codec.BytesPerFrame

	// end-of-stream is signalled by StreamState.Disconnected once StreamBuf
	// has drained to zero; see engine.Engine.thresholdsMet, which reports
	// thresholds met in that case so the decode loop calls Decode one final
	// time and this branch can be reached.
	if in == 0 && c.status.Disconnected() {
		return codec.Complete
	}

	if c.newStream {
		c.notifier.NotifyTrackStart(c.sampleRate)
		c.newStream = false
	}

	frames := in
	if out < frames {
		frames = out
	}
	if frames > maxDecodeFrames {
		frames = maxDecodeFrames
	}
	if frames == 0 {
		return codec.Running
	}

	inSpan := c.streamBuf.ContiguousReadSpan()
	outSpan := c.outputBuf.ContiguousWriteSpan()

	converted := uint64(0)
	iptr := 0
	optr := 0
	for converted < frames {
		if iptr+int(bytesPerInFrame) > len(inSpan) || optr+codec.BytesPerFrame > len(outSpan) {
			break
		}
		left, right := c.convertSample(inSpan[iptr : iptr+c.sampleSize])
		if c.channels == 2 {
			right2, _ := c.convertSample(inSpan[iptr+c.sampleSize : iptr+2*c.sampleSize])
			right = right2
		}
		codec.PutFrame(outSpan[optr:optr+codec.BytesPerFrame], left, right)
		iptr += int(bytesPerInFrame)
		optr += codec.BytesPerFrame
		converted++
	}

	c.streamBuf.AdvanceRead(converted * bytesPerInFrame)
	c.outputBuf.AdvanceWrite(converted * codec.BytesPerFrame)

	return codec.Running
}

// convertSample upshifts one channel's native sample into the high bits of
// a 32-bit lane. For mono sources the caller duplicates the single returned
// value to both channels.
func (c *Codec) convertSample(b []byte) (left, right int32) {
	var v int32
	switch c.sampleSize {
	case 1:
		v = int32(b[0]) << 24
	case 2:
		if c.bigEndian {
			v = int32(b[0])<<24 | int32(b[1])<<16
		} else {
			v = int32(b[0])<<16 | int32(b[1])<<24
		}
	case 3:
		if c.bigEndian {
			v = int32(b[0])<<24 | int32(b[1])<<16 | int32(b[2])<<8
		} else {
			v = int32(b[0])<<8 | int32(b[1])<<16 | int32(b[2])<<24
		}
	}
	if c.channels == 1 {
		return v, v
	}
	return v, 0 // right lane is overwritten by caller for stereo
}
