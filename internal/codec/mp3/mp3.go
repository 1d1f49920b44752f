// Package mp3 implements the MP3 codec (control-protocol id 'm'), one of the
// codecs spec.md implies but leaves unbudgeted. It uses
// github.com/imcarsen/go-mp3, already an indirect dependency of the module
// this was built from, pulled directly from the decode loop the same way
// Vorbis is: go-mp3 always produces 16-bit interleaved stereo PCM regardless
// of source channel count, so the upshift step is identical to PCM's own
// 16-bit case.
package mp3

import (
	"encoding/binary"
	"io"

	"github.com/imcarsen/go-mp3"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// streamReader adapts StreamBuf into the io.Reader go-mp3 wants, driven only
// from inside Decode while StreamBuf's lock is already held.
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

// Codec implements codec.Codec for MP3 streams.
type Codec struct {
	notifier codec.TrackNotifier

	streamBuf *ringbuf.RingBuffer
	outputBuf *ringbuf.RingBuffer

	dec       *mp3.Decoder
	sampleHz  uint32
	newStream bool
	failed    bool

	pcmBuf []byte
}

// New constructs an Mp3 codec.
func New(notifier codec.TrackNotifier) *Codec {
	return &Codec{notifier: notifier}
}

// Open resets codec state; the go-mp3 decoder is constructed lazily on the
// first Decode call once StreamBuf has frame-sync bytes to parse.
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

// Decode pulls one chunk of 16-bit stereo PCM from go-mp3 and upshifts it
// into canonical 32-bit stereo frames.
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
		dec, err := mp3.NewDecoder(&streamReader{rb: c.streamBuf})
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return codec.Running
			}
			c.failed = true
			return codec.Error
		}
		c.dec = dec
		c.sampleHz = uint32(dec.SampleRate())
	}

	if c.newStream {
		c.notifier.NotifyTrackStart(c.sampleHz)
		c.newStream = false
	}

	outSpace := c.outputBuf.Space()
	maxFrames := outSpace / codec.BytesPerFrame
	if maxFrames == 0 {
		return codec.Running
	}
	// go-mp3 always emits 16-bit stereo: 4 bytes per frame of input.
	want := int(maxFrames) * 4
	if cap(c.pcmBuf) < want {
		c.pcmBuf = make([]byte, want)
	}
	buf := c.pcmBuf[:want]

	n, err := c.dec.Read(buf)
	if err != nil && err != io.EOF {
		c.failed = true
		return codec.Error
	}
	if n <= 0 {
		return codec.Complete
	}
	pcm := buf[:n-n%4]
	frames := len(pcm) / 4

	outSpan := c.outputBuf.ContiguousWriteSpan()
	written := uint64(0)
	for f := 0; f < frames; f++ {
		if int(written)+codec.BytesPerFrame > len(outSpan) {
			break
		}
		left := int32(int16(binary.LittleEndian.Uint16(pcm[f*4:]))) << 16
		right := int32(int16(binary.LittleEndian.Uint16(pcm[f*4+2:]))) << 16
		codec.PutFrame(outSpan[written:written+codec.BytesPerFrame], left, right)
		written += codec.BytesPerFrame
	}
	c.outputBuf.AdvanceWrite(written)

	return codec.Running
}
