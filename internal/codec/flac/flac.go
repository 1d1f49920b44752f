// Package flac implements the FLAC codec (control-protocol id 'f') as a cgo
// binding directly against libFLAC's stream decoder, pulling encoded bytes
// from StreamBuf via the library's read callback and writing canonical
// stereo frames to OutputBuf via its write callback. The cgo wiring idiom
// (cgo.Handle client data, //export callback trio, pkg-config preamble) is
// grounded on drgolem/go-flac; the callback locking discipline and
// bit-shift constants are grounded on squeezelite's flac.c, which this
// package follows line for line because, unlike Pcm/Vorbis, FLAC's
// callbacks lock StreamBuf and OutputBuf transiently and never
// simultaneously.
package flac

/*
#cgo pkg-config: flac
#include <stdlib.h>
#include <FLAC/stream_decoder.h>

extern FLAC__StreamDecoderReadStatus
goReadCallback(const FLAC__StreamDecoder *decoder, FLAC__byte buffer[], size_t *bytes, void *client_data);

extern FLAC__StreamDecoderWriteStatus
goWriteCallback(const FLAC__StreamDecoder *decoder, const FLAC__Frame *frame, const FLAC__int32 *const buffer[], void *client_data);

extern void
goErrorCallback(const FLAC__StreamDecoder *decoder, FLAC__StreamDecoderErrorStatus status, void *client_data);
*/
import "C"

import (
	"fmt"
	"log/slog"
	"runtime/cgo"
	"unsafe"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

// Codec implements codec.Codec for FLAC streams via libFLAC's pull-only
// stream decoder: no seek/tell/length/eof callbacks are installed, matching
// the non-seekable contract described for this pipeline.
type Codec struct {
	notifier codec.TrackNotifier
	status   codec.StreamStatus
	log      *slog.Logger

	decoder *C.FLAC__StreamDecoder
	handle  cgo.Handle

	streamBuf *ringbuf.RingBuffer
	outputBuf *ringbuf.RingBuffer

	newStream   bool
	writeFailed bool
}

// New constructs a Flac codec. status reports whether StreamBuf's upstream
// has disconnected, consulted by the read callback once StreamBuf is empty.
func New(notifier codec.TrackNotifier, status codec.StreamStatus) *Codec {
	return &Codec{notifier: notifier, status: status, log: slog.Default()}
}

// Open constructs the libFLAC decoder lazily, or resets it on a subsequent
// track, and installs only read/write/error callbacks.
func (c *Codec) Open(streamBuf, outputBuf *ringbuf.RingBuffer, _ codec.OpenParams) error {
	c.streamBuf = streamBuf
	c.outputBuf = outputBuf
	c.newStream = true
	c.writeFailed = false

	if c.decoder != nil {
		C.FLAC__stream_decoder_reset(c.decoder)
		return nil
	}

	c.decoder = C.FLAC__stream_decoder_new()
	c.handle = cgo.NewHandle(c)

	readCallback := C.FLAC__StreamDecoderReadCallback(unsafe.Pointer(C.goReadCallback))
	writeCallback := C.FLAC__StreamDecoderWriteCallback(unsafe.Pointer(C.goWriteCallback))
	errorCallback := C.FLAC__StreamDecoderErrorCallback(unsafe.Pointer(C.goErrorCallback))

	status := C.FLAC__stream_decoder_init_stream(
		c.decoder,
		readCallback,
		nil, // seek
		nil, // tell
		nil, // length
		nil, // eof
		writeCallback,
		nil, // metadata
		errorCallback,
		unsafe.Pointer(&c.handle),
	)
	if status != C.FLAC__STREAM_DECODER_INIT_STATUS_OK {
		return errFlacf("init_stream failed with status %d", int(status))
	}
	return nil
}

// Close tears down the libFLAC decoder.
func (c *Codec) Close() error {
	if c.decoder != nil {
		C.FLAC__stream_decoder_finish(c.decoder)
		C.FLAC__stream_decoder_delete(c.decoder)
		c.decoder = nil
	}
	if c.handle != 0 {
		c.handle.Delete()
		c.handle = 0
	}
	return nil
}

// Decode processes exactly one FLAC frame, per spec's "one natural unit".
func (c *Codec) Decode() codec.DecodeResult {
	ok := C.FLAC__stream_decoder_process_single(c.decoder) != 0
	state := C.FLAC__stream_decoder_get_state(c.decoder)

	if c.writeFailed {
		return codec.Error
	}
	if !ok && state != C.FLAC__STREAM_DECODER_END_OF_STREAM {
		c.log.Error("flac decode error", "state", int(state))
	}

	switch {
	case state == C.FLAC__STREAM_DECODER_END_OF_STREAM:
		return codec.Complete
	case state > C.FLAC__STREAM_DECODER_END_OF_STREAM:
		return codec.Error
	default:
		return codec.Running
	}
}

//export goReadCallback
func goReadCallback(decoder *C.FLAC__StreamDecoder, buffer *C.FLAC__byte, bytes *C.size_t, clientData unsafe.Pointer) C.FLAC__StreamDecoderReadStatus {
	h := *(*cgo.Handle)(clientData)
	c := h.Value().(*Codec)

	want := int(*bytes)

	c.streamBuf.Lock()
	defer c.streamBuf.Unlock()

	span := c.streamBuf.ContiguousReadSpan()
	n := len(span)
	if n > want {
		n = want
	}
	end := n == 0 && c.endOfStreamLocked()

	if n > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), want)
		copy(dst[:n], span[:n])
		c.streamBuf.AdvanceRead(uint64(n))
	}
	*bytes = C.size_t(n)

	if end {
		return C.FLAC__STREAM_DECODER_READ_STATUS_END_OF_STREAM
	}
	return C.FLAC__STREAM_DECODER_READ_STATUS_CONTINUE
}

// endOfStreamLocked mirrors squeezelite's `stream.state <= DISCONNECT &&
// bytes == 0`; callers hold StreamBuf's lock.
func (c *Codec) endOfStreamLocked() bool {
	return c.status.Disconnected()
}

//export goWriteCallback
func goWriteCallback(decoder *C.FLAC__StreamDecoder, frame *C.FLAC__Frame, buffer **C.FLAC__int32, clientData unsafe.Pointer) C.FLAC__StreamDecoderWriteStatus {
	h := *(*cgo.Handle)(clientData)
	c := h.Value().(*Codec)

	frames := int(frame.header.blocksize)
	bitsPerSample := int(frame.header.bits_per_sample)
	channels := int(frame.header.channels)

	if frames == 0 {
		return C.FLAC__STREAM_DECODER_WRITE_STATUS_CONTINUE
	}

	chPtrs := unsafe.Slice(buffer, channels)
	lptr := unsafe.Slice((*C.FLAC__int32)(chPtrs[0]), frames)
	rIdx := 0
	if channels > 1 {
		rIdx = 1
	}
	rptr := unsafe.Slice((*C.FLAC__int32)(chPtrs[rIdx]), frames)

	c.outputBuf.Lock()
	defer c.outputBuf.Unlock()

	if c.newStream {
		c.notifier.NotifyTrackStart(uint32(frame.header.sample_rate))
		c.newStream = false
	}

	var shift uint
	switch bitsPerSample {
	case 16:
		shift = 16
	case 24:
		shift = 8
	default:
		c.log.Error("unsupported bits per sample, terminating track", "bits", bitsPerSample)
		c.writeFailed = true
		return C.FLAC__STREAM_DECODER_WRITE_STATUS_ABORT
	}

	remaining := frames
	li, ri := 0, 0
	for remaining > 0 {
		span := c.outputBuf.ContiguousWriteSpan()
		count := len(span) / codec.BytesPerFrame
		if count > remaining {
			count = remaining
		}
		if count == 0 {
			break
		}

		off := 0
		for i := 0; i < count; i++ {
			left := int32(lptr[li]) << shift
			right := int32(rptr[ri]) << shift
			codec.PutFrame(span[off:off+codec.BytesPerFrame], left, right)
			off += codec.BytesPerFrame
			li++
			ri++
		}
		c.outputBuf.AdvanceWrite(uint64(count) * codec.BytesPerFrame)
		remaining -= count
	}

	return C.FLAC__STREAM_DECODER_WRITE_STATUS_CONTINUE
}

//export goErrorCallback
func goErrorCallback(decoder *C.FLAC__StreamDecoder, status C.FLAC__StreamDecoderErrorStatus, clientData unsafe.Pointer) {
	h := *(*cgo.Handle)(clientData)
	c := h.Value().(*Codec)
	c.log.Info("flac decoder error", "status", int(status))
}

func errFlacf(format string, args ...any) error {
	return fmt.Errorf("flac: "+format, args...)
}
