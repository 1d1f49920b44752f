// Package codec defines the uniform decoder plug-point: Open/Close/Decode,
// plus the DecodeResult tri-state and the registration descriptor that the
// decode engine uses to pick a codec by id and to gate its own decode loop
// on input/output thresholds.
package codec

import "github.com/drgolem/lanplayer/internal/ringbuf"

// DecodeResult is the tri-state returned by every Decode call.
type DecodeResult int

const (
	// Running means the codec made progress (or deliberately made none due
	// to backpressure) and should be called again.
	Running DecodeResult = iota
	// Complete means the codec has produced its last frame and the upstream
	// has disconnected; the decode engine should stop and await the next
	// start-stream.
	Complete
	// Error means the codec hit an unrecoverable condition; the decode
	// engine should close it and await the next start-stream.
	Error
)

func (r DecodeResult) String() string {
	switch r {
	case Running:
		return "RUNNING"
	case Complete:
		return "COMPLETE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// OpenParams carries the opaque start-stream negotiation parameters exactly
// as received from the control protocol. Only Pcm interprets them; every
// other codec ignores them and recovers its real parameters from the stream
// itself.
type OpenParams struct {
	SampleSize   byte // ASCII digit, PCM-only: bytes per sample is SampleSize-'0'+1
	SampleRate   byte // ASCII digit, PCM-only: index into the fixed rate table
	Channels     byte // ASCII digit, PCM-only: channel count
	Endianness   byte // ASCII '0' or '1', PCM-only: '0' means big-endian
}

// Codec is the uniform interface every decoder variant implements. The
// decode engine constructs a Codec instance (via Descriptor.New) when its id
// is started and reuses it across consecutive tracks of the same id: Open
// must be idempotent if called twice without an intervening Close.
type Codec interface {
	// Open (re)initializes the codec for a new track. streamBuf and
	// outputBuf are the shared ring buffers; the codec does not retain them
	// beyond Close.
	Open(streamBuf, outputBuf *ringbuf.RingBuffer, params OpenParams) error
	// Close releases any resources Open acquired (e.g. restoring StreamBuf's
	// alignment to 1).
	Close() error
	// Decode performs at most one natural decode unit (one PCM chunk, one
	// FLAC frame, one Vorbis/MP3 packet) and reports progress.
	Decode() DecodeResult
}

// TrackNotifier is the hook every codec calls under OutputBuf's lock the
// instant it recovers a new track's real parameters: it must set
// next_sample_rate, place track_start at the current write offset, and run
// FadeController.checkfade before the first frame of the track is written.
// Satisfied by *engine.Engine.
type TrackNotifier interface {
	NotifyTrackStart(sampleRate uint32)
}

// StreamStatus is the hook a codec consults, under StreamBuf's lock, to tell
// whether more bytes are still coming. A codec that has drained StreamBuf to
// zero uses this to distinguish "starved, call me again later" from "the
// upstream disconnected, this is the last Decode call" without reaching into
// engine's StreamState directly. Satisfied by *engine.Engine.
type StreamStatus interface {
	Disconnected() bool
}

// Descriptor is the registration record for one codec variant: its
// control-protocol id, the file extensions it's invoked for, and the
// input/output thresholds the decode engine checks before calling Decode.
type Descriptor struct {
	ID                  byte
	MimeTags            string
	MinReadBytes        uint64
	MinOutputSpaceBytes uint64
	New                 func() Codec
}

// BytesPerFrame is the size of one canonical stereo frame: two signed
// 32-bit little-endian samples.
const BytesPerFrame = 8
