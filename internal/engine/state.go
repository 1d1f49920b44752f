// Package engine owns the decode thread, the negotiation state shared
// between the stream/decode/output sides, and the two ring buffers that
// connect them. A single Engine value replaces what the original design kept
// as process-wide singletons; every collaborator is handed the same *Engine
// instead of reaching into package-level state.
package engine

import "sync"

// StreamState mirrors the control-protocol connection state. The core only
// ever inspects the single predicate Disconnected; it never needs the full
// state enum the control-protocol client tracks internally.
type StreamState struct {
	mu           sync.Mutex
	disconnected bool
}

// SetDisconnected is called by the stream goroutine once no more bytes are
// coming (EOF or connection loss).
func (s *StreamState) SetDisconnected(v bool) {
	s.mu.Lock()
	s.disconnected = v
	s.mu.Unlock()
}

// Disconnected reports whether the upstream has signalled end of data.
// Callers invoke this while already holding StreamBuf's lock, matching
// spec's "read by decoders under STREAMBUF's lock".
func (s *StreamState) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// RunState is the decode thread's coarse state.
type RunState int

const (
	// Stopped means the decode loop is not running a track.
	Stopped RunState = iota
	// Running means the decode loop is actively pulling a codec's Decode.
	Running
)

// DecodeState holds the decode loop's run state and the new_stream flag that
// StartStream arms for each (re)opened codec. The codecs in this module do
// not read new_stream: each arms its own per-track flag in Open and clears it
// when it announces the track's parameters.
type DecodeState struct {
	mu        sync.Mutex
	newStream bool
	state     RunState
}

// ArmNewStream sets new_stream, called by StartStream when a codec is
// (re)opened.
func (d *DecodeState) ArmNewStream() {
	d.mu.Lock()
	d.newStream = true
	d.mu.Unlock()
}

// ConsumeNewStream reports and clears new_stream in one step. No codec in
// this module calls it (see DecodeState).
func (d *DecodeState) ConsumeNewStream() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.newStream {
		return false
	}
	d.newStream = false
	return true
}

// SetRunning/SetStopped/IsRunning manage the coarse decode-loop state.
func (d *DecodeState) SetRunning() {
	d.mu.Lock()
	d.state = Running
	d.mu.Unlock()
}

func (d *DecodeState) SetStopped() {
	d.mu.Lock()
	d.state = Stopped
	d.mu.Unlock()
}

func (d *DecodeState) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == Running
}

// FadeMode selects which half of the gain ramp a track boundary uses.
type FadeMode int

const (
	FadeNone FadeMode = iota
	FadeCrossfade
	FadeIn
	FadeOut
	FadeInOut
)

// OutputState carries the negotiation handshake visible to the output side:
// the sample rate to switch to, the offset of a new track's first frame, and
// the active fade window. All fields are written while OutputBuf's lock is
// held, before the corresponding AdvanceWrite, so the output thread observes
// metadata strictly before the bytes it describes (spec §5's ordering
// guarantee). Callers must hold OutputBuf's lock for every method here;
// OutputState has no lock of its own by design, piggy-backing on the buffer
// it describes.
type OutputState struct {
	NextSampleRate uint32

	// TrackStartSet/TrackStartOffset model Option<WriteOffset>: Set is false
	// when no track-start marker is pending.
	TrackStartSet    bool
	TrackStartOffset uint64

	FadeMode  FadeMode
	FadeStart uint64
	FadeEnd   uint64
}

// SetTrackStart records the write offset of a new track's first frame.
func (o *OutputState) SetTrackStart(offset uint64) {
	o.TrackStartSet = true
	o.TrackStartOffset = offset
}

// ConsumeTrackStart reports and clears the pending marker; the output thread
// calls this once it has crossed the offset.
func (o *OutputState) ConsumeTrackStart() (offset uint64, ok bool) {
	if !o.TrackStartSet {
		return 0, false
	}
	o.TrackStartSet = false
	return o.TrackStartOffset, true
}
