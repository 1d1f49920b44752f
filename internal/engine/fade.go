package engine

// FadeController arms and computes the gain-ramp window around a track
// boundary. It does not perform the sample-domain multiply itself — that is
// the output thread's job (an external collaborator, per spec §1) — it only
// places the ramp's start/end offsets into OutputState so the output side
// knows where to apply it.
type FadeController struct {
	armed    bool
	mode     FadeMode
	duration uint64 // ramp length in bytes, as passed to Arm
}

// NewFadeController builds a controller that, once Arm is called, applies
// mode across duration bytes around every subsequent track boundary.
func NewFadeController() *FadeController {
	return &FadeController{}
}

// Arm configures every track boundary from the next one on to apply mode over
// duration bytes, until Disarm or another Arm. A duration of zero disarms
// fading.
func (f *FadeController) Arm(mode FadeMode, duration uint64) {
	f.mode = mode
	f.duration = duration
	f.armed = mode != FadeNone && duration > 0
}

// Disarm clears any pending fade.
func (f *FadeController) Disarm() {
	f.armed = false
	f.mode = FadeNone
}

// CheckFade is called by a codec exactly when it has just set TrackStart for
// a new track (new_track=true). If a fade is armed it computes fade_start/
// fade_end relative to the track boundary and writes them into out, along
// with the active mode. Call with OutputBuf's lock already held, mirroring
// the codec's own locking for the TrackStart assignment it accompanies.
func (f *FadeController) CheckFade(newTrack bool, trackStartOffset uint64, out *OutputState) {
	if !newTrack || !f.armed {
		return
	}

	switch f.mode {
	case FadeCrossfade, FadeInOut:
		out.FadeStart = trackStartOffset - f.duration/2
		out.FadeEnd = trackStartOffset + f.duration/2
	case FadeIn:
		out.FadeStart = trackStartOffset
		out.FadeEnd = trackStartOffset + f.duration
	case FadeOut:
		out.FadeStart = trackStartOffset - f.duration
		out.FadeEnd = trackStartOffset
	default:
		return
	}
	out.FadeMode = f.mode
}
