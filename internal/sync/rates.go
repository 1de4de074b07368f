// Package sync computes the playback-rate pair that makes two
// independently-timed media tracks finish at the same wall-clock instant.
package sync

import "math"

// DurationEpsilon is the tolerance in seconds under which two durations are
// considered equal and no acceleration is applied.
const DurationEpsilon = 1e-3

// ComputeRates returns (videoRate, audioRate) such that
// videoDuration/videoRate == audioDuration/audioRate. Only the shorter track
// is ever accelerated; a rate below 1.0 is never produced, keeping the longer
// track at its natural pace and minimizing audible speed distortion.
func ComputeRates(videoDuration, audioDuration float64) (videoRate, audioRate float64) {
	if videoDuration <= 0 || audioDuration <= 0 {
		return 1.0, 1.0
	}
	if math.Abs(videoDuration-audioDuration) <= DurationEpsilon {
		return 1.0, 1.0
	}
	if audioDuration > videoDuration {
		return 1.0, audioDuration / videoDuration
	}
	return videoDuration / audioDuration, 1.0
}

// Reference identifies the track that keeps rate 1.0 and therefore defines
// canonical wall-clock progress.
type Reference string

const (
	ReferenceVideo Reference = "video"
	ReferenceAudio Reference = "audio"
)

// State holds the derived synchronization state for one video/dub pair. It is
// owned and mutated exclusively by the playback controller.
type State struct {
	VideoRate        float64
	AudioRate        float64
	Reference        Reference
	NativeAudioMuted bool // the video's own audio channel
	VideoDuration    float64
	AudioDuration    float64 // 0 when no dub is configured
	HasDub           bool
}

// Derive builds the sync state for the given duration pair. audioDuration <= 0
// means no dub track exists: pass-through mode at rate 1.0 with the video's
// native audio audible.
func Derive(videoDuration, audioDuration float64) State {
	if audioDuration <= 0 {
		return State{
			VideoRate:     1.0,
			AudioRate:     1.0,
			Reference:     ReferenceVideo,
			VideoDuration: videoDuration,
		}
	}
	vr, ar := ComputeRates(videoDuration, audioDuration)
	ref := ReferenceVideo
	if vr > 1.0 {
		ref = ReferenceAudio
	}
	return State{
		VideoRate:        vr,
		AudioRate:        ar,
		Reference:        ref,
		NativeAudioMuted: true,
		VideoDuration:    videoDuration,
		AudioDuration:    audioDuration,
		HasDub:           true,
	}
}

// TargetDuration returns the canonical total synchronized length in seconds:
// the reference track's duration divided by its (unit) rate. By the rate
// invariant this equals audioDuration/audioRate as well.
func (s State) TargetDuration() float64 {
	if s.VideoRate <= 0 {
		return s.VideoDuration
	}
	return s.VideoDuration / s.VideoRate
}

// Accelerated names the track running above 1.0, or "" when both are at
// natural pace. For display purposes only.
func (s State) Accelerated() string {
	switch {
	case s.VideoRate > 1.0:
		return "video"
	case s.AudioRate > 1.0:
		return "audio"
	}
	return ""
}
