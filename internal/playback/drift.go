package playback

// DefaultDriftTolerance is the fractional-progress divergence above which the
// corrector fires. 5% avoids correcting rate-driven micro-jitter while
// catching real desync from seek races or stalls.
const DefaultDriftTolerance = 0.05

// toleranceSlack absorbs float error in the percentage subtraction so a
// divergence of exactly the tolerance never fires.
const toleranceSlack = 1e-9

// DriftCorrector measures relative divergence between the two tracks'
// fractional progress. Correction is one-directional: audio follows video,
// because video is the visual reference the viewer judges sync against.
type DriftCorrector struct {
	Tolerance float64
}

// Check compares the tracks' fractional progress. When divergence exceeds the
// tolerance it returns the audio position that realigns the dub with the
// video, and true. Unknown durations never trigger a correction.
func (d DriftCorrector) Check(videoPos, videoDur, audioPos, audioDur float64) (float64, bool) {
	if videoDur <= 0 || audioDur <= 0 {
		return 0, false
	}
	videoPercent := videoPos / videoDur
	audioPercent := audioPos / audioDur
	diff := videoPercent - audioPercent
	if diff < 0 {
		diff = -diff
	}
	if diff <= d.Tolerance+toleranceSlack {
		return 0, false
	}
	return videoPercent * audioDur, true
}
