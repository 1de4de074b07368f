package playback

import (
	"math"
	"testing"
)

func TestDriftWithinToleranceNoCorrection(t *testing.T) {
	d := DriftCorrector{Tolerance: 0.05}

	// video at 50%, audio at 52% of its own duration: 2% divergence
	if _, ok := d.Check(5, 10, 10.4, 20); ok {
		t.Error("correction fired within tolerance")
	}
	// exactly at the threshold must not fire, even when the float
	// subtraction lands a hair above it (0.55 - 0.5 > 0.05 in float64)
	if _, ok := d.Check(5, 10, 11, 20); ok {
		t.Error("correction fired at exactly 5% divergence")
	}
	if _, ok := d.Check(5, 10, 9, 20); ok {
		t.Error("correction fired at exactly -5% divergence")
	}
}

func TestDriftBeyondToleranceCorrects(t *testing.T) {
	d := DriftCorrector{Tolerance: 0.05}

	// video at 50%, audio at 60%: 10% divergence
	corrected, ok := d.Check(5, 10, 12, 20)
	if !ok {
		t.Fatal("correction did not fire beyond tolerance")
	}
	// audio follows video: 50% of the audio's 20s
	if math.Abs(corrected-10) > 1e-9 {
		t.Errorf("corrected position = %v, want 10", corrected)
	}
}

func TestDriftCorrectionIsSymmetric(t *testing.T) {
	d := DriftCorrector{Tolerance: 0.05}

	// audio lagging
	if _, ok := d.Check(6, 10, 10, 20); !ok {
		t.Error("no correction for lagging audio (60% vs 50%)")
	}
	// audio ahead
	if _, ok := d.Check(4, 10, 10, 20); !ok {
		t.Error("no correction for audio running ahead (40% vs 50%)")
	}
}

func TestDriftUnknownDurationsNeverFire(t *testing.T) {
	d := DriftCorrector{Tolerance: 0.05}
	if _, ok := d.Check(5, 0, 10, 20); ok {
		t.Error("correction fired with unknown video duration")
	}
	if _, ok := d.Check(5, 10, 10, 0); ok {
		t.Error("correction fired with unknown audio duration")
	}
}

func TestDriftIffProperty(t *testing.T) {
	d := DriftCorrector{Tolerance: 0.05}
	const videoDur, audioDur = 10.0, 20.0

	for ap := 0.0; ap <= audioDur; ap += 0.25 {
		videoPercent := 0.5
		audioPercent := ap / audioDur
		diverged := math.Abs(videoPercent-audioPercent) > 0.05+toleranceSlack

		_, ok := d.Check(5, videoDur, ap, audioDur)
		if ok != diverged {
			t.Errorf("audioPos=%v: fired=%v, diverged=%v", ap, ok, diverged)
		}
	}
}
