// Package playback owns the shared play/pause/seek state for the video and
// dub tracks and keeps them aligned during interactive preview.
package playback

import (
	"context"
	"log"
	stdsync "sync"

	"dubsync/internal/media"
	avsync "dubsync/internal/sync"
)

// Controller applies synchronized rates to both tracks and maps the single
// user-facing timeline onto each track's native position. It exclusively owns
// the sync state; the capture pipeline never touches it.
type Controller struct {
	mu      stdsync.Mutex
	video   *media.Element
	dub     *media.Element
	state   avsync.State
	playing bool

	drift    DriftCorrector
	sourceCh chan struct{}
}

// NewController creates a controller with the given drift tolerance.
func NewController(driftTolerance float64) *Controller {
	if driftTolerance <= 0 {
		driftTolerance = DefaultDriftTolerance
	}
	return &Controller{
		state:    avsync.State{VideoRate: 1.0, AudioRate: 1.0, Reference: avsync.ReferenceVideo},
		drift:    DriftCorrector{Tolerance: driftTolerance},
		sourceCh: make(chan struct{}, 1),
	}
}

// SetVideo replaces the video source. Playback stops and rates reset until
// the new pair is probed.
func (c *Controller) SetVideo(el *media.Element) {
	c.mu.Lock()
	if c.video != nil {
		c.video.Pause()
	}
	if c.dub != nil {
		c.dub.Pause()
	}
	c.video = el
	c.playing = false
	c.state = avsync.State{VideoRate: 1.0, AudioRate: 1.0, Reference: avsync.ReferenceVideo}
	c.mu.Unlock()
	c.signalSourceChange()
}

// SetDub replaces the dub source. Playback stops and rates reset until the
// new pair is probed, same as a video replacement; otherwise the video would
// keep playing against a dub that starts paused.
func (c *Controller) SetDub(el *media.Element) {
	c.mu.Lock()
	if c.video != nil {
		c.video.Pause()
	}
	if c.dub != nil {
		c.dub.Pause()
	}
	c.dub = el
	c.playing = false
	c.state = avsync.State{VideoRate: 1.0, AudioRate: 1.0, Reference: avsync.ReferenceVideo}
	c.mu.Unlock()
}

func (c *Controller) signalSourceChange() {
	select {
	case c.sourceCh <- struct{}{}:
	default:
	}
}

// Video returns the current video element, or nil.
func (c *Controller) Video() *media.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

// Dub returns the current dub element, or nil.
func (c *Controller) Dub() *media.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dub
}

// Run subscribes to the video track's events and reacts to time updates and
// track end. It re-subscribes whenever the video source changes. Blocks until
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	for {
		c.mu.Lock()
		video := c.video
		c.mu.Unlock()

		if video == nil {
			select {
			case <-ctx.Done():
				return
			case <-c.sourceCh:
				continue
			}
		}

		events, cancel := video.Subscribe()
		c.consume(ctx, events)
		cancel()
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Controller) consume(ctx context.Context, events <-chan media.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sourceCh:
			return
		case ev := <-events:
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev media.Event) {
	switch ev.Type {
	case media.EventTimeUpdate:
		c.correctDrift(ev)
	case media.EventEnded:
		c.onVideoEnded()
	}
}

// correctDrift runs on every video time update during Playing. No correction
// occurs while paused; seeks set both positions explicitly.
func (c *Controller) correctDrift(ev media.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || !c.state.HasDub || c.dub == nil {
		return
	}
	corrected, ok := c.drift.Check(ev.Position, ev.Duration, c.dub.Position(), c.dub.Duration())
	if !ok {
		return
	}
	log.Printf("drift correction: audio -> %.2fs", corrected)
	c.dub.SetPosition(corrected)
}

// onVideoEnded forces Paused and rewinds the dub. The video track alone is
// authoritative for track end.
func (c *Controller) onVideoEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	if c.dub != nil {
		c.dub.Pause()
		c.dub.SetPosition(0)
	}
}

// ApplyDurations derives and applies the rate pair for a resolved duration
// pair. audioDuration <= 0 means no dub: pass-through at rate 1.0 with the
// video's native audio audible.
func (c *Controller) ApplyDurations(videoDuration, audioDuration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = avsync.Derive(videoDuration, audioDuration)
	if c.video != nil {
		c.video.SetRate(c.state.VideoRate)
		c.video.SetMuted(c.state.NativeAudioMuted)
	}
	if c.dub != nil {
		c.dub.SetRate(c.state.AudioRate)
	}
	log.Printf("rates applied: video %.3fx, audio %.3fx (reference: %s)",
		c.state.VideoRate, c.state.AudioRate, c.state.Reference)
}

// TogglePlay flips between Paused and Playing. Both tracks' play/pause calls
// are issued back-to-back under one lock so the transition lands within a
// single scheduling tick. Returns the new playing state.
func (c *Controller) TogglePlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return false
	}
	if c.playing {
		c.video.Pause()
		if c.dub != nil {
			c.dub.Pause()
		}
		c.playing = false
	} else {
		c.video.Play()
		if c.dub != nil {
			c.dub.Play()
		}
		c.playing = true
	}
	return c.playing
}

// Seek maps a percent of total onto each track's own duration independently.
// Percent-of-total is the only coordinate system both tracks share, since
// they run at different rates.
func (c *Controller) Seek(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video != nil {
		if d := c.video.Duration(); d > 0 {
			c.video.SetPosition(percent / 100 * d)
		}
	}
	if c.dub != nil {
		if d := c.dub.Duration(); d > 0 {
			c.dub.SetPosition(percent / 100 * d)
		}
	}
}

// SetNativeAudioMuted lets the user toggle the video's own audio channel
// independently. It only affects audible output, never timing.
func (c *Controller) SetNativeAudioMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.NativeAudioMuted = muted
	if c.video != nil {
		c.video.SetMuted(muted)
	}
}

// State returns a snapshot of the sync state.
func (c *Controller) State() avsync.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Playing reports whether interactive playback is running.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Telemetry is the sync snapshot exposed to callers for display purposes.
type Telemetry struct {
	Playing          bool    `json:"playing"`
	VideoRate        float64 `json:"video_rate"`
	AudioRate        float64 `json:"audio_rate"`
	Accelerated      string  `json:"accelerated,omitempty"`
	Reference        string  `json:"reference"`
	NativeAudioMuted bool    `json:"native_audio_muted"`
	VideoPosition    float64 `json:"video_position"`
	VideoDuration    float64 `json:"video_duration"`
	AudioPosition    float64 `json:"audio_position"`
	AudioDuration    float64 `json:"audio_duration"`
	TargetDuration   float64 `json:"target_duration"`
	HasDub           bool    `json:"has_dub"`
}

// Telemetry returns the current sync telemetry.
func (c *Controller) Telemetry() Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := Telemetry{
		Playing:          c.playing,
		VideoRate:        c.state.VideoRate,
		AudioRate:        c.state.AudioRate,
		Accelerated:      c.state.Accelerated(),
		Reference:        string(c.state.Reference),
		NativeAudioMuted: c.state.NativeAudioMuted,
		HasDub:           c.state.HasDub,
	}
	if c.video != nil {
		t.VideoPosition = c.video.Position()
		t.VideoDuration = c.video.Duration()
	}
	if c.dub != nil {
		t.AudioPosition = c.dub.Position()
		t.AudioDuration = c.dub.Duration()
	}
	if t.VideoRate > 0 && t.VideoDuration > 0 {
		t.TargetDuration = t.VideoDuration / t.VideoRate
	}
	return t
}

// PrimeForCapture pauses interactive playback and rewinds both tracks to
// zero. The preview is paused, not torn down, so the two pipelines never
// issue conflicting commands to the same tracks.
func (c *Controller) PrimeForCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	if c.video != nil {
		c.video.Pause()
		c.video.SetPosition(0)
	}
	if c.dub != nil {
		c.dub.Pause()
		c.dub.SetPosition(0)
	}
}

// StartCaptureVideo plays the video at the given rate to drive frame
// production at the correct real-time pace during an export.
func (c *Controller) StartCaptureVideo(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return
	}
	c.video.SetRate(rate)
	c.video.Play()
}

// StopCaptureVideo pauses the video at the end of an export.
func (c *Controller) StopCaptureVideo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video != nil {
		c.video.Pause()
	}
}

// RestoreAfterCapture resets both track positions and reapplies the
// interactive rates so the preview is fully usable again. Runs on every
// capture exit path, success or failure.
func (c *Controller) RestoreAfterCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	if c.video != nil {
		c.video.Pause()
		c.video.SetPosition(0)
		c.video.SetRate(c.state.VideoRate)
		c.video.SetMuted(c.state.NativeAudioMuted)
	}
	if c.dub != nil {
		c.dub.Pause()
		c.dub.SetPosition(0)
		c.dub.SetRate(c.state.AudioRate)
	}
}
