package media

import (
	"context"
	"log"
	"sync"
	"time"
)

// timeUpdateEvery controls how many 20ms clock ticks pass between
// EventTimeUpdate notifications (10 ticks = 200ms, roughly the cadence a
// browser media element reports at).
const timeUpdateEvery = 10

// Element simulates one host media element: it owns the playback clock for a
// single source and is driven by commands (play, pause, set rate, set
// position) while observers receive asynchronous events. Position advances in
// 20ms ticks scaled by the playback rate.
type Element struct {
	kind   Kind
	source string

	mu       sync.RWMutex
	duration float64 // seconds, 0 until metadata resolves
	width    int
	height   int
	position float64
	rate     float64
	muted    bool
	playing  bool
	pcm      []int16 // decoded preview samples, may be empty

	subMu sync.RWMutex
	subs  map[chan Event]struct{}
}

// NewElement creates an element for the given source reference. The element
// reports no duration until Load succeeds.
func NewElement(kind Kind, source string) *Element {
	return &Element{
		kind:   kind,
		source: source,
		rate:   1.0,
		subs:   make(map[chan Event]struct{}),
	}
}

// Load probes the source metadata and decodes its audio for preview
// monitoring. A source that never yields a finite duration leaves the element
// in the "unknown duration" state; the caller decides how long to wait.
func (e *Element) Load(ctx context.Context, ffprobePath, ffmpegPath string) error {
	info, err := Probe(ctx, ffprobePath, e.source)
	if err != nil {
		log.Printf("%s metadata unavailable for %s: %v", e.kind, e.source, err)
		return err
	}

	// Preview audio is best-effort: a video without an audio stream, or a
	// decode error, simply leaves the monitor silent for this element.
	pcm, err := DecodePCM(ctx, ffmpegPath, e.source)
	if err != nil {
		log.Printf("%s preview decode skipped for %s: %v", e.kind, e.source, err)
	} else {
		e.SetPCM(pcm)
	}

	e.SetMetadata(info)
	return nil
}

// SetMetadata records the probed metadata and notifies observers. Durations
// are immutable once probed for a given source; a replacement source gets a
// fresh element.
func (e *Element) SetMetadata(info Info) {
	e.mu.Lock()
	e.duration = info.Duration
	e.width = info.Width
	e.height = info.Height
	e.mu.Unlock()
	e.publish(Event{Type: EventMetadata, Duration: info.Duration})
}

// SetPCM attaches decoded preview samples.
func (e *Element) SetPCM(pcm []int16) {
	e.mu.Lock()
	e.pcm = pcm
	e.mu.Unlock()
}

// Run drives the element's playback clock. Blocks until ctx is cancelled.
func (e *Element) Run(ctx context.Context) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if !e.playing {
			e.mu.Unlock()
			continue
		}
		e.position += FrameDuration.Seconds() * e.rate
		ended := e.duration > 0 && e.position >= e.duration
		if ended {
			e.position = e.duration
			e.playing = false
		}
		pos, dur := e.position, e.duration
		e.mu.Unlock()

		if ended {
			e.publish(Event{Type: EventEnded, Position: pos, Duration: dur})
			continue
		}
		tick++
		if tick%timeUpdateEvery == 0 {
			e.publish(Event{Type: EventTimeUpdate, Position: pos, Duration: dur})
		}
	}
}

// Subscribe registers an event observer. The returned cancel func must be
// called on teardown. Slow observers have events dropped rather than blocking
// the clock.
func (e *Element) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()
	return ch, func() {
		e.subMu.Lock()
		delete(e.subs, ch)
		e.subMu.Unlock()
	}
}

func (e *Element) publish(ev Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Play starts the clock.
func (e *Element) Play() {
	e.mu.Lock()
	e.playing = true
	e.mu.Unlock()
}

// Pause stops the clock, keeping the current position.
func (e *Element) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// SetRate sets the playback rate multiplier. Non-positive rates are ignored.
func (e *Element) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()
}

// SetPosition seeks to the given position in seconds, clamped to the known
// duration.
func (e *Element) SetPosition(seconds float64) {
	e.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.position = seconds
	e.mu.Unlock()
}

// SetMuted silences or restores the element's audible output. Muting only
// affects the preview monitor, never timing.
func (e *Element) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *Element) Kind() Kind     { return e.kind }
func (e *Element) Source() string { return e.source }

func (e *Element) Position() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// Duration returns the probed duration in seconds, or 0 while unknown.
func (e *Element) Duration() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.duration
}

func (e *Element) Rate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rate
}

func (e *Element) Muted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.muted
}

func (e *Element) Playing() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.playing
}

// Resolution returns the native video resolution, or (0, 0) for audio
// elements and unprobed sources.
func (e *Element) Resolution() (width, height int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.width, e.height
}

// PreviewFrame returns one 20ms PCM frame at the current position, scaled so
// that playback at the configured rate covers rate*20ms of source audio per
// frame. Returns nil when paused, muted, or no preview samples are loaded.
func (e *Element) PreviewFrame() []int16 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.playing || e.muted || len(e.pcm) == 0 {
		return nil
	}
	start := int(e.position*SampleRate) * Channels
	if start >= len(e.pcm) {
		return nil
	}
	span := int(float64(FrameSize)*e.rate) * Channels
	if span < Channels {
		span = Channels
	}
	end := start + span
	if end > len(e.pcm) {
		end = len(e.pcm)
	}
	return Resample(e.pcm[start:end], FrameSamples)
}
