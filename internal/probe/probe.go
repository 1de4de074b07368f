// Package probe watches media elements until both report an authoritative
// duration, then emits the pair exactly once per source change.
package probe

import (
	"context"
	"log"
	"time"

	"dubsync/internal/media"
)

// Pair is one resolved duration pair. Audio is nil when no dub source is
// configured or its metadata never resolved: playback then proceeds
// unsynchronized at rate 1.0.
type Pair struct {
	Video float64
	Audio *float64
}

// Probe resolves duration pairs with an explicit timeout. The original
// behavior was to wait forever on a source that never reports metadata; the
// timeout bounds that wait and degrades to an unsynchronized pair instead.
type Probe struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// New returns a probe with the given metadata timeout.
func New(timeout time.Duration) *Probe {
	return &Probe{Timeout: timeout, PollInterval: 100 * time.Millisecond}
}

// Watch polls both elements until each reports a finite, non-zero duration
// and sends the pair on the returned channel, then closes it. dub may be nil.
// If the video's duration never resolves within the timeout, nothing is
// emitted and the channel is closed: rates stay unset and preview remains
// usable at rate 1.0. Call Watch again whenever either source changes.
func (p *Probe) Watch(ctx context.Context, video, dub *media.Element) <-chan Pair {
	out := make(chan Pair, 1)
	go func() {
		defer close(out)

		deadline := time.Now().Add(p.Timeout)
		ticker := time.NewTicker(p.PollInterval)
		defer ticker.Stop()

		for {
			videoDur := video.Duration()
			dubDur := 0.0
			if dub != nil {
				dubDur = dub.Duration()
			}

			if videoDur > 0 && (dub == nil || dubDur > 0) {
				pair := Pair{Video: videoDur}
				if dub != nil {
					pair.Audio = &dubDur
				}
				out <- pair
				return
			}

			if time.Now().After(deadline) {
				if videoDur > 0 {
					// Dub metadata never resolved: degrade to pass-through.
					log.Printf("dub metadata unresolved after %s, continuing unsynchronized", p.Timeout)
					out <- Pair{Video: videoDur}
				} else {
					log.Printf("video metadata unresolved after %s, rates left unset", p.Timeout)
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
