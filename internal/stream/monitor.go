// Package stream exposes the interactive preview's audible output: the
// video's native audio mixed with the dub track, fanned out to HTTP and
// WebRTC listeners.
package stream

import (
	"context"
	"sync"
	"time"

	"dubsync/internal/media"
)

// Monitor pulls 20ms preview frames from the playback elements, mixes them,
// and fans the result out to N listeners.
type Monitor struct {
	mu        sync.RWMutex
	video     *media.Element
	dub       *media.Element
	listeners map[*Listener]struct{}
}

// Listener receives mixed PCM frames from the monitor.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
}

// NewMonitor creates a preview monitor with no sources attached.
func NewMonitor() *Monitor {
	return &Monitor{
		listeners: make(map[*Listener]struct{}),
	}
}

// SetSources swaps the monitored elements. Either may be nil.
func (m *Monitor) SetSources(video, dub *media.Element) {
	m.mu.Lock()
	m.video = video
	m.dub = dub
	m.mu.Unlock()
}

// Subscribe registers a new listener.
func (m *Monitor) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.listeners[l] = struct{}{}
	m.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (m *Monitor) Unsubscribe(l *Listener) {
	m.mu.Lock()
	delete(m.listeners, l)
	m.mu.Unlock()
	close(l.done)
}

// ListenerCount returns the number of active listeners.
func (m *Monitor) ListenerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

// Run ticks at the frame cadence, mixing whatever the elements currently
// produce. Slow listeners get frames dropped rather than blocking the mix.
// Blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(media.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		var native, dub []int16
		if m.video != nil {
			native = m.video.PreviewFrame()
		}
		if m.dub != nil {
			dub = m.dub.PreviewFrame()
		}
		frame := mixFrames(native, dub)
		if frame != nil {
			for l := range m.listeners {
				select {
				case l.C <- frame:
				default:
					// listener too slow, drop frame to keep the mix moving
				}
			}
		}
		m.mu.RUnlock()
	}
}

// mixFrames sums two PCM frames, clipping to the int16 range. Either frame
// may be nil; both nil yields nil (silence, nothing broadcast).
func mixFrames(a, b []int16) []int16 {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		mixed := int32(a[i]) + int32(b[i])
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		out[i] = int16(mixed)
	}
	return out
}
