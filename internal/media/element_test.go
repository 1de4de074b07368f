package media

import (
	"context"
	"testing"
	"time"
)

func TestElementClockAdvances(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetMetadata(Info{Duration: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go el.Run(ctx)

	el.Play()
	time.Sleep(200 * time.Millisecond)
	el.Pause()

	pos := el.Position()
	if pos <= 0 {
		t.Fatal("position did not advance while playing")
	}
	if pos > 1 {
		t.Fatalf("position = %v after ~200ms, implausibly far", pos)
	}

	// paused clock must hold still
	time.Sleep(100 * time.Millisecond)
	if got := el.Position(); got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}
}

func TestElementRateScalesClock(t *testing.T) {
	slow := NewElement(KindAudio, "a.mp3")
	slow.SetMetadata(Info{Duration: 100})
	fast := NewElement(KindAudio, "b.mp3")
	fast.SetMetadata(Info{Duration: 100})
	fast.SetRate(2.0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slow.Run(ctx)
	go fast.Run(ctx)

	slow.Play()
	fast.Play()
	time.Sleep(300 * time.Millisecond)
	slow.Pause()
	fast.Pause()

	sp, fp := slow.Position(), fast.Position()
	if sp <= 0 || fp <= 0 {
		t.Fatalf("positions did not advance: %v, %v", sp, fp)
	}
	// 2x should be clearly ahead of 1x; generous bounds, ticker jitter
	if fp < sp*1.5 {
		t.Errorf("2x position %v not clearly ahead of 1x position %v", fp, sp)
	}
}

func TestElementEmitsEnded(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetMetadata(Info{Duration: 0.06})

	events, cancelSub := el.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go el.Run(ctx)
	el.Play()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventEnded {
				continue
			}
			if ev.Position != ev.Duration {
				t.Errorf("ended at %v, duration %v", ev.Position, ev.Duration)
			}
			if el.Playing() {
				t.Error("element still playing after ended")
			}
			return
		case <-deadline:
			t.Fatal("no ended event within 2s")
		}
	}
}

func TestElementEmitsTimeUpdates(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetMetadata(Info{Duration: 10})

	events, cancelSub := el.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go el.Run(ctx)
	el.Play()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventTimeUpdate {
				if ev.Position <= 0 {
					t.Errorf("time update with position %v", ev.Position)
				}
				return
			}
		case <-deadline:
			t.Fatal("no time update within 2s")
		}
	}
}

func TestElementMetadataEvent(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	events, cancelSub := el.Subscribe()
	defer cancelSub()

	el.SetMetadata(Info{Duration: 42, Width: 1920, Height: 1080})

	select {
	case ev := <-events:
		if ev.Type != EventMetadata {
			t.Errorf("event type = %v, want metadata", ev.Type)
		}
		if ev.Duration != 42 {
			t.Errorf("event duration = %v, want 42", ev.Duration)
		}
	default:
		t.Fatal("no metadata event published")
	}

	if got := el.Duration(); got != 42 {
		t.Errorf("Duration = %v, want 42", got)
	}
	w, h := el.Resolution()
	if w != 1920 || h != 1080 {
		t.Errorf("Resolution = (%d, %d), want (1920, 1080)", w, h)
	}
}

func TestElementUnsubscribeStopsDelivery(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	events, cancelSub := el.Subscribe()
	cancelSub()

	el.SetMetadata(Info{Duration: 5})

	select {
	case ev := <-events:
		t.Fatalf("received %v after unsubscribe", ev.Type)
	default:
	}
}

func TestElementSetPositionClamps(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetMetadata(Info{Duration: 10})

	el.SetPosition(15)
	if got := el.Position(); got != 10 {
		t.Errorf("position = %v, want clamped to 10", got)
	}
	el.SetPosition(-3)
	if got := el.Position(); got != 0 {
		t.Errorf("position = %v, want clamped to 0", got)
	}
	el.SetPosition(4.5)
	if got := el.Position(); got != 4.5 {
		t.Errorf("position = %v, want 4.5", got)
	}
}

func TestElementSetRateIgnoresInvalid(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetRate(0)
	if got := el.Rate(); got != 1.0 {
		t.Errorf("rate = %v after SetRate(0), want 1.0", got)
	}
	el.SetRate(-2)
	if got := el.Rate(); got != 1.0 {
		t.Errorf("rate = %v after SetRate(-2), want 1.0", got)
	}
	el.SetRate(1.5)
	if got := el.Rate(); got != 1.5 {
		t.Errorf("rate = %v, want 1.5", got)
	}
}

func TestElementPreviewFrame(t *testing.T) {
	el := NewElement(KindAudio, "dub.mp3")
	el.SetMetadata(Info{Duration: 1})
	el.SetPCM(make([]int16, SampleRate)) // one second of silence

	if got := el.PreviewFrame(); got != nil {
		t.Error("preview frame while paused")
	}

	el.Play()
	frame := el.PreviewFrame()
	if len(frame) != FrameSamples {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameSamples)
	}

	el.SetMuted(true)
	if got := el.PreviewFrame(); got != nil {
		t.Error("preview frame while muted")
	}
	el.SetMuted(false)

	// past the end of the sample buffer
	el.SetPosition(1)
	if got := el.PreviewFrame(); got != nil {
		t.Error("preview frame past the end of the buffer")
	}
}

func TestElementPreviewFrameWithoutPCM(t *testing.T) {
	el := NewElement(KindVideo, "clip.mp4")
	el.SetMetadata(Info{Duration: 10})
	el.Play()
	if got := el.PreviewFrame(); got != nil {
		t.Error("preview frame without decoded samples")
	}
}
