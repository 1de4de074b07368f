package stream

import (
	"context"
	"testing"
	"time"

	"dubsync/internal/media"
)

func TestMixFramesSums(t *testing.T) {
	a := []int16{100, -200, 300}
	b := []int16{1, 2, 3}
	got := mixFrames(a, b)
	want := []int16{101, -198, 303}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMixFramesClips(t *testing.T) {
	got := mixFrames([]int16{32000, -32000}, []int16{32000, -32000})
	if got[0] != 32767 {
		t.Errorf("positive clip = %d, want 32767", got[0])
	}
	if got[1] != -32768 {
		t.Errorf("negative clip = %d, want -32768", got[1])
	}
}

func TestMixFramesNilHandling(t *testing.T) {
	if got := mixFrames(nil, nil); got != nil {
		t.Errorf("mix of two nil frames = %v, want nil", got)
	}
	a := []int16{1, 2}
	if got := mixFrames(a, nil); len(got) != 2 || got[0] != 1 {
		t.Errorf("mix(a, nil) = %v, want a passthrough", got)
	}
	if got := mixFrames(nil, a); len(got) != 2 || got[1] != 2 {
		t.Errorf("mix(nil, a) = %v, want a passthrough", got)
	}
}

func TestMixFramesUnevenLengths(t *testing.T) {
	got := mixFrames([]int16{1, 2, 3, 4}, []int16{10, 20})
	if len(got) != 2 {
		t.Fatalf("length = %d, want the shorter frame's 2", len(got))
	}
	if got[0] != 11 || got[1] != 22 {
		t.Errorf("got %v, want [11 22]", got)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	m := NewMonitor()
	if m.ListenerCount() != 0 {
		t.Fatalf("fresh monitor has %d listeners", m.ListenerCount())
	}

	l1 := m.Subscribe()
	l2 := m.Subscribe()
	if m.ListenerCount() != 2 {
		t.Fatalf("listener count = %d, want 2", m.ListenerCount())
	}

	m.Unsubscribe(l1)
	if m.ListenerCount() != 1 {
		t.Fatalf("listener count = %d after unsubscribe, want 1", m.ListenerCount())
	}

	select {
	case <-l1.done:
	default:
		t.Error("unsubscribed listener not signalled done")
	}
	m.Unsubscribe(l2)
}

func TestMonitorDeliversMixedFrames(t *testing.T) {
	dub := media.NewElement(media.KindAudio, "dub.mp3")
	dub.SetMetadata(media.Info{Duration: 10})
	pcm := make([]int16, media.SampleRate) // one second
	for i := range pcm {
		pcm[i] = 1000
	}
	dub.SetPCM(pcm)
	dub.Play()

	m := NewMonitor()
	m.SetSources(nil, dub)
	l := m.Subscribe()
	defer m.Unsubscribe(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case frame := <-l.C:
		if len(frame) != media.FrameSamples {
			t.Errorf("frame length = %d, want %d", len(frame), media.FrameSamples)
		}
		if frame[0] != 1000 {
			t.Errorf("frame sample = %d, want 1000", frame[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered within 2s")
	}
}

func TestMonitorSilentWithoutSources(t *testing.T) {
	m := NewMonitor()
	l := m.Subscribe()
	defer m.Unsubscribe(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case frame := <-l.C:
		t.Fatalf("received %d samples from a sourceless monitor", len(frame))
	case <-time.After(100 * time.Millisecond):
	}
}
