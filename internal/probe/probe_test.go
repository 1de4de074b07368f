package probe

import (
	"context"
	"testing"
	"time"

	"dubsync/internal/media"
)

func testProbe(timeout time.Duration) *Probe {
	return &Probe{Timeout: timeout, PollInterval: 5 * time.Millisecond}
}

func recvPair(t *testing.T, ch <-chan Pair) (Pair, bool) {
	t.Helper()
	select {
	case p, ok := <-ch:
		return p, ok
	case <-time.After(2 * time.Second):
		t.Fatal("probe channel silent for 2s")
		return Pair{}, false
	}
}

func TestWatchEmitsResolvedPair(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4")
	video.SetMetadata(media.Info{Duration: 10})
	dub := media.NewElement(media.KindAudio, "dub.mp3")
	dub.SetMetadata(media.Info{Duration: 20})

	p, ok := recvPair(t, testProbe(time.Second).Watch(context.Background(), video, dub))
	if !ok {
		t.Fatal("channel closed without a pair")
	}
	if p.Video != 10 {
		t.Errorf("video duration = %v, want 10", p.Video)
	}
	if p.Audio == nil || *p.Audio != 20 {
		t.Errorf("audio duration = %v, want 20", p.Audio)
	}
}

func TestWatchWaitsForLateMetadata(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4")
	video.SetMetadata(media.Info{Duration: 10})
	dub := media.NewElement(media.KindAudio, "dub.mp3")

	ch := testProbe(time.Second).Watch(context.Background(), video, dub)

	// dub metadata arrives after the watch started
	time.Sleep(20 * time.Millisecond)
	dub.SetMetadata(media.Info{Duration: 20})

	p, ok := recvPair(t, ch)
	if !ok {
		t.Fatal("channel closed without a pair")
	}
	if p.Audio == nil || *p.Audio != 20 {
		t.Errorf("audio duration = %v, want 20", p.Audio)
	}
}

func TestWatchNilDub(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4")
	video.SetMetadata(media.Info{Duration: 10})

	p, ok := recvPair(t, testProbe(time.Second).Watch(context.Background(), video, nil))
	if !ok {
		t.Fatal("channel closed without a pair")
	}
	if p.Video != 10 {
		t.Errorf("video duration = %v, want 10", p.Video)
	}
	if p.Audio != nil {
		t.Errorf("audio = %v, want nil without a dub", *p.Audio)
	}
}

func TestWatchDubTimeoutDegrades(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4")
	video.SetMetadata(media.Info{Duration: 10})
	dub := media.NewElement(media.KindAudio, "dub.mp3") // never resolves

	p, ok := recvPair(t, testProbe(50*time.Millisecond).Watch(context.Background(), video, dub))
	if !ok {
		t.Fatal("channel closed without a degraded pair")
	}
	if p.Video != 10 {
		t.Errorf("video duration = %v, want 10", p.Video)
	}
	if p.Audio != nil {
		t.Error("degraded pair still carries an audio duration")
	}
}

func TestWatchVideoTimeoutEmitsNothing(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4") // never resolves
	dub := media.NewElement(media.KindAudio, "dub.mp3")
	dub.SetMetadata(media.Info{Duration: 20})

	_, ok := recvPair(t, testProbe(50*time.Millisecond).Watch(context.Background(), video, dub))
	if ok {
		t.Fatal("pair emitted without a video duration")
	}
}

func TestWatchCancel(t *testing.T) {
	video := media.NewElement(media.KindVideo, "clip.mp4") // never resolves
	ctx, cancel := context.WithCancel(context.Background())
	ch := testProbe(time.Minute).Watch(ctx, video, nil)
	cancel()

	if _, ok := recvPair(t, ch); ok {
		t.Fatal("pair emitted after cancellation")
	}
}
