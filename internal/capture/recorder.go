package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"dubsync/internal/media"
)

// webmRecorder multiplexes VP8 video packets and opus audio frames into a
// single WebM container. Block timestamps are in milliseconds (the default
// matroska timecode scale).
type webmRecorder struct {
	video webm.BlockWriteCloser
	audio webm.BlockWriteCloser

	mu    sync.Mutex
	fatal error
}

// writerCloser adapts the artifact buffer to the muxer's WriteCloser
// requirement and latches write failures.
type writerCloser struct {
	w      io.Writer
	closed bool
}

func (wc *writerCloser) Write(p []byte) (int, error) {
	if wc.closed {
		return 0, io.ErrClosedPipe
	}
	return wc.w.Write(p)
}

func (wc *writerCloser) Close() error {
	wc.closed = true
	return nil
}

func newWebMRecorder(w io.Writer, req Request) (*webmRecorder, error) {
	rec := &webmRecorder{}

	frameDurationNS := uint64(time.Second / time.Duration(req.FrameRate))
	writers, err := webm.NewSimpleBlockWriter(&writerCloser{w: w}, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_VP8",
			TrackType:       1,
			DefaultDuration: frameDurationNS,
			Video: &webm.Video{
				PixelWidth:  uint64(req.Width),
				PixelHeight: uint64(req.Height),
			},
		},
		{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         "A_OPUS",
			TrackType:       2,
			DefaultDuration: uint64(media.FrameDuration),
			Audio: &webm.Audio{
				SamplingFrequency: float64(media.SampleRate),
				Channels:          uint64(media.Channels),
			},
		},
	}, mkvcore.WithOnFatalHandler(func(err error) {
		rec.mu.Lock()
		if rec.fatal == nil {
			rec.fatal = err
		}
		rec.mu.Unlock()
	}))
	if err != nil {
		return nil, fmt.Errorf("webm writer: %w", err)
	}

	rec.video = writers[0]
	rec.audio = writers[1]
	return rec, nil
}

func (r *webmRecorder) WriteVideo(keyframe bool, ts time.Duration, data []byte) error {
	if err := r.err(); err != nil {
		return err
	}
	if _, err := r.video.Write(keyframe, ts.Milliseconds(), data); err != nil {
		return fmt.Errorf("mux video: %w", err)
	}
	return r.err()
}

func (r *webmRecorder) WriteAudio(ts time.Duration, data []byte) error {
	if err := r.err(); err != nil {
		return err
	}
	if _, err := r.audio.Write(true, ts.Milliseconds(), data); err != nil {
		return fmt.Errorf("mux audio: %w", err)
	}
	return r.err()
}

// Close flushes accumulated clusters and finalizes the container.
func (r *webmRecorder) Close() error {
	var videoErr, audioErr error
	if r.video != nil {
		videoErr = r.video.Close()
		r.video = nil
	}
	if r.audio != nil {
		audioErr = r.audio.Close()
		r.audio = nil
	}
	if err := r.err(); err != nil {
		return err
	}
	if videoErr != nil {
		return fmt.Errorf("finalize video track: %w", videoErr)
	}
	if audioErr != nil {
		return fmt.Errorf("finalize audio track: %w", audioErr)
	}
	return nil
}

func (r *webmRecorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}
