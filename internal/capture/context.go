package capture

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/hraban/opus.v2"

	"dubsync/internal/media"
)

const opusBitrate = 64000

// processingContext owns the decoded, rate-adjusted dub samples and the opus
// encoder for one export. The sample buffer is resampled by the audio rate up
// front so the exported pitch/speed matches the interactive preview. Must be
// closed on every capture exit path.
type processingContext struct {
	enc     *opus.Encoder
	samples []int16 // rate-adjusted, interleaved
	cursor  int
	buf     []byte
	closed  bool
}

func newProcessingContext(samples []int16, audioRate float64) (*processingContext, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty dub sample buffer")
	}
	enc, err := opus.NewEncoder(media.SampleRate, media.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}
	return &processingContext{
		enc:     enc,
		samples: media.ResampleByRate(samples, audioRate),
		buf:     make([]byte, 4000),
	}, nil
}

// NextTimestamp reports the timestamp of the next 20ms frame, or ok=false
// when the buffer is exhausted or the context closed.
func (c *processingContext) NextTimestamp() (time.Duration, bool) {
	if c.closed || c.cursor >= len(c.samples) {
		return 0, false
	}
	return c.timestampAt(c.cursor), true
}

// NextFrame encodes and returns the next 20ms opus packet with its
// timestamp. The final partial frame is zero-padded. Returns io.EOF when the
// buffer is exhausted.
func (c *processingContext) NextFrame() ([]byte, time.Duration, error) {
	if c.closed || c.cursor >= len(c.samples) {
		return nil, 0, io.EOF
	}
	frame := make([]int16, media.FrameSamples)
	copy(frame, c.samples[c.cursor:])
	ts := c.timestampAt(c.cursor)
	c.cursor += media.FrameSamples

	n, err := c.enc.Encode(frame, c.buf)
	if err != nil {
		return nil, 0, fmt.Errorf("opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, ts, nil
}

// Remaining returns the unconsumed rate-adjusted duration.
func (c *processingContext) Remaining() time.Duration {
	if c.cursor >= len(c.samples) {
		return 0
	}
	return c.timestampAt(len(c.samples)) - c.timestampAt(c.cursor)
}

func (c *processingContext) timestampAt(cursor int) time.Duration {
	return time.Duration(cursor/media.Channels) * time.Second / media.SampleRate
}

// Close releases the context. The buffer source stops producing frames;
// closing twice is harmless.
func (c *processingContext) Close() error {
	c.closed = true
	return nil
}
