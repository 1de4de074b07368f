package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"dubsync/internal/media"
)

// decodeDub decodes the dub artifact's bytes into the engine's PCM format.
func decodeDub(ctx context.Context, ffmpegPath, source string) ([]int16, error) {
	return media.DecodePCM(ctx, ffmpegPath, source)
}

// frameSource streams decoded RGBA frames from the video source via an
// FFmpeg rawvideo pipe. Frames are sampled at frameRate/videoRate source
// frames per second, so consuming one frame per draw tick plays the source
// at the synchronized video rate.
type frameSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	br     *bufio.Reader
	frame  []byte // reused between Next calls
}

func newFrameSource(ctx context.Context, ffmpegPath string, req Request) (*frameSource, error) {
	sourceFPS := float64(req.FrameRate) / req.VideoRate
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", req.VideoPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("fps=%.6f,scale=%d:%d", sourceFPS, req.Width, req.Height),
		"-loglevel", "error",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("frame pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg frames: %w", err)
	}

	return &frameSource{
		cmd:    cmd,
		stdout: stdout,
		br:     bufio.NewReaderSize(stdout, 1<<20),
		frame:  make([]byte, req.Width*req.Height*4),
	}, nil
}

// Next returns the next RGBA frame. The returned slice is reused; callers
// must copy before the following call. Returns io.EOF once the source is
// exhausted.
func (f *frameSource) Next() ([]byte, error) {
	if _, err := io.ReadFull(f.br, f.frame); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	return f.frame, nil
}

// Close tears the pipe down. The decoder may still be mid-stream when the
// target duration is reached, so it is killed rather than drained.
func (f *frameSource) Close() error {
	f.stdout.Close()
	if f.cmd.Process != nil {
		f.cmd.Process.Kill()
	}
	f.cmd.Wait()
	return nil
}
