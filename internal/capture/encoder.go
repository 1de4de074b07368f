package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ivfHeaderSize is the fixed IVF file header; each frame is prefixed with a
// 12-byte header (4-byte payload size, 8-byte presentation timestamp).
const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
)

// vp8Encoder compresses raster frames to VP8 through an FFmpeg IVF pipe:
// raw RGBA in on stdin, IVF-framed VP8 out on stdout. A reader goroutine
// parses the IVF stream into packets; closing stdin flushes the encoder and
// eventually closes the packet channel.
type vp8Encoder struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	packets  chan Packet
	interval time.Duration
	sendOnce sync.Once

	mu      sync.Mutex
	readErr error
}

func newVP8Encoder(ctx context.Context, ffmpegPath string, req Request) (*vp8Encoder, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", req.Width, req.Height),
		"-r", strconv.Itoa(req.FrameRate),
		"-i", "pipe:0",
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", "2M",
		"-g", strconv.Itoa(req.FrameRate), // one keyframe per second
		"-f", "ivf",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: %w", err)
	}

	e := &vp8Encoder{
		cmd:      cmd,
		stdin:    stdin,
		packets:  make(chan Packet, 64),
		interval: time.Second / time.Duration(req.FrameRate),
	}
	go e.readLoop(stdout)
	return e, nil
}

// Encode feeds one raster frame to the encoder.
func (e *vp8Encoder) Encode(frame []byte) error {
	if _, err := e.stdin.Write(frame); err != nil {
		return fmt.Errorf("encoder write: %w", err)
	}
	return nil
}

// Packets returns the channel of encoded frames. It is closed after
// CloseSend once the encoder has flushed.
func (e *vp8Encoder) Packets() <-chan Packet {
	return e.packets
}

// CloseSend signals end of input; the encoder flushes its remaining frames.
// Safe to call more than once.
func (e *vp8Encoder) CloseSend() error {
	var err error
	e.sendOnce.Do(func() {
		err = e.stdin.Close()
	})
	return err
}

// Err reports the first read-side failure, valid once Packets is closed.
func (e *vp8Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readErr
}

func (e *vp8Encoder) readLoop(stdout io.Reader) {
	defer close(e.packets)
	defer e.cmd.Wait()

	header := make([]byte, ivfHeaderSize)
	if _, err := io.ReadFull(stdout, header); err != nil {
		e.setErr(fmt.Errorf("ivf header: %w", err))
		return
	}

	frameHeader := make([]byte, ivfFrameHeaderSize)
	for {
		if _, err := io.ReadFull(stdout, frameHeader); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				e.setErr(fmt.Errorf("ivf frame header: %w", err))
			}
			return
		}
		size := binary.LittleEndian.Uint32(frameHeader[0:4])
		pts := binary.LittleEndian.Uint64(frameHeader[4:12])

		payload := make([]byte, size)
		if _, err := io.ReadFull(stdout, payload); err != nil {
			e.setErr(fmt.Errorf("ivf payload: %w", err))
			return
		}

		e.packets <- Packet{
			Data: payload,
			// VP8: lowest bit of the first payload byte is 0 for keyframes.
			Keyframe:  len(payload) > 0 && payload[0]&0x01 == 0,
			Timestamp: time.Duration(pts) * e.interval,
		}
	}
}

func (e *vp8Encoder) setErr(err error) {
	e.mu.Lock()
	if e.readErr == nil {
		e.readErr = err
	}
	e.mu.Unlock()
}
