package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"dubsync/internal/media"
)

// HTTPHandler serves the preview mix as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	monitor    *Monitor
	ffmpegPath string
}

// NewHTTPHandler creates an HTTP preview stream handler.
func NewHTTPHandler(m *Monitor, ffmpegPath string) *HTTPHandler {
	return &HTTPHandler{monitor: m, ffmpegPath: ffmpegPath}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "dubsync preview")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, h.ffmpegPath,
		"-f", "s16le",
		"-ar", strconv.Itoa(media.SampleRate),
		"-ac", strconv.Itoa(media.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "96k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("preview stream: stdin pipe error: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("preview stream: stdout pipe error: %v", err)
		return
	}

	if err := cmd.Start(); err != nil {
		log.Printf("preview stream: ffmpeg start error: %v", err)
		return
	}

	listener := h.monitor.Subscribe()
	defer h.monitor.Unsubscribe(listener)

	log.Printf("preview listener connected (total: %d)", h.monitor.ListenerCount())
	defer log.Printf("preview listener disconnected")

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				pcm := media.SamplesToBytes(frame)
				if _, err := stdin.Write(pcm); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to HTTP response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("preview stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cmd.Wait()
}
