// Package capture implements the export pipeline: it re-renders video frames
// into an off-screen raster target at a fixed frame rate, plays the decoded
// dub audio through an opus processing context at the synchronized rate, and
// multiplexes both into a single WebM artifact.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel error kinds surfaced to the caller on a failed export.
var (
	// ErrBusy rejects a second export while one is in flight. Concurrent
	// requests are rejected, never queued.
	ErrBusy = errors.New("capture already in progress")

	// ErrDecode marks a dub audio fetch/decode failure during priming.
	ErrDecode = errors.New("dub audio decode failed")

	// ErrRecorder marks a failure of the recording pipeline (frame decode,
	// frame encode, or container mux).
	ErrRecorder = errors.New("recorder failed")
)

// State is the capture session lifecycle.
type State int

const (
	Idle State = iota
	Priming
	Recording
	Finalizing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Request describes one export.
type Request struct {
	VideoPath      string
	DubPath        string
	Width          int     // native video resolution
	Height         int
	VideoRate      float64 // from the rate synchronizer
	AudioRate      float64
	TargetDuration float64 // seconds; videoDuration/videoRate
	FrameRate      int     // capture cadence, frames per second
}

// PlaybackControl is the slice of the playback controller the capture
// pipeline is allowed to touch: pausing the preview, driving the video at
// the capture rate, and restoring preview state afterwards.
type PlaybackControl interface {
	PrimeForCapture()
	StartCaptureVideo(rate float64)
	StopCaptureVideo()
	RestoreAfterCapture()
}

// FrameSource yields decoded RGBA frames at the capture cadence. Next returns
// io.EOF when the source runs out; the draw loop then freezes the last frame.
type FrameSource interface {
	Next() ([]byte, error)
	Close() error
}

// Packet is one encoded video frame.
type Packet struct {
	Data      []byte
	Keyframe  bool
	Timestamp time.Duration
}

// VideoEncoder turns raster frames into compressed video packets. Packets
// arrive asynchronously; CloseSend flushes the encoder and the packet channel
// is closed once fully drained. CloseSend must tolerate being called more
// than once.
type VideoEncoder interface {
	Encode(frame []byte) error
	Packets() <-chan Packet
	CloseSend() error
	Err() error
}

// Recorder multiplexes encoded video packets and opus audio frames into one
// container artifact.
type Recorder interface {
	WriteVideo(keyframe bool, ts time.Duration, data []byte) error
	WriteAudio(ts time.Duration, data []byte) error
	Close() error
}

// Options configures a Session. Zero-value hooks get the real ffmpeg/WebM
// implementations.
type Options struct {
	FFmpegPath   string
	FrameRate    int
	PollInterval time.Duration
	Playback     PlaybackControl

	Decode      func(ctx context.Context, source string) ([]int16, error)
	OpenFrames  func(ctx context.Context, req Request) (FrameSource, error)
	NewEncoder  func(ctx context.Context, req Request) (VideoEncoder, error)
	NewRecorder func(w io.Writer, req Request) (Recorder, error)
}

func (o *Options) setDefaults() {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.FrameRate == 0 {
		o.FrameRate = 30
	}
	if o.PollInterval == 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.Playback == nil {
		o.Playback = noopPlayback{}
	}
	ffmpeg := o.FFmpegPath
	if o.Decode == nil {
		o.Decode = func(ctx context.Context, source string) ([]int16, error) {
			return decodeDub(ctx, ffmpeg, source)
		}
	}
	if o.OpenFrames == nil {
		o.OpenFrames = func(ctx context.Context, req Request) (FrameSource, error) {
			return newFrameSource(ctx, ffmpeg, req)
		}
	}
	if o.NewEncoder == nil {
		o.NewEncoder = func(ctx context.Context, req Request) (VideoEncoder, error) {
			return newVP8Encoder(ctx, ffmpeg, req)
		}
	}
	if o.NewRecorder == nil {
		o.NewRecorder = func(w io.Writer, req Request) (Recorder, error) {
			return newWebMRecorder(w, req)
		}
	}
}

type noopPlayback struct{}

func (noopPlayback) PrimeForCapture()          {}
func (noopPlayback) StartCaptureVideo(float64) {}
func (noopPlayback) StopCaptureVideo()         {}
func (noopPlayback) RestoreAfterCapture()      {}

// job is one export in flight. It exclusively owns the raster target, the
// decoded sample buffer, and the recorder for its lifetime.
type job struct {
	id           string
	state        State
	progress     float64 // percent, monotonically non-decreasing
	elapsed      float64 // seconds
	target       float64 // seconds
	artifactName string
	artifact     []byte
	err          error
}

// Status is a snapshot of the active or most recent export.
type Status struct {
	ID           string  `json:"id,omitempty"`
	State        string  `json:"state"`
	Progress     float64 `json:"progress"`
	Elapsed      float64 `json:"elapsed"`
	Target       float64 `json:"target"`
	ArtifactName string  `json:"artifact_name,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Session serializes exports for one output target: at most one job may be
// recording at a time, and a second start attempt is rejected with ErrBusy.
type Session struct {
	opts Options

	mu  sync.Mutex
	job *job
}

// NewSession creates a capture session orchestrator.
func NewSession(opts Options) *Session {
	opts.setDefaults()
	return &Session{opts: opts}
}

// Start begins an export. It returns the job ID immediately; progress and the
// terminal outcome are observed via Status and Artifact. Returns ErrBusy
// while another export is in flight.
func (s *Session) Start(ctx context.Context, req Request) (string, error) {
	if req.VideoPath == "" || req.DubPath == "" {
		return "", errors.New("capture requires both a video and a dub source")
	}
	if req.TargetDuration <= 0 {
		return "", errors.New("capture target duration unknown")
	}
	if req.VideoRate <= 0 {
		req.VideoRate = 1.0
	}
	if req.AudioRate <= 0 {
		req.AudioRate = 1.0
	}
	if req.FrameRate <= 0 {
		req.FrameRate = s.opts.FrameRate
	}
	if req.Width <= 0 || req.Height <= 0 {
		req.Width, req.Height = 1280, 720
	}

	s.mu.Lock()
	if s.job != nil && s.job.state != Idle && s.job.state != Completed && s.job.state != Failed {
		s.mu.Unlock()
		return "", ErrBusy
	}
	j := &job{
		id:           uuid.New().String(),
		state:        Priming,
		target:       req.TargetDuration,
		artifactName: ArtifactName(req.VideoPath),
	}
	s.job = j
	s.mu.Unlock()

	go s.run(ctx, req, j)
	return j.id, nil
}

// Status returns the current capture status. An untouched session reports
// Idle.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return Status{State: Idle.String()}
	}
	st := Status{
		ID:       s.job.id,
		State:    s.job.state.String(),
		Progress: s.job.progress,
		Elapsed:  s.job.elapsed,
		Target:   s.job.target,
	}
	if s.job.state == Completed {
		st.ArtifactName = s.job.artifactName
	}
	if s.job.err != nil {
		st.Error = s.job.err.Error()
	}
	return st
}

// Artifact returns the completed export, or ok=false while none exists.
func (s *Session) Artifact() (name string, data []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.state != Completed {
		return "", nil, false
	}
	return s.job.artifactName, s.job.artifact, true
}

func (s *Session) run(ctx context.Context, req Request, j *job) {
	// Preview state must be fully restored on every exit path.
	defer s.opts.Playback.RestoreAfterCapture()

	s.opts.Playback.PrimeForCapture()

	// Priming: the dub bytes are decoded into a directly-addressable sample
	// buffer here, decoupled from the interactive element path, because
	// frame-accurate mixing needs samples rather than element playback.
	samples, err := s.opts.Decode(ctx, req.DubPath)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrDecode, err))
		return
	}

	actx, err := newProcessingContext(samples, req.AudioRate)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrDecode, err))
		return
	}
	defer actx.Close()

	raster := NewRaster(req.Width, req.Height)

	frames, err := s.opts.OpenFrames(ctx, req)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrRecorder, err))
		return
	}
	defer frames.Close()

	enc, err := s.opts.NewEncoder(ctx, req)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrRecorder, err))
		return
	}
	// The encoder's process and reader outlive the draw loop unless its
	// input is closed and its packets drained; do both on every exit path.
	// On the success path flush has already done this and both are no-ops.
	defer func() {
		enc.CloseSend()
		for range enc.Packets() {
		}
	}()

	var buf bytes.Buffer
	rec, err := s.opts.NewRecorder(&buf, req)
	if err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrRecorder, err))
		return
	}

	s.setState(j, Recording)
	s.opts.Playback.StartCaptureVideo(req.VideoRate)
	log.Printf("capture %s: recording %.2fs at %dfps (%dx%d)",
		j.id, req.TargetDuration, req.FrameRate, req.Width, req.Height)

	// One cancellation token is shared by the draw loop and the stop poll:
	// a single cancel stops both deterministically.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	target := time.Duration(req.TargetDuration * float64(time.Second))

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(start)
				s.setProgress(j, elapsed, target)
				if elapsed >= target {
					cancel()
					return
				}
			}
		}
	}()

	drawErr := s.drawLoop(loopCtx, req, raster, frames, enc, rec, actx)
	cancel()
	<-pollDone // loop cancellation confirmed before any resource is closed

	s.opts.Playback.StopCaptureVideo()
	s.setProgress(j, time.Since(start), target)

	if drawErr != nil {
		rec.Close()
		s.fail(j, fmt.Errorf("%w: %v", ErrRecorder, drawErr))
		return
	}

	s.setState(j, Finalizing)
	if err := rec.Close(); err != nil {
		s.fail(j, fmt.Errorf("%w: %v", ErrRecorder, err))
		return
	}

	s.mu.Lock()
	j.artifact = buf.Bytes()
	j.progress = 100
	j.state = Completed
	s.mu.Unlock()
	log.Printf("capture %s: completed, %s (%d bytes)", j.id, j.artifactName, len(j.artifact))
}

// drawLoop renders frames into the raster at the capture cadence, feeds the
// raster to the encoder, and interleaves audio up to the video timestamp. It
// exits on cancellation, flushing the encoder before returning.
func (s *Session) drawLoop(ctx context.Context, req Request, raster *Raster, frames FrameSource, enc VideoEncoder, rec Recorder, actx *processingContext) error {
	interval := time.Second / time.Duration(req.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frameIdx := 0
	for {
		select {
		case <-ctx.Done():
			return s.flush(time.Duration(frameIdx)*interval, enc, rec, actx)
		case <-ticker.C:
		}

		ts := time.Duration(frameIdx) * interval
		data, err := frames.Next()
		switch {
		case err == nil:
			raster.Draw(data)
		case errors.Is(err, io.EOF):
			// source exhausted: keep drawing the last frame
		default:
			return err
		}

		if err := enc.Encode(raster.Bytes()); err != nil {
			return err
		}
		if err := drainPackets(enc, rec); err != nil {
			return err
		}
		if err := writeAudioUpTo(rec, actx, ts); err != nil {
			return err
		}
		frameIdx++
	}
}

// flush closes the encoder input, drains the remaining packets, and writes
// the trailing audio.
func (s *Session) flush(ts time.Duration, enc VideoEncoder, rec Recorder, actx *processingContext) error {
	if err := enc.CloseSend(); err != nil {
		return err
	}
	for pkt := range enc.Packets() {
		if err := rec.WriteVideo(pkt.Keyframe, pkt.Timestamp, pkt.Data); err != nil {
			return err
		}
	}
	if err := enc.Err(); err != nil {
		return err
	}
	return writeAudioUpTo(rec, actx, ts)
}

func drainPackets(enc VideoEncoder, rec Recorder) error {
	for {
		select {
		case pkt, ok := <-enc.Packets():
			if !ok {
				return nil
			}
			if err := rec.WriteVideo(pkt.Keyframe, pkt.Timestamp, pkt.Data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func writeAudioUpTo(rec Recorder, actx *processingContext, ts time.Duration) error {
	for {
		next, ok := actx.NextTimestamp()
		if !ok || next > ts {
			return nil
		}
		data, ats, err := actx.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := rec.WriteAudio(ats, data); err != nil {
			return err
		}
	}
}

func (s *Session) setState(j *job, st State) {
	s.mu.Lock()
	j.state = st
	s.mu.Unlock()
}

func (s *Session) setProgress(j *job, elapsed, target time.Duration) {
	pct := 0.0
	if target > 0 {
		pct = float64(elapsed) / float64(target) * 100
	}
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	j.elapsed = elapsed.Seconds()
	if pct > j.progress {
		j.progress = pct
	}
	s.mu.Unlock()
}

func (s *Session) fail(j *job, err error) {
	s.mu.Lock()
	j.state = Failed
	j.err = err
	j.artifact = nil
	s.mu.Unlock()
	log.Printf("capture %s: %v", j.id, err)
}

// ArtifactName derives the deterministic export file name from the video
// source's identifying name.
func ArtifactName(videoPath string) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	if base == "" || base == "." {
		base = "capture"
	}
	return base + "_dubbed.webm"
}
