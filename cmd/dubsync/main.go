package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"dubsync/internal/capture"
	"dubsync/internal/config"
	"dubsync/internal/media"
	"dubsync/internal/playback"
	"dubsync/internal/probe"
	"dubsync/internal/stream"
)

// engine ties source lifecycle together: each new source reference replaces
// the old element, restarts its clock, and re-probes the duration pair.
type engine struct {
	ctx        context.Context
	cfg        config.Config
	controller *playback.Controller
	monitor    *stream.Monitor
	prober     *probe.Probe

	mu          sync.Mutex
	videoCancel context.CancelFunc
	dubCancel   context.CancelFunc
	probeCancel context.CancelFunc
}

func (e *engine) setVideo(path string) {
	el := media.NewElement(media.KindVideo, path)

	e.mu.Lock()
	if e.videoCancel != nil {
		e.videoCancel()
	}
	elCtx, cancel := context.WithCancel(e.ctx)
	e.videoCancel = cancel
	e.mu.Unlock()

	go el.Run(elCtx)
	go el.Load(elCtx, e.cfg.FFprobePath, e.cfg.FFmpegPath)

	e.controller.SetVideo(el)
	e.monitor.SetSources(el, e.controller.Dub())
	e.reprobe()
	log.Printf("video source set: %s", path)
}

func (e *engine) setDub(path string) {
	el := media.NewElement(media.KindAudio, path)

	e.mu.Lock()
	if e.dubCancel != nil {
		e.dubCancel()
	}
	elCtx, cancel := context.WithCancel(e.ctx)
	e.dubCancel = cancel
	e.mu.Unlock()

	go el.Run(elCtx)
	go el.Load(elCtx, e.cfg.FFprobePath, e.cfg.FFmpegPath)

	e.controller.SetDub(el)
	e.monitor.SetSources(e.controller.Video(), el)
	e.reprobe()
	log.Printf("dub source set: %s", path)
}

// reprobe restarts the duration watch for the current source pair. The
// previous watch is cancelled so each pair is resolved at most once.
func (e *engine) reprobe() {
	video := e.controller.Video()
	if video == nil {
		return
	}
	dub := e.controller.Dub()

	e.mu.Lock()
	if e.probeCancel != nil {
		e.probeCancel()
	}
	pctx, cancel := context.WithCancel(e.ctx)
	e.probeCancel = cancel
	e.mu.Unlock()

	go func() {
		for pair := range e.prober.Watch(pctx, video, dub) {
			audio := 0.0
			if pair.Audio != nil {
				audio = *pair.Audio
			}
			e.controller.ApplyDurations(pair.Video, audio)
		}
	}()
}

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("dubsync starting up...")

	controller := playback.NewController(cfg.DriftTolerance)
	go controller.Run(ctx)

	monitor := stream.NewMonitor()
	go monitor.Run(ctx)

	session := capture.NewSession(capture.Options{
		FFmpegPath:   cfg.FFmpegPath,
		FrameRate:    cfg.CaptureFrameRate,
		PollInterval: cfg.CapturePollInterval,
		Playback:     controller,
	})

	eng := &engine{
		ctx:        ctx,
		cfg:        cfg,
		controller: controller,
		monitor:    monitor,
		prober:     probe.New(cfg.MetadataTimeout),
	}

	if cfg.VideoPath != "" {
		eng.setVideo(cfg.VideoPath)
	}
	if cfg.DubPath != "" {
		eng.setDub(cfg.DubPath)
	}

	webrtcHandler := stream.NewWebRTCHandler(monitor)

	// HTTP routes
	mux := http.NewServeMux()

	// Preview audio streams
	mux.Handle("/preview/stream", stream.NewHTTPHandler(monitor, cfg.FFmpegPath))
	mux.Handle("/preview/offer", webrtcHandler)

	// API endpoints
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		t := controller.Telemetry()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"playback":          t,
			"capture":           session.Status(),
			"preview_listeners": monitor.ListenerCount(),
			"webrtc_listeners":  webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/video", func(w http.ResponseWriter, r *http.Request) {
		path, ok := decodePath(w, r)
		if !ok {
			return
		}
		eng.setVideo(path)
		writeOK(w, map[string]any{"ok": true, "video": path})
	})

	mux.HandleFunc("/api/dub", func(w http.ResponseWriter, r *http.Request) {
		path, ok := decodePath(w, r)
		if !ok {
			return
		}
		eng.setDub(path)
		writeOK(w, map[string]any{"ok": true, "dub": path})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		playing := controller.TogglePlay()
		writeOK(w, map[string]any{"ok": true, "playing": playing})
	})

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Percent float64 `json:"percent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		controller.Seek(req.Percent)
		writeOK(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/mute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Muted bool `json:"muted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		controller.SetNativeAudioMuted(req.Muted)
		writeOK(w, map[string]any{"ok": true, "muted": req.Muted})
	})

	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		video := controller.Video()
		dub := controller.Dub()
		if video == nil || dub == nil {
			http.Error(w, "both a video and a dub source are required", http.StatusBadRequest)
			return
		}
		state := controller.State()
		width, height := video.Resolution()
		id, err := session.Start(ctx, capture.Request{
			VideoPath:      video.Source(),
			DubPath:        dub.Source(),
			Width:          width,
			Height:         height,
			VideoRate:      state.VideoRate,
			AudioRate:      state.AudioRate,
			TargetDuration: state.TargetDuration(),
			FrameRate:      cfg.CaptureFrameRate,
		})
		if errors.Is(err, capture.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeOK(w, map[string]any{"ok": true, "job_id": id})
	})

	mux.HandleFunc("/api/export/status", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, session.Status())
	})

	mux.HandleFunc("/api/export/artifact", func(w http.ResponseWriter, r *http.Request) {
		name, data, ok := session.Artifact()
		if !ok {
			http.Error(w, "no completed export", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		w.Header().Set("Content-Type", "video/webm")
		w.Write(data)
	})

	// Audio-only export: the dub artifact unmodified, a pure passthrough.
	mux.HandleFunc("/api/dub/download", func(w http.ResponseWriter, r *http.Request) {
		dub := controller.Dub()
		if dub == nil {
			http.Error(w, "no dub configured", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(dub.Source())))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, dub.Source())
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("dubsync live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func decodePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return "", false
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return "", false
	}
	return req.Path, true
}

func writeOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
