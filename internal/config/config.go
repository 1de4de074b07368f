package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all runtime configuration, loaded from environment variables
// with an optional TOML overlay file (DUBSYNC_CONFIG).
type Config struct {
	// Server
	Port int

	// External tools
	FFmpegPath  string
	FFprobePath string

	// Initial sources (optional; both can be set later via the API)
	VideoPath string
	DubPath   string

	// Engine behavior
	CaptureFrameRate    int           // frames per second during export
	DriftTolerance      float64       // fractional-progress divergence threshold
	CapturePollInterval time.Duration // stop-check cadence while recording
	MetadataTimeout     time.Duration // how long to wait for source durations
}

// fileConfig mirrors Config for the TOML overlay; only set keys override.
type fileConfig struct {
	Port             *int     `toml:"port"`
	FFmpegPath       *string  `toml:"ffmpeg_path"`
	FFprobePath      *string  `toml:"ffprobe_path"`
	VideoPath        *string  `toml:"video_path"`
	DubPath          *string  `toml:"dub_path"`
	CaptureFrameRate *int     `toml:"capture_frame_rate"`
	DriftTolerance   *float64 `toml:"drift_tolerance"`
	CapturePollMS    *int     `toml:"capture_poll_ms"`
	MetadataTimeoutS *int     `toml:"metadata_timeout_seconds"`
}

// Load reads configuration from environment variables with sane defaults,
// then applies the TOML file named by DUBSYNC_CONFIG if present.
func Load() Config {
	cfg := Config{
		Port: envInt("DUBSYNC_PORT", 8080),

		FFmpegPath:  envStr("DUBSYNC_FFMPEG", "ffmpeg"),
		FFprobePath: envStr("DUBSYNC_FFPROBE", "ffprobe"),

		VideoPath: envStr("DUBSYNC_VIDEO", ""),
		DubPath:   envStr("DUBSYNC_DUB", ""),

		CaptureFrameRate:    envInt("DUBSYNC_CAPTURE_FPS", 30),
		DriftTolerance:      envFloat("DUBSYNC_DRIFT_TOLERANCE", 0.05),
		CapturePollInterval: time.Duration(envInt("DUBSYNC_CAPTURE_POLL_MS", 100)) * time.Millisecond,
		MetadataTimeout:     time.Duration(envInt("DUBSYNC_METADATA_TIMEOUT", 30)) * time.Second,
	}

	if path := os.Getenv("DUBSYNC_CONFIG"); path != "" {
		applyFile(&cfg, path)
	}
	return cfg
}

func applyFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config file %s unreadable: %v", path, err)
		return
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		log.Printf("config file %s invalid: %v", path, err)
		return
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.FFmpegPath != nil {
		cfg.FFmpegPath = *fc.FFmpegPath
	}
	if fc.FFprobePath != nil {
		cfg.FFprobePath = *fc.FFprobePath
	}
	if fc.VideoPath != nil {
		cfg.VideoPath = *fc.VideoPath
	}
	if fc.DubPath != nil {
		cfg.DubPath = *fc.DubPath
	}
	if fc.CaptureFrameRate != nil {
		cfg.CaptureFrameRate = *fc.CaptureFrameRate
	}
	if fc.DriftTolerance != nil {
		cfg.DriftTolerance = *fc.DriftTolerance
	}
	if fc.CapturePollMS != nil {
		cfg.CapturePollInterval = time.Duration(*fc.CapturePollMS) * time.Millisecond
	}
	if fc.MetadataTimeoutS != nil {
		cfg.MetadataTimeout = time.Duration(*fc.MetadataTimeoutS) * time.Second
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
