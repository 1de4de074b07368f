package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// Info is the probed source metadata the engine cares about.
type Info struct {
	Duration float64 // seconds
	Width    int
	Height   int
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// Probe runs ffprobe against the source and returns its duration and, for
// video sources, the native resolution. A source whose container reports no
// finite, positive duration is treated as metadata-unavailable.
func Probe(ctx context.Context, ffprobePath, source string) (Info, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		source,
	)

	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", source, err)
	}

	var ff ffprobeOutput
	if err := json.Unmarshal(output, &ff); err != nil {
		return Info{}, fmt.Errorf("ffprobe parse %s: %w", source, err)
	}

	dur, err := strconv.ParseFloat(ff.Format.Duration, 64)
	if err != nil || math.IsInf(dur, 0) || math.IsNaN(dur) || dur <= 0 {
		return Info{}, fmt.Errorf("no finite duration for %s", source)
	}

	info := Info{Duration: dur}
	for _, s := range ff.Streams {
		if s.CodecType == "video" && info.Width == 0 {
			info.Width = s.Width
			info.Height = s.Height
		}
	}
	return info, nil
}
