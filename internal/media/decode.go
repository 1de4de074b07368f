package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
)

// DecodePCM runs FFmpeg to decode a source's audio into raw PCM int16
// samples at the engine sample rate and channel count. The whole artifact is
// decoded at once; dub tracks are complete files, not streams.
func DecodePCM(ctx context.Context, ffmpegPath, source string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", source,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", source, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg decode %s: no audio stream", source)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}
	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
