package media

import "time"

const (
	SampleRate    = 24000 // matches the synthesis engine's output rate
	Channels      = 1
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 480                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Kind distinguishes the two element types the engine drives.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// EventType identifies a notification from the host playback engine.
type EventType int

const (
	EventMetadata   EventType = iota // duration/resolution resolved
	EventTimeUpdate                  // periodic position report while playing
	EventEnded                       // playback reached the end of the source
)

// Event is an asynchronous notification emitted by an Element.
type Event struct {
	Type     EventType
	Position float64 // seconds
	Duration float64 // seconds, 0 while unknown
}
