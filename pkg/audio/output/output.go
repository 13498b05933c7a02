// ABOUTME: Audio output interface definition
// ABOUTME: Pull-model Sink interface for audio playback backends
package output

import (
	"github.com/chrisuthe/sendspin-player/pkg/audio"
)

// SampleSourceFunc pulls interleaved float32 samples from the timed
// buffer for playback. currentLocalTimeUs is the sink's monotonic clock
// reading taken once for the whole callback, so every sample in out is
// attributed to the same instant. It returns the number of samples
// actually written to out; the sink zero-fills whatever is left.
type SampleSourceFunc func(out []float32, currentLocalTimeUs int64) (n int)

// SinkState describes a Sink's playback lifecycle.
type SinkState int

const (
	SinkIdle SinkState = iota
	SinkPlaying
	SinkStopped
	SinkError
)

func (s SinkState) String() string {
	switch s {
	case SinkIdle:
		return "idle"
	case SinkPlaying:
		return "playing"
	case SinkStopped:
		return "stopped"
	case SinkError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink is an audio output device driven in pull mode: once Play is
// called it repeatedly invokes the configured SampleSourceFunc to pull
// audio, rather than being written to. This matches how a real audio
// backend's callback works and lets the timed buffer attribute every
// batch of samples to one clock reading instead of the wall-clock time
// of an arbitrary Write call.
type Sink interface {
	// Initialize configures the sink for format. Whether a later call
	// with a different format succeeds depends on the implementation:
	// Oto accepts only the sample rate and channel count of its first
	// Initialize, even after Stop.
	Initialize(format audio.Format) error

	// SetSampleSource installs the callback Play will pull from. Must be
	// called before Play.
	SetSampleSource(source SampleSourceFunc)

	// Play starts pulling samples and rendering them.
	Play() error

	// Stop halts playback. Safe to call when already stopped.
	Stop() error

	// OutputLatencyUs estimates the delay, in microseconds, between a
	// sample being pulled from the source and it reaching the speaker.
	OutputLatencyUs() int64

	// Volume returns the current volume, 0-100.
	Volume() int

	// SetVolume sets the volume, clamped to [0, 100].
	SetVolume(v int)

	// IsMuted returns the current mute state.
	IsMuted() bool

	// SetMuted sets the mute state.
	SetMuted(muted bool)

	// StateChanged emits a value every time the sink's SinkState changes.
	StateChanged() <-chan SinkState

	// ErrorOccurred emits playback errors that aren't returned directly,
	// e.g. failures inside the pull callback's goroutine.
	ErrorOccurred() <-chan error

	// Close releases all sink resources. The sink cannot be reused.
	Close() error
}
