// ABOUTME: Oto-based audio output implementation
// ABOUTME: Pull-model PCM playback with software volume control using oto
package output

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// otoBufferDuration sizes oto's internal ring buffer. oto doesn't expose
// how many bytes are currently buffered, so OutputLatencyUs reports this
// fixed estimate instead of a live measurement.
const otoBufferDuration = 40 * time.Millisecond

// Oto is a Sink backed by the oto library. oto only exposes a push
// model (an io.Reader it pulls from internally), so Play wires an
// io.Reader whose Read method calls back into the configured
// SampleSourceFunc, converts float32 to the signed 16-bit PCM oto
// requires, and applies volume/mute.
type Oto struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	format audio.Format
	source SampleSourceFunc

	volume int
	muted  bool
	state  SinkState

	latencyUs int64
	nowFunc   func() int64

	scratch []float32

	stateCh chan SinkState
	errCh   chan error
}

// NewOto creates a new Oto sink. nowFunc supplies the monotonic clock
// reading passed to the sample source on each pull; pass nil to use
// time.Now().UnixMicro().
func NewOto(nowFunc func() int64) *Oto {
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMicro() }
	}
	return &Oto{
		volume:  100,
		state:   SinkIdle,
		nowFunc: nowFunc,
		stateCh: make(chan SinkState, 8),
		errCh:   make(chan error, 8),
	}
}

// Initialize configures oto for the given format. oto only supports one
// context per process and cannot change format after creation; a format
// change after the first Initialize is rejected.
func (o *Oto) Initialize(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.format.SampleRate == format.SampleRate && o.format.Channels == format.Channels {
			return nil
		}
		return fmt.Errorf("oto sink: cannot change format from %dHz/%dch to %dHz/%dch after initialization",
			o.format.SampleRate, o.format.Channels, format.SampleRate, format.Channels)
	}

	bufBytes := int(otoBufferDuration.Seconds()*float64(format.SampleRate)) * format.Channels * 2

	op := &oto.NewContextOptions{
		SampleRate:        format.SampleRate,
		ChannelCount:      format.Channels,
		Format:            oto.FormatSignedInt16LE,
		BufferSizeInBytes: bufBytes,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.latencyUs = otoBufferDuration.Microseconds()
	o.scratch = make([]float32, bufBytes/2)
	o.player = ctx.NewPlayer(&otoReader{sink: o})

	return nil
}

// SetSampleSource installs the pull callback.
func (o *Oto) SetSampleSource(source SampleSourceFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.source = source
}

// Play starts the oto player, which begins calling back into Read.
func (o *Oto) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return fmt.Errorf("oto sink: not initialized")
	}

	o.player.Play()
	o.setState(SinkPlaying)
	return nil
}

// Stop pauses the player. The player and context survive so Play can
// resume without a new handshake with the OS audio stack.
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Pause()
	}
	o.setState(SinkStopped)
	return nil
}

// OutputLatencyUs returns the fixed buffering estimate computed at
// Initialize time.
func (o *Oto) OutputLatencyUs() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latencyUs
}

// Volume returns the current volume, 0-100.
func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// SetVolume sets the volume, clamped to [0, 100].
func (o *Oto) SetVolume(v int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	o.volume = v
}

// IsMuted returns the current mute state.
func (o *Oto) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// SetMuted sets the mute state.
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

// StateChanged returns the channel sink state transitions are emitted on.
func (o *Oto) StateChanged() <-chan SinkState {
	return o.stateCh
}

// ErrorOccurred returns the channel playback errors are emitted on.
func (o *Oto) ErrorOccurred() <-chan error {
	return o.errCh
}

// Close releases all oto resources.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.otoCtx = nil
	}
	o.setState(SinkIdle)
	return nil
}

// setState updates state and emits on stateCh without blocking.
// Callers must hold o.mu.
func (o *Oto) setState(s SinkState) {
	if o.state == s {
		return
	}
	o.state = s
	select {
	case o.stateCh <- s:
	default:
	}
}

// emitError reports an error without blocking the audio callback.
func (o *Oto) emitError(err error) {
	select {
	case o.errCh <- err:
	default:
	}
}

// otoReader adapts Oto's pull callback to the io.Reader oto.NewPlayer
// requires. Every Read call happens on oto's audio callback goroutine
// and must not allocate or block.
type otoReader struct {
	sink *Oto
}

// Read fills p with signed 16-bit little-endian PCM pulled from the
// sink's sample source, applying volume and mute, and zero-fills any
// remainder the source didn't provide.
func (r *otoReader) Read(p []byte) (int, error) {
	o := r.sink

	// This is the sink's own mutex, not buffer.Buffer's — source(...)
	// below calls into buf.Read, which takes that lock itself, briefly,
	// after o.mu is already released.
	o.mu.Lock()
	source := o.source
	volume := o.volume
	muted := o.muted
	now := o.nowFunc()
	scratch := o.scratch
	o.mu.Unlock()

	numSamples := len(p) / 2
	if numSamples > len(scratch) {
		numSamples = len(scratch)
	}

	var n int
	if source != nil {
		n = source(scratch[:numSamples], now)
		if n > numSamples {
			n = numSamples
		}
	}

	multiplier := float32(volume) / 100.0
	if muted {
		multiplier = 0
	}

	for i := 0; i < n; i++ {
		sample := audio.Float32ToInt16(scratch[i] * multiplier)
		binary.LittleEndian.PutUint16(p[i*2:], uint16(sample))
	}
	for i := n * 2; i < numSamples*2; i++ {
		p[i] = 0
	}

	return numSamples * 2, nil
}
