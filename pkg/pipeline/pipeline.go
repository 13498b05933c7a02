// ABOUTME: Audio pipeline state machine
// ABOUTME: Owns the decoder, timed buffer, and sink for one stream's lifetime
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/chrisuthe/sendspin-player/pkg/audio/decode"
	"github.com/chrisuthe/sendspin-player/pkg/audio/output"
	"github.com/chrisuthe/sendspin-player/pkg/buffer"
)

// State is the pipeline's lifecycle stage.
type State int

const (
	Idle State = iota
	Starting
	Buffering
	Playing
	Stopping
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// LocalClock is the monotonic local time source a Pipeline is built
// with. pkg/clock.Clock implements this directly. The buffer's reads
// are timestamped with the reading the sink passes to its pull
// callback, not with this clock.
type LocalClock interface {
	NowUs() int64
}

// Config tunes the buffer sizing and decoder scratch allocation a
// pipeline builds on Start.
type Config struct {
	// TargetMs is the buffer's target level; ProcessAudioChunk moves the
	// pipeline to Playing once buffered_ms reaches 0.8x of it. Default
	// 250ms (buffer.Config default).
	TargetMs float64
	// CapacityMs sizes the ring buffer; default 8000ms (buffer.Config default).
	CapacityMs float64
	// MaxSamplesPerFrame sizes the PCM decoder's scratch buffer; ignored
	// by codecs that report their own frame size. Default 4096.
	MaxSamplesPerFrame int
}

func (c Config) withDefaults() Config {
	if c.MaxSamplesPerFrame == 0 {
		c.MaxSamplesPerFrame = 4096
	}
	return c
}

// readyFraction is the buffered_ms / target_ms threshold checkReady's
// ready-for-playback gate requires before starting the sink.
const readyFraction = 0.8

// Pipeline drives one stream's decoder, timed buffer, and sink through
// the Idle/Starting/Buffering/Playing/Stopping/Error state machine.
// ProcessAudioChunk is called from the transport's receive path; the
// sink's sample source callback runs on its own realtime-priority
// thread and only ever touches the buffer, never the pipeline's mutex.
type Pipeline struct {
	cfg       Config
	clockSync buffer.ClockConverter
	clock     LocalClock
	newSink   func() output.Sink

	mu      sync.Mutex
	state   State
	format  audio.Format
	decoder decode.Decoder
	buf     *buffer.Buffer
	sink    output.Sink
	scratch []float32
	volume  int
	muted   bool
	ready   bool

	watchDone chan struct{}
}

// New builds a Pipeline. newSink constructs a fresh output.Sink for
// each Start call (tests substitute a fake; production wires
// output.NewOto or equivalent).
func New(clockSync buffer.ClockConverter, clock LocalClock, newSink func() output.Sink, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		clockSync: clockSync,
		clock:     clock,
		newSink:   newSink,
		state:     Idle,
		volume:    100,
	}
}

// State returns the pipeline's current lifecycle stage.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start builds a decoder and buffer for format, initializes a fresh
// sink, and transitions to Buffering. If the pipeline isn't already
// Idle, it is stopped first so a mid-stream format change tears down
// cleanly.
func (p *Pipeline) Start(format audio.Format) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		if err := p.Stop(); err != nil {
			return fmt.Errorf("pipeline: stop before restart: %w", err)
		}
		p.mu.Lock()
	}
	defer p.mu.Unlock()

	p.state = Starting

	dec, err := decode.New(format, p.cfg.MaxSamplesPerFrame)
	if err != nil {
		p.state = Error
		return fmt.Errorf("pipeline: build decoder: %w", err)
	}

	buf := buffer.New(format, p.clockSync, buffer.Config{
		CapacityMs: p.cfg.CapacityMs,
		TargetMs:   p.cfg.TargetMs,
	})

	sink := p.newSink()
	if err := sink.Initialize(format); err != nil {
		dec.Close()
		p.state = Error
		return fmt.Errorf("pipeline: initialize sink: %w", err)
	}
	sink.SetSampleSource(func(out []float32, currentLocalTimeUs int64) int {
		return buf.Read(out, currentLocalTimeUs)
	})
	sink.SetVolume(p.volume)
	sink.SetMuted(p.muted)
	buf.SetOutputLatencyUs(sink.OutputLatencyUs())

	p.format = format
	p.decoder = dec
	p.buf = buf
	p.sink = sink
	p.scratch = make([]float32, dec.MaxSamplesPerFrame())
	p.ready = false
	p.state = Buffering

	p.watchDone = make(chan struct{})
	go p.watch(sink, buf, p.watchDone)

	return nil
}

// watch observes the sink's lifecycle events and the buffer's
// re-anchor signal for the duration of one Start/Stop cycle.
func (p *Pipeline) watch(sink output.Sink, buf *buffer.Buffer, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case s, ok := <-sink.StateChanged():
			if !ok {
				return
			}
			if s == output.SinkError {
				p.mu.Lock()
				p.state = Error
				p.mu.Unlock()
			}
		case err, ok := <-sink.ErrorOccurred():
			if !ok {
				return
			}
			log.Printf("pipeline: sink error: %v", err)
			p.mu.Lock()
			p.state = Error
			p.mu.Unlock()
		case <-buf.ReanchorRequired():
			if cerr := p.Clear(); cerr != nil {
				log.Printf("pipeline: re-anchor clear failed: %v", cerr)
			}
		}
	}
}

// ProcessAudioChunk decodes one binary audio frame's payload into the
// pre-allocated scratch buffer and writes the result into the timed
// buffer under serverTimestampUs. Decode errors are logged and the
// frame is skipped; the stream continues.
func (p *Pipeline) ProcessAudioChunk(payload []byte, serverTimestampUs int64) {
	p.mu.Lock()
	dec, buf := p.decoder, p.buf
	state := p.state
	scratch := p.scratch
	p.mu.Unlock()

	if dec == nil || buf == nil || state == Idle || state == Stopping {
		return
	}

	n, err := dec.Decode(payload, scratch)
	if err != nil {
		log.Printf("pipeline: decode error, skipping frame: %v", err)
		return
	}
	if n == 0 {
		return
	}

	if err := buf.Write(scratch[:n], serverTimestampUs); err != nil {
		log.Printf("pipeline: buffer write failed: %v", err)
		return
	}

	p.checkReady()
}

// checkReady runs the ready-for-playback gate: once buffered_ms
// reaches 0.8x the target, the sink is started and the pipeline
// transitions to Playing. A no-op once already Playing or past it.
func (p *Pipeline) checkReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Buffering || p.ready || p.buf == nil {
		return
	}

	stats := p.buf.Stats()
	if stats.BufferedMs < readyFraction*stats.TargetMs {
		return
	}

	p.ready = true
	if err := p.sink.Play(); err != nil {
		log.Printf("pipeline: sink play failed: %v", err)
		p.state = Error
		return
	}
	p.state = Playing
}

// Clear resets the buffer and decoder for a discontinuity (seek,
// re-anchor) without tearing down the sink. If currently Playing, the
// pipeline re-enters Buffering until the ready gate passes again.
func (p *Pipeline) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf == nil || p.decoder == nil {
		return nil
	}
	if err := p.buf.Clear(); err != nil {
		return fmt.Errorf("pipeline: clear buffer: %w", err)
	}
	p.decoder.Reset()

	if p.state == Playing {
		p.ready = false
		p.state = Buffering
	}
	return nil
}

// Stop unsubscribes from sink events, stops and disposes the sink,
// decoder, and buffer, and returns the pipeline to Idle. Safe to call
// when already Idle.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return nil
	}
	p.state = Stopping
	sink := p.sink
	dec := p.decoder
	buf := p.buf
	done := p.watchDone
	p.mu.Unlock()

	if done != nil {
		close(done)
	}

	var errs []error
	if sink != nil {
		if err := sink.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop sink: %w", err))
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	if dec != nil {
		if err := dec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close decoder: %w", err))
		}
	}
	if buf != nil {
		buf.Dispose()
	}

	p.mu.Lock()
	p.sink = nil
	p.decoder = nil
	p.buf = nil
	p.scratch = nil
	p.ready = false
	p.watchDone = nil
	p.state = Idle
	p.mu.Unlock()

	return errors.Join(errs...)
}

// SetVolume applies volume to the active sink, clamped to [0, 100].
// The value is retained across Start calls even while Idle.
func (p *Pipeline) SetVolume(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	if p.sink != nil {
		p.sink.SetVolume(v)
	}
}

// SetMuted applies mute to the active sink. Retained across Start
// calls even while Idle.
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if p.sink != nil {
		p.sink.SetMuted(muted)
	}
}

// Stats returns the buffer's stats snapshot, or the zero value if no
// stream is active.
func (p *Pipeline) Stats() buffer.Stats {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return buffer.Stats{}
	}
	return buf.Stats()
}
