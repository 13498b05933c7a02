// ABOUTME: Session orchestrator wiring transport, clock sync, and the audio pipeline
// ABOUTME: Dispatches every inbound message type from a single receive loop
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/chrisuthe/sendspin-player/pkg/audio/output"
	"github.com/chrisuthe/sendspin-player/pkg/buffer"
	"github.com/chrisuthe/sendspin-player/pkg/clock"
	"github.com/chrisuthe/sendspin-player/pkg/pipeline"
	"github.com/chrisuthe/sendspin-player/pkg/protocol"
	syncpkg "github.com/chrisuthe/sendspin-player/pkg/sync"
	"github.com/chrisuthe/sendspin-player/pkg/syncdriver"
	"github.com/chrisuthe/sendspin-player/pkg/transport"
)

// defaultBurstTimeout bounds how long stream/start waits for the
// pre-stream sync burst it triggers before starting the pipeline anyway.
const defaultBurstTimeout = 2 * time.Second

// defaultConvergenceTimeout bounds WaitForConvergence when
// Config.ConvergenceTimeout is left at its zero value.
const defaultConvergenceTimeout = 5 * time.Second

// convergencePollInterval is how often awaitConvergence rechecks
// HasMinimalSync while waiting.
const convergencePollInterval = 50 * time.Millisecond

// Config configures a Session's transport identity and external
// collaborator hooks. Zero-value ClockSync/Pipeline configs fall back
// to their package defaults.
type Config struct {
	URL      string
	ClientID string // generated with uuid if empty
	Name     string

	DeviceInfo     protocol.DeviceInfo
	SupportedRoles []string
	PlayerSupport  *protocol.PlayerV1Support

	AutoReconnect bool
	BaseDelay     time.Duration
	Multiplier    float64
	MaxDelay      time.Duration

	ClockSync syncpkg.Config
	Pipeline  pipeline.Config

	BurstTimeout time.Duration

	// WaitForConvergence gates stream/start on the clock synchronizer
	// reaching HasMinimalSync before pipe.Start runs, per spec.md
	// section 6's audio.clock_sync.wait_for_convergence.
	WaitForConvergence bool
	// ConvergenceTimeout bounds WaitForConvergence; defaults to
	// defaultConvergenceTimeout if left zero. Corresponds to
	// audio.clock_sync.convergence_timeout_ms.
	ConvergenceTimeout time.Duration

	// OnAuxFrame receives artwork and visualizer binary frames, which
	// the core classifies but does not decode itself.
	OnAuxFrame func(protocol.Frame)
	// OnMetadata receives server/state track metadata for external
	// display collaborators (now-playing UI, etc.).
	OnMetadata func(protocol.MetadataState)
	// OnGroupUpdate receives group/update notifications.
	OnGroupUpdate func(protocol.GroupUpdate)
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = uuid.New().String()
	}
	if c.BurstTimeout == 0 {
		c.BurstTimeout = defaultBurstTimeout
	}
	return c
}

// Session owns one connection's full lifecycle: it dispatches every
// inbound message from pkg/transport to the clock synchronizer, the
// sync-burst driver, and the audio pipeline, and forwards whatever
// falls outside the core's scope to the configured hooks.
type Session struct {
	cfg Config

	clk       *clock.Clock
	clockSync *syncpkg.Sync
	driver    *syncdriver.Driver
	transport *transport.Transport
	pipe      *pipeline.Pipeline

	driverMu     sync.Mutex
	driverCancel context.CancelFunc

	serverMu sync.Mutex
	serverID string

	stopOnce sync.Once
	done     chan struct{}
}

// New builds a Session. newSink constructs a fresh output.Sink for
// each stream/start; production wires a real sink constructor, tests
// substitute a fake.
func New(cfg Config, newSink func() output.Sink) *Session {
	cfg = cfg.withDefaults()

	clk := clock.New(0)
	clockSync := syncpkg.New(cfg.ClockSync)
	pipe := pipeline.New(clockSync, clk, newSink, cfg.Pipeline)

	tr := transport.New(transport.Config{
		URL:            cfg.URL,
		ClientID:       cfg.ClientID,
		Name:           cfg.Name,
		SupportedRoles: cfg.SupportedRoles,
		DeviceInfo:     cfg.DeviceInfo,
		PlayerSupport:  cfg.PlayerSupport,
		AutoReconnect:  cfg.AutoReconnect,
		BaseDelay:      cfg.BaseDelay,
		Multiplier:     cfg.Multiplier,
		MaxDelay:       cfg.MaxDelay,
	})

	driver := syncdriver.New(tr, clockSync, clk.NowUs)

	return &Session{
		cfg:       cfg,
		clk:       clk,
		clockSync: clockSync,
		driver:    driver,
		transport: tr,
		pipe:      pipe,
		done:      make(chan struct{}),
	}
}

// Run drives the transport and dispatches inbound traffic until Stop
// is called. Blocks; call it from its own goroutine.
func (s *Session) Run() {
	go s.transport.Run()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.transport.Messages:
			s.handleMessage(msg)
		case frame := <-s.transport.Frames:
			s.handleFrame(frame)
		case st := <-s.transport.StateChanges:
			s.handleStateChange(st)
		case err := <-s.transport.Errors:
			log.Printf("session: transport error: %v", err)
		}
	}
}

// Stop shuts the session down in order: sync-driver, sink/pipeline,
// transport. Idempotent; safe to call once or repeatedly.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopDriver()
		if err := s.pipe.Stop(); err != nil {
			log.Printf("session: pipeline stop: %v", err)
		}
		s.transport.Disconnect("client_shutdown")
		close(s.done)
	})
}

func (s *Session) handleMessage(msg transport.InboundMessage) {
	switch msg.Type {
	case protocol.TypeServerHello:
		s.handleServerHello(msg)

	case protocol.TypeServerTime:
		var st protocol.ServerTime
		if err := unmarshalPayload(msg, &st); err != nil {
			log.Printf("session: malformed server/time: %v", err)
			return
		}
		s.driver.Deliver(st.ClientTransmitted, st.ServerReceived, st.ServerTransmitted)

	case protocol.TypeStreamStart:
		var start protocol.StreamStart
		if err := unmarshalPayload(msg, &start); err != nil {
			log.Printf("session: malformed stream/start: %v", err)
			return
		}
		s.handleStreamStart(start)

	case protocol.TypeStreamClear:
		if err := s.pipe.Clear(); err != nil {
			log.Printf("session: pipeline clear: %v", err)
		}

	case protocol.TypeStreamEnd:
		if err := s.pipe.Stop(); err != nil {
			log.Printf("session: pipeline stop: %v", err)
		}

	case protocol.TypeServerState:
		var state protocol.ServerStateMessage
		if err := unmarshalPayload(msg, &state); err != nil {
			log.Printf("session: malformed server/state: %v", err)
			return
		}
		if state.Controller != nil {
			s.pipe.SetVolume(state.Controller.Volume)
			s.pipe.SetMuted(state.Controller.Muted)
		}
		if state.Metadata != nil && s.cfg.OnMetadata != nil {
			s.cfg.OnMetadata(*state.Metadata)
		}

	case protocol.TypeGroupUpdate:
		var update protocol.GroupUpdate
		if err := unmarshalPayload(msg, &update); err != nil {
			log.Printf("session: malformed group/update: %v", err)
			return
		}
		if s.cfg.OnGroupUpdate != nil {
			s.cfg.OnGroupUpdate(update)
		}

	case protocol.TypeServerCommand:
		var cmd protocol.ServerCommandMessage
		if err := unmarshalPayload(msg, &cmd); err != nil {
			log.Printf("session: malformed server/command: %v", err)
			return
		}
		if cmd.Player == nil {
			return
		}
		switch cmd.Player.Command {
		case "volume":
			s.pipe.SetVolume(cmd.Player.Volume)
		case "mute":
			s.pipe.SetMuted(cmd.Player.Mute)
		}
	}
}

func (s *Session) handleServerHello(msg transport.InboundMessage) {
	var hello protocol.ServerHello
	if err := unmarshalPayload(msg, &hello); err != nil {
		log.Printf("session: malformed server/hello: %v", err)
		return
	}

	s.serverMu.Lock()
	s.serverID = hello.ServerID
	s.serverMu.Unlock()

	s.clockSync.Reset()
	s.startDriver()

	if err := s.transport.SendState(protocol.ClientStateMessage{
		Player: &protocol.PlayerState{State: "synchronized"},
	}); err != nil {
		log.Printf("session: sending initial client/state: %v", err)
	}
}

func (s *Session) startDriver() {
	s.stopDriver()

	ctx, cancel := context.WithCancel(context.Background())
	s.driverMu.Lock()
	s.driverCancel = cancel
	s.driverMu.Unlock()

	go s.driver.Run(ctx)
}

func (s *Session) stopDriver() {
	s.driverMu.Lock()
	cancel := s.driverCancel
	s.driverCancel = nil
	s.driverMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// handleStreamStart fires one immediate sync burst and hands off to
// awaitBurstThenStart to wait for it before starting the pipeline, so
// the first frames of a new stream play against a fresh measurement.
//
// It must not block here itself: the burst can only collect responses
// if server/time messages keep flowing through Run's dispatch loop into
// driver.Deliver, and this method runs on that very loop. Waiting here
// would starve the loop of exactly the messages the burst is waiting
// for, so the wait is handed to its own goroutine instead.
func (s *Session) handleStreamStart(start protocol.StreamStart) {
	if start.Player == nil {
		log.Printf("session: stream/start with no player format, ignoring")
		return
	}

	format, err := playerFormat(*start.Player)
	if err != nil {
		log.Printf("session: stream/start: %v", err)
		return
	}

	s.driver.TriggerBurst()
	go s.awaitBurstThenStart(format)
}

// awaitBurstThenStart waits (bounded by BurstTimeout) for the burst
// handleStreamStart triggered to complete, optionally waiting further
// for the clock synchronizer to reach the configured convergence level,
// then starts the pipeline. Runs off Run's dispatch loop.
func (s *Session) awaitBurstThenStart(format audio.Format) {
	select {
	case <-s.driver.BurstComplete():
	case <-time.After(s.cfg.BurstTimeout):
		log.Printf("session: pre-stream sync burst timed out, starting anyway")
	}

	if s.cfg.WaitForConvergence {
		s.awaitConvergence()
	}

	if err := s.pipe.Start(format); err != nil {
		log.Printf("session: pipeline start: %v", err)
	}
}

// awaitConvergence blocks until the clock synchronizer reports
// HasMinimalSync, or Config.ConvergenceTimeout elapses, whichever comes
// first. Polls rather than subscribing to a channel since pkg/sync has
// no change-notification primitive and convergence checks are cheap.
func (s *Session) awaitConvergence() {
	timeout := s.cfg.ConvergenceTimeout
	if timeout <= 0 {
		timeout = defaultConvergenceTimeout
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(convergencePollInterval)
	defer ticker.Stop()

	for {
		if s.clockSync.HasMinimalSync() {
			return
		}
		select {
		case <-deadline:
			log.Printf("session: clock sync convergence timed out, starting anyway")
			return
		case <-ticker.C:
		}
	}
}

func playerFormat(p protocol.StreamStartPlayer) (audio.Format, error) {
	var header []byte
	if p.CodecHeader != "" {
		decoded, err := base64.StdEncoding.DecodeString(p.CodecHeader)
		if err != nil {
			return audio.Format{}, fmt.Errorf("decode codec_header: %w", err)
		}
		header = decoded
	}
	return audio.Format{
		Codec:       p.Codec,
		SampleRate:  p.SampleRate,
		Channels:    p.Channels,
		BitDepth:    p.BitDepth,
		CodecHeader: header,
	}, nil
}

func (s *Session) handleFrame(frame protocol.Frame) {
	switch {
	case frame.IsAudio():
		s.pipe.ProcessAudioChunk(frame.Payload, frame.Timestamp)
	case frame.IsArtwork(), frame.IsVisualizer():
		if s.cfg.OnAuxFrame != nil {
			s.cfg.OnAuxFrame(frame)
		}
	}
}

func (s *Session) handleStateChange(st transport.State) {
	if st != transport.Disconnected {
		return
	}
	s.stopDriver()
	s.serverMu.Lock()
	s.serverID = ""
	s.serverMu.Unlock()
}

// ServerID returns the currently connected server's ID, or "" if
// disconnected.
func (s *Session) ServerID() string {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()
	return s.serverID
}

// PipelineState returns the audio pipeline's current lifecycle stage.
func (s *Session) PipelineState() pipeline.State {
	return s.pipe.State()
}

// BufferStats returns the active stream's timed-buffer stats snapshot.
func (s *Session) BufferStats() buffer.Stats {
	return s.pipe.Stats()
}

func unmarshalPayload(msg transport.InboundMessage, v interface{}) error {
	return json.Unmarshal(msg.Payload, v)
}
