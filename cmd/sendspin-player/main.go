// ABOUTME: Entry point for the sendspin-player client
// ABOUTME: Loads configuration, wires the session orchestrator, and runs until a shutdown signal
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrisuthe/sendspin-player/internal/config"
	"github.com/chrisuthe/sendspin-player/internal/version"
	"github.com/chrisuthe/sendspin-player/pkg/audio/output"
	"github.com/chrisuthe/sendspin-player/pkg/pipeline"
	"github.com/chrisuthe/sendspin-player/pkg/protocol"
	"github.com/chrisuthe/sendspin-player/pkg/session"
	syncpkg "github.com/chrisuthe/sendspin-player/pkg/sync"
)

func main() {
	log.SetFlags(log.Lmicroseconds)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = hostname + "-sendspin-player"
	}

	sessCfg := session.Config{
		URL:      cfg.URL,
		ClientID: cfg.ClientID,
		Name:     cfg.Name,

		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		SupportedRoles: []string{"player@v1"},
		PlayerSupport: &protocol.PlayerV1Support{
			SupportedFormats: []protocol.AudioFormat{
				{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16},
			},
			BufferCapacity:    cfg.Audio.Buffer.CapacityMs,
			SupportedCommands: []string{"volume", "mute"},
		},

		AutoReconnect: true,
		BaseDelay:     time.Duration(cfg.Connection.BaseDelayMs) * time.Millisecond,
		Multiplier:    cfg.Connection.Multiplier,
		MaxDelay:      time.Duration(cfg.Connection.MaxDelayMs) * time.Millisecond,

		ClockSync: syncpkg.Config{
			MinSamplesForgetting: cfg.Audio.ClockSync.MinSamplesForForgetting,
			ForgetFactor:         cfg.Audio.ClockSync.ForgetFactor,
			Cutoff:               cfg.Audio.ClockSync.AdaptiveCutoff,
			StaticDelayMs:        int(cfg.Audio.StaticDelayMs),
		},
		Pipeline: pipeline.Config{
			TargetMs:   cfg.Audio.Buffer.TargetMs,
			CapacityMs: float64(cfg.Audio.Buffer.CapacityMs),
		},

		WaitForConvergence: cfg.Audio.ClockSync.WaitForConvergence,
		ConvergenceTimeout: time.Duration(cfg.Audio.ClockSync.ConvergenceTimeoutMs) * time.Millisecond,

		OnMetadata: func(m protocol.MetadataState) {
			if m.Title != nil {
				log.Printf("now playing: %s", *m.Title)
			}
		},
		OnGroupUpdate: func(g protocol.GroupUpdate) {
			var state, group string
			if g.PlaybackState != nil {
				state = *g.PlaybackState
			}
			if g.GroupID != nil {
				group = *g.GroupID
			}
			log.Printf("group update: state=%s group=%s", state, group)
		},
	}

	sess := session.New(sessCfg, func() output.Sink {
		return output.NewOto(nil)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		sess.Stop()
	}()

	log.Printf("starting sendspin-player %q, connecting to %s", cfg.Name, cfg.URL)
	sess.Run()
	log.Printf("session stopped")
}
