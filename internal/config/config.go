// ABOUTME: CLI and config-file loading for the core's tunable values
// ABOUTME: An optional YAML file overlays defaults; command-line flags always win
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// BufferConfig tunes the timed audio ring buffer (spec.md section 6).
type BufferConfig struct {
	TargetMs   float64 `yaml:"target_ms"`
	CapacityMs int     `yaml:"capacity_ms"`
}

// ClockSyncConfig tunes the Kalman clock synchronizer's adaptation
// behavior and whether Start blocks on convergence.
type ClockSyncConfig struct {
	WaitForConvergence      bool    `yaml:"wait_for_convergence"`
	ConvergenceTimeoutMs    int     `yaml:"convergence_timeout_ms"`
	ForgetFactor            float64 `yaml:"forget_factor"`
	AdaptiveCutoff          float64 `yaml:"adaptive_cutoff"`
	MinSamplesForForgetting int     `yaml:"min_samples_for_forgetting"`
}

// AudioConfig groups every audio.* key spec.md section 6 lists.
type AudioConfig struct {
	StaticDelayMs float64         `yaml:"static_delay_ms"`
	Buffer        BufferConfig    `yaml:"buffer"`
	ClockSync     ClockSyncConfig `yaml:"clock_sync"`
}

// ConnectionConfig tunes the transport's reconnect backoff.
type ConnectionConfig struct {
	BaseDelayMs int     `yaml:"base_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
}

// Config is the fully resolved configuration: hardcoded defaults,
// overlaid with an optional YAML file, overlaid with command-line
// flags the caller explicitly passed.
type Config struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Name     string `yaml:"name"`

	Audio      AudioConfig      `yaml:"audio"`
	Connection ConnectionConfig `yaml:"connection"`
}

// Default returns the hardcoded baseline spec.md section 6 documents.
func Default() Config {
	return Config{
		Name: "sendspin-player",
		Audio: AudioConfig{
			StaticDelayMs: 0,
			Buffer: BufferConfig{
				TargetMs:   250,
				CapacityMs: 8000,
			},
			ClockSync: ClockSyncConfig{
				WaitForConvergence:      false,
				ConvergenceTimeoutMs:    5000,
				ForgetFactor:            1.0,
				AdaptiveCutoff:          0.75,
				MinSamplesForForgetting: 100,
			},
		},
		Connection: ConnectionConfig{
			BaseDelayMs: 1000,
			Multiplier:  1.5,
			MaxDelayMs:  30_000,
		},
	}
}

// Load parses command-line arguments (not including the program name)
// into a Config, starting from Default, optionally overlaid by
// --config's YAML file, and finally overlaid by whichever flags the
// caller actually passed. A flag's default value never masks a file
// value: only flags pflag reports as Changed are applied.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("sendspin-player", pflag.ContinueOnError)

	configPath := fs.String("config", "", "path to an optional YAML config file")
	url := fs.String("url", "", "server WebSocket URL, e.g. ws://host:1234/sendspin")
	name := fs.String("name", "", "player display name")
	clientID := fs.String("client-id", "", "client identifier (a random UUID is generated if unset)")

	staticDelayMs := fs.Float64("audio.static-delay-ms", 0, "milliseconds added to every server-to-client time conversion")
	targetMs := fs.Float64("audio.buffer.target-ms", 0, "buffered-ms level the ready-for-playback gate waits for")
	capacityMs := fs.Int("audio.buffer.capacity-ms", 0, "ring buffer capacity in milliseconds")

	waitForConvergence := fs.Bool("audio.clock-sync.wait-for-convergence", false, "block stream start until the clock sync filter has converged")
	convergenceTimeoutMs := fs.Int("audio.clock-sync.convergence-timeout-ms", 0, "maximum time to wait for convergence, in milliseconds")
	forgetFactor := fs.Float64("audio.clock-sync.forget-factor", 0, "Kalman filter adaptive forgetting factor")
	adaptiveCutoff := fs.Float64("audio.clock-sync.adaptive-cutoff", 0, "innovation-to-sigma ratio that triggers forgetting")
	minSamplesForForgetting := fs.Int("audio.clock-sync.min-samples-for-forgetting", 0, "samples required before forgetting can engage")

	baseDelayMs := fs.Int("connection.base-delay-ms", 0, "reconnect backoff base delay, in milliseconds")
	multiplier := fs.Float64("connection.multiplier", 0, "reconnect backoff multiplier")
	maxDelayMs := fs.Int("connection.max-delay-ms", 0, "reconnect backoff cap, in milliseconds")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", *configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", *configPath, err)
		}
	}

	if fs.Changed("url") {
		cfg.URL = *url
	}
	if fs.Changed("name") {
		cfg.Name = *name
	}
	if fs.Changed("client-id") {
		cfg.ClientID = *clientID
	}
	if fs.Changed("audio.static-delay-ms") {
		cfg.Audio.StaticDelayMs = *staticDelayMs
	}
	if fs.Changed("audio.buffer.target-ms") {
		cfg.Audio.Buffer.TargetMs = *targetMs
	}
	if fs.Changed("audio.buffer.capacity-ms") {
		cfg.Audio.Buffer.CapacityMs = *capacityMs
	}
	if fs.Changed("audio.clock-sync.wait-for-convergence") {
		cfg.Audio.ClockSync.WaitForConvergence = *waitForConvergence
	}
	if fs.Changed("audio.clock-sync.convergence-timeout-ms") {
		cfg.Audio.ClockSync.ConvergenceTimeoutMs = *convergenceTimeoutMs
	}
	if fs.Changed("audio.clock-sync.forget-factor") {
		cfg.Audio.ClockSync.ForgetFactor = *forgetFactor
	}
	if fs.Changed("audio.clock-sync.adaptive-cutoff") {
		cfg.Audio.ClockSync.AdaptiveCutoff = *adaptiveCutoff
	}
	if fs.Changed("audio.clock-sync.min-samples-for-forgetting") {
		cfg.Audio.ClockSync.MinSamplesForForgetting = *minSamplesForForgetting
	}
	if fs.Changed("connection.base-delay-ms") {
		cfg.Connection.BaseDelayMs = *baseDelayMs
	}
	if fs.Changed("connection.multiplier") {
		cfg.Connection.Multiplier = *multiplier
	}
	if fs.Changed("connection.max-delay-ms") {
		cfg.Connection.MaxDelayMs = *maxDelayMs
	}

	return cfg, nil
}
