// ABOUTME: Clock synchronization via a linear Kalman filter with adaptive forgetting
// ABOUTME: Estimates offset and drift between the local and server monotonic clocks
package sync

import (
	"fmt"
	"math"
	"sync"
)

// Config tunes the Kalman filter. Zero-value fields fall back to their
// documented default.
type Config struct {
	// QOffset and QDrift are the process noise variances for the offset
	// and drift states, in µs²/s and µs²/s³ respectively.
	QOffset float64
	QDrift  float64

	// R0 is the measurement noise floor, in µs², added to an
	// RTT-proportional term so noisier exchanges are trusted less.
	R0 float64

	// MinSamplesForgetting and ForgetFactor gate adaptive forgetting:
	// forgetting only engages once ForgetFactor > 1.0.
	MinSamplesForgetting int
	ForgetFactor         float64
	Cutoff               float64

	// InitialCovariance seeds P on construction and Reset; it must be
	// large enough that the first few measurements dominate it.
	InitialCovariance float64

	// CovarianceFloor prevents P's diagonal from collapsing to zero.
	CovarianceFloor float64

	// StaticDelayMs is an external user-tunable shift added to every
	// server-to-client conversion; positive means "play later".
	StaticDelayMs int
}

// DefaultConfig returns the filter parameters spec.md §4.4 documents.
func DefaultConfig() Config {
	return Config{
		QOffset:              100.0,
		QDrift:               1.0,
		R0:                   10_000.0,
		MinSamplesForgetting: 100,
		ForgetFactor:         1.0, // > 1.0 required to actually engage forgetting
		Cutoff:               0.75,
		InitialCovariance:    1e12,
		CovarianceFloor:      1e-6,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QOffset == 0 {
		c.QOffset = d.QOffset
	}
	if c.QDrift == 0 {
		c.QDrift = d.QDrift
	}
	if c.R0 == 0 {
		c.R0 = d.R0
	}
	if c.MinSamplesForgetting == 0 {
		c.MinSamplesForgetting = d.MinSamplesForgetting
	}
	if c.ForgetFactor == 0 {
		c.ForgetFactor = d.ForgetFactor
	}
	if c.Cutoff == 0 {
		c.Cutoff = d.Cutoff
	}
	if c.InitialCovariance == 0 {
		c.InitialCovariance = d.InitialCovariance
	}
	if c.CovarianceFloor == 0 {
		c.CovarianceFloor = d.CovarianceFloor
	}
	return c
}

// State is a read-only snapshot of the filter's estimate.
type State struct {
	OffsetUs           float64
	DriftUsPerS        float64
	P00, P01, P10, P11 float64
	LastUpdateClientUs int64
	Count              int
}

// Sync estimates the offset and drift between the local clock and a
// server's clock from NTP-style four-timestamp exchanges, via a linear
// Kalman filter with adaptive forgetting. One mutex guards all state;
// every public method acquires it, matching the teacher's
// single-struct-behind-one-lock shape.
type Sync struct {
	mu  sync.RWMutex
	cfg Config

	offset float64 // x0, µs
	drift  float64 // x1, µs/s

	p00, p01, p10, p11 float64

	lastUpdateClientUs int64
	count              int
}

// New creates a Sync with the given config.
func New(cfg Config) *Sync {
	cfg = cfg.withDefaults()
	s := &Sync{cfg: cfg}
	s.resetLocked()
	return s
}

// ProcessMeasurement feeds one NTP-style quadruple (T1 client transmit,
// T2 server receive, T3 server transmit, T4 client receive, all in
// microseconds) into the filter.
func (s *Sync) ProcessMeasurement(t1, t2, t3, t4 int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z := (float64(t2-t1) + float64(t3-t4)) / 2.0
	rtt := (t4 - t1) - (t3 - t2)

	if s.count == 0 {
		s.offset = z
		s.drift = 0
		s.lastUpdateClientUs = t4
		s.count = 1
		return
	}

	deltaT := float64(t4-s.lastUpdateClientUs) / 1e6
	if deltaT <= 0 {
		// Out-of-order or duplicate response; skip rather than let a
		// negative Δt corrupt the covariance propagation.
		return
	}

	// Predict: x- = F x, P- = F P F^T + Q * Δt
	xMinus0 := s.offset + deltaT*s.drift
	xMinus1 := s.drift

	fp00 := s.p00 + deltaT*s.p10
	fp01 := s.p01 + deltaT*s.p11
	// fp10, fp11 unchanged: F's second row is [0, 1]

	pMinus00 := fp00 + deltaT*fp01 + s.cfg.QOffset*deltaT
	pMinus01 := fp01
	pMinus10 := s.p10 + deltaT*s.p11
	pMinus11 := s.p11 + s.cfg.QDrift*deltaT

	// Update: one scalar measurement z, H = [1, 0]
	r := s.cfg.R0 + float64(rtt*rtt)/4.0
	sInnovCov := pMinus00 + r
	k0 := pMinus00 / sInnovCov
	k1 := pMinus10 / sInnovCov

	innovation := z - xMinus0

	s.offset = xMinus0 + k0*innovation
	s.drift = xMinus1 + k1*innovation

	s.p00 = (1 - k0) * pMinus00
	s.p01 = (1 - k0) * pMinus01
	s.p10 = pMinus10 - k1*pMinus00
	s.p11 = pMinus11 - k1*pMinus01

	if s.cfg.MinSamplesForgetting > 0 && s.count >= s.cfg.MinSamplesForgetting && s.cfg.ForgetFactor > 1.0 {
		if math.Abs(z-xMinus0) > s.cfg.Cutoff*math.Sqrt(pMinus00) {
			factor := s.cfg.ForgetFactor * s.cfg.ForgetFactor
			s.p00 *= factor
			s.p01 *= factor
			s.p10 *= factor
			s.p11 *= factor
		}
	}

	if s.p00 < s.cfg.CovarianceFloor {
		s.p00 = s.cfg.CovarianceFloor
	}
	if s.p11 < s.cfg.CovarianceFloor {
		s.p11 = s.cfg.CovarianceFloor
	}

	s.lastUpdateClientUs = t4
	s.count++
}

// HasMinimalSync reports whether enough measurements have landed to
// begin playback (spec.md: count >= 2).
func (s *Sync) HasMinimalSync() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count >= 2
}

// IsConverged reports whether the offset estimate is tight enough to trust.
func (s *Sync) IsConverged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count >= 5 && math.Sqrt(s.p00) < 1000
}

// IsDriftReliable reports whether the drift estimate is tight enough to
// apply in time conversions.
func (s *Sync) IsDriftReliable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count >= 5 && math.Sqrt(s.p11) < 50
}

// ClientToServer converts a local client-clock timestamp to the
// server's clock. Returns an error if no measurement has been
// processed yet.
func (s *Sync) ClientToServer(clientUs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return 0, fmt.Errorf("sync: client_to_server called before any measurement")
	}

	driftTerm := 0.0
	if s.count >= 5 && math.Sqrt(s.p11) < 50 {
		deltaT := float64(clientUs-s.lastUpdateClientUs) / 1e6
		driftTerm = s.drift * deltaT
	}

	return clientUs + roundToInt64(s.offset+driftTerm), nil
}

// ServerToClient converts a server-clock timestamp to the local client
// clock, including the configured static delay. Returns an error if no
// measurement has been processed yet.
func (s *Sync) ServerToClient(serverUs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return 0, fmt.Errorf("sync: server_to_client called before any measurement")
	}

	driftTerm := 0.0
	if s.count >= 5 && math.Sqrt(s.p11) < 50 {
		deltaT := (float64(serverUs) - s.offset - float64(s.lastUpdateClientUs)) / 1e6
		driftTerm = s.drift * deltaT
	}

	staticDelayUs := int64(s.cfg.StaticDelayMs) * 1000
	return serverUs - roundToInt64(s.offset+driftTerm) + staticDelayUs, nil
}

// SetStaticDelayMs updates the external user-tunable playback delay.
func (s *Sync) SetStaticDelayMs(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.StaticDelayMs = ms
}

// State returns a snapshot of the filter's current estimate.
func (s *Sync) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		OffsetUs:           s.offset,
		DriftUsPerS:        s.drift,
		P00:                s.p00,
		P01:                s.p01,
		P10:                s.p10,
		P11:                s.p11,
		LastUpdateClientUs: s.lastUpdateClientUs,
		Count:              s.count,
	}
}

// Reset restores the filter's initial (very large) covariance and
// zeros its state. Called on every new session.
func (s *Sync) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Sync) resetLocked() {
	s.offset = 0
	s.drift = 0
	s.p00 = s.cfg.InitialCovariance
	s.p11 = s.cfg.InitialCovariance
	s.p01 = 0
	s.p10 = 0
	s.lastUpdateClientUs = 0
	s.count = 0
}

func roundToInt64(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}
