// ABOUTME: Tests for the Kalman clock synchronizer
// ABOUTME: Tests first-sample initialization, convergence, and time conversion
package sync

import (
	"math"
	"testing"
)

// quad builds a deterministic NTP-style quadruple for a fixed true
// offset (client clock runs offsetUs behind the server clock), a
// one-way network delay, and a server processing delay, anchored at
// baseClientUs on the client's clock.
func quad(baseClientUs, offsetUs, delayUs, procUs int64) (t1, t2, t3, t4 int64) {
	t1 = baseClientUs
	t2 = baseClientUs + offsetUs + delayUs
	t3 = t2 + procUs
	t4 = baseClientUs + 2*delayUs + procUs
	return
}

func TestProcessMeasurement_FirstSampleInitializesOffset(t *testing.T) {
	s := New(DefaultConfig())

	t1, t2, t3, t4 := quad(1_000_000, 300, 1000, 200)
	s.ProcessMeasurement(t1, t2, t3, t4)

	state := s.State()
	if state.Count != 1 {
		t.Fatalf("expected count 1, got %d", state.Count)
	}
	if state.OffsetUs != 300 {
		t.Errorf("expected first-sample offset to equal the raw measurement 300, got %v", state.OffsetUs)
	}
}

func TestHasMinimalSync(t *testing.T) {
	s := New(DefaultConfig())
	if s.HasMinimalSync() {
		t.Fatal("expected no minimal sync before any measurement")
	}

	t1, t2, t3, t4 := quad(1_000_000, 300, 1000, 200)
	s.ProcessMeasurement(t1, t2, t3, t4)
	if s.HasMinimalSync() {
		t.Fatal("expected no minimal sync after only 1 measurement")
	}

	t1, t2, t3, t4 = quad(1_100_000, 300, 1000, 200)
	s.ProcessMeasurement(t1, t2, t3, t4)
	if !s.HasMinimalSync() {
		t.Fatal("expected minimal sync after 2 measurements")
	}
}

func TestClientToServer_ErrorsBeforeAnyMeasurement(t *testing.T) {
	s := New(DefaultConfig())
	if _, err := s.ClientToServer(1_000_000); err == nil {
		t.Fatal("expected an error calling client_to_server before any measurement")
	}
	if _, err := s.ServerToClient(1_000_000); err == nil {
		t.Fatal("expected an error calling server_to_client before any measurement")
	}
}

func TestConvergenceWithConsistentMeasurements(t *testing.T) {
	s := New(DefaultConfig())

	const trueOffset = int64(300)
	base := int64(1_000_000)
	for i := 0; i < 10; i++ {
		t1, t2, t3, t4 := quad(base, trueOffset, 1000, 200)
		s.ProcessMeasurement(t1, t2, t3, t4)
		base += 100_000 // 100ms between bursts
	}

	state := s.State()
	if state.Count != 10 {
		t.Fatalf("expected count 10, got %d", state.Count)
	}
	if !s.IsConverged() {
		t.Errorf("expected offset to converge after 10 consistent measurements, P00=%v", state.P00)
	}
	if math.Abs(state.OffsetUs-float64(trueOffset)) > 5 {
		t.Errorf("expected offset near %d, got %v", trueOffset, state.OffsetUs)
	}
}

func TestClientToServerServerToClient_RoundTrip(t *testing.T) {
	s := New(DefaultConfig())

	const trueOffset = int64(500)
	base := int64(2_000_000)
	for i := 0; i < 6; i++ {
		t1, t2, t3, t4 := quad(base, trueOffset, 2000, 100)
		s.ProcessMeasurement(t1, t2, t3, t4)
		base += 100_000
	}

	clientNow := base
	serverNow, err := s.ClientToServer(clientNow)
	if err != nil {
		t.Fatalf("client_to_server failed: %v", err)
	}

	roundTripped, err := s.ServerToClient(serverNow)
	if err != nil {
		t.Fatalf("server_to_client failed: %v", err)
	}

	if diff := roundTripped - clientNow; diff > 5 || diff < -5 {
		t.Errorf("expected round trip within 5us, got client=%d server=%d roundtrip=%d", clientNow, serverNow, roundTripped)
	}
}

func TestSetStaticDelayMs_ShiftsServerToClient(t *testing.T) {
	s := New(DefaultConfig())

	t1, t2, t3, t4 := quad(1_000_000, 0, 1000, 100)
	s.ProcessMeasurement(t1, t2, t3, t4)
	s.ProcessMeasurement(t1+100_000, t2+100_000, t3+100_000, t4+100_000)

	without, err := s.ServerToClient(2_000_000)
	if err != nil {
		t.Fatalf("server_to_client failed: %v", err)
	}

	s.SetStaticDelayMs(50)
	with, err := s.ServerToClient(2_000_000)
	if err != nil {
		t.Fatalf("server_to_client failed: %v", err)
	}

	if with-without != 50_000 {
		t.Errorf("expected a 50ms static delay to shift the result by 50000us, got %d", with-without)
	}
}

func TestReset(t *testing.T) {
	s := New(DefaultConfig())

	t1, t2, t3, t4 := quad(1_000_000, 300, 1000, 200)
	s.ProcessMeasurement(t1, t2, t3, t4)
	s.ProcessMeasurement(t1+100_000, t2+100_000, t3+100_000, t4+100_000)

	s.Reset()

	state := s.State()
	if state.Count != 0 {
		t.Errorf("expected count 0 after reset, got %d", state.Count)
	}
	if state.OffsetUs != 0 || state.DriftUsPerS != 0 {
		t.Errorf("expected offset and drift zeroed after reset, got offset=%v drift=%v", state.OffsetUs, state.DriftUsPerS)
	}
	if s.HasMinimalSync() {
		t.Error("expected no minimal sync immediately after reset")
	}
}

func TestProcessMeasurement_SkipsNonPositiveDeltaT(t *testing.T) {
	s := New(DefaultConfig())

	t1, t2, t3, t4 := quad(2_000_000, 300, 1000, 200)
	s.ProcessMeasurement(t1, t2, t3, t4)

	// A second measurement with t4 <= the previous t4 must not corrupt state.
	s.ProcessMeasurement(t1, t2, t3, t4)

	state := s.State()
	if state.Count != 1 {
		t.Errorf("expected non-positive delta-t measurement to be skipped, count=%d", state.Count)
	}
}
