// ABOUTME: Tests for the monotonic microsecond clock
// ABOUTME: Tests jump clamping, backward holds, counters, and reset
package clock

import (
	"testing"
	"time"
)

func TestNowUs_Monotonic(t *testing.T) {
	c := New(0)
	a := c.NowUs()
	b := c.NowUs()
	if b < a {
		t.Errorf("expected non-decreasing clock, got %d then %d", a, b)
	}
}

func TestNowUs_ClampsForwardJump(t *testing.T) {
	c := New(50 * time.Millisecond)

	var raw int64
	c.rawUsFunc = func() int64 { return raw }

	raw = 0
	first := c.NowUs()

	raw = 500_000 // 500ms jump, far past the 50ms threshold
	second := c.NowUs()

	if second-first != 50_000 {
		t.Errorf("expected clamped advance of 50000us, got %d", second-first)
	}

	stats := c.Stats()
	if stats.ForwardClamps != 1 {
		t.Errorf("expected 1 forward clamp, got %d", stats.ForwardClamps)
	}
	if stats.MaxForwardJumpUs != 500_000 {
		t.Errorf("expected max forward jump 500000, got %d", stats.MaxForwardJumpUs)
	}
}

func TestNowUs_KeepsAdvancingAfterClampedJump(t *testing.T) {
	c := New(50 * time.Millisecond)

	var raw int64
	c.rawUsFunc = func() int64 { return raw }

	raw = 0
	c.NowUs()

	raw = 500_000
	afterJump := c.NowUs() // clamped to +50ms

	raw = 500_000 + 50_000 // next raw advance is within the threshold
	caughtUp := c.NowUs()

	if caughtUp <= afterJump {
		t.Errorf("expected clock to keep advancing once wall time catches up, got %d then %d", afterJump, caughtUp)
	}
}

func TestNowUs_HoldsOnBackwardJump(t *testing.T) {
	c := New(50 * time.Millisecond)

	var raw int64
	c.rawUsFunc = func() int64 { return raw }

	raw = 10_000
	first := c.NowUs()

	raw = 5_000 // time went backward
	second := c.NowUs()

	if second != first {
		t.Errorf("expected backward jump to hold at %d, got %d", first, second)
	}

	stats := c.Stats()
	if stats.BackwardHolds != 1 {
		t.Errorf("expected 1 backward hold, got %d", stats.BackwardHolds)
	}
	if stats.MaxBackwardJumpUs != 5_000 {
		t.Errorf("expected max backward jump 5000, got %d", stats.MaxBackwardJumpUs)
	}
}

func TestNowUs_NoClampWithinThreshold(t *testing.T) {
	c := New(50 * time.Millisecond)

	var raw int64
	c.rawUsFunc = func() int64 { return raw }

	raw = 0
	first := c.NowUs()

	raw = 10_000 // 10ms, under the 50ms threshold
	second := c.NowUs()

	if second-first != 10_000 {
		t.Errorf("expected unclamped advance of 10000us, got %d", second-first)
	}

	stats := c.Stats()
	if stats.ForwardClamps != 0 {
		t.Errorf("expected no forward clamps, got %d", stats.ForwardClamps)
	}
}

func TestReset(t *testing.T) {
	c := New(50 * time.Millisecond)

	var raw int64
	c.rawUsFunc = func() int64 { return raw }

	raw = 0
	c.NowUs()
	raw = 500_000
	c.NowUs()

	c.Reset()
	c.rawUsFunc = func() int64 { return raw } // Reset doesn't touch rawUsFunc, re-set for clarity

	if stats := c.Stats(); stats != (Stats{}) {
		t.Errorf("expected stats cleared after Reset, got %+v", stats)
	}

	raw = 500_000
	first := c.NowUs()
	raw = 500_010
	second := c.NowUs()
	if second-first != 10 {
		t.Errorf("expected clean advance after reset, got %d", second-first)
	}
}

func TestNew_DefaultThreshold(t *testing.T) {
	c := New(0)
	if c.ThresholdUs() != DefaultJumpThreshold.Microseconds() {
		t.Errorf("expected default threshold %d, got %d", DefaultJumpThreshold.Microseconds(), c.ThresholdUs())
	}
}
