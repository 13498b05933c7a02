// ABOUTME: Monotonic clock package
// ABOUTME: Process-wide microsecond time source with jump filtering and diagnostics
// Package clock provides a wall-clock-independent microsecond time
// source for everything that needs a stable notion of "now": the sync
// driver's burst timestamps, the Kalman filter's measurement clock, and
// the timed buffer's read/write scheduling.
//
// Example:
//
//	c := clock.New(0) // 0 uses DefaultJumpThreshold
//	nowUs := c.NowUs()
package clock
