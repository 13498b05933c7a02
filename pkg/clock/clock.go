// ABOUTME: Monotonic microsecond clock with jump filtering
// ABOUTME: Wraps the OS monotonic counter, clamping glitches without hiding real drift
package clock

import (
	"sync"
	"time"
)

// DefaultJumpThreshold bounds how far the returned clock can advance
// between two consecutive calls; a larger raw advance is clamped to it.
const DefaultJumpThreshold = 50 * time.Millisecond

// Stats holds cumulative diagnostic counters for a Clock.
type Stats struct {
	Calls             int64
	ForwardClamps     int64
	BackwardHolds     int64
	MaxForwardJumpUs  int64
	MaxBackwardJumpUs int64
}

// Clock is a process-wide monotonic microsecond time source. It never
// returns a value lower than a previous call, and it clamps forward
// jumps past its threshold instead of passing them straight through —
// a hypervisor pause or a scheduler stall shouldn't make the timed
// buffer think hundreds of milliseconds of audio are suddenly late.
//
// Clamped time is dropped, not carried over: a call past the threshold
// advances the returned clock by exactly the threshold, and later calls
// continue from that clamped value, so the excess of a stall never
// reaches the returned clock.
type Clock struct {
	mu sync.Mutex

	start time.Time

	thresholdUs int64
	lastRawUs   int64
	lastValueUs int64
	started     bool

	stats Stats

	// rawUsFunc overrides the elapsed-time source. Only set by tests;
	// nil means "use time.Since(c.start)".
	rawUsFunc func() int64
}

// New creates a Clock. A non-positive threshold uses DefaultJumpThreshold.
func New(threshold time.Duration) *Clock {
	if threshold <= 0 {
		threshold = DefaultJumpThreshold
	}
	return &Clock{
		start:       time.Now(),
		thresholdUs: threshold.Microseconds(),
	}
}

// NowUs returns the current time in microseconds from an arbitrary
// origin. Safe for concurrent use.
func (c *Clock) NowUs() int64 {
	var rawUs int64
	if c.rawUsFunc != nil {
		rawUs = c.rawUsFunc()
	} else {
		rawUs = time.Since(c.start).Microseconds()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Calls++

	if !c.started {
		c.started = true
		c.lastRawUs = rawUs
		c.lastValueUs = rawUs
		return c.lastValueUs
	}

	delta := rawUs - c.lastRawUs
	c.lastRawUs = rawUs

	if delta < 0 {
		c.stats.BackwardHolds++
		if -delta > c.stats.MaxBackwardJumpUs {
			c.stats.MaxBackwardJumpUs = -delta
		}
		return c.lastValueUs
	}

	if delta > c.thresholdUs {
		c.stats.ForwardClamps++
		if delta > c.stats.MaxForwardJumpUs {
			c.stats.MaxForwardJumpUs = delta
		}
		delta = c.thresholdUs
	}

	c.lastValueUs += delta
	return c.lastValueUs
}

// Stats returns a snapshot of the cumulative diagnostic counters.
func (c *Clock) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ThresholdUs returns the configured forward-jump clamp, in microseconds.
func (c *Clock) ThresholdUs() int64 {
	return c.thresholdUs
}

// Reset reseeds the clock's origin and clears diagnostic counters. Call
// this when a new playback session begins so stale drift from a prior
// session's clamps and holds doesn't linger in the counters.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = time.Now()
	c.lastRawUs = 0
	c.lastValueUs = 0
	c.started = false
	c.stats = Stats{}
}
