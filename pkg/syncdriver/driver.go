// ABOUTME: Time-sync burst scheduler feeding the Kalman clock synchronizer
// ABOUTME: Sends bursts of client/time requests, picks the lowest-RTT response, and adapts its interval
package syncdriver

import (
	"context"
	"math"
	"time"

	syncpkg "github.com/chrisuthe/sendspin-player/pkg/sync"
)

// Sender transmits one client/time request, stamping T1 as clientUs.
type Sender interface {
	SendClientTime(clientUs int64) error
}

// Measurer is the clock synchronizer a Driver feeds selected
// measurements into. pkg/sync.Sync implements this directly.
type Measurer interface {
	ProcessMeasurement(t1, t2, t3, t4 int64)
	State() syncpkg.State
}

// quad is one completed NTP-style exchange awaiting RTT comparison.
type quad struct {
	t1, t2, t3, t4 int64
}

func (q quad) rtt() int64 {
	return (q.t4 - q.t1) - (q.t3 - q.t2)
}

// Driver runs a periodic burst-of-N time-sync task while the session
// is connected: it fires a burst of client/time requests spaced a fixed
// interval apart, waits for responses to arrive, keeps only the
// lowest-RTT quadruple, and feeds it to the Measurer. This biases the
// Kalman filter toward the least network-queueing-noisy samples instead
// of averaging in every response.
type Driver struct {
	sender   Sender
	measurer Measurer
	now      func() int64

	burstSize int
	spacing   time.Duration
	extraWait time.Duration

	responses     chan quad
	triggerBurst  chan struct{}
	burstComplete chan struct{}
}

// New creates a Driver using spec-default burst parameters: 8 requests,
// 50ms apart, with an additional 100ms wait for straggling responses.
// nowFunc supplies T1/T4 timestamps; pass nil to use
// time.Now().UnixMicro().
func New(sender Sender, measurer Measurer, nowFunc func() int64) *Driver {
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMicro() }
	}
	return &Driver{
		sender:        sender,
		measurer:      measurer,
		now:           nowFunc,
		burstSize:     8,
		spacing:       50 * time.Millisecond,
		extraWait:     2 * 50 * time.Millisecond,
		responses:     make(chan quad, 32),
		triggerBurst:  make(chan struct{}, 1),
		burstComplete: make(chan struct{}, 1),
	}
}

// BurstComplete delivers a non-blocking signal each time a burst (triggered
// or scheduled) finishes, whether or not it produced a measurement. Callers
// awaiting one specific triggered burst should drain any stale pending
// signal before calling TriggerBurst to avoid observing a previous burst's
// completion.
func (d *Driver) BurstComplete() <-chan struct{} {
	return d.burstComplete
}

// Deliver hands a received server/time response to the driver, stamping
// T4 at the moment of delivery. Responses that arrive after their
// burst's window has already closed are silently dropped.
func (d *Driver) Deliver(clientTransmitted, serverReceived, serverTransmitted int64) {
	t4 := d.now()
	select {
	case d.responses <- quad{t1: clientTransmitted, t2: serverReceived, t3: serverTransmitted, t4: t4}:
	default:
	}
}

// TriggerBurst requests an extra immediate burst ahead of the next
// scheduled one, used for the pre-stream burst on stream/start. It is a
// no-op if a trigger is already pending.
func (d *Driver) TriggerBurst() {
	select {
	case d.triggerBurst <- struct{}{}:
	default:
	}
}

// Run executes bursts until ctx is cancelled. Cancellation is
// cooperative: Run exits at the next burst boundary or wait-interval
// boundary, never mid-send.
func (d *Driver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		d.runBurst(ctx)

		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-d.triggerBurst:
		case <-time.After(d.adaptiveInterval()):
		}
	}
}

// runBurst sends d.burstSize client/time requests spaced d.spacing
// apart, waits d.extraWait past the last send for responses, and feeds
// the lowest-RTT quadruple collected to the measurer.
func (d *Driver) runBurst(ctx context.Context) {
	sent := make(map[int64]struct{}, d.burstSize)
	var collected []quad

	sendOne := func() {
		t1 := d.now()
		if err := d.sender.SendClientTime(t1); err == nil {
			sent[t1] = struct{}{}
		}
	}
	sendOne()
	sentCount := 1

	ticker := time.NewTicker(d.spacing)
	defer ticker.Stop()

	window := time.Duration(d.burstSize-1)*d.spacing + d.extraWait
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if sentCount < d.burstSize {
				sendOne()
				sentCount++
			}

		case q := <-d.responses:
			if _, ok := sent[q.t1]; ok {
				collected = append(collected, q)
			}

		case <-deadline.C:
			d.feedBest(collected)
			select {
			case d.burstComplete <- struct{}{}:
			default:
			}
			return
		}
	}
}

func (d *Driver) feedBest(collected []quad) {
	if len(collected) == 0 {
		return
	}

	best := collected[0]
	for _, q := range collected[1:] {
		if q.rtt() < best.rtt() {
			best = q
		}
	}

	d.measurer.ProcessMeasurement(best.t1, best.t2, best.t3, best.t4)
}

// adaptiveInterval picks the delay before the next burst based on how
// tightly the offset estimate has converged: a noisier estimate is
// sampled more often.
func (d *Driver) adaptiveInterval() time.Duration {
	state := d.measurer.State()

	if state.Count < 3 {
		return 500 * time.Millisecond
	}

	sigmaUs := math.Sqrt(state.P00)
	switch {
	case sigmaUs < 1000:
		return 10_000 * time.Millisecond
	case sigmaUs < 2000:
		return 5_000 * time.Millisecond
	case sigmaUs < 5000:
		return 2_000 * time.Millisecond
	default:
		return 1_000 * time.Millisecond
	}
}
