// ABOUTME: Timed audio ring buffer with drop/insert sync correction
// ABOUTME: Single-producer (network write) / single-consumer (output read) structure
package buffer

import (
	"errors"
	"math"
	"sync"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/chrisuthe/sendspin-player/pkg/audio/resample"
)

// ErrDisposed is returned by Write after Dispose.
var ErrDisposed = errors.New("buffer: disposed")

// ClockConverter translates a server-clock timestamp to the local
// client clock. pkg/sync.Sync implements this directly.
type ClockConverter interface {
	ServerToClient(serverUs int64) (int64, error)
}

// CorrectionMode reports which sync-correction strategy Read is
// currently applying.
type CorrectionMode int

const (
	CorrectionNone CorrectionMode = iota
	CorrectionDropping
	CorrectionInserting
	CorrectionResampling
)

func (m CorrectionMode) String() string {
	switch m {
	case CorrectionNone:
		return "none"
	case CorrectionDropping:
		return "dropping"
	case CorrectionInserting:
		return "inserting"
	case CorrectionResampling:
		return "resampling"
	default:
		return "unknown"
	}
}

// Stats is a read-only snapshot of the buffer's state.
type Stats struct {
	BufferedMs             float64
	TargetMs               float64
	Underruns              int64
	Overruns               int64
	DroppedSamples         int64
	SamplesWritten         int64
	SamplesRead            int64
	SyncErrorUs            float64
	CorrectionMode         CorrectionMode
	SamplesDroppedForSync  int64
	SamplesInsertedForSync int64
}

// Config tunes ring sizing and the buffered-ms target the pipeline
// waits for before starting playback.
type Config struct {
	// CapacityMs sizes the ring; default 8000ms.
	CapacityMs float64
	// TargetMs is the buffered-ms level Stats().BufferedMs is compared
	// against for the pipeline's ready-for-playback gate; default 250ms.
	TargetMs float64
}

func (c Config) withDefaults() Config {
	if c.CapacityMs == 0 {
		c.CapacityMs = 8000
	}
	if c.TargetMs == 0 {
		c.TargetMs = 250
	}
	return c
}

// segment ties a contiguous run of ring samples to the local playback
// time of its first sample.
type segment struct {
	localPlaybackTimeUs int64
	sampleCount         int
}

const (
	gracePeriodUs    = 500_000
	reanchorThreshUs = 500_000
	deadbandUs       = 2000.0
	targetSeconds    = 2.0
	maxSpeed         = 0.04
	minCorrectionIntervalFrames = 10

	// resampleHysteresisUs bounds the "continuous" correction band
	// spec.md §4.7's alternative strategy describes: errors between
	// deadbandUs and this threshold are corrected by nudging the
	// playback rate (CorrectionResampling); errors beyond it fall back
	// to frame-level drop/insert, which can close a larger gap faster.
	resampleHysteresisUs = 100_000.0
)

// Buffer is a fixed-capacity ring of interleaved float32 samples with a
// parallel FIFO of timestamped segments, statistics, and drop/insert
// sync correction. One mutex guards all state; every public method
// acquires it for its full duration.
type Buffer struct {
	mu sync.Mutex

	format          audio.Format
	clock           ClockConverter
	capacitySamples int
	targetMs        float64

	ring        []float32
	writeIdx    int
	readIdx     int
	liveSamples int

	segments []segment

	disposed bool

	outputLatencyUs int64

	playbackStarted         bool
	playbackStartLocalUs    int64
	samplesReadSinceStart   int64
	samplesOutputSinceStart int64

	lastOutputFrame []float32
	scratchFrame    []float32
	scratchDiscard  []float32
	resampleScratch []float32

	resampler *resample.Resampler

	framesSinceCorrection    int
	correctionMode           CorrectionMode
	correctionIntervalFrames int
	syncErrorUs              float64

	reanchorPending bool
	reanchor        chan struct{}

	overruns               int64
	underruns              int64
	droppedSamples         int64
	samplesWritten         int64
	samplesRead            int64
	samplesDroppedForSync  int64
	samplesInsertedForSync int64
}

// New creates a Buffer sized for format at the given config, converting
// server timestamps to local time via clock.
func New(format audio.Format, clock ClockConverter, cfg Config) *Buffer {
	cfg = cfg.withDefaults()

	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	capacitySamples := int(cfg.CapacityMs/1000.0*float64(format.SampleRate)) * channels
	if capacitySamples <= 0 {
		capacitySamples = channels
	}

	return &Buffer{
		format:          format,
		clock:           clock,
		capacitySamples: capacitySamples,
		targetMs:        cfg.TargetMs,
		ring:            make([]float32, capacitySamples),
		segments:        make([]segment, 0, 64),
		lastOutputFrame: make([]float32, channels),
		scratchFrame:    make([]float32, channels),
		scratchDiscard:  make([]float32, 2*channels),
		reanchor:        make(chan struct{}, 1),
		correctionMode:  CorrectionNone,
		resampler:       resample.New(format.SampleRate, format.SampleRate, channels),
	}
}

// SetOutputLatencyUs records the sink's current output buffering delay,
// used by the sync-error computation.
func (b *Buffer) SetOutputLatencyUs(us int64) {
	b.mu.Lock()
	b.outputLatencyUs = us
	b.mu.Unlock()
}

// ReanchorRequired delivers a coalesced one-shot signal each time Read
// detects the sync error has exceeded the gross re-anchor threshold.
func (b *Buffer) ReanchorRequired() <-chan struct{} {
	return b.reanchor
}

// Write converts serverTimestampUs to local time and appends samples to
// the ring, dropping the oldest live samples first if they would
// overflow capacity.
func (b *Buffer) Write(samples []float32, serverTimestampUs int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return ErrDisposed
	}
	if len(samples) == 0 {
		return nil
	}

	localPlaybackUs, err := b.clock.ServerToClient(serverTimestampUs)
	if err != nil {
		// No measurement yet: fall back to the raw server timestamp,
		// equivalent to assuming offset zero until sync converges.
		localPlaybackUs = serverTimestampUs
	}

	n := len(samples)
	overran := false

	if n > b.capacitySamples {
		dropped := n - b.capacitySamples
		samples = samples[dropped:]
		localPlaybackUs += int64(float64(dropped) * b.format.MicrosPerSample())
		n = b.capacitySamples
		b.droppedSamples += int64(dropped)
		overran = true
	}

	if b.liveSamples+n > b.capacitySamples {
		overflow := b.liveSamples + n - b.capacitySamples
		b.dropOldest(overflow)
		overran = true
	}

	if overran {
		b.overruns++
	}

	if n == 0 {
		return nil
	}

	b.writeSamples(samples)
	b.liveSamples += n
	b.samplesWritten += int64(n)
	b.segments = append(b.segments, segment{localPlaybackTimeUs: localPlaybackUs, sampleCount: n})

	return nil
}

func (b *Buffer) writeSamples(samples []float32) {
	n := len(samples)
	first := b.capacitySamples - b.writeIdx
	if first > n {
		first = n
	}
	copy(b.ring[b.writeIdx:], samples[:first])
	if first < n {
		copy(b.ring[0:], samples[first:])
	}
	b.writeIdx = (b.writeIdx + n) % b.capacitySamples
}

// dropOldest discards count live samples from the front of the ring
// (oldest first) and trims the segment FIFO to match.
func (b *Buffer) dropOldest(count int) {
	if count <= 0 {
		return
	}
	if count > b.liveSamples {
		count = b.liveSamples
	}
	b.readIdx = (b.readIdx + count) % b.capacitySamples
	b.liveSamples -= count
	b.droppedSamples += int64(count)
	b.trimSegments(count)
}

// consumeInto copies len(dst) samples from the front of the ring into
// dst, advancing the read cursor and trimming segments. Caller must
// ensure len(dst) <= b.liveSamples.
func (b *Buffer) consumeInto(dst []float32) {
	n := len(dst)
	first := b.capacitySamples - b.readIdx
	if first > n {
		first = n
	}
	copy(dst[:first], b.ring[b.readIdx:])
	if first < n {
		copy(dst[first:], b.ring[0:n-first])
	}
	b.readIdx = (b.readIdx + n) % b.capacitySamples
	b.liveSamples -= n
	b.trimSegments(n)
}

func (b *Buffer) trimSegments(n int) {
	remaining := n
	for remaining > 0 && len(b.segments) > 0 {
		seg := &b.segments[0]
		if seg.sampleCount <= remaining {
			remaining -= seg.sampleCount
			b.segments = b.segments[1:]
		} else {
			seg.sampleCount -= remaining
			seg.localPlaybackTimeUs += int64(float64(remaining) * b.format.MicrosPerSample())
			remaining = 0
		}
	}
}

// Read fills out with up to len(out) samples and returns the count
// actually produced; any remainder is zeroed.
func (b *Buffer) Read(out []float32, currentLocalTimeUs int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	zero(out)

	if b.disposed {
		return 0
	}

	if b.liveSamples == 0 {
		if b.playbackStarted {
			b.underruns++
		}
		return 0
	}

	if !b.playbackStarted {
		b.playbackStarted = true
		b.playbackStartLocalUs = currentLocalTimeUs
		b.samplesReadSinceStart = 0
		b.samplesOutputSinceStart = 0
		b.framesSinceCorrection = 0
		b.correctionMode = CorrectionNone
	}

	if b.reanchorPending {
		b.reanchorPending = false
		b.dispatchReanchor()
		return 0
	}

	channels := b.format.Channels
	if channels <= 0 {
		channels = 1
	}

	readBefore := b.samplesReadSinceStart

	var n int
	switch b.correctionMode {
	case CorrectionNone:
		n = b.bulkCopy(out, channels)
	case CorrectionResampling:
		n = b.resampledCopy(out, channels)
	default:
		n = b.correctedCopy(out, channels)
	}
	b.samplesRead += int64(n)

	elapsedWallUs := currentLocalTimeUs - b.playbackStartLocalUs
	if elapsedWallUs >= gracePeriodUs {
		b.recomputeSyncErrorAndCorrection(currentLocalTimeUs, readBefore)
		if math.Abs(b.syncErrorUs) > reanchorThreshUs {
			b.reanchorPending = true
		}
	}

	return n
}

func (b *Buffer) dispatchReanchor() {
	select {
	case b.reanchor <- struct{}{}:
	default:
	}
}

// bulkCopy streams samples straight from the ring into out with no
// drop/insert correction, still tracking the final frame for a future
// transition into a correction mode.
func (b *Buffer) bulkCopy(out []float32, channels int) int {
	n := len(out)
	if n > b.liveSamples {
		n = b.liveSamples
	}
	n -= n % channels
	if n <= 0 {
		return 0
	}

	b.consumeInto(out[:n])
	b.samplesReadSinceStart += int64(n)
	b.samplesOutputSinceStart += int64(n)

	copy(b.lastOutputFrame, out[n-channels:n])

	return n
}

// correctedCopy runs the frame-by-frame drop/insert correction loop.
func (b *Buffer) correctedCopy(out []float32, channels int) int {
	outPos := 0

	for outPos+channels <= len(out) {
		if b.liveSamples < channels {
			break
		}

		b.framesSinceCorrection++
		due := b.framesSinceCorrection >= b.correctionIntervalFrames

		switch {
		case b.correctionMode == CorrectionDropping && due && b.liveSamples >= 2*channels:
			b.consumeInto(b.scratchDiscard)
			b.samplesReadSinceStart += int64(2 * channels)
			b.samplesDroppedForSync += int64(channels)
			copy(out[outPos:outPos+channels], b.lastOutputFrame)
			b.samplesOutputSinceStart += int64(channels)
			b.framesSinceCorrection = 0

		case b.correctionMode == CorrectionInserting && due:
			copy(out[outPos:outPos+channels], b.lastOutputFrame)
			b.samplesInsertedForSync += int64(channels)
			b.samplesOutputSinceStart += int64(channels)
			b.framesSinceCorrection = 0

		default:
			b.consumeInto(b.scratchFrame)
			copy(out[outPos:outPos+channels], b.scratchFrame)
			copy(b.lastOutputFrame, b.scratchFrame)
			b.samplesReadSinceStart += int64(channels)
			b.samplesOutputSinceStart += int64(channels)
		}

		outPos += channels
	}

	return outPos
}

// resampledCopy drives the continuous rate-nudging correction strategy:
// it pulls however many input samples the resampler's current ratio
// needs to fill out, runs them through linear interpolation, and writes
// the result straight into out with no audible click.
func (b *Buffer) resampledCopy(out []float32, channels int) int {
	needed := b.resampler.InputSamplesNeeded(len(out)) + channels
	needed -= needed % channels
	if needed > b.liveSamples {
		needed = b.liveSamples - (b.liveSamples % channels)
	}
	if needed <= 0 {
		return 0
	}

	if cap(b.resampleScratch) < needed {
		b.resampleScratch = make([]float32, needed)
	}
	scratch := b.resampleScratch[:needed]
	b.consumeInto(scratch)
	b.samplesReadSinceStart += int64(needed)

	n := b.resampler.Resample(scratch, out)
	b.samplesOutputSinceStart += int64(n)
	if n >= channels {
		copy(b.lastOutputFrame, out[n-channels:n])
	}
	return n
}

// recomputeSyncErrorAndCorrection updates the sync error estimate and
// chooses the correction mode/rate Read will apply on its next call.
// samplesReadBefore is the count consumed before the current Read, i.e.
// the playback cursor's position at currentLocalTimeUs.
func (b *Buffer) recomputeSyncErrorAndCorrection(currentLocalTimeUs, samplesReadBefore int64) {
	deltaWallUs := float64(currentLocalTimeUs - b.playbackStartLocalUs)
	deltaReadUs := float64(samplesReadBefore) * b.format.MicrosPerSample()
	syncError := (deltaWallUs - float64(b.outputLatencyUs)) - deltaReadUs
	b.syncErrorUs = syncError

	absErr := math.Abs(syncError)
	if absErr <= deadbandUs {
		b.correctionMode = CorrectionNone
		b.correctionIntervalFrames = 0
		b.resampler.SetRatio(1.0)
		b.resampler.Reset()
		return
	}

	if absErr <= resampleHysteresisUs {
		ratioDelta := absErr / (targetSeconds * 1e6)
		if ratioDelta > maxSpeed {
			ratioDelta = maxSpeed
		}
		ratio := 1.0
		if syncError > 0 {
			ratio += ratioDelta
		} else {
			ratio -= ratioDelta
		}
		b.correctionMode = CorrectionResampling
		b.correctionIntervalFrames = 0
		b.resampler.SetRatio(ratio)
		return
	}

	b.resampler.SetRatio(1.0)
	b.resampler.Reset()

	sampleRate := float64(b.format.SampleRate)
	correctionsPerSec := absErr * sampleRate / 1e6 / targetSeconds

	maxCorrectionsPerSec := maxSpeed * sampleRate
	if correctionsPerSec > maxCorrectionsPerSec {
		correctionsPerSec = maxCorrectionsPerSec
	}
	if correctionsPerSec <= 0 {
		b.correctionMode = CorrectionNone
		b.correctionIntervalFrames = 0
		return
	}

	interval := int(sampleRate / correctionsPerSec)
	if interval < minCorrectionIntervalFrames {
		interval = minCorrectionIntervalFrames
	}
	b.correctionIntervalFrames = interval

	if syncError > 0 {
		b.correctionMode = CorrectionDropping
	} else {
		b.correctionMode = CorrectionInserting
	}
}

// Clear zeros indices, the segment FIFO, playback/correction state, and
// the re-anchor flag. Cumulative counters (overruns, underruns, dropped
// samples, and the sync drop/insert counters) survive.
func (b *Buffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return ErrDisposed
	}

	b.writeIdx = 0
	b.readIdx = 0
	b.liveSamples = 0
	b.segments = b.segments[:0]

	b.playbackStarted = false
	b.playbackStartLocalUs = 0
	b.samplesReadSinceStart = 0
	b.samplesOutputSinceStart = 0

	b.framesSinceCorrection = 0
	b.correctionMode = CorrectionNone
	b.correctionIntervalFrames = 0
	b.syncErrorUs = 0
	b.resampler.SetRatio(1.0)
	b.resampler.Reset()

	b.reanchorPending = false
	zero(b.lastOutputFrame)

	return nil
}

// Dispose permanently closes the buffer. Write returns ErrDisposed
// afterward; Read returns zeros.
func (b *Buffer) Dispose() {
	b.mu.Lock()
	b.disposed = true
	b.mu.Unlock()
}

// Stats returns a read-only snapshot of the buffer's state.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		BufferedMs:             float64(b.liveSamples) * b.format.MicrosPerSample() / 1000.0,
		TargetMs:               b.targetMs,
		Underruns:              b.underruns,
		Overruns:               b.overruns,
		DroppedSamples:         b.droppedSamples,
		SamplesWritten:         b.samplesWritten,
		SamplesRead:            b.samplesRead,
		SyncErrorUs:            b.syncErrorUs,
		CorrectionMode:         b.correctionMode,
		SamplesDroppedForSync:  b.samplesDroppedForSync,
		SamplesInsertedForSync: b.samplesInsertedForSync,
	}
}

func zero(out []float32) {
	for i := range out {
		out[i] = 0
	}
}
