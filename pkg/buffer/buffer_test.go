// ABOUTME: Tests for the timed audio ring buffer
// ABOUTME: Covers overflow accounting, underrun/re-anchor signaling, and sync correction
package buffer

import (
	"errors"
	"testing"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
)

type identityClock struct{}

func (identityClock) ServerToClient(serverUs int64) (int64, error) { return serverUs, nil }

func TestCleanStartup_NoCorrectionNoUnderrun(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000, TargetMs: 100})

	for i := 0; i < 100; i++ {
		chunk := make([]float32, 20)
		for j := range chunk {
			chunk[j] = 1
		}
		if err := buf.Write(chunk, int64(i*20_000)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	out := make([]float32, 50)
	localTime := int64(1_000_000)
	totalRead := 0
	for i := 0; i < 40; i++ {
		totalRead += buf.Read(out, localTime)
		localTime += 50_000
	}

	if totalRead != 2000 {
		t.Errorf("expected to read all 2000 samples, read %d", totalRead)
	}

	stats := buf.Stats()
	if stats.Underruns != 0 {
		t.Errorf("expected no underruns, got %d", stats.Underruns)
	}
	if stats.CorrectionMode != CorrectionNone {
		t.Errorf("expected correction mode None, got %v (sync_error=%v)", stats.CorrectionMode, stats.SyncErrorUs)
	}
}

func TestWrite_OverflowDropsOldestSingleOverrun(t *testing.T) {
	format := audio.Format{SampleRate: 10, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 1000, TargetMs: 100})

	if err := buf.Write(make([]float32, 10), 0); err != nil {
		t.Fatal(err)
	}
	if got := buf.Stats().Overruns; got != 0 {
		t.Fatalf("expected no overrun writing exactly capacity, got %d", got)
	}

	if err := buf.Write(make([]float32, 1), 10_000_000); err != nil {
		t.Fatal(err)
	}
	stats := buf.Stats()
	if stats.Overruns != 1 {
		t.Errorf("expected exactly 1 overrun, got %d", stats.Overruns)
	}
	if stats.DroppedSamples != 1 {
		t.Errorf("expected 1 dropped sample, got %d", stats.DroppedSamples)
	}
}

func TestWrite_SingleWriteLargerThanCapacityKeepsNewestSamples(t *testing.T) {
	format := audio.Format{SampleRate: 10, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 1000, TargetMs: 100})

	samples := make([]float32, 15)
	for i := range samples {
		samples[i] = float32(i)
	}
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	stats := buf.Stats()
	if stats.Overruns != 1 {
		t.Errorf("expected 1 overrun, got %d", stats.Overruns)
	}
	if stats.DroppedSamples != 5 {
		t.Errorf("expected 5 dropped samples, got %d", stats.DroppedSamples)
	}
	if stats.BufferedMs != 1000 {
		t.Errorf("expected 1000ms buffered (10 samples at 10Hz), got %v", stats.BufferedMs)
	}
}

func TestRead_EmptyBufferNoUnderrunBeforePlaybackStarted(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{})

	out := make([]float32, 10)
	n := buf.Read(out, 0)
	if n != 0 {
		t.Errorf("expected 0 samples from empty buffer, got %d", n)
	}
	for _, v := range out {
		if v != 0 {
			t.Fatal("expected silence")
		}
	}
	if buf.Stats().Underruns != 0 {
		t.Errorf("expected no underrun before playback started, got %d", buf.Stats().Underruns)
	}
}

func TestRead_EmptyBufferAfterPlaybackStartedIncrementsUnderrun(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{})
	buf.Write([]float32{1, 2, 3}, 0)

	out := make([]float32, 3)
	buf.Read(out, 0) // drains everything, starts playback

	n := buf.Read(out, 1000)
	if n != 0 {
		t.Errorf("expected underrun read to return 0 samples, got %d", n)
	}
	if buf.Stats().Underruns != 1 {
		t.Errorf("expected 1 underrun, got %d", buf.Stats().Underruns)
	}
}

func TestRead_DoesNotStallForFutureSegmentTimestamp(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{})

	future := int64(10_000_000)
	buf.Write([]float32{1, 2, 3, 4}, future)

	out := make([]float32, 4)
	n := buf.Read(out, 0)
	if n != 4 {
		t.Errorf("expected immediate read of 4 samples without waiting for segment time, got %d", n)
	}
}

func TestSyncError_PositiveTriggersDroppingCorrection(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000})

	samples := make([]float32, 5000)
	for i := range samples {
		samples[i] = float32(i % 7)
	}
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 10)
	localTime := int64(0)
	for i := 0; i < 40; i++ {
		buf.Read(out, localTime)
		localTime += 20_000 // wall clock outpaces the 10ms actually consumed per call
	}

	stats := buf.Stats()
	if stats.CorrectionMode != CorrectionDropping {
		t.Errorf("expected Dropping correction mode, got %v (sync_error=%v)", stats.CorrectionMode, stats.SyncErrorUs)
	}
	if stats.SamplesDroppedForSync == 0 {
		t.Error("expected some samples dropped for sync correction")
	}
	if stats.SyncErrorUs <= 0 {
		t.Errorf("expected positive sync error, got %v", stats.SyncErrorUs)
	}
}

func TestSyncError_NegativeTriggersInsertingCorrection(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000})

	samples := make([]float32, 5000)
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 30)
	localTime := int64(0)
	for i := 0; i < 60; i++ {
		buf.Read(out, localTime)
		localTime += 10_000 // samples consumed outpace the wall clock advance
	}

	stats := buf.Stats()
	if stats.CorrectionMode != CorrectionInserting {
		t.Errorf("expected Inserting correction mode, got %v (sync_error=%v)", stats.CorrectionMode, stats.SyncErrorUs)
	}
	if stats.SamplesInsertedForSync == 0 {
		t.Error("expected some samples inserted for sync correction")
	}
	if stats.SyncErrorUs >= 0 {
		t.Errorf("expected negative sync error, got %v", stats.SyncErrorUs)
	}
}

func TestReanchor_FiresOnceOnNextReadAfterThresholdExceeded(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000})

	samples := make([]float32, 5000)
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 1)
	localTime := int64(0)
	buf.Read(out, localTime) // starts playback

	localTime += 2_000_000 // 2s of wall time against ~2ms actually read so far
	n := buf.Read(out, localTime)
	if n == 0 {
		t.Fatal("expected this read to still return data; the flag is only acted on next Read")
	}

	select {
	case <-buf.ReanchorRequired():
		t.Fatal("expected no reanchor event dispatched yet")
	default:
	}

	n2 := buf.Read(out, localTime+1000)
	if n2 != 0 {
		t.Errorf("expected the re-anchor read to return 0 samples, got %d", n2)
	}

	select {
	case <-buf.ReanchorRequired():
	default:
		t.Fatal("expected a ReanchorRequired event to be dispatched")
	}

	n3 := buf.Read(out, localTime+2000)
	if n3 == 0 {
		t.Error("expected normal consumption to resume once the re-anchor flag was cleared")
	}
}

func TestClear_ResetsPlaybackStateButKeepsCumulativeCounters(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 1000})

	buf.Write(make([]float32, 1200), 0)
	before := buf.Stats()
	if before.Overruns == 0 {
		t.Fatal("expected setup write to cause an overrun")
	}

	out := make([]float32, 10)
	buf.Read(out, 0)

	if err := buf.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	after := buf.Stats()
	if after.Overruns != before.Overruns {
		t.Errorf("expected cumulative overruns to survive Clear, before=%d after=%d", before.Overruns, after.Overruns)
	}
	if after.BufferedMs != 0 {
		t.Errorf("expected an empty buffer after Clear, got %v ms buffered", after.BufferedMs)
	}

	n := buf.Read(out, 1000)
	if n != 0 {
		t.Error("expected an empty read immediately after Clear")
	}
}

func TestSyncError_SmallDriftUsesResamplingBeforeDropInsert(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000})

	samples := make([]float32, 5000)
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 10)
	localTime := int64(0)
	for i := 0; i < 47; i++ {
		buf.Read(out, localTime)
		localTime += 11_000 // a ~1ms/read drift, well inside the resampling hysteresis band
	}

	stats := buf.Stats()
	if stats.CorrectionMode != CorrectionResampling {
		t.Errorf("expected Resampling correction mode for small sustained drift, got %v (sync_error=%v)", stats.CorrectionMode, stats.SyncErrorUs)
	}
	if stats.SyncErrorUs <= deadbandUs || stats.SyncErrorUs > resampleHysteresisUs {
		t.Errorf("expected sync error inside the hysteresis band (%v, %v], got %v", deadbandUs, resampleHysteresisUs, stats.SyncErrorUs)
	}
}

func TestSyncError_ResamplingCorrectionProducesSamplesWithoutDropInsert(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{CapacityMs: 8000})

	samples := make([]float32, 5000)
	for i := range samples {
		samples[i] = float32(i % 7)
	}
	if err := buf.Write(samples, 0); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 10)
	localTime := int64(0)
	var totalRead int
	for i := 0; i < 60; i++ {
		totalRead += buf.Read(out, localTime)
		localTime += 11_000
	}

	stats := buf.Stats()
	if stats.CorrectionMode != CorrectionResampling && stats.CorrectionMode != CorrectionNone {
		t.Fatalf("expected small sustained drift to stay in Resampling (or self-correct to None), got %v", stats.CorrectionMode)
	}
	if stats.SamplesDroppedForSync != 0 || stats.SamplesInsertedForSync != 0 {
		t.Errorf("expected resampling correction to avoid drop/insert accounting, got dropped=%d inserted=%d",
			stats.SamplesDroppedForSync, stats.SamplesInsertedForSync)
	}
	if totalRead == 0 {
		t.Error("expected the resampler to still produce output samples")
	}
}

func TestDispose_RejectsWriteAndZerosRead(t *testing.T) {
	format := audio.Format{SampleRate: 1000, Channels: 1}
	buf := New(format, identityClock{}, Config{})
	buf.Dispose()

	if err := buf.Write([]float32{1, 2, 3}, 0); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}

	out := []float32{9, 9, 9}
	n := buf.Read(out, 0)
	if n != 0 {
		t.Errorf("expected 0 samples after dispose, got %d", n)
	}
	for _, v := range out {
		if v != 0 {
			t.Error("expected zeros after a post-dispose read")
		}
	}
}
