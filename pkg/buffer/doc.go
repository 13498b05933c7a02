// ABOUTME: Timed audio buffer package
// ABOUTME: Ring storage, timestamped segments, and drop/insert sync correction
// Package buffer implements the timed audio ring: a single-producer
// (network write) / single-consumer (output read) store of interleaved
// float32 samples. Each write is recorded as a segment stamped with its
// converted local playback time. Read measures drift as the wall-clock
// time elapsed since playback started, less output latency, minus the
// duration of the samples already consumed, and corrects for it. Small,
// steady drift is
// corrected by nudging the playback rate a few percent with a linear
// resampler; larger drift falls back to dropping or inserting frames.
//
// Example:
//
//	buf := buffer.New(format, clockSync, buffer.Config{})
//	buf.Write(decodedSamples, chunk.ServerTimestampUs)
//	n := buf.Read(outputScratch, clock.NowUs())
package buffer
