// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the pull-model Sink interface and an oto-backed implementation
// Package output provides pull-model audio playback.
//
// A Sink doesn't get written to; once Play is called it repeatedly
// calls back into a SampleSourceFunc to pull interleaved float32 PCM,
// the same representation the buffer and decode packages use. This
// mirrors how real audio backends drive playback and lets callers
// attribute every pulled batch of samples to a single clock reading.
//
// Example:
//
//	sink := output.NewOto(nil)
//	err := sink.Initialize(format)
//	sink.SetSampleSource(myBuffer.Read)
//	err = sink.Play()
package output
