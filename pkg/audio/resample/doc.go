// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Used by the timed buffer to nudge playback rate during sync correction
// Package resample provides small-ratio audio rate conversion.
//
// Uses linear interpolation. Built for nudging playback speed by at most
// a few percent to correct clock drift gradually, not for
// general-purpose high-quality format conversion.
//
// Example:
//
//	r := resample.New(48000, 48000, 2)
//	r.SetRatio(1.0002) // consume input 0.02% faster to catch up a lagging cursor
//	n := r.Resample(inputSamples, outputSamples)
package resample
