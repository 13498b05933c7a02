// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus, FLAC, MP3
// Package decode provides audio decoders for various codecs.
//
// Supports: PCM (16-bit, 24-bit and 32-bit), Opus, FLAC, MP3
//
// All decoders implement the Decoder interface and output interleaved
// float32 samples in [-1, 1], matching the format the timed buffer stores.
//
// Example:
//
//	decoder, err := decode.NewPCM(format, maxSamplesPerFrame)
//	n, err := decoder.Decode(encoded, scratch)
package decode
