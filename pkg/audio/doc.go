// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and interleaved float PCM conversion helpers
// Package audio provides fundamental audio types shared by the decode,
// output, and buffer packages.
//
// The core pipeline carries interleaved float32 samples in [-1, 1]
// throughout — decoders produce them, the timed buffer stores them, and
// output sinks convert them to whatever the device needs at the edge.
package audio
