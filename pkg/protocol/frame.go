// ABOUTME: Binary frame encode/parse for audio, artwork, and visualizer chunks
// ABOUTME: Pulled out of inline message handling into pure, testable functions
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary frame type ranges. Only audio types route into the audio
// pipeline; the others are carried for external collaborators.
const (
	FrameTypeAudioMin      = 4
	FrameTypeAudioMax      = 7
	FrameTypeArtworkMin    = 8
	FrameTypeArtworkMax    = 11
	FrameTypeVisualizerMin = 16
	FrameTypeVisualizerMax = 23
)

// frameHeaderSize is the fixed 1-byte type + 8-byte timestamp prefix
// before the payload.
const frameHeaderSize = 9

// Frame is a parsed binary message: a typed, timestamped payload
// delivered alongside the JSON envelope channel.
type Frame struct {
	Type      uint8
	Timestamp int64 // microseconds, server clock
	Payload   []byte
}

// IsAudio reports whether the frame's type falls in the player audio range.
func (f Frame) IsAudio() bool {
	return f.Type >= FrameTypeAudioMin && f.Type <= FrameTypeAudioMax
}

// IsArtwork reports whether the frame's type falls in the artwork range.
func (f Frame) IsArtwork() bool {
	return f.Type >= FrameTypeArtworkMin && f.Type <= FrameTypeArtworkMax
}

// IsVisualizer reports whether the frame's type falls in the visualizer range.
func (f Frame) IsVisualizer() bool {
	return f.Type >= FrameTypeVisualizerMin && f.Type <= FrameTypeVisualizerMax
}

// EncodeFrame serializes a binary frame: type (1 byte) + timestamp (8
// bytes, big-endian) + payload.
func EncodeFrame(frameType uint8, timestamp int64, payload []byte) []byte {
	out := make([]byte, frameHeaderSize+len(payload))
	out[0] = frameType
	binary.BigEndian.PutUint64(out[1:9], uint64(timestamp))
	copy(out[9:], payload)
	return out
}

// ParseFrame parses a binary frame from raw WebSocket bytes. Payload
// aliases the input slice; callers that retain it past the caller's
// read loop should copy it.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < frameHeaderSize {
		return Frame{}, fmt.Errorf("protocol: binary frame too short: %d bytes (need at least %d)", len(data), frameHeaderSize)
	}

	return Frame{
		Type:      data[0],
		Timestamp: int64(binary.BigEndian.Uint64(data[1:9])),
		Payload:   data[9:],
	}, nil
}
