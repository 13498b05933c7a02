// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus audio to float32 samples
package decode

import (
	"fmt"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const opusMaxFrameSamples = 5760 // 120ms at 48kHz, the largest Opus frame

// OpusDecoder decodes Opus audio via libopus bindings.
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	maxSamp int
	pcm16   []int16 // reused scratch; opus.v2 only decodes into int16
}

// NewOpus creates an Opus decoder for the given format.
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		maxSamp: opusMaxFrameSamples * format.Channels,
		pcm16:   make([]int16, opusMaxFrameSamples*format.Channels),
	}, nil
}

// Decode converts one Opus packet to float32 samples in out.
func (d *OpusDecoder) Decode(data []byte, out []float32) (int, error) {
	n, err := d.decoder.Decode(data, d.pcm16)
	if err != nil {
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}

	actualSamples := n * d.format.Channels
	if actualSamples > len(out) {
		return 0, fmt.Errorf("opus decode: %d samples exceeds scratch capacity %d", actualSamples, len(out))
	}

	for i := 0; i < actualSamples; i++ {
		out[i] = audio.Int16ToFloat32(d.pcm16[i])
	}
	return actualSamples, nil
}

// MaxSamplesPerFrame returns the largest interleaved sample count one Opus frame can decode to.
func (d *OpusDecoder) MaxSamplesPerFrame() int {
	return d.maxSamp
}

// Reset clears no persistent state; opus.v2's decoder carries no
// exposed reset, and packet loss concealment naturally self-heals.
func (d *OpusDecoder) Reset() {}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	return nil
}
