// ABOUTME: PCM audio decoder
// ABOUTME: Decodes little-endian 16/24/32-bit signed PCM to float32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
)

// PCMDecoder decodes little-endian signed PCM audio. 24-bit samples are
// sign-extended from their 3 packed bytes.
type PCMDecoder struct {
	bitDepth int
	maxSamp  int
}

// NewPCM creates a PCM decoder for the given format. maxSamplesPerFrame
// bounds the scratch buffer Decode will fill.
func NewPCM(format audio.Format, maxSamplesPerFrame int) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 && format.BitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
		maxSamp:  maxSamplesPerFrame,
	}, nil
}

// Decode converts raw PCM bytes to float32 samples in out.
func (d *PCMDecoder) Decode(data []byte, out []float32) (int, error) {
	var bytesPerSample int
	switch d.bitDepth {
	case 16:
		bytesPerSample = 2
	case 24:
		bytesPerSample = 3
	case 32:
		bytesPerSample = 4
	}

	numSamples := len(data) / bytesPerSample
	if numSamples > len(out) {
		return 0, fmt.Errorf("pcm decode: %d samples exceeds scratch capacity %d", numSamples, len(out))
	}

	switch d.bitDepth {
	case 16:
		for i := 0; i < numSamples; i++ {
			sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = audio.Int16ToFloat32(sample16)
		}
	case 24:
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			out[i] = audio.Int24ToFloat32(audio.SampleFrom24Bit(b))
		}
	case 32:
		for i := 0; i < numSamples; i++ {
			sample32 := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(float64(sample32) / 2147483648.0)
		}
	}

	return numSamples, nil
}

// MaxSamplesPerFrame returns the scratch buffer capacity this decoder was built for.
func (d *PCMDecoder) MaxSamplesPerFrame() int {
	return d.maxSamp
}

// Reset is a no-op for PCM; there is no codec state to clear.
func (d *PCMDecoder) Reset() {}

// Close releases resources.
func (d *PCMDecoder) Close() error {
	return nil
}
