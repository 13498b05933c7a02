// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes individual FLAC frames to float32 samples
package decode

import (
	"bytes"
	"fmt"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/mewkiz/flac/frame"
)

// maxFLACBlockSize bounds the scratch buffer for a single decoded frame.
// The FLAC format allows blocks of up to 65535 samples per subframe;
// senders in practice use far smaller blocks, so the scratch holds 16384
// samples per channel and Decode rejects a frame with a larger block.
const maxFLACBlockSize = 16384

// FLACDecoder decodes FLAC audio frame-by-frame via mewkiz/flac. Each
// call to Decode expects exactly one encoded FLAC frame (as delivered by
// the protocol's audio frames), not a full FLAC stream with its
// "fLaC" marker and metadata blocks; the stream's STREAMINFO lives in
// the codec header the session received at stream start.
type FLACDecoder struct {
	format  audio.Format
	maxSamp int
}

// NewFLAC creates a new FLAC decoder for the given format.
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}

	return &FLACDecoder{
		format:  format,
		maxSamp: maxFLACBlockSize * format.Channels,
	}, nil
}

// Decode parses one FLAC frame and writes its decorrelated, normalized
// samples into out as interleaved float32 PCM.
func (d *FLACDecoder) Decode(data []byte, out []float32) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	f, err := frame.Parse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("flac decode: %w", err)
	}

	nChannels := len(f.Subframes)
	if nChannels == 0 {
		return 0, fmt.Errorf("flac decode: frame has no subframes")
	}

	blockSize := int(f.BlockSize)
	total := blockSize * nChannels
	if total > len(out) {
		return 0, fmt.Errorf("flac decode: %d samples exceeds scratch capacity %d", total, len(out))
	}

	scale := float32(int64(1) << (f.BitsPerSample - 1))
	for ch, sub := range f.Subframes {
		samples := sub.Samples
		for i := 0; i < blockSize && i < len(samples); i++ {
			out[i*nChannels+ch] = float32(samples[i]) / scale
		}
	}

	return total, nil
}

// MaxSamplesPerFrame returns the largest interleaved sample count a
// single FLAC frame can decode to at this decoder's channel count.
func (d *FLACDecoder) MaxSamplesPerFrame() int {
	return d.maxSamp
}

// Reset clears no persistent state; each FLAC frame decodes independently.
func (d *FLACDecoder) Reset() {}

// Close releases decoder resources.
func (d *FLACDecoder) Close() error {
	return nil
}
