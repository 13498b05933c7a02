// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes a stream of MP3 frame bytes to float32 samples
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// mp3SamplesPerFrame is the sample count of one standard MPEG-1 Layer III
// frame; go-mp3 never hands back more than this per channel in one Read.
const mp3SamplesPerFrame = 1152

// mp3MaxHeaderBytes bounds how much undecodable data Decode will buffer
// before giving up and reporting a real error instead of "need more data".
const mp3MaxHeaderBytes = 1 << 20

// MP3Decoder decodes a continuous MP3 bitstream delivered in arbitrary
// chunks. go-mp3 only exposes an io.Reader-shaped decoder that expects to
// own its input stream, so incoming bytes are appended to an internal
// buffer that the decoder reads from; the decoder itself is constructed
// lazily on the first call with enough data to find the stream's frame
// header.
type MP3Decoder struct {
	format  audio.Format
	buf     *bytes.Buffer
	decoder *mp3.Decoder
	scratch []byte
	maxSamp int
}

// NewMP3 creates a new MP3 decoder for the given format.
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}

	maxSamp := mp3SamplesPerFrame * format.Channels
	return &MP3Decoder{
		format:  format,
		buf:     &bytes.Buffer{},
		scratch: make([]byte, maxSamp*2),
		maxSamp: maxSamp,
	}, nil
}

// Decode appends data to the decoder's internal buffer and drains
// whatever PCM the underlying stream decoder can produce from it. It is
// not an error for Decode to return 0 samples: that means the buffered
// bytes don't yet add up to a full frame, and the caller should feed
// more encoded bytes on the next call.
func (d *MP3Decoder) Decode(data []byte, out []float32) (int, error) {
	d.buf.Write(data)

	if d.decoder == nil {
		dec, err := mp3.NewDecoder(d.buf)
		if err != nil {
			if d.buf.Len() > mp3MaxHeaderBytes {
				return 0, fmt.Errorf("mp3 decode: failed to find stream header after %d bytes: %w", d.buf.Len(), err)
			}
			return 0, nil
		}
		d.decoder = dec
	}

	n, err := d.decoder.Read(d.scratch)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := n / 2
	if numSamples > len(out) {
		return 0, fmt.Errorf("mp3 decode: %d samples exceeds scratch capacity %d", numSamples, len(out))
	}

	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(d.scratch[i*2:]))
		out[i] = audio.Int16ToFloat32(sample16)
	}

	return numSamples, nil
}

// MaxSamplesPerFrame returns the largest interleaved sample count one
// decode pass can produce.
func (d *MP3Decoder) MaxSamplesPerFrame() int {
	return d.maxSamp
}

// Reset drops any buffered encoded bytes and the underlying stream
// decoder, forcing a fresh header search on the next Decode call. Used
// after a seek or a stream/clear where the next bytes won't align with
// whatever frame boundary was in flight.
func (d *MP3Decoder) Reset() {
	d.buf.Reset()
	d.decoder = nil
}

// Close releases decoder resources.
func (d *MP3Decoder) Close() error {
	return nil
}
