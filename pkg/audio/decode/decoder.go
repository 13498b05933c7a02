// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all audio decoders
package decode

import (
	"fmt"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
)

// Decoder decodes one encoded audio frame into interleaved float32 PCM
// samples in [-1, 1]. Implementations are not required to be safe for
// concurrent use; the pipeline owns exactly one decoder at a time.
type Decoder interface {
	// Decode converts one encoded frame into out, an interleaved float32
	// scratch buffer sized MaxSamplesPerFrame, and returns the number of
	// samples written.
	Decode(data []byte, out []float32) (int, error)

	// MaxSamplesPerFrame is fixed at construction time so callers can
	// pre-allocate their scratch buffer once.
	MaxSamplesPerFrame() int

	// Reset clears any internal decoder state (e.g. after a seek).
	Reset()

	// Close releases decoder resources.
	Close() error
}

// New constructs the decoder matching format.Codec. maxSamplesPerFrame
// only bounds the PCM decoder's scratch size; the other codecs size
// their own scratch from their frame format.
func New(format audio.Format, maxSamplesPerFrame int) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format, maxSamplesPerFrame)
	case "opus":
		return NewOpus(format)
	case "flac":
		return NewFLAC(format)
	case "mp3":
		return NewMP3(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
