// ABOUTME: Tests for MP3 decoder
// ABOUTME: Tests MP3 decoder construction and incremental buffering
package decode

import (
	"testing"

	"github.com/chrisuthe/sendspin-player/pkg/audio"
)

func TestNewMP3(t *testing.T) {
	format := audio.Format{
		Codec:      "mp3",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
	want := mp3SamplesPerFrame * 2
	if decoder.MaxSamplesPerFrame() != want {
		t.Errorf("expected max samples %d, got %d", want, decoder.MaxSamplesPerFrame())
	}
}

func TestNewMP3_InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:      "opus",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for MP3 decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestMP3Decode_InsufficientData(t *testing.T) {
	format := audio.Format{
		Codec:      "mp3",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	out := make([]float32, mp3SamplesPerFrame*2)
	n, err := decoder.Decode([]byte{0x00, 0x01, 0x02}, out)
	if err != nil {
		t.Fatalf("expected no error while buffering a partial header, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 samples from an incomplete header, got %d", n)
	}
}

func TestMP3Reset(t *testing.T) {
	format := audio.Format{
		Codec:      "mp3",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	out := make([]float32, mp3SamplesPerFrame*2)
	_, _ = decoder.Decode([]byte{0x00, 0x01, 0x02}, out)

	decoder.Reset()

	impl := decoder.(*MP3Decoder)
	if impl.buf.Len() != 0 {
		t.Errorf("expected buffer to be empty after Reset, got %d bytes", impl.buf.Len())
	}
	if impl.decoder != nil {
		t.Error("expected underlying stream decoder to be cleared after Reset")
	}
}

func TestMP3Close(t *testing.T) {
	format := audio.Format{
		Codec:      "mp3",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if err := decoder.Close(); err != nil {
		t.Errorf("expected Close to succeed, got error: %v", err)
	}
}
