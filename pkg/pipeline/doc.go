// ABOUTME: Audio pipeline package
// ABOUTME: State machine wiring a decoder, timed buffer, and sink together
// Package pipeline drives one stream's playback lifecycle: Start builds
// a decoder and timed buffer for the negotiated format and wires the
// sink to pull from the buffer, ProcessAudioChunk decodes and writes
// each inbound frame, and Clear/Stop tear down cleanly on seek or
// session end.
//
// Example:
//
//	p := pipeline.New(clockSync, clock, newSink, pipeline.Config{})
//	p.Start(format)
//	p.ProcessAudioChunk(frame.Payload, frame.Timestamp)
package pipeline
