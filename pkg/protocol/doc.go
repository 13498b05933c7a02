// ABOUTME: Sendspin wire protocol package
// ABOUTME: Defines the JSON message envelope and the binary frame codec
// Package protocol implements the Sendspin wire protocol's codec layer:
// the JSON envelope message types exchanged over the session's text
// channel, and the fixed binary frame format (type + timestamp +
// payload) used for audio, artwork, and visualizer chunks.
//
// This package is pure serialization; pkg/transport owns the actual
// WebSocket connection and dispatches decoded messages from here.
package protocol
