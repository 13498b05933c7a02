// ABOUTME: Session transport package
// ABOUTME: WebSocket dial, handshake, reconnect-with-backoff, and serialized sends
// Package transport owns the session's single WebSocket connection: it
// dials, performs the client/hello <-> server/hello handshake, and
// reconnects with exponential backoff on unexpected disconnect. Inbound
// JSON envelopes and binary frames are delivered on channels for
// pkg/session to dispatch; outbound sends are serialized under a single
// mutex so message framing is never interleaved.
//
// Example:
//
//	tr := transport.New(transport.Config{URL: "ws://host:1234/sendspin", ClientID: id})
//	go tr.Run()
//	for {
//		select {
//		case msg := <-tr.Messages:
//			// dispatch on msg.Type, unmarshal msg.Payload
//		case frame := <-tr.Frames:
//			// route binary audio/artwork/visualizer frame
//		case s := <-tr.StateChanges:
//			// observe connection state
//		}
//	}
package transport
