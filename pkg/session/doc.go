// ABOUTME: Session orchestrator package
// ABOUTME: Wires transport, clock sync, sync-burst driver, and the audio pipeline
// Package session is the top-level glue: it owns one pkg/transport
// connection, one pkg/sync clock synchronizer, one pkg/syncdriver burst
// scheduler, and one pkg/pipeline audio pipeline, and dispatches every
// inbound message type to the right collaborator from a single receive
// loop.
//
// Example:
//
//	s := session.New(session.Config{URL: "ws://host:1234/sendspin"}, newSink)
//	go s.Run()
//	defer s.Stop()
package session
