// ABOUTME: Time-sync driver package
// ABOUTME: Burst-of-8 scheduling with adaptive interval atop pkg/sync
// Package syncdriver drives pkg/sync's Kalman filter with bursts of
// client/time exchanges instead of single isolated samples: each burst
// sends several requests spaced closely together, waits briefly for
// stragglers, and keeps only the lowest-RTT exchange, since RTT is the
// best available proxy for how much queueing noise corrupted a sample.
//
// Example:
//
//	d := syncdriver.New(sender, clockSync, nil)
//	go d.Run(ctx)
//	// on stream/start:
//	d.TriggerBurst()
//	// on each server/time message:
//	d.Deliver(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted)
package syncdriver
