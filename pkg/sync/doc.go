// ABOUTME: Clock synchronization package
// ABOUTME: Linear Kalman filter estimating offset and drift from NTP-style exchanges
// Package sync estimates the offset and drift between the local
// monotonic clock and a server's monotonic clock from four-timestamp
// (T1-T4) exchanges, via a linear Kalman filter with adaptive
// forgetting. pkg/syncdriver feeds it selected measurements; the timed
// buffer calls ServerToClient on every write.
//
// Example:
//
//	s := sync.New(sync.DefaultConfig())
//	s.ProcessMeasurement(t1, t2, t3, t4)
//	localUs, err := s.ServerToClient(serverTimestampUs)
package sync
