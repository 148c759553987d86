// Package coordinator polls a PCD on a fixed interval and keeps the latest
// snapshot of its registers, flags, timers and counters.
//
// A Coordinator tracks consecutive failures and reconnects the engine before
// a tick when it is disconnected or when the failure count has reached its
// limit. Timeouts and connection losses fail a tick; any other error only
// skips the affected bucket, so partial snapshots still count as success.
//
// Manager runs a set of coordinators keyed by device id.
package coordinator
