// Package registry implements the Process Registry: the authoritative,
// durable record of every CLI child the daemon has spawned.
//
// A Registry tracks children by (PID, creation-time) identity, detects PID
// reuse across OS process-table recycling, runs periodic validation and
// monitoring passes, and keeps an append-only audit trail. State is
// persisted through internal/db (sqlite, WAL, one writer connection plus a
// reader pool) and mirrored to per-process PID sidecar files under
// <data-root>/pids so a restarted daemon can reconcile live state against
// the OS before trusting its database.
package registry
