// Package checkpoint implements the Checkpoint Store: content-addressed,
// zstd-compressed snapshots of session payloads, with restore, branch,
// listing, deletion, and retention-based cleanup (spec §4.4).
//
// Payloads are indexed by the sha256 digest of their uncompressed form,
// so two checkpoints with identical session content share one blob on
// disk. Checkpoint metadata (label, tags, parent chain) lives in
// sessions.db; the blob itself lives in the CAS directory.
package checkpoint
