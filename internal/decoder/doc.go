// Package decoder implements the Stream Decoder: it turns a CLI child's
// raw stdout byte stream into an ordered sequence of typed
// types.DecodedMessage values, handling line framing, partial-JSON
// reassembly across line boundaries, and parse-error recovery.
//
// One Decoder is owned per session by the Supervisor, fed bytes as the
// child writes them and drained on a consumer goroutine that applies
// each message's effect to the session (appending to the pending
// response buffer, merging metrics, and so on).
package decoder
