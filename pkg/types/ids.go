// Package types provides the core data types shared between the supervisor,
// registry, checkpoint store and RPC surface.
package types

import "github.com/oklog/ulid/v2"

// NewID generates a new collision-resistant, lexicographically sortable
// identifier suitable for sessions, checkpoints and process records.
func NewID() string {
	return ulid.Make().String()
}
