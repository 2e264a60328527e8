// Package supervisor owns the full lifecycle of sessions and their CLI
// children: spawning, stdio wiring, cancellation, timeout eviction, and the
// in-process session cache that survives a live session's eviction from
// memory. It is the hard core of the daemon — every other component
// (Binary Resolver, Process Registry, Checkpoint Store, Stream Decoder) is
// a collaborator the Supervisor drives (spec §4.5).
package supervisor
