/*
Package event provides a type-safe, pub/sub event system for the daemon.

The event system enables decoupled communication between the Supervisor,
Process Registry, and Checkpoint Store by allowing publishers to emit
events and subscribers to react to them without direct dependencies.

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while maintaining direct-call semantics to preserve type information. It
provides both synchronous and asynchronous event publishing patterns.

# Event Types

Session Events:
  - session.created: a new session record was created
  - session.phase_changed: a session transitioned phases
  - session.message_appended: a decoded message was appended to a session
  - session.error: a session encountered an unrecoverable error

Checkpoint Events:
  - checkpoint.created: a checkpoint was persisted
  - checkpoint.branched: a new checkpoint was created from a parent

Process Events:
  - process.registered: a child process was recorded in the registry
  - process.terminated: a child process exited or was killed
  - process.orphaned: a registered child's PID is gone without it having been unregistered
  - process.validation_failed: Registry.Validate failed a category

Registry Events:
  - registry.pid_reused: a PID was reassigned to a different process

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{
			Session: session,
		},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.SessionPhaseChanged,
		Data: event.SessionPhaseChangedData{
			SessionID: id,
			OldPhase:  types.PhaseStarting,
			NewPhase:  types.PhaseRunning,
		},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		log.Info().Str("id", data.Session.ID).Msg("session created")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the
publisher's goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SessionCreated, handler)
	bus.PublishSync(event.Event{Type: event.SessionCreated, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple
goroutines. Both publishing and subscribing operations are protected by
internal synchronization.

# Performance Considerations

  - Asynchronous publishing (Publish) creates a goroutine per subscriber per event
  - Synchronous publishing (PublishSync) calls all subscribers in the current goroutine
  - Use PublishSync for events the Supervisor needs delivered before continuing
    (e.g. phase transitions gating a waiting RPC call)
  - Use Publish for fire-and-forget notifications

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the
underlying pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.

This allows future migration to a distributed broker without changing the
Subscribe/Publish API.
*/
package event
