// Package socketdispatch provides a declarative dispatch layer between
// real-time connections and event handlers.
//
// Integrators describe events as modules of named descriptors. For every
// accepted connection the Dispatcher attaches a listener per event and runs
// each occurrence through a guarded pipeline: validation, a per-connection
// lock check, an optional pre-hook, the handler, an optional post-hook, and
// finally the acknowledgment back to the caller. Internal errors never reach
// the remote peer; they are logged and replaced with the token
// "server_error".
//
// # Quick Start
//
// Declare a module:
//
//	var Settings = socketdispatch.Module{
//	    {Name: "changeVolume", Value: socketdispatch.Descriptor{
//	        Lock: socketdispatch.Self(),
//	        Validate: socketdispatch.Fields(
//	            socketdispatch.Field("settingsName", socketdispatch.Required(), socketdispatch.OneOf("sounds", "music")),
//	            socketdispatch.Field("value", socketdispatch.Required(), socketdispatch.Between(0, 100)),
//	        ),
//	        Handle: socketdispatch.Func(func(ctx context.Context, c socketdispatch.Conn, in VolumeChange) (Settings, error) {
//	            return store.SetVolume(ctx, c.ID(), in)
//	        }),
//	    }},
//	}
//
// Create a dispatcher and hand it every new connection:
//
//	d := socketdispatch.New([]socketdispatch.Module{Settings}, socketdispatch.WithDebug(true))
//
//	if err := d.HandleConnection(ctx, conn); err != nil {
//	    return err
//	}
//	defer d.Forget(conn)
//
// # Pipeline
//
// Each occurrence of a non-lifecycle event runs these steps in order and
// stops at the first one that fails:
//
//  1. Normalize the acknowledgment (a callable payload becomes the ack).
//  2. Validate the payload against the event's schema. The first failure
//     message is sent to the caller.
//  3. Check the locking policy. Rejections send
//     "previous_process_was_running".
//  4. Mark the event busy, run Pre, Handle and Post.
//  5. Unmark the event and acknowledge the result.
//
// The lifecycle events "connect" and "connection" are not registered as
// listeners. They run once, immediately, inside HandleConnection.
//
// # Locking
//
// A Policy decides whether an occurrence may start while other events are in
// flight on the same connection:
//
//   - None: always allowed (the zero value)
//   - Self: rejected while the same event is in flight
//   - AnyOther: rejected while any event is in flight
//   - NamedSet: rejected while any of the named events is in flight
//
// # Results
//
// Handlers return (value, error). A nil error acknowledges (nil, value). A
// Token error is sent to the caller verbatim. Any other error, or a panic, is
// logged and acknowledged with "server_error".
//
// # Observability
//
// Hook options (WithOnReceive, WithOnDispatch, WithOnSuccess, WithOnFailure,
// WithOnValidationError, WithOnLockRejected) observe every occurrence. The
// otelhooks package builds OpenTelemetry metrics and spans from them.
package socketdispatch
