// Package dispatcher routes named commands to handlers and runs them one at
// a time.
//
// # Handlers
//
// Two kinds of handler are registered by name:
//
//   - pure handlers (RegisterDB) receive the current db and return the next
//     one; the dispatcher replaces the store with the result
//   - impure handlers (RegisterHandlerFunc) receive the handler.Context and may
//     touch the store or anything they closed over directly
//
// Multiple handlers can be registered for one name; the highest priority wins.
//
// # Execution
//
// DispatchSync runs a command to completion before returning:
//
//  1. An ID is assigned if the event has none
//  2. Pre-dispatch hooks run; any of them may cancel the command
//  3. The handler runs (with optional panic recovery)
//  4. Post-dispatch hooks run
//  5. Metrics are recorded (if enabled)
//
// At most one command executes at a time. When AsyncDispatch is enabled,
// Dispatch enqueues instead and a single loop goroutine drains the queue in
// order, publishing results on Results().
//
// # Usage
//
//	d := dispatcher.NewWithDefaults(store)
//	d.RegisterDB("inc", func(db any, ev handler.Event) (any, error) {
//	    return db.(int) + 1, nil
//	})
//	result := d.DispatchSync(handler.NewEvent("inc"))
package dispatcher
