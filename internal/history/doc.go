// Package history provides undo/redo over whole application-state snapshots.
//
// A Manager keeps two stacks next to a Store:
//
//   - past: snapshots captured by StoreNow, newest first, bounded by MaxUndos
//   - future: snapshots undone away from, available to Redo, unbounded
//
// Mutating code captures the pre-mutation state before it changes the store:
//
//	h := history.New(store)
//
//	h.StoreNow()
//	store.Replace(next)
//
//	h.Undo() // store holds the captured state again
//	h.Redo() // and back
//
// StoreNow always discards pending redos: a new edit starts a new branch.
//
// # Ordering
//
// StoreNow pushes onto the front of past while Undo restores the element at
// the back, and Redo appends at the back. With a single retained snapshot the
// two ends coincide; with several, Undo restores the oldest retained snapshot
// first. This ordering is kept as-is because callers observe it.
//
// # Notifications
//
// When built WithPublisher, every operation that changes either stack
// publishes topic.HistoryChanged with a Change payload after the change is
// complete, so subscribers never observe a stale CanUndo/CanRedo.
package history
