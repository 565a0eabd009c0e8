// Package session implements the provider session lifecycle: Created
// -> Initialized -> Active -> Exited, a debounced event loop
// translating on_typed/on_move/key events into calls on the
// provider's hooks, cooperative cancellation of in-flight searchers,
// and per-session input history merged into a process-wide store at
// exit.
package session
