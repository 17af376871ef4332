// Package task drives tasks through their lifecycle: the Dispatcher claims
// queued tasks one at a time and runs them on an Executor, and the
// Canceller withdraws queued tasks. Both arbitrate through store.Move, so a
// task is either dispatched or cancelled, never both.
package task
