// Package domain defines the task entity and its lifecycle.
//
// A task is created queued, may be claimed into processing and then
// finishes completed or failed, or is cancelled while still queued.
// The legal transitions live here so every store enforces the same graph.
package domain
