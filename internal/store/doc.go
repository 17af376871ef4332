// Package store defines the task persistence contract shared by the
// dispatcher, the canceller and the API. Implementations live under
// internal/platform and must make Move atomic with exactly one winner.
package store
