// Package service contains the application use cases that sit between the
// HTTP layer and the task store.
//
// TaskService validates submissions, persists them and forwards
// cancellations to the task.Canceller, translating store and lifecycle
// outcomes into errors the API layer maps onto status codes. It depends on
// the store.TaskStore interface, never on a concrete backend.
package service
