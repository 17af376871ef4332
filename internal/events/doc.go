// Package events carries task lifecycle notifications between components
// in one process. The service emits task.submitted so the dispatcher can
// wake without waiting for its next poll, and the audit handler logs every
// transition.
package events
