package service

import "errors"

// ErrCancelTooLate indicates a cancellation that lost to the dispatcher, or
// arrived after the task had already finished. The API layer maps it to
// 409 Conflict.
var ErrCancelTooLate = errors.New("task can no longer be cancelled")
