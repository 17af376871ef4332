package gemini

import "errors"

var (
	// ErrInvalidConfig is returned when the planner cannot be constructed.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrInvalidResponse is returned when the model's reply is not a usable plan.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters block the reply.
	ErrContentBlocked = errors.New("gemini blocked the content")

	// ErrTransientFailure is returned when retries are exhausted.
	ErrTransientFailure = errors.New("gemini request failed after retries")
)
