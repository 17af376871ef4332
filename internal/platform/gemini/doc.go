// Package gemini provides a task.Executor that asks Google's Gemini API to
// plan a goal.
//
// The planner does not act on the desktop. It sends the goal and the step
// budget to the model, expects a JSON plan back, and succeeds when the model
// judges the goal feasible within max_steps. The plan becomes the task's
// output, which makes it useful for dry runs and for checking a step budget
// before handing a goal to a real agent.
//
// Transient API failures are retried with exponential backoff and jitter.
// Safety blocks and malformed responses are permanent and surface at once.
package gemini
