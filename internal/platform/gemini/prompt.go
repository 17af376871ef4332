package gemini

import (
	"bytes"
	"fmt"
	"text/template"
)

const systemInstruction = `You plan desktop automation. You never perform actions yourself.
Reply with a single JSON object and nothing else:
{"feasible": bool, "steps": ["short imperative action", ...], "reason": "why not, when infeasible"}
Each step is one user-interface action such as a click, a keystroke or typing text.`

var planPrompt = template.Must(template.New("plan").Parse(
	`Goal: {{.Goal}}
Step budget: at most {{.MaxSteps}} actions.
List the actions needed to achieve the goal. If it cannot be done within the budget, set feasible to false and explain why.`))

type promptData struct {
	Goal     string
	MaxSteps int
}

func buildPrompt(goal string, maxSteps int) (string, error) {
	var buf bytes.Buffer
	if err := planPrompt.Execute(&buf, promptData{Goal: goal, MaxSteps: maxSteps}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
