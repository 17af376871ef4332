package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/goalq/internal/config"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/task"
	"google.golang.org/genai"
)

// contentGenerator is the part of genai.Models the planner uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Plan is the model's answer for one goal. It is stored as the task output.
type Plan struct {
	Feasible bool     `json:"feasible"`
	Steps    []string `json:"steps"`
	Reason   string   `json:"reason,omitempty"`
}

// Planner implements task.Executor on top of Gemini.
type Planner struct {
	models     contentGenerator
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ task.Executor = (*Planner)(nil)

// NewPlanner creates a Planner with a live Gemini client.
func NewPlanner(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Planner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newPlanner(client.Models, cfg, log)
}

func newPlanner(models contentGenerator, cfg config.GeminiConfig, log *slog.Logger) (*Planner, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Planner{
		models:     models,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     log.With("component", "gemini_planner", "model", cfg.Model),
		sleep:      sleepContext,
	}, nil
}

// Execute asks the model for a plan. An infeasible plan, or one longer than
// maxSteps, is an unsuccessful Outcome; API failures are errors.
func (p *Planner) Execute(ctx context.Context, goal string, maxSteps int) (task.Outcome, error) {
	prompt, err := buildPrompt(goal, maxSteps)
	if err != nil {
		return task.Outcome{}, err
	}

	plan, err := p.requestPlan(ctx, prompt)
	if err != nil {
		return task.Outcome{}, err
	}

	output, err := json.Marshal(plan)
	if err != nil {
		return task.Outcome{}, fmt.Errorf("failed to encode plan: %w", err)
	}

	outcome := task.Outcome{Steps: len(plan.Steps), Output: output}
	switch {
	case !plan.Feasible:
		outcome.Message = "goal judged infeasible"
		if plan.Reason != "" {
			outcome.Message += ": " + plan.Reason
		}
	case len(plan.Steps) > maxSteps:
		outcome.Message = fmt.Sprintf("%s: plan needs %d steps, budget is %d",
			task.ErrStepLimitExceeded, len(plan.Steps), maxSteps)
	default:
		outcome.Success = true
	}

	p.logger.InfoContext(ctx, "plan received",
		"feasible", plan.Feasible,
		"steps", len(plan.Steps),
		"max_steps", maxSteps)
	return outcome, nil
}

// requestPlan calls the API, retrying transient failures with exponential
// backoff and jitter: delay = base * 2^attempt * [0.5, 1.0).
func (p *Planner) requestPlan(ctx context.Context, prompt string) (*Plan, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}

	for attempt := 0; ; attempt++ {
		resp, err := p.models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
		if err == nil {
			var plan *Plan
			plan, err = parseResponse(resp)
			if err == nil {
				return plan, nil
			}
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
		if !isTransient(err) {
			p.logger.WarnContext(ctx, "permanent gemini error, not retrying",
				"attempt", attempt+1,
				"error", err)
			return nil, err
		}
		if attempt >= p.maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				ErrTransientFailure, p.maxRetries, err)
		}

		backoff := float64(p.retryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rand.Float64()*0.5))
		p.logger.InfoContext(ctx, "retrying gemini call after delay",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		if err := p.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, err)
		}
	}
}

func parseResponse(resp *genai.GenerateContentResponse) (*Plan, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: safety filters", ErrContentBlocked)
	}

	text := stripCodeFence(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: failed to parse plan: %v", ErrInvalidResponse, err)
	}
	if plan.Feasible && len(plan.Steps) == 0 {
		return nil, fmt.Errorf("%w: feasible plan without steps", ErrInvalidResponse)
	}
	return &plan, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// the response MIME type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func isTransient(err error) bool {
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
