package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Gateway is the part of the gateway client a script needs.
type Gateway interface {
	Send(ctx context.Context, address string, req map[string]any) (map[string]any, error)
	Stream(ctx context.Context, address string, req map[string]any, fn func(map[string]any) error) error
}

// Result is the outcome of one step.
type Result struct {
	Step     string
	Replies  []map[string]any
	Duration time.Duration
	Err      error
}

func (r Result) Passed() bool { return r.Err == nil }

// Runner executes script steps and logs each outcome.
type Runner struct {
	gw     Gateway
	logger *slog.Logger
}

func NewRunner(gw Gateway, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gw: gw, logger: logger}
}

// Run executes every step in order, continuing past failures.
func (r *Runner) Run(ctx context.Context, s *Script) []Result {
	results := make([]Result, 0, len(s.Steps))
	for _, step := range s.Steps {
		res := r.runStep(ctx, step)
		if res.Passed() {
			r.logger.Info("step passed", "step", res.Step, "replies", len(res.Replies), "duration", res.Duration)
		} else {
			r.logger.Error("step failed", "step", res.Step, "error", res.Err, "duration", res.Duration)
		}
		results = append(results, res)
	}
	return results
}

func (r *Runner) runStep(ctx context.Context, step Step) Result {
	start := time.Now()
	res := Result{Step: step.Name}

	if step.Stream {
		res.Err = r.gw.Stream(ctx, step.Address, step.Request, func(page map[string]any) error {
			res.Replies = append(res.Replies, page)
			return nil
		})
	} else {
		reply, err := r.gw.Send(ctx, step.Address, step.Request)
		res.Err = err
		if reply != nil {
			res.Replies = append(res.Replies, reply)
		}
	}
	res.Duration = time.Since(start)

	if res.Err == nil && step.Expect != "" {
		res.Err = checkStatus(res.Replies, step.Expect)
	}
	return res
}

func checkStatus(replies []map[string]any, want string) error {
	if len(replies) == 0 {
		return fmt.Errorf("no reply received")
	}
	last := replies[len(replies)-1]
	if got, _ := last["status"].(string); got != want {
		return fmt.Errorf("expected status %q, got %q (message: %v)", want, got, last["message"])
	}
	return nil
}
