package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/schema"
	"github.com/flowgate/flowgate/pkg/logger"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// Executor
// -----------------------------------------------------------------------------

// Executor runs one task: template resolution, the HTTP call, response schema
// validation, and retries, bounded by the task's own timeout. It never
// returns an error; every failure mode is encoded in the Result.
type Executor struct {
	client       HTTPClient
	retryDefault *RetryPolicy
}

func NewExecutor(client HTTPClient, retryDefault *RetryPolicy) *Executor {
	if retryDefault == nil {
		retryDefault = DefaultRetryPolicy()
	}
	return &Executor{client: client, retryDefault: retryDefault}
}

// Execute runs the step's task. stepInput is the step's raw input mapping
// (template strings still unresolved); wctx is the workflow-level template
// context it resolves against.
func (e *Executor) Execute(
	ctx context.Context,
	stepID string,
	cfg *Config,
	stepInput map[string]any,
	wctx *tplengine.Context,
) *Result {
	log := logger.FromContext(ctx)
	result := &Result{
		StepID:    stepID,
		TaskRef:   cfg.Ref,
		Status:    core.StatusRunning,
		StartedAt: time.Now(),
	}

	req, policy, timeout, err := e.prepare(ctx, cfg, stepInput, wctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result.finish(core.StatusFailed)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		output, attemptErr := e.attempt(ctx, cfg, req)
		if attemptErr == nil {
			result.Output = output
			result.RetryCount = attempt
			log.Debug("Task succeeded", "step_id", stepID, "attempts", attempt+1)
			return result.finish(core.StatusSuccess)
		}

		if ctx.Err() != nil {
			result.RetryCount = attempt
			return e.finishAborted(ctx, result)
		}

		next := attempt + 1
		if !policy.ShouldRetry(attemptErr, next) {
			result.RetryCount = attempt
			result.Errors = append(result.Errors, attemptErr.Error())
			log.Debug("Task failed", "step_id", stepID, "attempts", attempt+1, "error", attemptErr)
			return result.finish(core.StatusFailed)
		}

		delay := policy.CalculateDelay(next)
		log.Debug("Task attempt failed, retrying",
			"step_id", stepID, "attempt", attempt+1, "delay", delay, "error", attemptErr)
		if err := sleepContext(ctx, delay); err != nil {
			result.RetryCount = attempt
			return e.finishAborted(ctx, result)
		}
	}
}

// prepare resolves the step input against the workflow context and the
// request templates against the task's own input.
func (e *Executor) prepare(
	ctx context.Context,
	cfg *Config,
	stepInput map[string]any,
	wctx *tplengine.Context,
) (*Request, *RetryPolicy, time.Duration, error) {
	resolved, err := tplengine.ResolveValue(stepInput, wctx)
	if err != nil {
		return nil, nil, 0, err
	}
	taskInput, _ := resolved.(map[string]any)
	if taskInput == nil {
		taskInput = map[string]any{}
	}

	if cfg.InputSchema != nil {
		valid, fieldErrors, err := cfg.InputSchema.Validate(ctx, taskInput)
		if err != nil {
			return nil, nil, 0, err
		}
		if !valid {
			return nil, nil, 0, schemaError("task input", fieldErrors)
		}
	}

	tctx := tplengine.NewContext(core.NewInput(taskInput))
	method, err := tplengine.ResolveString(cfg.Method, tctx)
	if err != nil {
		return nil, nil, 0, err
	}
	if !IsSupportedMethod(method) {
		return nil, nil, 0, core.NewError(
			core.CodeUnsupportedMethod,
			fmt.Sprintf("unsupported HTTP method %q", method),
			map[string]any{"method": method},
		)
	}
	url, err := tplengine.ResolveString(cfg.URL, tctx)
	if err != nil {
		return nil, nil, 0, err
	}
	headers := make(map[string]string, len(cfg.Headers))
	for name, tmpl := range cfg.Headers {
		value, err := tplengine.ResolveString(tmpl, tctx)
		if err != nil {
			return nil, nil, 0, err
		}
		headers[name] = value
	}
	body, err := tplengine.ResolveValue(cfg.Body, tctx)
	if err != nil {
		return nil, nil, 0, err
	}

	policy, err := cfg.Retry.Policy(e.retryDefault)
	if err != nil {
		return nil, nil, 0, err
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, nil, 0, err
	}

	return &Request{Method: method, URL: url, Headers: headers, Body: body}, policy, timeout, nil
}

// attempt issues one HTTP call and validates the response shape.
func (e *Executor) attempt(ctx context.Context, cfg *Config, req *Request) (core.Output, error) {
	resp, err := e.client.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, core.NewError(
			core.CodeNetworkFailure,
			fmt.Sprintf("server returned status %d", resp.StatusCode),
			map[string]any{"status_code": resp.StatusCode},
		)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The server answered deliberately; retrying is futile.
		return nil, fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, truncateBody(resp.Body))
	}

	decoded, err := decodeBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if cfg.OutputSchema != nil {
		valid, fieldErrors, err := cfg.OutputSchema.Validate(ctx, decoded)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, schemaError("task output", fieldErrors)
		}
	}
	if m, ok := decoded.(map[string]any); ok {
		return core.Output(m), nil
	}
	return core.Output{"data": decoded}, nil
}

func (e *Executor) finishAborted(ctx context.Context, result *Result) *Result {
	if ctx.Err() == context.Canceled {
		result.Errors = append(result.Errors, "task canceled")
		return result.finish(core.StatusCanceled)
	}
	result.Errors = append(result.Errors, "task timed out")
	return result.finish(core.StatusTimedOut)
}

func decodeBody(body []byte) (any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Non-JSON bodies are carried through as plain text.
		return string(body), nil
	}
	return decoded, nil
}

func schemaError(subject string, fieldErrors []schema.FieldError) error {
	details := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		details[i] = fe.String()
	}
	return core.NewError(
		core.CodeSchemaValidationFailed,
		fmt.Sprintf("%s failed schema validation", subject),
		map[string]any{"field_errors": details},
	)
}

func truncateBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
