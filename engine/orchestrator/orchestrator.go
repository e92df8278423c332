package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
	"github.com/flowgate/flowgate/pkg/logger"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

const (
	DefaultMaxConcurrency = 10
	DefaultGlobalTimeout  = 30 * time.Second
)

// TaskRunner executes one step. *task.Executor is the production
// implementation; tests substitute fakes to observe scheduling.
type TaskRunner interface {
	Execute(
		ctx context.Context,
		stepID string,
		cfg *task.Config,
		stepInput map[string]any,
		wctx *tplengine.Context,
	) *task.Result
}

// Orchestrator drives one workflow execution: levels strictly in order,
// steps within a level concurrently behind a weighted semaphore, failures
// propagated to dependents as skips, and the final output assembled from the
// workflow's output mapping. It holds no cross-execution state; every call
// owns its own template context and graph traversal.
type Orchestrator struct {
	runner         TaskRunner
	maxConcurrency int64
	globalTimeout  time.Duration
}

type Option func(*Orchestrator)

func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = int64(n)
		}
	}
}

func WithGlobalTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.globalTimeout = d
		}
	}
}

func New(runner TaskRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:         runner,
		maxConcurrency: DefaultMaxConcurrency,
		globalTimeout:  DefaultGlobalTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the workflow to completion and always returns a populated
// result. The task catalog snapshot is an explicit argument so one execution
// sees a consistent view for its whole duration.
func (o *Orchestrator) Execute(
	ctx context.Context,
	wf *workflow.Config,
	graph *workflow.ExecutionGraph,
	tasks map[string]*task.Config,
	input core.Input,
) *workflow.ExecutionResult {
	result := &workflow.ExecutionResult{
		ExecID:     uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     core.StatusRunning,
		Tasks:      make(map[string]*task.Result),
		StartedAt:  time.Now(),
	}
	log := logger.FromContext(ctx).With("exec_id", result.ExecID, "workflow_id", wf.ID)
	ctx = logger.ContextWithLogger(ctx, log)

	timeout := o.globalTimeout
	if d, err := wf.GetTimeout(); err == nil && d > 0 {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("Workflow execution starting", "steps", len(wf.Steps), "levels", len(graph.Levels()))

	wctx := tplengine.NewContext(input)
	sem := semaphore.NewWeighted(o.maxConcurrency)

	aborted := false
	for _, level := range graph.Levels() {
		if ctx.Err() != nil {
			aborted = true
		}
		if aborted {
			o.skipLevel(result, wf, level, abortReason(ctx))
			continue
		}
		o.runLevel(ctx, wf, graph, tasks, level, sem, wctx, result)
		if ctx.Err() != nil {
			aborted = true
		}
	}

	o.aggregate(wf, wctx, result)
	o.finalize(ctx, result, aborted)
	log.Info("Workflow execution finished",
		"success", result.Success,
		"status", result.Status,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

// runLevel launches every runnable step of the level and joins before
// returning; the join is what makes this level's context writes visible to
// the next one.
func (o *Orchestrator) runLevel(
	ctx context.Context,
	wf *workflow.Config,
	graph *workflow.ExecutionGraph,
	tasks map[string]*task.Config,
	level workflow.ParallelGroup,
	sem *semaphore.Weighted,
	wctx *tplengine.Context,
	result *workflow.ExecutionResult,
) {
	type launch struct {
		step *workflow.TaskStep
		cfg  *task.Config
	}
	var launches []launch
	for _, stepID := range level {
		step := wf.Step(stepID)
		if reason, blocked := o.blockedByDependency(graph, result, stepID); blocked {
			result.Tasks[stepID] = task.NewSkippedResult(stepID, step.TaskRef, reason)
			continue
		}
		run, err := o.evalCondition(step, wctx)
		if err != nil {
			res := task.NewSkippedResult(stepID, step.TaskRef, err.Error())
			res.Status = core.StatusFailed
			result.Tasks[stepID] = res
			continue
		}
		if !run {
			result.Tasks[stepID] = task.NewSkippedResult(
				stepID, step.TaskRef, "condition evaluated to false")
			continue
		}
		launches = append(launches, launch{step: step, cfg: o.effectiveConfig(tasks[step.TaskRef], step)})
	}

	results := make([]*task.Result, len(launches))
	var wg sync.WaitGroup
	for i, l := range launches {
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = task.NewSkippedResult(
					l.step.ID, l.step.TaskRef, abortReason(ctx))
				return
			}
			defer sem.Release(1)
			results[i] = o.runner.Execute(ctx, l.step.ID, l.cfg, l.step.Input, wctx)
		})
	}
	wg.Wait()

	for _, res := range results {
		result.Tasks[res.StepID] = res
		if res.Success {
			wctx.SetTaskOutput(res.StepID, res.Output)
		}
	}
}

// blockedByDependency reports whether any dependency failed or was skipped.
func (o *Orchestrator) blockedByDependency(
	graph *workflow.ExecutionGraph,
	result *workflow.ExecutionResult,
	stepID string,
) (string, bool) {
	for _, dep := range graph.Dependencies(stepID) {
		depResult, ok := result.Tasks[dep]
		if !ok || depResult.Success {
			continue
		}
		if depResult.Skipped() {
			return fmt.Sprintf("skipped because dependency %q was skipped", dep), true
		}
		return fmt.Sprintf("skipped because dependency %q failed", dep), true
	}
	return "", false
}

// evalCondition resolves the step condition to a boolean; no condition means
// run.
func (o *Orchestrator) evalCondition(step *workflow.TaskStep, wctx *tplengine.Context) (bool, error) {
	if step.Condition == "" {
		return true, nil
	}
	value, err := tplengine.Resolve(step.Condition, wctx)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if v == "true" {
			return true, nil
		}
		if v == "false" {
			return false, nil
		}
	}
	return false, fmt.Errorf("condition %q resolved to non-boolean value %v", step.Condition, value)
}

// effectiveConfig applies the step-level timeout override to the task
// definition without mutating the shared catalog snapshot.
func (o *Orchestrator) effectiveConfig(cfg *task.Config, step *workflow.TaskStep) *task.Config {
	if step.Timeout == "" {
		return cfg
	}
	override := *cfg
	override.Timeout = step.Timeout
	return &override
}

func (o *Orchestrator) skipLevel(
	result *workflow.ExecutionResult,
	wf *workflow.Config,
	level workflow.ParallelGroup,
	reason string,
) {
	for _, stepID := range level {
		if _, done := result.Tasks[stepID]; done {
			continue
		}
		step := wf.Step(stepID)
		result.Tasks[stepID] = task.NewSkippedResult(stepID, step.TaskRef, reason)
	}
}

// aggregate resolves the workflow output mapping. A field that fails to
// resolve is reported as an error for that field only; other fields keep
// their values.
func (o *Orchestrator) aggregate(
	wf *workflow.Config,
	wctx *tplengine.Context,
	result *workflow.ExecutionResult,
) {
	if len(wf.Outputs) == 0 {
		result.Output = core.Output{}
		return
	}
	output := core.Output{}
	for field, tmpl := range wf.Outputs {
		value, err := tplengine.ResolveValue(tmpl, wctx)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("output %q could not be resolved: %v", field, err))
			continue
		}
		output[field] = value
	}
	result.Output = output
}

func (o *Orchestrator) finalize(ctx context.Context, result *workflow.ExecutionResult, aborted bool) {
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	failed := false
	for _, res := range result.Tasks {
		switch res.Status {
		case core.StatusFailed, core.StatusTimedOut, core.StatusCanceled:
			failed = true
			result.Errors = append(result.Errors,
				fmt.Sprintf("step %q failed: %s", res.StepID, firstError(res.Errors)))
		}
	}

	switch {
	case aborted && ctx.Err() == context.Canceled:
		result.Status = core.StatusCanceled
		result.Errors = append(result.Errors, "execution canceled")
	case aborted:
		result.Status = core.StatusTimedOut
		result.Errors = append(result.Errors, "workflow deadline exceeded")
	case failed:
		result.Status = core.StatusFailed
	default:
		result.Status = core.StatusSuccess
	}
	result.Success = result.Status == core.StatusSuccess
}

func abortReason(ctx context.Context) string {
	if ctx.Err() == context.Canceled {
		return "skipped because execution was canceled"
	}
	return "skipped because the workflow deadline was exceeded"
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	return errs[0]
}
