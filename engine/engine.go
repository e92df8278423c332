// Package engine wires the catalog, the HTTP task executor, and the
// orchestrator into the synchronous execution surface the gateway consumes.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowgate/flowgate/engine/catalog"
	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/orchestrator"
	"github.com/flowgate/flowgate/engine/schema"
	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
	"github.com/flowgate/flowgate/pkg/config"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

// Engine executes workflows on demand. It holds no per-execution state;
// every call builds its own graph, template context, and catalog snapshot.
type Engine struct {
	catalog catalog.Catalog
	cfg     *config.Config
	client  task.HTTPClient
	orch    *orchestrator.Orchestrator
}

type Option func(*Engine)

// WithHTTPClient substitutes the transport, mainly for tests.
func WithHTTPClient(client task.HTTPClient) Option {
	return func(e *Engine) {
		e.client = client
	}
}

func New(cat catalog.Catalog, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{catalog: cat, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = task.NewHTTPClient(task.WithRequestTimeout(cfg.HTTP.RequestTimeout))
	}
	executor := task.NewExecutor(e.client, &task.RetryPolicy{
		InitialDelay:      cfg.Retry.InitialDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		MaxRetries:        cfg.Retry.MaxRetries,
	})
	e.orch = orchestrator.New(executor,
		orchestrator.WithMaxConcurrency(cfg.Runtime.MaxConcurrentTasks),
		orchestrator.WithGlobalTimeout(cfg.Runtime.GlobalTimeout),
	)
	return e
}

// ExecuteWorkflow runs the named workflow to completion and returns the
// consolidated result. Lookup and input validation failures are returned as
// errors before anything executes; runtime failures are encoded inside the
// result.
func (e *Engine) ExecuteWorkflow(
	ctx context.Context,
	name string,
	input core.Input,
) (*workflow.ExecutionResult, error) {
	wf, graph, err := e.load(ctx, name, input)
	if err != nil {
		return nil, err
	}
	tasks, err := catalog.Snapshot(e.catalog, wf)
	if err != nil {
		return nil, err
	}
	return e.orch.Execute(ctx, wf, graph, tasks, input), nil
}

// DryRun builds the execution graph, resolves everything resolvable from
// workflow input alone, and reports the planned parallel groups. No HTTP
// call is made.
func (e *Engine) DryRun(
	ctx context.Context,
	name string,
	input core.Input,
) (*workflow.ExecutionPlan, error) {
	wf, graph, err := e.load(ctx, name, input)
	if err != nil {
		return nil, err
	}
	wctx := tplengine.NewContext(input)
	plan := &workflow.ExecutionPlan{
		WorkflowID: wf.ID,
		Groups:     graph.Levels(),
	}
	for i := range wf.Steps {
		step := &wf.Steps[i]
		level, _ := graph.LevelOf(step.ID)
		planStep := workflow.PlanStep{
			ID:        step.ID,
			TaskRef:   step.TaskRef,
			Level:     level,
			DependsOn: graph.Dependencies(step.ID),
		}
		planStep.ResolvedInput, planStep.Pending = resolveStatic(step.Input, wctx)
		plan.Steps = append(plan.Steps, planStep)
	}
	return plan, nil
}

// load fetches the workflow, validates the input against its declared
// schema, and builds the execution graph.
func (e *Engine) load(
	ctx context.Context,
	name string,
	input core.Input,
) (*workflow.Config, *workflow.ExecutionGraph, error) {
	wf, err := e.catalog.WorkflowDefinition(name)
	if err != nil {
		return nil, nil, err
	}
	if wf.InputSchema != nil {
		valid, fieldErrors, err := wf.InputSchema.Validate(ctx, input.AsMap())
		if err != nil {
			return nil, nil, err
		}
		if !valid {
			return nil, nil, core.NewError(
				core.CodeSchemaValidationFailed,
				fmt.Sprintf("workflow input failed schema validation: %s", joinFieldErrors(fieldErrors)),
				map[string]any{"field_errors": fieldErrors},
			)
		}
	}
	graph, err := workflow.BuildGraph(wf)
	if err != nil {
		return nil, nil, err
	}
	return wf, graph, nil
}

// resolveStatic resolves the input fields whose templates reference only
// workflow input; fields that need task outputs are reported as pending with
// the step ids they wait on.
func resolveStatic(input map[string]any, wctx *tplengine.Context) (map[string]any, []string) {
	if len(input) == 0 {
		return nil, nil
	}
	resolved := make(map[string]any)
	var pending []string
	seen := make(map[string]bool)
	for field, value := range input {
		refs, err := tplengine.ExtractTaskRefsFromValue(value)
		if err != nil || len(refs) > 0 {
			for _, ref := range refs {
				if !seen[ref] {
					seen[ref] = true
					pending = append(pending, ref)
				}
			}
			continue
		}
		result, err := tplengine.ResolveValue(value, wctx)
		if err != nil {
			// Missing input values surface in the plan rather than failing
			// the whole dry run.
			resolved[field] = fmt.Sprintf("<unresolved: %v>", err)
			continue
		}
		resolved[field] = result
	}
	return resolved, pending
}

func joinFieldErrors(fieldErrors []schema.FieldError) string {
	msgs := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		msgs[i] = fe.String()
	}
	return strings.Join(msgs, "; ")
}
