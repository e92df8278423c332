package workflow

import (
	"time"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/task"
)

// -----------------------------------------------------------------------------
// Execution result
// -----------------------------------------------------------------------------

// ExecutionResult is the terminal outcome of one workflow run: the aggregated
// output plus every step's individual result, produced exactly once by the
// orchestrator. An external history service may persist it; the engine holds
// no storage.
type ExecutionResult struct {
	ExecID     string                  `json:"exec_id"`
	WorkflowID string                  `json:"workflow_id"`
	Status     core.StatusType         `json:"status"`
	Success    bool                    `json:"success"`
	Output     core.Output             `json:"output,omitempty"`
	Tasks      map[string]*task.Result `json:"tasks"`
	Errors     []string                `json:"errors,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Duration   time.Duration           `json:"duration"`
}

// -----------------------------------------------------------------------------
// Execution plan (dry run)
// -----------------------------------------------------------------------------

// PlanStep describes one step of a dry run: its dependencies, its level, the
// input fields resolvable without running anything, and the task-output
// references that remain pending.
type PlanStep struct {
	ID            string         `json:"id"`
	TaskRef       string         `json:"task"`
	Level         int            `json:"level"`
	DependsOn     []string       `json:"depends_on,omitempty"`
	ResolvedInput map[string]any `json:"resolved_input,omitempty"`
	Pending       []string       `json:"pending,omitempty"`
}

// ExecutionPlan is the result of a dry run: the planned parallel groups and
// per-step resolution state, with no HTTP calls performed.
type ExecutionPlan struct {
	WorkflowID string          `json:"workflow_id"`
	Groups     []ParallelGroup `json:"groups"`
	Steps      []PlanStep      `json:"steps"`
}
