package task

import (
	"time"

	"github.com/flowgate/flowgate/engine/core"
)

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// Result is the per-step outcome. The executor always returns one, whatever
// happened; callers inspect Status and Errors instead of catching errors.
type Result struct {
	StepID     string          `json:"step_id"`
	TaskRef    string          `json:"task_ref,omitempty"`
	Status     core.StatusType `json:"status"`
	Success    bool            `json:"success"`
	Output     core.Output     `json:"output,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
	RetryCount int             `json:"retry_count"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration"`
}

func (r *Result) Skipped() bool {
	return r.Status == core.StatusSkipped
}

func (r *Result) finish(status core.StatusType) *Result {
	r.Status = status
	r.Success = status == core.StatusSuccess
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	return r
}

// NewSkippedResult builds the synthetic result for a step that never ran.
func NewSkippedResult(stepID string, taskRef string, reason string) *Result {
	now := time.Now()
	return &Result{
		StepID:     stepID,
		TaskRef:    taskRef,
		Status:     core.StatusSkipped,
		Success:    false,
		Errors:     []string{reason},
		StartedAt:  now,
		FinishedAt: now,
	}
}
