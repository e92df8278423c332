package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/schema"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// Task step
// -----------------------------------------------------------------------------

// TaskStep is one task invocation inside a workflow: which task to run and
// how to feed it from workflow input and earlier step outputs.
type TaskStep struct {
	ID      string         `json:"id"                  yaml:"id"      validate:"required"`
	TaskRef string         `json:"task"                yaml:"task"    validate:"required"`
	Input   map[string]any `json:"input,omitempty"     yaml:"input,omitempty"`
	// Condition resolves to a boolean at launch time; false skips the step.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Timeout   string `json:"timeout,omitempty"   yaml:"timeout,omitempty"`
}

func (s *TaskStep) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return core.ParseHumanDuration(s.Timeout)
}

// templateStrings returns every template-bearing string the step carries.
func (s *TaskStep) templateStrings() []string {
	strs := collectStrings(s.Input)
	if s.Condition != "" {
		strs = append(strs, s.Condition)
	}
	return strs
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config is a workflow definition: an ordered list of steps plus the mapping
// that assembles the workflow-level output from step outputs. Immutable once
// validated.
type Config struct {
	ID          string         `json:"id"                    yaml:"id"    validate:"required"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []TaskStep     `json:"steps"                 yaml:"steps" validate:"dive"`
	InputSchema *schema.Schema `json:"input,omitempty"       yaml:"input,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"     yaml:"outputs,omitempty"`
	Timeout     string         `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
}

func (w *Config) Step(id string) *TaskStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

func (w *Config) GetTimeout() (time.Duration, error) {
	if w.Timeout == "" {
		return 0, nil
	}
	return core.ParseHumanDuration(w.Timeout)
}

// Validate performs the load-time checks the execution engine relies on:
// struct shape, unique step ids, known task refs, parseable templates, task
// references naming real steps, and an acyclic dependency graph. Execution
// assumes definitions passed all of this.
func (w *Config) Validate(ctx context.Context, taskExists func(ref string) bool) error {
	if err := schema.NewStructValidator(w).Validate(ctx); err != nil {
		return fmt.Errorf("workflow %q is invalid: %w", w.ID, err)
	}
	stepIDs := make(map[string]bool, len(w.Steps))
	for i := range w.Steps {
		step := &w.Steps[i]
		if stepIDs[step.ID] {
			return fmt.Errorf("workflow %q has duplicate step id %q", w.ID, step.ID)
		}
		stepIDs[step.ID] = true
	}
	for i := range w.Steps {
		step := &w.Steps[i]
		if taskExists != nil && !taskExists(step.TaskRef) {
			return fmt.Errorf("workflow %q step %q references unknown task %q", w.ID, step.ID, step.TaskRef)
		}
		if _, err := step.GetTimeout(); err != nil {
			return fmt.Errorf("workflow %q step %q has invalid timeout: %w", w.ID, step.ID, err)
		}
		for _, tmpl := range step.templateStrings() {
			refs, err := tplengine.ExtractTaskRefs(tmpl)
			if err != nil {
				return fmt.Errorf("workflow %q step %q has invalid template: %w", w.ID, step.ID, err)
			}
			for _, ref := range refs {
				if ref == step.ID {
					return fmt.Errorf("workflow %q step %q references its own output", w.ID, step.ID)
				}
				if !stepIDs[ref] {
					return fmt.Errorf("workflow %q step %q references unknown step %q", w.ID, step.ID, ref)
				}
			}
		}
	}
	for field, value := range w.Outputs {
		refs, err := tplengine.ExtractTaskRefsFromValue(value)
		if err != nil {
			return fmt.Errorf("workflow %q output %q has invalid template: %w", w.ID, field, err)
		}
		for _, ref := range refs {
			if !stepIDs[ref] {
				return fmt.Errorf("workflow %q output %q references unknown step %q", w.ID, field, ref)
			}
		}
	}
	if _, err := w.GetTimeout(); err != nil {
		return fmt.Errorf("workflow %q has invalid timeout: %w", w.ID, err)
	}
	if _, err := BuildGraph(w); err != nil {
		return fmt.Errorf("workflow %q is invalid: %w", w.ID, err)
	}
	return nil
}

func collectStrings(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case map[string]any:
		var strs []string
		for _, val := range v {
			strs = append(strs, collectStrings(val)...)
		}
		return strs
	case []any:
		var strs []string
		for _, val := range v {
			strs = append(strs, collectStrings(val)...)
		}
		return strs
	default:
		return nil
	}
}
