package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
)

// ErrNotFound is wrapped by all lookup misses.
var ErrNotFound = errors.New("not found")

// Catalog is the validated definition store the engine reads from. Every
// definition it hands out has already passed structural and referential
// validation; the execution pipeline trusts that and only deals with runtime
// failures.
type Catalog interface {
	TaskDefinition(name string) (*task.Config, error)
	WorkflowDefinition(name string) (*workflow.Config, error)
	Tasks() []*task.Config
	Workflows() []*workflow.Config
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the in-memory Catalog implementation. Definitions are validated
// on insert and immutable afterwards.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*task.Config
	workflows map[string]*workflow.Config
}

func NewStore() *Store {
	return &Store{
		tasks:     make(map[string]*task.Config),
		workflows: make(map[string]*workflow.Config),
	}
}

func (s *Store) AddTask(ctx context.Context, cfg *task.Config) error {
	if err := cfg.Validate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[cfg.Ref]; exists {
		return fmt.Errorf("task %q already registered", cfg.Ref)
	}
	s.tasks[cfg.Ref] = cfg
	return nil
}

func (s *Store) AddWorkflow(ctx context.Context, cfg *workflow.Config) error {
	if err := cfg.Validate(ctx, s.hasTask); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[cfg.ID]; exists {
		return fmt.Errorf("workflow %q already registered", cfg.ID)
	}
	s.workflows[cfg.ID] = cfg
	return nil
}

func (s *Store) hasTask(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[ref]
	return ok
}

func (s *Store) TaskDefinition(name string) (*task.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", name, ErrNotFound)
	}
	return cfg, nil
}

func (s *Store) WorkflowDefinition(name string) (*workflow.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.workflows[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", name, ErrNotFound)
	}
	return cfg, nil
}

func (s *Store) Tasks() []*task.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configs := make([]*task.Config, 0, len(s.tasks))
	for _, cfg := range s.tasks {
		configs = append(configs, cfg)
	}
	return configs
}

func (s *Store) Workflows() []*workflow.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configs := make([]*workflow.Config, 0, len(s.workflows))
	for _, cfg := range s.workflows {
		configs = append(configs, cfg)
	}
	return configs
}

// Snapshot resolves every task a workflow's steps reference into one
// consistent map for the duration of a single execution.
func Snapshot(cat Catalog, wf *workflow.Config) (map[string]*task.Config, error) {
	tasks := make(map[string]*task.Config, len(wf.Steps))
	for i := range wf.Steps {
		ref := wf.Steps[i].TaskRef
		if _, ok := tasks[ref]; ok {
			continue
		}
		cfg, err := cat.TaskDefinition(ref)
		if err != nil {
			return nil, err
		}
		tasks[ref] = cfg
	}
	return tasks, nil
}
