package tplengine

import (
	"sync"

	"github.com/flowgate/flowgate/engine/core"
)

// Context is the runtime state templates resolve against: the workflow input
// plus the outputs of every completed step. One Context belongs to exactly
// one in-flight execution.
//
// Parallel steps in the same level write disjoint step ids, so a single map
// lock per write is all the synchronization the write pattern needs; the
// orchestrator's level join barrier orders writes before the reads of later
// levels.
type Context struct {
	mu          sync.RWMutex
	input       core.Input
	taskOutputs map[string]core.Output
}

func NewContext(input core.Input) *Context {
	if input == nil {
		input = core.Input{}
	}
	return &Context{
		input:       input,
		taskOutputs: make(map[string]core.Output),
	}
}

func (c *Context) Input() core.Input {
	return c.input
}

// SetTaskOutput records a completed step's output under its step id.
func (c *Context) SetTaskOutput(stepID string, output core.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskOutputs[stepID] = output
}

// TaskOutput returns the output recorded for a step id.
func (c *Context) TaskOutput(stepID string) (core.Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.taskOutputs[stepID]
	return out, ok
}

// CompletedSteps returns the ids of all steps with a recorded output.
func (c *Context) CompletedSteps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.taskOutputs))
	for id := range c.taskOutputs {
		ids = append(ids, id)
	}
	return ids
}
