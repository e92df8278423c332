package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
)

func validTask(ref string) *task.Config {
	return &task.Config{
		Ref:    ref,
		Method: "GET",
		URL:    "https://api.example.com/users/{{input.userId}}",
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should register a valid task and look it up by ref", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.AddTask(ctx, validTask("fetch-user")))
		cfg, err := store.TaskDefinition("fetch-user")
		require.NoError(t, err)
		assert.Equal(t, "fetch-user", cfg.Ref)
		assert.Len(t, store.Tasks(), 1)
	})

	t.Run("Should reject an invalid task on insert", func(t *testing.T) {
		store := NewStore()
		err := store.AddTask(ctx, &task.Config{Ref: "broken", Method: "TRACE", URL: "http://x"})
		require.Error(t, err)
		assert.Empty(t, store.Tasks())
	})

	t.Run("Should reject a duplicate task ref", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.AddTask(ctx, validTask("fetch-user")))
		err := store.AddTask(ctx, validTask("fetch-user"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("Should reject a workflow referencing an unregistered task", func(t *testing.T) {
		store := NewStore()
		err := store.AddWorkflow(ctx, &workflow.Config{
			ID:    "orphan",
			Steps: []workflow.TaskStep{{ID: "a", TaskRef: "missing"}},
		})
		require.Error(t, err)
	})

	t.Run("Should register a workflow once its tasks exist", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.AddTask(ctx, validTask("fetch-user")))
		require.NoError(t, store.AddWorkflow(ctx, &workflow.Config{
			ID:    "onboarding",
			Steps: []workflow.TaskStep{{ID: "a", TaskRef: "fetch-user"}},
		}))
		wf, err := store.WorkflowDefinition("onboarding")
		require.NoError(t, err)
		assert.Equal(t, "onboarding", wf.ID)
		assert.Len(t, store.Workflows(), 1)
	})

	t.Run("Should wrap lookup misses in ErrNotFound", func(t *testing.T) {
		store := NewStore()
		_, err := store.TaskDefinition("nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.WorkflowDefinition("nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("Should collect each referenced task exactly once", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.AddTask(ctx, validTask("fetch-user")))
		require.NoError(t, store.AddTask(ctx, validTask("send-mail")))
		wf := &workflow.Config{
			ID: "onboarding",
			Steps: []workflow.TaskStep{
				{ID: "a", TaskRef: "fetch-user"},
				{ID: "b", TaskRef: "fetch-user"},
				{ID: "c", TaskRef: "send-mail"},
			},
		}
		tasks, err := Snapshot(store, wf)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		assert.Contains(t, tasks, "fetch-user")
		assert.Contains(t, tasks, "send-mail")
	})

	t.Run("Should fail when a referenced task is gone", func(t *testing.T) {
		store := NewStore()
		wf := &workflow.Config{
			ID:    "stale",
			Steps: []workflow.TaskStep{{ID: "a", TaskRef: "vanished"}},
		}
		_, err := Snapshot(store, wf)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
