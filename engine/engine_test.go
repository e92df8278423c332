package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/engine/catalog"
	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/schema"
	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
)

// fakeHTTPClient routes requests by URL so engine tests never touch the
// network.
type fakeHTTPClient struct {
	mu        sync.Mutex
	responses map[string]*task.Response
	requests  []*task.Request
}

func newFakeHTTPClient() *fakeHTTPClient {
	return &fakeHTTPClient{responses: make(map[string]*task.Response)}
}

func (f *fakeHTTPClient) respond(url string, status int, body string) {
	f.responses[url] = &task.Response{StatusCode: status, Body: []byte(body)}
}

func (f *fakeHTTPClient) Send(_ context.Context, req *task.Request) (*task.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return &task.Response{StatusCode: 404, Body: []byte(`{"error":"no route"}`)}, nil
}

func (f *fakeHTTPClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func onboardingCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	ctx := context.Background()
	store := catalog.NewStore()
	require.NoError(t, store.AddTask(ctx, &task.Config{
		Ref:    "fetch-user",
		Method: "GET",
		URL:    "https://api.test/users/{{input.userId}}",
	}))
	require.NoError(t, store.AddTask(ctx, &task.Config{
		Ref:    "send-mail",
		Method: "POST",
		URL:    "https://mail.test/send",
		Body:   map[string]any{"to": "{{input.email}}"},
	}))
	require.NoError(t, store.AddWorkflow(ctx, &workflow.Config{
		ID: "onboarding",
		InputSchema: &schema.Schema{
			"type":     "object",
			"required": []any{"userId"},
		},
		Steps: []workflow.TaskStep{
			{
				ID:      "user",
				TaskRef: "fetch-user",
				Input:   map[string]any{"userId": "{{input.userId}}"},
			},
			{
				ID:      "mail",
				TaskRef: "send-mail",
				Input:   map[string]any{"email": "{{tasks.user.output.email}}"},
			},
		},
		Outputs: map[string]any{
			"email":  "{{tasks.user.output.email}}",
			"mailed": "{{tasks.mail.output.ok}}",
		},
	}))
	return store
}

func TestExecuteWorkflow(t *testing.T) {
	t.Run("Should run a chained workflow end to end", func(t *testing.T) {
		client := newFakeHTTPClient()
		client.respond("https://api.test/users/42", 200, `{"email":"ada@example.com"}`)
		client.respond("https://mail.test/send", 200, `{"ok":true}`)

		eng := New(onboardingCatalog(t), nil, WithHTTPClient(client))
		result, err := eng.ExecuteWorkflow(
			context.Background(), "onboarding", core.Input{"userId": "42"})
		require.NoError(t, err)
		require.True(t, result.Success, "errors: %v", result.Errors)
		assert.Equal(t, core.StatusSuccess, result.Status)
		assert.Equal(t, "ada@example.com", result.Output["email"])
		assert.Equal(t, true, result.Output["mailed"])
		assert.Equal(t, 2, client.callCount())
		assert.Equal(t, core.StatusSuccess, result.Tasks["user"].Status)
		assert.Equal(t, core.StatusSuccess, result.Tasks["mail"].Status)
	})

	t.Run("Should return ErrNotFound for an unknown workflow", func(t *testing.T) {
		eng := New(onboardingCatalog(t), nil, WithHTTPClient(newFakeHTTPClient()))
		_, err := eng.ExecuteWorkflow(context.Background(), "nope", nil)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("Should reject input that fails the workflow schema before executing", func(t *testing.T) {
		client := newFakeHTTPClient()
		eng := New(onboardingCatalog(t), nil, WithHTTPClient(client))
		_, err := eng.ExecuteWorkflow(context.Background(), "onboarding", core.Input{})
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeSchemaValidationFailed))
		assert.Equal(t, 0, client.callCount())
	})

	t.Run("Should encode downstream failures in the result, not the error", func(t *testing.T) {
		client := newFakeHTTPClient()
		client.respond("https://api.test/users/42", 404, `{"error":"gone"}`)

		eng := New(onboardingCatalog(t), nil, WithHTTPClient(client))
		result, err := eng.ExecuteWorkflow(
			context.Background(), "onboarding", core.Input{"userId": "42"})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, core.StatusFailed, result.Status)
		assert.Equal(t, core.StatusFailed, result.Tasks["user"].Status)
		assert.Equal(t, core.StatusSkipped, result.Tasks["mail"].Status)
		// Only the first task ever went out.
		assert.Equal(t, 1, client.callCount())
	})
}

func TestDryRun(t *testing.T) {
	t.Run("Should plan groups and resolve static fields without HTTP calls", func(t *testing.T) {
		client := newFakeHTTPClient()
		eng := New(onboardingCatalog(t), nil, WithHTTPClient(client))

		plan, err := eng.DryRun(context.Background(), "onboarding", core.Input{"userId": "42"})
		require.NoError(t, err)
		assert.Equal(t, "onboarding", plan.WorkflowID)
		require.Len(t, plan.Groups, 2)
		assert.Equal(t, workflow.ParallelGroup{"user"}, plan.Groups[0])
		assert.Equal(t, workflow.ParallelGroup{"mail"}, plan.Groups[1])

		require.Len(t, plan.Steps, 2)
		user, mail := plan.Steps[0], plan.Steps[1]
		assert.Equal(t, map[string]any{"userId": "42"}, user.ResolvedInput)
		assert.Empty(t, user.Pending)
		assert.Equal(t, []string{"user"}, mail.Pending)
		assert.Equal(t, []string{"user"}, mail.DependsOn)
		assert.Equal(t, 0, client.callCount())
	})

	t.Run("Should mark missing input values as unresolved instead of failing", func(t *testing.T) {
		ctx := context.Background()
		store := catalog.NewStore()
		require.NoError(t, store.AddTask(ctx, &task.Config{
			Ref: "ping", Method: "GET", URL: "https://status.test/ping",
		}))
		require.NoError(t, store.AddWorkflow(ctx, &workflow.Config{
			ID: "probe",
			Steps: []workflow.TaskStep{{
				ID:      "p",
				TaskRef: "ping",
				Input:   map[string]any{"target": "{{input.host}}"},
			}},
		}))
		eng := New(store, nil, WithHTTPClient(newFakeHTTPClient()))

		plan, err := eng.DryRun(ctx, "probe", core.Input{})
		require.NoError(t, err)
		require.Len(t, plan.Steps, 1)
		assert.Contains(t, plan.Steps[0].ResolvedInput["target"], "<unresolved:")
	})

	t.Run("Should validate input before planning", func(t *testing.T) {
		eng := New(onboardingCatalog(t), nil, WithHTTPClient(newFakeHTTPClient()))
		_, err := eng.DryRun(context.Background(), "onboarding", core.Input{})
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeSchemaValidationFailed))
	})
}
