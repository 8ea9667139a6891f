package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewService(Config{Token: "", Channel: "C123"}, nil))
	})
	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewService(Config{Token: "xoxb-test", Channel: ""}, nil))
	})
	t.Run("returns service when configured", func(t *testing.T) {
		assert.NotNil(t, NewService(Config{Token: "xoxb-test", Channel: "C123"}, nil))
	})
}

func TestService_NilReceiver(t *testing.T) {
	var s *Service
	// Must not panic.
	s.Publish("task_update", map[string]any{"task_id": "t1", "fields": map[string]any{"status": "succeeded"}})
}

func TestService_Publish(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ws, err := st.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := st.CreateSkill(ctx, &models.Skill{Name: "sk", SystemPrompt: "do stuff", Enabled: true})
	require.NoError(t, err)
	task, err := st.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	var postCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		postCount++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"123.456"}`))
	}))
	defer server.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	svc := NewServiceWithClient(client, st, "https://dashboard.example.com")

	t.Run("ignores non task_update events", func(t *testing.T) {
		svc.Publish("chat_message", map[string]any{"task_id": task.ID})
		assert.Equal(t, 0, postCount)
	})

	t.Run("ignores task_update without a status field", func(t *testing.T) {
		svc.Publish("task_update", map[string]any{"task_id": task.ID, "fields": map[string]any{"current_step": 1}})
		assert.Equal(t, 0, postCount)
	})

	t.Run("notifies on waiting_approval", func(t *testing.T) {
		svc.Publish("task_update", map[string]any{
			"task_id": task.ID,
			"fields":  map[string]any{"status": string(models.TaskWaitingApproval)},
		})
		assert.Equal(t, 1, postCount)
	})

	t.Run("notifies on terminal status", func(t *testing.T) {
		svc.Publish("task_update", map[string]any{
			"task_id": task.ID,
			"fields":  map[string]any{"status": string(models.TaskSucceeded)},
		})
		assert.Equal(t, 2, postCount)
	})

	t.Run("unknown task id is logged and skipped, not fatal", func(t *testing.T) {
		svc.Publish("task_update", map[string]any{
			"task_id": "nonexistent",
			"fields":  map[string]any{"status": string(models.TaskSucceeded)},
		})
		assert.Equal(t, 2, postCount, "no post should happen for an unresolvable task")
	})
}

func TestFanout(t *testing.T) {
	var calls []string
	a := fakePublisher{name: "a", calls: &calls}
	b := fakePublisher{name: "b", calls: &calls}

	var disabled *Service
	f := NewFanout(a, b, disabled)

	f.Publish("task_update", map[string]any{"task_id": "t1"})
	assert.Equal(t, []string{"a", "b"}, calls)
}

type fakePublisher struct {
	name  string
	calls *[]string
}

func (f fakePublisher) Publish(eventType string, data map[string]any) {
	*f.calls = append(*f.calls, f.name)
}
