package events

import "encoding/json"

// StorePublisher adapts a Manager to the store.Publisher interface, so
// the store can fan out a freshly committed event without knowing
// anything about WebSocket transport.
type StorePublisher struct {
	manager *Manager
}

// NewStorePublisher wraps a Manager for use as a store.Publisher.
func NewStorePublisher(m *Manager) *StorePublisher {
	return &StorePublisher{manager: m}
}

// Publish broadcasts an event to both the task-scoped channel and the
// global task-list channel (the latter only for task_update, so list
// views can refresh status badges without subscribing per-task).
func (p *StorePublisher) Publish(eventType string, data map[string]any) {
	payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		return
	}

	taskID, _ := data["task_id"].(string)
	if taskID != "" {
		p.manager.Broadcast(TaskChannel(taskID), payload)
	}
	if eventType == "task_update" {
		p.manager.Broadcast(GlobalTasksChannel, payload)
	}
}
