package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories.
const (
	WarningCategoryMCPHealth = "mcp_health" // an MCP server's healthcheck started failing
	WarningCategoryLLM       = "llm"        // the chat provider is unreachable or misconfigured
)

// SystemWarning is a non-fatal, transient condition surfaced to the UI.
type SystemWarning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	ServerID  string    `json:"server_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WarningsService holds in-memory system warnings. Not persisted:
// warnings describe runtime conditions (an unhealthy MCP server, a
// provider outage) that reset on restart along with whatever caused
// them.
type WarningsService struct {
	mu       sync.RWMutex
	warnings map[string]*SystemWarning
}

// NewWarningsService constructs an empty WarningsService.
func NewWarningsService() *WarningsService {
	return &WarningsService{warnings: make(map[string]*SystemWarning)}
}

// Add records a warning, replacing any existing one with the same
// category+serverID so repeated health-check failures don't pile up.
func (s *WarningsService) Add(category, message, details, serverID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.ServerID == serverID {
			delete(s.warnings, id)
			break
		}
	}

	id := uuid.NewString()
	s.warnings[id] = &SystemWarning{
		ID:        id,
		Category:  category,
		Message:   message,
		Details:   details,
		ServerID:  serverID,
		CreatedAt: time.Now(),
	}
	return id
}

// List returns value copies of all active warnings.
func (s *WarningsService) List() []*SystemWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SystemWarning, 0, len(s.warnings))
	for _, w := range s.warnings {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// ClearByServerID removes the warning matching category+serverID, if
// any, e.g. once a previously unhealthy MCP server recovers.
func (s *WarningsService) ClearByServerID(category, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.warnings {
		if w.Category == category && w.ServerID == serverID {
			delete(s.warnings, id)
			return true
		}
	}
	return false
}
