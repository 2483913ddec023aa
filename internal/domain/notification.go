package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification payload type tags. They select the server operation a live
// connection receives (task, project, or system notification).
const (
	PayloadTypeTask    = "task"
	PayloadTypeProject = "project"
	PayloadTypeSystem  = "system"
)

// Intent is the immutable value a consumer hands to dispatch: what to say
// and who should hear it. Delivery is best-effort from here on.
type Intent struct {
	Type      string
	Title     string
	Message   string
	GroupID   string // broadcast group key, empty = no group target
	UserIDs   []uuid.UUID
	ActionURL string
	ProjectID uuid.UUID // optional, zero = absent
	TaskID    uuid.UUID // optional, zero = absent
	OldStatus Status    // status-change intents only
	NewStatus Status    // status-change intents only
	Timestamp time.Time
}

// Payload is the rendered notification pushed to live connections.
// Field names are part of the client wire contract.
type Payload struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // RFC 3339 UTC
	ActionURL string `json:"actionUrl,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus,omitempty"`
}

// ProjectGroup returns the broadcast group key for a project.
func ProjectGroup(projectID uuid.UUID) string {
	return "project-" + projectID.String()
}
