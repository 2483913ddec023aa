package hub

import (
	"github.com/taskflow/notify/internal/domain"
)

// Client-invocable operations.
const (
	OpJoinProjectGroup     = "JoinProjectGroup"
	OpLeaveProjectGroup    = "LeaveProjectGroup"
	OpSendTestNotification = "SendTestNotification"
)

// Server-pushed operations.
const (
	MsgReceiveTaskNotification    = "ReceiveTaskNotification"
	MsgReceiveProjectNotification = "ReceiveProjectNotification"
	MsgReceiveSystemNotification  = "ReceiveSystemNotification"
	MsgJoinedProjectGroup         = "JoinedProjectGroup"
	MsgLeftProjectGroup           = "LeftProjectGroup"
)

// ClientMessage is a client-invoked operation.
type ClientMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
}

// ServerMessage is a server-pushed operation. Payload is set for
// notification pushes, ProjectID for join/leave acknowledgements.
type ServerMessage struct {
	Type      string          `json:"type"`
	Payload   *domain.Payload `json:"payload,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
}

// messageType maps a payload type tag to the server operation that carries
// it. Unknown tags fall back to the system notification.
func messageType(payloadType string) string {
	switch payloadType {
	case domain.PayloadTypeTask:
		return MsgReceiveTaskNotification
	case domain.PayloadTypeProject:
		return MsgReceiveProjectNotification
	default:
		return MsgReceiveSystemNotification
	}
}
