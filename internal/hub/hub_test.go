package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// fakeSender records pushed messages; set failWith to simulate a full
// send buffer.
type fakeSender struct {
	mu       sync.Mutex
	msgs     []ServerMessage
	failWith error
}

func (s *fakeSender) Send(msg ServerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeSender) received() []ServerMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ServerMessage(nil), s.msgs...)
}

// notifications filters out join/leave acknowledgements.
func (s *fakeSender) notifications() []ServerMessage {
	var out []ServerMessage
	for _, m := range s.received() {
		if m.Type == MsgJoinedProjectGroup || m.Type == MsgLeftProjectGroup {
			continue
		}
		out = append(out, m)
	}
	return out
}

func connect(h *Hub, userID uuid.UUID) (uuid.UUID, *fakeSender) {
	id := uuid.New()
	s := &fakeSender{}
	h.Connect(id, domain.Identity{UserID: userID, Email: "user@example.com", Name: "User"}, s)
	return id, s
}

func TestHub_JoinAndGroupBroadcast(t *testing.T) {
	h := New()
	projectID := uuid.New()

	member, memberSender := connect(h, uuid.New())
	_, outsiderSender := connect(h, uuid.New())

	if err := h.Join(member, projectID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Join is acknowledged to the caller.
	acks := memberSender.received()
	if len(acks) != 1 || acks[0].Type != MsgJoinedProjectGroup {
		t.Fatalf("expected join ack, got %v", acks)
	}
	if acks[0].ProjectID != projectID.String() {
		t.Errorf("ack ProjectID = %q, want %q", acks[0].ProjectID, projectID)
	}

	payload := domain.Payload{Type: domain.PayloadTypeProject, Title: "New task in Launch"}
	if err := h.PushToGroup(context.Background(), domain.ProjectGroup(projectID), payload); err != nil {
		t.Fatalf("PushToGroup failed: %v", err)
	}

	got := memberSender.notifications()
	if len(got) != 1 {
		t.Fatalf("member received %d notifications, want 1", len(got))
	}
	if got[0].Type != MsgReceiveProjectNotification {
		t.Errorf("Type = %q, want %q", got[0].Type, MsgReceiveProjectNotification)
	}
	if got[0].Payload == nil || got[0].Payload.Title != "New task in Launch" {
		t.Errorf("Payload = %v", got[0].Payload)
	}
	if len(outsiderSender.received()) != 0 {
		t.Errorf("outsider received %d messages, want 0", len(outsiderSender.received()))
	}
}

func TestHub_LeaveStopsBroadcast(t *testing.T) {
	h := New()
	projectID := uuid.New()

	id, sender := connect(h, uuid.New())
	if err := h.Join(id, projectID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := h.Leave(id, projectID); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	msgs := sender.received()
	if len(msgs) != 2 || msgs[1].Type != MsgLeftProjectGroup {
		t.Fatalf("expected leave ack, got %v", msgs)
	}

	h.PushToGroup(context.Background(), domain.ProjectGroup(projectID), domain.Payload{Type: domain.PayloadTypeProject})
	if len(sender.notifications()) != 0 {
		t.Errorf("left member still received notifications")
	}
}

func TestHub_LeaveWithoutJoinIsAcked(t *testing.T) {
	h := New()
	id, sender := connect(h, uuid.New())

	if err := h.Leave(id, uuid.New()); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	msgs := sender.received()
	if len(msgs) != 1 || msgs[0].Type != MsgLeftProjectGroup {
		t.Fatalf("expected leave ack, got %v", msgs)
	}
}

func TestHub_DoubleJoinSingleDelivery(t *testing.T) {
	h := New()
	projectID := uuid.New()
	id, sender := connect(h, uuid.New())

	if err := h.Join(id, projectID); err != nil {
		t.Fatalf("first Join failed: %v", err)
	}
	if err := h.Join(id, projectID); err != nil {
		t.Fatalf("second Join failed: %v", err)
	}

	h.PushToGroup(context.Background(), domain.ProjectGroup(projectID), domain.Payload{Type: domain.PayloadTypeProject})
	if got := len(sender.notifications()); got != 1 {
		t.Errorf("received %d notifications, want 1", got)
	}
}

func TestHub_DisconnectClearsMemberships(t *testing.T) {
	h := New()
	projectID := uuid.New()
	userID := uuid.New()

	id, _ := connect(h, userID)
	if err := h.Join(id, projectID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	h.Disconnect(id)

	if h.Connections() != 0 {
		t.Errorf("Connections() = %d, want 0", h.Connections())
	}

	// A fresh connection of the same user starts with no memberships.
	_, sender := connect(h, userID)
	h.PushToGroup(context.Background(), domain.ProjectGroup(projectID), domain.Payload{Type: domain.PayloadTypeProject})
	if len(sender.notifications()) != 0 {
		t.Errorf("reconnected client received group notifications without rejoining")
	}
}

func TestHub_JoinUnknownConnection(t *testing.T) {
	h := New()
	if err := h.Join(uuid.New(), uuid.New()); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected ErrUnknownConnection, got: %v", err)
	}
	if err := h.Leave(uuid.New(), uuid.New()); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected ErrUnknownConnection, got: %v", err)
	}
}

func TestHub_PushToUserAllDevices(t *testing.T) {
	h := New()
	userID := uuid.New()

	_, laptop := connect(h, userID)
	_, phone := connect(h, userID)
	_, otherSender := connect(h, uuid.New())

	payload := domain.Payload{Type: domain.PayloadTypeTask, Title: "Task assigned to you"}
	if err := h.PushToUser(context.Background(), userID, payload); err != nil {
		t.Fatalf("PushToUser failed: %v", err)
	}

	for name, s := range map[string]*fakeSender{"laptop": laptop, "phone": phone} {
		got := s.notifications()
		if len(got) != 1 {
			t.Fatalf("%s received %d notifications, want 1", name, len(got))
		}
		if got[0].Type != MsgReceiveTaskNotification {
			t.Errorf("%s Type = %q, want %q", name, got[0].Type, MsgReceiveTaskNotification)
		}
	}
	if len(otherSender.received()) != 0 {
		t.Errorf("unrelated user received %d messages", len(otherSender.received()))
	}
}

func TestHub_PushToUserNoConnections(t *testing.T) {
	h := New()
	// Pushing to an offline user delivers to no one and is not an error.
	if err := h.PushToUser(context.Background(), uuid.New(), domain.Payload{Type: domain.PayloadTypeTask}); err != nil {
		t.Errorf("PushToUser to offline user: %v", err)
	}
}

func TestHub_SlowConnectionDoesNotFailGroupPush(t *testing.T) {
	h := New()
	projectID := uuid.New()

	slow, slowSender := connect(h, uuid.New())
	slowSender.failWith = ErrSendBufferFull
	fast, fastSender := connect(h, uuid.New())

	if err := h.Join(slow, projectID); err != nil {
		t.Fatalf("Join slow failed: %v", err)
	}
	if err := h.Join(fast, projectID); err != nil {
		t.Fatalf("Join fast failed: %v", err)
	}

	if err := h.PushToGroup(context.Background(), domain.ProjectGroup(projectID), domain.Payload{Type: domain.PayloadTypeProject}); err != nil {
		t.Fatalf("PushToGroup failed: %v", err)
	}
	if len(fastSender.notifications()) != 1 {
		t.Errorf("fast connection received %d notifications, want 1", len(fastSender.notifications()))
	}
}

func TestHub_SendTestOnlyToCaller(t *testing.T) {
	h := New()
	caller, callerSender := connect(h, uuid.New())
	_, otherSender := connect(h, uuid.New())

	payload := domain.Payload{Type: domain.PayloadTypeSystem, Title: "Test notification"}
	if err := h.SendTest(caller, payload); err != nil {
		t.Fatalf("SendTest failed: %v", err)
	}

	got := callerSender.received()
	if len(got) != 1 || got[0].Type != MsgReceiveSystemNotification {
		t.Fatalf("caller received %v, want one system notification", got)
	}
	if len(otherSender.received()) != 0 {
		t.Errorf("other connection received %d messages", len(otherSender.received()))
	}
}

func TestMessageType(t *testing.T) {
	tests := []struct {
		payloadType string
		want        string
	}{
		{domain.PayloadTypeTask, MsgReceiveTaskNotification},
		{domain.PayloadTypeProject, MsgReceiveProjectNotification},
		{domain.PayloadTypeSystem, MsgReceiveSystemNotification},
		{"unknown", MsgReceiveSystemNotification},
	}
	for _, tt := range tests {
		if got := messageType(tt.payloadType); got != tt.want {
			t.Errorf("messageType(%q) = %q, want %q", tt.payloadType, got, tt.want)
		}
	}
}
