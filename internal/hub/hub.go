// Package hub owns the registry of live client connections and the
// real-time push surface. The registry is the only shared mutable state in
// the subsystem: it is mutated exclusively through the four lifecycle
// operations (Connect, Join, Leave, Disconnect) and never exposed for raw
// iteration. The registry is local to this process; clients of another
// instance are reached by that instance's hub.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

// ErrUnknownConnection is returned when an operation names a connection id
// that is not registered, for example after a disconnect raced it.
var ErrUnknownConnection = errors.New("hub: unknown connection")

// Sender is the outbound side of a registered connection. Send must not
// block: implementations enqueue into a bounded buffer and report an error
// when the buffer is full or the connection is gone.
type Sender interface {
	Send(msg ServerMessage) error
}

// MetricsSink records hub metrics. Non-blocking, fire-and-forget.
type MetricsSink interface {
	ConnectionOpened()
	ConnectionClosed()
	GroupMembershipsUpdate(count int)
	PushDropped()
}

type entry struct {
	id       uuid.UUID
	identity domain.Identity
	sender   Sender
	groups   map[string]struct{}
}

// Hub indexes live connections by connection id, user id, and group key.
type Hub struct {
	mu          sync.RWMutex
	conns       map[uuid.UUID]*entry
	users       map[uuid.UUID]map[uuid.UUID]*entry
	groups      map[string]map[uuid.UUID]*entry
	memberships int

	metrics MetricsSink // optional, nil = disabled
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]*entry),
		users:  make(map[uuid.UUID]map[uuid.UUID]*entry),
		groups: make(map[string]map[uuid.UUID]*entry),
	}
}

// WithMetrics attaches a metrics sink to the hub.
func (h *Hub) WithMetrics(sink MetricsSink) *Hub {
	h.metrics = sink
	return h
}

// Connect registers an authenticated connection. Authentication has
// already happened; the hub never sees an unauthenticated peer.
func (h *Hub) Connect(id uuid.UUID, identity domain.Identity, s Sender) {
	h.mu.Lock()
	e := &entry{
		id:       id,
		identity: identity,
		sender:   s,
		groups:   make(map[string]struct{}),
	}
	h.conns[id] = e
	byConn := h.users[identity.UserID]
	if byConn == nil {
		byConn = make(map[uuid.UUID]*entry)
		h.users[identity.UserID] = byConn
	}
	byConn[id] = e
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionOpened()
	}
	log.Printf("hub: connected conn=%s user=%s", id, identity.UserID)
}

// Disconnect removes a connection and every group membership it holds.
// Reconnecting clients start from a clean slate; there is no membership
// replay.
func (h *Hub) Disconnect(id uuid.UUID) {
	h.mu.Lock()
	e, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	if byConn := h.users[e.identity.UserID]; byConn != nil {
		delete(byConn, id)
		if len(byConn) == 0 {
			delete(h.users, e.identity.UserID)
		}
	}
	for group := range e.groups {
		h.dropMembership(e, group)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionClosed()
	}
	log.Printf("hub: disconnected conn=%s user=%s", id, e.identity.UserID)
}

// Join adds the calling connection to a project group and acknowledges.
// Joining a group twice is a no-op beyond the acknowledgement.
func (h *Hub) Join(id uuid.UUID, projectID uuid.UUID) error {
	group := domain.ProjectGroup(projectID)

	h.mu.Lock()
	e, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	if _, member := e.groups[group]; !member {
		e.groups[group] = struct{}{}
		byConn := h.groups[group]
		if byConn == nil {
			byConn = make(map[uuid.UUID]*entry)
			h.groups[group] = byConn
		}
		byConn[id] = e
		h.memberships++
	}
	members := h.memberships
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.GroupMembershipsUpdate(members)
	}
	h.ack(e, ServerMessage{Type: MsgJoinedProjectGroup, ProjectID: projectID.String()})
	return nil
}

// Leave removes the calling connection from a project group and
// acknowledges. Leaving a group never joined is acknowledged all the same.
func (h *Hub) Leave(id uuid.UUID, projectID uuid.UUID) error {
	group := domain.ProjectGroup(projectID)

	h.mu.Lock()
	e, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	if _, member := e.groups[group]; member {
		delete(e.groups, group)
		h.dropMembership(e, group)
	}
	members := h.memberships
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.GroupMembershipsUpdate(members)
	}
	h.ack(e, ServerMessage{Type: MsgLeftProjectGroup, ProjectID: projectID.String()})
	return nil
}

// dropMembership removes e from a group index. Caller holds the lock.
func (h *Hub) dropMembership(e *entry, group string) {
	byConn := h.groups[group]
	if byConn == nil {
		return
	}
	if _, ok := byConn[e.id]; !ok {
		return
	}
	delete(byConn, e.id)
	h.memberships--
	if len(byConn) == 0 {
		delete(h.groups, group)
	}
}

// PushToGroup delivers a payload to every connection currently joined to
// the group. Per-connection failures are logged and counted, never
// propagated; an empty group delivers to no one and is not an error.
func (h *Hub) PushToGroup(ctx context.Context, group string, p domain.Payload) error {
	msg := ServerMessage{Type: messageType(p.Type), Payload: &p}
	for _, e := range h.snapshotGroup(group) {
		h.push(e, msg)
	}
	return nil
}

// PushToUser delivers a payload to every connection mapped to the user,
// covering any number of simultaneous devices.
func (h *Hub) PushToUser(ctx context.Context, userID uuid.UUID, p domain.Payload) error {
	msg := ServerMessage{Type: messageType(p.Type), Payload: &p}
	for _, e := range h.snapshotUser(userID) {
		h.push(e, msg)
	}
	return nil
}

// SendTest pushes a system notification back to the calling connection.
func (h *Hub) SendTest(id uuid.UUID, p domain.Payload) error {
	h.mu.RLock()
	e, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	h.push(e, ServerMessage{Type: MsgReceiveSystemNotification, Payload: &p})
	return nil
}

// Connections reports the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) snapshotGroup(group string) []*entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	byConn := h.groups[group]
	out := make([]*entry, 0, len(byConn))
	for _, e := range byConn {
		out = append(out, e)
	}
	return out
}

func (h *Hub) snapshotUser(userID uuid.UUID) []*entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	byConn := h.users[userID]
	out := make([]*entry, 0, len(byConn))
	for _, e := range byConn {
		out = append(out, e)
	}
	return out
}

func (h *Hub) push(e *entry, msg ServerMessage) {
	if err := e.sender.Send(msg); err != nil {
		if h.metrics != nil {
			h.metrics.PushDropped()
		}
		log.Printf("hub: conn=%s user=%s dropped %s: %v", e.id, e.identity.UserID, msg.Type, err)
	}
}

func (h *Hub) ack(e *entry, msg ServerMessage) {
	h.push(e, msg)
}
