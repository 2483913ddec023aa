package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskflow/notify/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// DefaultSendBuffer is the per-connection outbound queue size. A client
// that falls this far behind starts losing messages rather than blocking
// pushes to everyone else.
const DefaultSendBuffer = 32

// ErrSendBufferFull is returned by Send when the outbound buffer is full.
var ErrSendBufferFull = errors.New("hub: send buffer full")

// ErrConnectionClosed is returned by Send after the connection shut down.
var ErrConnectionClosed = errors.New("hub: connection closed")

// Conn wraps one websocket connection. Reads and writes each run on their
// own goroutine; the hub only ever touches the buffered send queue.
type Conn struct {
	id       uuid.UUID
	identity domain.Identity
	ws       *websocket.Conn
	hub      *Hub
	send     chan ServerMessage
	done     chan struct{}
	once     sync.Once
}

func newConn(id uuid.UUID, identity domain.Identity, ws *websocket.Conn, h *Hub, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Conn{
		id:       id,
		identity: identity,
		ws:       ws,
		hub:      h,
		send:     make(chan ServerMessage, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Send enqueues a message for the client. It never blocks.
func (c *Conn) Send(msg ServerMessage) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// readPump consumes client operations until the connection errors or
// closes, then tears down hub state for this connection.
func (c *Conn) readPump() {
	defer func() {
		c.close()
		c.hub.Disconnect(c.id)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("hub: conn=%s read error: %v", c.id, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("hub: conn=%s malformed message: %v", c.id, err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Conn) handle(msg ClientMessage) {
	switch msg.Type {
	case OpJoinProjectGroup:
		projectID, err := uuid.Parse(msg.ProjectID)
		if err != nil {
			log.Printf("hub: conn=%s join with bad project id %q", c.id, msg.ProjectID)
			return
		}
		if err := c.hub.Join(c.id, projectID); err != nil {
			log.Printf("hub: conn=%s join failed: %v", c.id, err)
		}

	case OpLeaveProjectGroup:
		projectID, err := uuid.Parse(msg.ProjectID)
		if err != nil {
			log.Printf("hub: conn=%s leave with bad project id %q", c.id, msg.ProjectID)
			return
		}
		if err := c.hub.Leave(c.id, projectID); err != nil {
			log.Printf("hub: conn=%s leave failed: %v", c.id, err)
		}

	case OpSendTestNotification:
		p := domain.Payload{
			Type:      domain.PayloadTypeSystem,
			Title:     "Test notification",
			Message:   "Hello " + c.identity.Name + ", your connection works.",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.hub.SendTest(c.id, p); err != nil {
			log.Printf("hub: conn=%s test notification failed: %v", c.id, err)
		}

	default:
		log.Printf("hub: conn=%s unknown operation %q", c.id, msg.Type)
	}
}

// writePump flushes the send queue and keeps the connection alive with
// pings. It exits when the queue closes, a write fails, or readPump
// signals shutdown.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Printf("hub: conn=%s write error: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}
