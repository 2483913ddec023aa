package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskflow/notify/internal/domain"
)

// TokenVerifier resolves a bearer credential to a verified identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Handler upgrades authenticated HTTP requests to hub connections. An
// unauthenticated handshake is rejected with 401 before any hub state is
// created.
type Handler struct {
	hub        *Hub
	verifier   TokenVerifier
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(h *Hub, verifier TokenVerifier) *Handler {
	return &Handler{
		hub:      h,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sendBuffer: DefaultSendBuffer,
	}
}

// WithSendBuffer overrides the per-connection outbound queue size.
func (h *Handler) WithSendBuffer(n int) *Handler {
	h.sendBuffer = n
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeAuthError(w, "missing bearer token")
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		log.Printf("hub: handshake rejected: %v", err)
		writeAuthError(w, "invalid bearer token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("hub: upgrade failed user=%s: %v", identity.UserID, err)
		return
	}

	conn := newConn(uuid.New(), identity, ws, h.hub, h.sendBuffer)
	h.hub.Connect(conn.id, identity, conn)
	go conn.writePump()
	go conn.readPump()
}

// bearerToken extracts the credential from the Authorization header, or
// from the access_token query parameter for browser websocket clients that
// cannot set headers.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
