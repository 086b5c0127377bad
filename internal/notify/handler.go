package notify

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ClientMessage is an inbound room-membership request.
type ClientMessage struct {
	Action   string `json:"action"` // join-doctor-room | leave-doctor-room
	DoctorID string `json:"doctorId"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the console fronts this behind its own origin; tighten in production
	},
}

// Handler upgrades HTTP connections to websockets and keeps the hub's
// registrations in step with the connection lifecycle.
type Handler struct {
	hub *Hub
	log zerolog.Logger
}

func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		log: log.With().Str("component", "notify-handler").Logger(),
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := NewSession(uuid.NewString(), &gorillaConn{ws})
	h.hub.Register(sess)

	go h.writePump(sess)
	go h.readPump(sess)
}

// readPump consumes join/leave messages until the connection drops, then
// unregisters the session from every room.
func (h *Handler) readPump(sess *Session) {
	defer func() {
		h.hub.Unregister(sess)
		_ = sess.conn.Close()
	}()

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // ignore malformed messages
		}

		doctorID, err := uuid.Parse(msg.DoctorID)
		if err != nil {
			continue
		}

		switch msg.Action {
		case "join-doctor-room":
			h.hub.Join(sess, doctorID)
		case "leave-doctor-room":
			h.hub.Leave(sess, doctorID)
		}
	}
}

// writePump drains the session's send channel onto the wire. A write error
// ends the pump; readPump's exit handles the unregister.
func (h *Handler) writePump(sess *Session) {
	for message := range sess.Send {
		if err := sess.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("session write failed")
			_ = sess.conn.Close()
			return
		}
	}
	_ = sess.conn.Close()
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return c.conn.WriteMessage(messageType, data)
}

func (c *gorillaConn) Close() error {
	return c.conn.Close()
}
