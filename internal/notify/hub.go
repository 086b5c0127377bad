// Package notify delivers booking events to the live sessions of the
// affected doctor. Delivery is best effort and at most once: a slow or dead
// session is skipped, never waited on.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn abstracts a websocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live client connection. A session may sit in several
// doctor rooms (a hospital admin watching multiple doctors), and one doctor
// may have several sessions (multiple tabs).
type Session struct {
	ID    string
	Send  chan []byte
	conn  Conn
	rooms []uuid.UUID
}

func NewSession(id string, conn Conn) *Session {
	return &Session{
		ID:   id,
		Send: make(chan []byte, 256),
		conn: conn,
	}
}

// Hub maps doctor ids to the set of live sessions in that doctor's room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Session]struct{}
	all   map[*Session]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*Session]struct{}),
		all:   make(map[*Session]struct{}),
		log:   log.With().Str("component", "notify-hub").Logger(),
	}
}

// Register adds a connected session to the hub. The session joins no rooms
// until it sends join-doctor-room.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[s] = struct{}{}
}

// Unregister removes a session from every room it joined and closes its
// send channel. Called on disconnect.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[s]; !ok {
		return
	}

	for _, doctorID := range s.rooms {
		if sessions, ok := h.rooms[doctorID]; ok {
			delete(sessions, s)
			if len(sessions) == 0 {
				delete(h.rooms, doctorID)
			}
		}
	}

	delete(h.all, s)
	close(s.Send)
}

// Join adds the session to a doctor's room. Joining the same room twice is
// a no-op.
func (h *Hub) Join(s *Session, doctorID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[s]; !ok {
		return
	}

	if h.rooms[doctorID] == nil {
		h.rooms[doctorID] = make(map[*Session]struct{})
	}
	if _, ok := h.rooms[doctorID][s]; ok {
		return
	}
	h.rooms[doctorID][s] = struct{}{}
	s.rooms = append(s.rooms, doctorID)
}

// Leave removes the session from a doctor's room.
func (h *Hub) Leave(s *Session, doctorID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.rooms[doctorID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.rooms, doctorID)
		}
	}

	remaining := s.rooms[:0]
	for _, id := range s.rooms {
		if id != doctorID {
			remaining = append(remaining, id)
		}
	}
	s.rooms = remaining
}

// Publish fans the event out to every session in the affected doctor's
// room. Enqueue is synchronous, delivery is not; a full session buffer
// drops the event for that session only.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[ev.DoctorID] {
		select {
		case s.Send <- data:
		default:
			h.log.Warn().
				Str("session_id", s.ID).
				Str("doctor_id", ev.DoctorID.String()).
				Msg("session buffer full, event dropped")
		}
	}
}

// SessionCount returns the total number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of sessions in a doctor's room.
func (h *Hub) RoomCount(doctorID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[doctorID])
}
