// Package sessioncache keeps a connected client's local view of
// appointments in step with the server: REST fetches replace the list
// wholesale, pushed events merge into it without another fetch.
package sessioncache

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling/internal/appointment"
	"github.com/clinicdesk/scheduling/internal/notify"
)

type Cache struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]appointment.Appointment
}

func New() *Cache {
	return &Cache{
		byID: make(map[uuid.UUID]appointment.Appointment),
	}
}

// ReplaceAll swaps the whole cache for a fresh REST snapshot.
func (c *Cache) ReplaceAll(appts []appointment.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[uuid.UUID]appointment.Appointment, len(appts))
	for _, a := range appts {
		c.byID[a.ID] = a
	}
}

// Apply merges a pushed event by appointment id. Events for appointments
// the cache has never seen are upserts, so out-of-order delivery relative
// to an in-flight fetch cannot fail; re-applying the same event is a no-op
// beyond rewriting identical fields.
func (c *Cache) Apply(ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byID[ev.Appointment.ID]
	if !ok {
		c.byID[ev.Appointment.ID] = fromSummary(ev)
		return
	}

	existing.Status = appointment.Status(ev.Appointment.Status)
	existing.UpdatedAt = ev.OccurredAt
	c.byID[ev.Appointment.ID] = existing
}

// Snapshot returns a copy of the cached appointments in display order:
// newest date first, ties broken by creation time descending.
func (c *Cache) Snapshot() []appointment.Appointment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]appointment.Appointment, 0, len(c.byID))
	for _, a := range c.byID {
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func fromSummary(ev notify.Event) appointment.Appointment {
	date, err := time.Parse("2006-01-02", ev.Appointment.Date)
	if err != nil {
		date = ev.OccurredAt
	}

	return appointment.Appointment{
		ID:          ev.Appointment.ID,
		PatientName: ev.Appointment.PatientName,
		DoctorID:    ev.DoctorID,
		Date:        date,
		Price:       ev.Appointment.Price,
		Status:      appointment.Status(ev.Appointment.Status),
		CreatedAt:   ev.OccurredAt,
		UpdatedAt:   ev.OccurredAt,
	}
}
