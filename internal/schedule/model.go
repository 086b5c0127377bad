package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is one doctor's bookable day at one hospital, identified by
// (doctor, date). Slot times are wall-clock times in the single zone the
// server is configured with, never the client's zone.
type Schedule struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time // midnight of the civil date in the schedule zone
	Slots      []TimeSlot
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TimeSlot is a half-open [Start, End) interval. ConsumedBy is the one
// appointment holding the slot; a nil ConsumedBy means the slot is bookable.
type TimeSlot struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Start      time.Time
	End        time.Time
	Price      int64
	ConsumedBy *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s TimeSlot) Available() bool {
	return s.ConsumedBy == nil
}

// Overlaps reports whether two half-open intervals intersect.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// OrphanedSlot is a slot left consumed by an appointment id that no longer
// resolves to any appointment row. These only appear when booking
// compensation failed and are surfaced for manual reconciliation.
type OrphanedSlot struct {
	SlotID     uuid.UUID
	ConsumedBy uuid.UUID
	Start      time.Time
	End        time.Time
}
