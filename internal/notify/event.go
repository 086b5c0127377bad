package notify

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeNewAppointment = "new-appointment"
	TypeStatusChanged  = "status-changed"
)

// AppointmentSummary is the payload pushed to a doctor's live sessions.
// Slot times are present on new-appointment events only.
type AppointmentSummary struct {
	ID          uuid.UUID  `json:"id"`
	PatientName string     `json:"patientName"`
	Date        string     `json:"date"`
	SlotStart   *time.Time `json:"slotStart,omitempty"`
	SlotEnd     *time.Time `json:"slotEnd,omitempty"`
	Price       int64      `json:"price"`
	Status      string     `json:"status"`
}

// Event is ephemeral: delivered at most once to sessions live at emission
// time, then discarded. There is no replay; offline sessions reconcile via
// their next full REST fetch.
type Event struct {
	Type        string             `json:"type"`
	DoctorID    uuid.UUID          `json:"doctorId"`
	Appointment AppointmentSummary `json:"appointment"`
	OccurredAt  time.Time          `json:"occurredAt"`
}
