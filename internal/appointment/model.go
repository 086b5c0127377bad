package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes the full state machine: Booked may move to
// Completed or Cancelled, nothing else moves anywhere.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusBooked && (target == StatusCompleted || target == StatusCancelled)
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusBooked, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Appointment struct {
	ID              uuid.UUID
	PatientRecordID uuid.UUID
	PatientName     string
	PatientPhone    string
	DoctorID        uuid.UUID
	HospitalID      uuid.UUID
	SlotID          uuid.UUID
	Date            time.Time // civil date of the slot, midnight in the schedule zone
	Price           int64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventLog rows are an append-only audit trail of booking and status
// changes. Inserts are best effort and never fail the operation they record.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
