package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("appointment not found")
	ErrDuplicateSlot = errors.New("slot is already referenced by a non-cancelled appointment")
)

// Repository contains all DB interactions needed by the appointment store.
type Repository interface {
	Insert(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// GetActiveForSlot returns the non-cancelled appointment holding slotID,
	// or ErrNotFound.
	GetActiveForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)

	// UpdateStatus moves id from one status to another in a single
	// conditional update; zero matched rows returns ErrNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
