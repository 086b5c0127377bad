package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrScheduleExists    = errors.New("schedule already exists for this doctor and date")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrSlotNotHeld       = errors.New("slot is not held by this appointment")
)

// Repository contains all DB interactions needed by the slot store.
type Repository interface {
	InsertSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Schedule, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]Schedule, error)

	// FindSlot resolves a slot by id scoped to a doctor's schedule for a date.
	FindSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID) (*TimeSlot, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error)

	// MarkConsumed is the compare-and-set that prevents double booking: it
	// succeeds only while consumed_by_appointment_id is NULL.
	MarkConsumed(ctx context.Context, slotID, appointmentID uuid.UUID) error

	// Release clears consumption, conditional on the slot being held by
	// appointmentID. Used by saga compensation and by cancellation.
	Release(ctx context.Context, slotID, appointmentID uuid.UUID) error

	// Reconciliation scans for the worker.
	FindOrphanedSlots(ctx context.Context) ([]OrphanedSlot, error)
	ReleaseCancelledHolds(ctx context.Context) (int64, error)
}
