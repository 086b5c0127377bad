package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentBooked = "APPOINTMENT_BOOKED"
	EventStatusChanged     = "APPOINTMENT_STATUS_CHANGED"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Store owns appointment records and enforces the status state machine.
// Every appointment enters as Booked and may move exactly once, to
// Completed or Cancelled.
type Store struct {
	repo Repository
	log  zerolog.Logger
}

func NewStore(repo Repository, log zerolog.Logger) *Store {
	return &Store{
		repo: repo,
		log:  log.With().Str("component", "appointment-store").Logger(),
	}
}

// Create persists a new appointment in Booked status. The duplicate-slot
// guard here is defense in depth beside the slot store's own consumption
// compare-and-set.
func (s *Store) Create(ctx context.Context, appt Appointment) (*Appointment, error) {
	existing, err := s.repo.GetActiveForSlot(ctx, appt.SlotID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check slot occupancy: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateSlot
	}

	appt.Status = StatusBooked
	created, err := s.repo.Insert(ctx, &appt)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"slot_id":   created.SlotID.String(),
		"doctor_id": created.DoctorID.String(),
		"date":      created.Date.Format("2006-01-02"),
	})

	return created, nil
}

// Transition moves an appointment Booked→Completed or Booked→Cancelled.
// Any other requested edge is rejected with ErrInvalidTransition and leaves
// the row untouched.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, target Status) (*Appointment, error) {
	if !StatusBooked.CanTransitionTo(target) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusBooked, target)
	if err == nil {
		s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
			"from": string(StatusBooked),
			"to":   string(target),
		})
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	// Zero rows matched: distinguish a missing appointment from one that is
	// already terminal.
	if _, getErr := s.repo.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidTransition
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByHospital returns the hospital's appointments newest-date-first,
// optionally narrowed by a case- and accent-insensitive substring filter on
// patient name or phone.
func (s *Store) ListByHospital(ctx context.Context, hospitalID uuid.UUID, filter string) ([]Appointment, error) {
	appts, err := s.repo.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by hospital: %w", err)
	}
	return applyFilter(appts, filter), nil
}

func (s *Store) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter string) ([]Appointment, error) {
	appts, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return applyFilter(appts, filter), nil
}

func applyFilter(appts []Appointment, q string) []Appointment {
	if q == "" {
		return appts
	}
	filtered := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if matchesFilter(a, q) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func (s *Store) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
