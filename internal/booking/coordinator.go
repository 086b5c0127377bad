// Package booking is the only writer path: it validates and commits a
// booking or status change against the slot store and the appointment store
// as one unit, then emits the notification event.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/scheduling/internal/appointment"
	"github.com/clinicdesk/scheduling/internal/notify"
	redisclient "github.com/clinicdesk/scheduling/internal/redis"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

var ErrSlotBusy = errors.New("slot is currently being booked, please retry")

// SlotStore is the slice of the slot store the coordinator drives.
type SlotStore interface {
	FindAvailableSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID) (*schedule.TimeSlot, error)
	MarkConsumed(ctx context.Context, slotID, appointmentID uuid.UUID) error
	Release(ctx context.Context, slotID, appointmentID uuid.UUID) error
}

// AppointmentStore is the slice of the appointment store the coordinator
// drives.
type AppointmentStore interface {
	Create(ctx context.Context, appt appointment.Appointment) (*appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, target appointment.Status) (*appointment.Appointment, error)
}

// Publisher receives committed events for fan-out. Delivery is fire and
// forget; publish failures never reach the booking caller.
type Publisher interface {
	Publish(ev notify.Event)
}

type BookRequest struct {
	DoctorID        uuid.UUID
	HospitalID      uuid.UUID
	Date            time.Time
	SlotID          uuid.UUID
	PatientRecordID uuid.UUID
	PatientName     string
	PatientPhone    string
}

type Coordinator struct {
	slots     SlotStore
	appts     AppointmentStore
	locker    redisclient.Locker
	publisher Publisher
	log       zerolog.Logger
}

func NewCoordinator(slots SlotStore, appts AppointmentStore, locker redisclient.Locker, publisher Publisher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		slots:     slots,
		appts:     appts,
		locker:    locker,
		publisher: publisher,
		log:       log.With().Str("component", "booking-coordinator").Logger(),
	}
}

// Book runs the two-step saga: consume the slot, then create the
// appointment. The slot consumption compare-and-set is the double-booking
// guard; the per-slot lock only keeps concurrent attempts from churning.
// If the appointment write fails after the slot is held, the hold is rolled
// back; if that rollback also fails, the slot is flagged for manual
// reconciliation and the caller sees a generic failure.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (*appointment.Appointment, error) {
	var created *appointment.Appointment
	var booked *schedule.TimeSlot

	err := c.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		slot, err := c.slots.FindAvailableSlot(lockCtx, req.DoctorID, req.Date, req.SlotID)
		if err != nil {
			return err
		}

		apptID := uuid.New()

		if err := c.slots.MarkConsumed(lockCtx, slot.ID, apptID); err != nil {
			// Nothing persisted yet; safe for the caller to retry.
			return err
		}

		appt, err := c.appts.Create(lockCtx, appointment.Appointment{
			ID:              apptID,
			PatientRecordID: req.PatientRecordID,
			PatientName:     req.PatientName,
			PatientPhone:    req.PatientPhone,
			DoctorID:        req.DoctorID,
			HospitalID:      req.HospitalID,
			SlotID:          slot.ID,
			Date:            req.Date,
			Price:           slot.Price,
		})
		if err != nil {
			c.compensate(lockCtx, slot.ID, apptID, err)
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		booked = slot
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	c.publisher.Publish(newAppointmentEvent(created, booked))

	return created, nil
}

// compensate rolls the slot hold back after a failed appointment write.
func (c *Coordinator) compensate(ctx context.Context, slotID, apptID uuid.UUID, cause error) {
	if relErr := c.slots.Release(ctx, slotID, apptID); relErr != nil {
		// The one operator-visible outcome: slot held with no appointment.
		// The reconcile worker picks these up.
		c.log.Error().
			Str("slot_id", slotID.String()).
			Str("appointment_id", apptID.String()).
			AnErr("create_error", cause).
			AnErr("release_error", relErr).
			Msg("compensation failed, slot needs manual reconciliation")
	}
}

// UpdateStatus applies a Booked→Completed or Booked→Cancelled transition.
// A cancellation frees the slot so it becomes bookable again.
func (c *Coordinator) UpdateStatus(ctx context.Context, id uuid.UUID, target appointment.Status) (*appointment.Appointment, error) {
	appt, err := c.appts.Transition(ctx, id, target)
	if err != nil {
		return nil, err
	}

	if target == appointment.StatusCancelled {
		if err := c.slots.Release(ctx, appt.SlotID, appt.ID); err != nil {
			// The transition is already committed; the reconcile worker
			// releases cancelled holds it finds.
			c.log.Error().
				Str("slot_id", appt.SlotID.String()).
				Str("appointment_id", appt.ID.String()).
				Err(err).
				Msg("release after cancel failed, slot needs reconciliation")
		}
	}

	c.publisher.Publish(statusChangedEvent(appt))

	return appt, nil
}

func newAppointmentEvent(appt *appointment.Appointment, slot *schedule.TimeSlot) notify.Event {
	summary := summarize(appt)
	summary.SlotStart = &slot.Start
	summary.SlotEnd = &slot.End

	return notify.Event{
		Type:        notify.TypeNewAppointment,
		DoctorID:    appt.DoctorID,
		Appointment: summary,
		OccurredAt:  time.Now(),
	}
}

func statusChangedEvent(appt *appointment.Appointment) notify.Event {
	return notify.Event{
		Type:        notify.TypeStatusChanged,
		DoctorID:    appt.DoctorID,
		Appointment: summarize(appt),
		OccurredAt:  time.Now(),
	}
}

func summarize(appt *appointment.Appointment) notify.AppointmentSummary {
	return notify.AppointmentSummary{
		ID:          appt.ID,
		PatientName: appt.PatientName,
		Date:        appt.Date.Format("2006-01-02"),
		Price:       appt.Price,
		Status:      string(appt.Status),
	}
}
