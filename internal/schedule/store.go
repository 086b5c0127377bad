package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOverlap      = errors.New("time slots overlap")
	ErrPastDate     = errors.New("date is in the past")
	ErrInvalidRange = errors.New("end time must be after start time")
	ErrNoSlots      = errors.New("schedule needs at least one slot")
)

// SlotInput is a proposed slot for a new schedule.
type SlotInput struct {
	Start time.Time
	End   time.Time
	Price int64
}

// Store is the slot store: the ground truth for what times a doctor is
// bookable.
type Store struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

func NewStore(repo Repository, loc *time.Location) *Store {
	return &Store{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

func (s *Store) Location() *time.Location {
	return s.loc
}

// CreateSchedule validates and persists a doctor's slots for one date.
// Slots must be pairwise non-overlapping half-open intervals and the date
// must not precede the current server date in the schedule zone.
func (s *Store) CreateSchedule(ctx context.Context, hospitalID, doctorID uuid.UUID, date time.Time, slots []SlotInput) (*Schedule, error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}

	today := Midnight(s.now().In(s.loc))
	if date.Before(today) {
		return nil, ErrPastDate
	}

	proposed := make([]TimeSlot, len(slots))
	for i, in := range slots {
		if !in.End.After(in.Start) {
			return nil, ErrInvalidRange
		}
		proposed[i] = TimeSlot{
			ID:    uuid.New(),
			Start: in.Start,
			End:   in.End,
			Price: in.Price,
		}
	}

	sort.Slice(proposed, func(i, j int) bool {
		return proposed[i].Start.Before(proposed[j].Start)
	})
	for i := 1; i < len(proposed); i++ {
		if proposed[i-1].Overlaps(proposed[i]) {
			return nil, ErrOverlap
		}
	}

	sched := &Schedule{
		ID:         uuid.New(),
		HospitalID: hospitalID,
		DoctorID:   doctorID,
		Date:       date,
		Slots:      proposed,
	}

	if err := s.repo.InsertSchedule(ctx, sched); err != nil {
		if errors.Is(err, ErrScheduleExists) {
			return nil, err
		}
		return nil, fmt.Errorf("persist schedule: %w", err)
	}

	return sched, nil
}

func (s *Store) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Schedule, error) {
	return s.repo.GetSchedule(ctx, doctorID, date)
}

func (s *Store) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]Schedule, error) {
	scheds, err := s.repo.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return scheds, nil
}

// FindAvailableSlot resolves a slot scoped to (doctor, date) and verifies no
// appointment holds it yet.
func (s *Store) FindAvailableSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := s.repo.FindSlot(ctx, doctorID, date, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.Available() {
		return nil, ErrSlotAlreadyBooked
	}
	return slot, nil
}

func (s *Store) MarkConsumed(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	return s.repo.MarkConsumed(ctx, slotID, appointmentID)
}

func (s *Store) Release(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	return s.repo.Release(ctx, slotID, appointmentID)
}

func (s *Store) FindOrphanedSlots(ctx context.Context) ([]OrphanedSlot, error) {
	return s.repo.FindOrphanedSlots(ctx)
}

func (s *Store) ReleaseCancelledHolds(ctx context.Context) (int64, error) {
	return s.repo.ReleaseCancelledHolds(ctx)
}

// Midnight truncates t to the start of its civil day, keeping the location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD civil date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseClock combines a civil date with an HH:MM wall-clock time in the
// date's location.
func ParseClock(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}
