package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeRepository struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Appointment
	events []EventLog
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byID: make(map[uuid.UUID]*Appointment)}
}

func (r *fakeRepository) Insert(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.SlotID == appt.SlotID && existing.Status != StatusCancelled {
			return nil, ErrDuplicateSlot
		}
	}

	copied := *appt
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	r.byID[appt.ID] = &copied
	out := copied
	return &out, nil
}

func (r *fakeRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (r *fakeRepository) GetActiveForSlot(_ context.Context, slotID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, appt := range r.byID {
		if appt.SlotID == slotID && appt.Status != StatusCancelled {
			out := *appt
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok || appt.Status != from {
		return nil, ErrNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	out := *appt
	return &out, nil
}

func (r *fakeRepository) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, appt := range r.byID {
		if appt.HospitalID == hospitalID {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *fakeRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, appt := range r.byID {
		if appt.DoctorID == doctorID {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *fakeRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newTestStore() (*Store, *fakeRepository) {
	repo := newFakeRepository()
	return NewStore(repo, zerolog.Nop()), repo
}

func sampleAppointment() Appointment {
	return Appointment{
		ID:              uuid.New(),
		PatientRecordID: uuid.New(),
		PatientName:     "Jane Doe",
		PatientPhone:    "09123456789",
		DoctorID:        uuid.New(),
		HospitalID:      uuid.New(),
		SlotID:          uuid.New(),
		Date:            time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Price:           100000,
	}
}

func TestCreate_StartsBooked(t *testing.T) {
	store, _ := newTestStore()

	appt := sampleAppointment()
	appt.Status = StatusCompleted // caller cannot smuggle a status in

	created, err := store.Create(context.Background(), appt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusBooked {
		t.Fatalf("expected status booked, got %s", created.Status)
	}
}

func TestCreate_RejectsDuplicateSlot(t *testing.T) {
	store, _ := newTestStore()

	first := sampleAppointment()
	if _, err := store.Create(context.Background(), first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := sampleAppointment()
	second.SlotID = first.SlotID
	if _, err := store.Create(context.Background(), second); !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("expected ErrDuplicateSlot, got %v", err)
	}
}

func TestCreate_AllowsSlotAfterCancellation(t *testing.T) {
	store, _ := newTestStore()

	first := sampleAppointment()
	created, err := store.Create(context.Background(), first)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := store.Transition(context.Background(), created.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second := sampleAppointment()
	second.SlotID = first.SlotID
	if _, err := store.Create(context.Background(), second); err != nil {
		t.Fatalf("expected rebooking of cancelled slot to succeed, got %v", err)
	}
}

func TestTransition_ValidEdges(t *testing.T) {
	for _, target := range []Status{StatusCompleted, StatusCancelled} {
		store, _ := newTestStore()

		created, err := store.Create(context.Background(), sampleAppointment())
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		updated, err := store.Transition(context.Background(), created.ID, target)
		if err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		if updated.Status != target {
			t.Fatalf("expected status %s, got %s", target, updated.Status)
		}
	}
}

func TestTransition_TerminalStatesAreClosed(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		store, _ := newTestStore()

		created, err := store.Create(context.Background(), sampleAppointment())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := store.Transition(context.Background(), created.ID, terminal); err != nil {
			t.Fatalf("first transition: %v", err)
		}

		for _, target := range []Status{StatusBooked, StatusCompleted, StatusCancelled} {
			_, err := store.Transition(context.Background(), created.ID, target)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition for %s→%s, got %v", terminal, target, err)
			}
		}

		// Status unchanged after the rejected attempts.
		current, err := store.Get(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if current.Status != terminal {
			t.Fatalf("expected status still %s, got %s", terminal, current.Status)
		}
	}
}

func TestTransition_ToBookedRejected(t *testing.T) {
	store, _ := newTestStore()

	created, err := store.Create(context.Background(), sampleAppointment())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Transition(context.Background(), created.ID, StatusBooked); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_UnknownAppointment(t *testing.T) {
	store, _ := newTestStore()

	if _, err := store.Transition(context.Background(), uuid.New(), StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByHospital_Filter(t *testing.T) {
	store, _ := newTestStore()
	hospitalID := uuid.New()

	names := []string{"Nguyễn Văn An", "Trần Thị Bích", "John Smith"}
	for _, name := range names {
		appt := sampleAppointment()
		appt.HospitalID = hospitalID
		appt.PatientName = name
		if _, err := store.Create(context.Background(), appt); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	// Accent-insensitive: plain ASCII query matches the accented name.
	got, err := store.ListByHospital(context.Background(), hospitalID, "nguyen")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].PatientName != "Nguyễn Văn An" {
		t.Fatalf("expected the accented name to match, got %v", got)
	}

	// Phone substring also matches.
	got, err = store.ListByHospital(context.Background(), hospitalID, "0912")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 by phone, got %d", len(got))
	}

	// Empty filter returns everything.
	got, err = store.ListByHospital(context.Background(), hospitalID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
}
