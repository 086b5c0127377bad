package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/scheduling/internal/appointment"
	"github.com/clinicdesk/scheduling/internal/booking"
	"github.com/clinicdesk/scheduling/internal/notify"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

// In-memory repositories backing the real stores, so handler tests run the
// full validation and saga paths without postgres.

type memScheduleRepo struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*schedule.Schedule
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{schedules: make(map[uuid.UUID]*schedule.Schedule)}
}

func (r *memScheduleRepo) InsertSchedule(_ context.Context, sched *schedule.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.schedules {
		if existing.DoctorID == sched.DoctorID && existing.Date.Equal(sched.Date) {
			return schedule.ErrScheduleExists
		}
	}
	copied := *sched
	copied.Slots = append([]schedule.TimeSlot(nil), sched.Slots...)
	r.schedules[sched.ID] = &copied
	return nil
}

func (r *memScheduleRepo) GetSchedule(_ context.Context, doctorID uuid.UUID, date time.Time) (*schedule.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.schedules {
		if s.DoctorID == doctorID && s.Date.Equal(date) {
			out := *s
			return &out, nil
		}
	}
	return nil, schedule.ErrScheduleNotFound
}

func (r *memScheduleRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]schedule.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schedule.Schedule
	for _, s := range r.schedules {
		if s.HospitalID == hospitalID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memScheduleRepo) FindSlot(_ context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID) (*schedule.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.schedules {
		if s.DoctorID != doctorID || !s.Date.Equal(date) {
			continue
		}
		for i := range s.Slots {
			if s.Slots[i].ID == slotID {
				out := s.Slots[i]
				return &out, nil
			}
		}
	}
	return nil, schedule.ErrSlotNotFound
}

func (r *memScheduleRepo) GetSlot(_ context.Context, slotID uuid.UUID) (*schedule.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot := r.findSlotLocked(slotID); slot != nil {
		out := *slot
		return &out, nil
	}
	return nil, schedule.ErrSlotNotFound
}

func (r *memScheduleRepo) MarkConsumed(_ context.Context, slotID, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.findSlotLocked(slotID)
	if slot == nil {
		return schedule.ErrSlotNotFound
	}
	if slot.ConsumedBy != nil {
		return schedule.ErrSlotAlreadyBooked
	}
	held := appointmentID
	slot.ConsumedBy = &held
	return nil
}

func (r *memScheduleRepo) Release(_ context.Context, slotID, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.findSlotLocked(slotID)
	if slot == nil {
		return schedule.ErrSlotNotFound
	}
	if slot.ConsumedBy == nil || *slot.ConsumedBy != appointmentID {
		return schedule.ErrSlotNotHeld
	}
	slot.ConsumedBy = nil
	return nil
}

func (r *memScheduleRepo) FindOrphanedSlots(context.Context) ([]schedule.OrphanedSlot, error) {
	return nil, nil
}

func (r *memScheduleRepo) ReleaseCancelledHolds(context.Context) (int64, error) {
	return 0, nil
}

func (r *memScheduleRepo) findSlotLocked(slotID uuid.UUID) *schedule.TimeSlot {
	for _, s := range r.schedules {
		for i := range s.Slots {
			if s.Slots[i].ID == slotID {
				return &s.Slots[i]
			}
		}
	}
	return nil
}

type memAppointmentRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*appointment.Appointment
}

func newMemAppointmentRepo() *memAppointmentRepo {
	return &memAppointmentRepo{byID: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *memAppointmentRepo) Insert(_ context.Context, appt *appointment.Appointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.SlotID == appt.SlotID && existing.Status != appointment.StatusCancelled {
			return nil, appointment.ErrDuplicateSlot
		}
	}

	copied := *appt
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	r.byID[copied.ID] = &copied
	out := copied
	return &out, nil
}

func (r *memAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (r *memAppointmentRepo) GetActiveForSlot(_ context.Context, slotID uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, appt := range r.byID {
		if appt.SlotID == slotID && appt.Status != appointment.StatusCancelled {
			out := *appt
			return &out, nil
		}
	}
	return nil, appointment.ErrNotFound
}

func (r *memAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok || appt.Status != from {
		return nil, appointment.ErrNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	out := *appt
	return &out, nil
}

func (r *memAppointmentRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.Appointment
	for _, appt := range r.byID {
		if appt.HospitalID == hospitalID {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *memAppointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.Appointment
	for _, appt := range r.byID {
		if appt.DoctorID == doctorID {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *memAppointmentRepo) InsertEvent(context.Context, appointment.EventLog) error {
	return nil
}

type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type dropPublisher struct{}

func (dropPublisher) Publish(notify.Event) {}

type testAPI struct {
	router http.Handler
	loc    *time.Location
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := zerolog.Nop()
	schedules := schedule.NewStore(newMemScheduleRepo(), time.UTC)
	appointments := appointment.NewStore(newMemAppointmentRepo(), log)
	coord := booking.NewCoordinator(schedules, appointments, passLocker{}, dropPublisher{}, log)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Post("/schedule", createScheduleHandler(schedules, log))
	r.Get("/schedule", listSchedulesHandler(schedules, log))
	r.Post("/appointment", createAppointmentHandler(coord, schedules.Location(), log))
	r.Put("/appointment/{id}/status", updateStatusHandler(coord, log))
	r.Get("/appointment", listAppointmentsHandler(appointments, log))

	return &testAPI{router: r, loc: time.UTC}
}

func (a *testAPI) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
}

func scheduleRequest(hospitalID, doctorID uuid.UUID, slots ...SlotPayload) CreateScheduleRequest {
	return CreateScheduleRequest{
		HospitalID: hospitalID.String(),
		DoctorID:   doctorID.String(),
		Date:       tomorrow(),
		Slots:      slots,
	}
}

func TestCreateSchedule(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/schedule", scheduleRequest(uuid.New(), uuid.New(),
		SlotPayload{Start: "09:00", End: "09:30", Price: 100000},
		SlotPayload{Start: "09:30", End: "10:00", Price: 100000},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ScheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(resp.Slots))
	}
	for _, s := range resp.Slots {
		if !s.Available {
			t.Fatal("expected fresh slots to be available")
		}
	}
}

func TestCreateSchedule_OverlapConflict(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/schedule", scheduleRequest(uuid.New(), uuid.New(),
		SlotPayload{Start: "09:00", End: "09:45", Price: 100000},
		SlotPayload{Start: "09:30", End: "10:00", Price: 100000},
	))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error != "overlapping_slots" {
		t.Fatalf("expected overlapping_slots, got %s", resp.Error)
	}
}

func TestCreateSchedule_PastDate(t *testing.T) {
	api := newTestAPI(t)

	req := scheduleRequest(uuid.New(), uuid.New(), SlotPayload{Start: "09:00", End: "09:30", Price: 100000})
	req.Date = "2020-01-01"

	rec := api.do(t, http.MethodPost, "/schedule", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "past_date" {
		t.Fatalf("expected past_date, got %s", resp.Error)
	}
}

func TestCreateSchedule_DuplicateDay(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID := uuid.New(), uuid.New()

	req := scheduleRequest(hospitalID, doctorID, SlotPayload{Start: "09:00", End: "09:30", Price: 100000})
	if rec := api.do(t, http.MethodPost, "/schedule", req); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rec.Code)
	}

	rec := api.do(t, http.MethodPost, "/schedule", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "schedule_exists" {
		t.Fatalf("expected schedule_exists, got %s", resp.Error)
	}
}

// bookSlot publishes a schedule with one slot and returns the ids needed to
// book it.
func (a *testAPI) seedSlot(t *testing.T) (hospitalID, doctorID, slotID uuid.UUID) {
	t.Helper()
	hospitalID, doctorID = uuid.New(), uuid.New()

	rec := a.do(t, http.MethodPost, "/schedule", scheduleRequest(hospitalID, doctorID,
		SlotPayload{Start: "09:00", End: "09:30", Price: 100000},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed schedule: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ScheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	return hospitalID, doctorID, resp.Slots[0].ID
}

func appointmentRequest(hospitalID, doctorID, slotID uuid.UUID) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		DoctorID:        doctorID.String(),
		HospitalID:      hospitalID.String(),
		SlotID:          slotID.String(),
		PatientRecordID: uuid.NewString(),
		PatientName:     "Nguyễn Văn An",
		PatientPhone:    "0912345678",
		Date:            tomorrow(),
	}
}

func TestCreateAppointment(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, slotID := api.seedSlot(t)

	rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "booked" {
		t.Fatalf("expected booked, got %s", resp.Status)
	}
	if resp.Price != 100000 {
		t.Fatalf("expected price from slot, got %d", resp.Price)
	}

	// The slot now lists as unavailable.
	list := api.do(t, http.MethodGet, "/schedule?hospitalId="+hospitalID.String(), nil)
	var scheds []ScheduleResponse
	if err := json.Unmarshal(list.Body.Bytes(), &scheds); err != nil {
		t.Fatalf("decode schedules: %v", err)
	}
	if len(scheds) != 1 || scheds[0].Slots[0].Available {
		t.Fatal("expected booked slot to show unavailable")
	}
}

func TestCreateAppointment_SlotConflict(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, slotID := api.seedSlot(t)

	if rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID)); rec.Code != http.StatusCreated {
		t.Fatalf("first booking: expected 201, got %d", rec.Code)
	}

	rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error != "slot_already_booked" {
		t.Fatalf("expected slot_already_booked, got %s", resp.Error)
	}
}

func TestCreateAppointment_UnknownSlot(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, _ := api.seedSlot(t)

	rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, uuid.New()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "slot_not_found" {
		t.Fatalf("expected slot_not_found, got %s", resp.Error)
	}
}

func TestCreateAppointment_BadBody(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/appointment", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatus_CancelThenRebook(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, slotID := api.seedSlot(t)

	rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking: expected 201, got %d", rec.Code)
	}
	var appt AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}

	rec = api.do(t, http.MethodPut, fmt.Sprintf("/appointment/%s/status", appt.ID), UpdateStatusRequest{Status: "Cancelled"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("rebooking after cancel: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, slotID := api.seedSlot(t)

	rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID))
	var appt AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}

	if rec := api.do(t, http.MethodPut, fmt.Sprintf("/appointment/%s/status", appt.ID), UpdateStatusRequest{Status: "Completed"}); rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPut, fmt.Sprintf("/appointment/%s/status", appt.ID), UpdateStatusRequest{Status: "Cancelled"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_status_transition" {
		t.Fatalf("expected invalid_status_transition, got %s", resp.Error)
	}
}

func TestUpdateStatus_RejectsBooked(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPut, fmt.Sprintf("/appointment/%s/status", uuid.New()), UpdateStatusRequest{Status: "Booked"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_status" {
		t.Fatalf("expected invalid_status, got %s", resp.Error)
	}
}

func TestUpdateStatus_UnknownAppointment(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPut, fmt.Sprintf("/appointment/%s/status", uuid.New()), UpdateStatusRequest{Status: "Completed"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "appointment_not_found" {
		t.Fatalf("expected appointment_not_found, got %s", resp.Error)
	}
}

func TestListAppointments_RequiresScope(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/appointment", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "missing_scope" {
		t.Fatalf("expected missing_scope, got %s", resp.Error)
	}
}

func TestListAppointments_FilterByName(t *testing.T) {
	api := newTestAPI(t)
	hospitalID, doctorID, slotID := api.seedSlot(t)

	if rec := api.do(t, http.MethodPost, "/appointment", appointmentRequest(hospitalID, doctorID, slotID)); rec.Code != http.StatusCreated {
		t.Fatalf("booking: expected 201, got %d", rec.Code)
	}

	// Accent-insensitive: ASCII query matches the accented stored name.
	rec := api.do(t, http.MethodGet, "/appointment?hospitalId="+hospitalID.String()+"&q=nguyen", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var appts []AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &appts); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected 1 match, got %d", len(appts))
	}

	rec = api.do(t, http.MethodGet, "/appointment?doctorId="+doctorID.String()+"&q=zzz", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &appts); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("expected no match, got %d", len(appts))
	}
}
