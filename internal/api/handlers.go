package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/scheduling/internal/appointment"
	"github.com/clinicdesk/scheduling/internal/booking"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

func createScheduleHandler(svc *schedule.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		hospitalID, err := uuid.Parse(req.HospitalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospitalId must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := schedule.ParseDate(req.Date, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots := make([]schedule.SlotInput, 0, len(req.Slots))
		for _, s := range req.Slots {
			start, err := schedule.ParseClock(date, s.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_time", "slot start must be HH:MM")
				return
			}
			end, err := schedule.ParseClock(date, s.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_time", "slot end must be HH:MM")
				return
			}
			slots = append(slots, schedule.SlotInput{Start: start, End: end, Price: s.Price})
		}

		sched, err := svc.CreateSchedule(r.Context(), hospitalID, doctorID, date, slots)
		if err != nil {
			handleScheduleError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleResponse(sched))
	}
}

func listSchedulesHandler(svc *schedule.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID, err := uuid.Parse(r.URL.Query().Get("hospitalId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospitalId query parameter must be a valid UUID")
			return
		}

		scheds, err := svc.ListByHospital(r.Context(), hospitalID)
		if err != nil {
			handleInternalError(w, r, logger, err)
			return
		}

		resp := make([]ScheduleResponse, 0, len(scheds))
		for i := range scheds {
			resp = append(resp, toScheduleResponse(&scheds[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(coord *booking.Coordinator, loc *time.Location, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		hospitalID, err := uuid.Parse(req.HospitalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospitalId must be a valid UUID")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		patientRecordID, err := uuid.Parse(req.PatientRecordID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_record_id", "patientRecordId must be a valid UUID")
			return
		}

		date, err := schedule.ParseDate(req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := coord.Book(r.Context(), booking.BookRequest{
			DoctorID:        doctorID,
			HospitalID:      hospitalID,
			Date:            date,
			SlotID:          slotID,
			PatientRecordID: patientRecordID,
			PatientName:     req.PatientName,
			PatientPhone:    req.PatientPhone,
		})
		if err != nil {
			handleBookingError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(coord *booking.Coordinator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		target, err := appointment.ParseStatus(strings.ToLower(req.Status))
		if err != nil || target == appointment.StatusBooked {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be Completed or Cancelled")
			return
		}

		appt, err := coord.UpdateStatus(r.Context(), id, target)
		if err != nil {
			handleStatusError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(store *appointment.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := q.Get("q")

		var (
			appts []appointment.Appointment
			err   error
		)

		switch {
		case q.Get("hospitalId") != "":
			hospitalID, parseErr := uuid.Parse(q.Get("hospitalId"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospitalId query parameter must be a valid UUID")
				return
			}
			appts, err = store.ListByHospital(r.Context(), hospitalID, filter)
		case q.Get("doctorId") != "":
			doctorID, parseErr := uuid.Parse(q.Get("doctorId"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId query parameter must be a valid UUID")
				return
			}
			appts, err = store.ListByDoctor(r.Context(), doctorID, filter)
		default:
			writeError(w, http.StatusBadRequest, "missing_scope", "hospitalId or doctorId query parameter is required")
			return
		}

		if err != nil {
			handleInternalError(w, r, logger, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// Error mapping

func handleScheduleError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, schedule.ErrNoSlots):
		writeError(w, http.StatusBadRequest, "empty_slots", err.Error())
	case errors.Is(err, schedule.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, schedule.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, schedule.ErrOverlap):
		writeError(w, http.StatusConflict, "overlapping_slots", err.Error())
	case errors.Is(err, schedule.ErrScheduleExists):
		writeError(w, http.StatusConflict, "schedule_exists", err.Error())
	default:
		handleInternalError(w, r, logger, err)
	}
}

func handleBookingError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotAlreadyBooked),
		errors.Is(err, appointment.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "slot_already_booked", "slot already has an appointment")
	case errors.Is(err, booking.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		handleInternalError(w, r, logger, err)
	}
}

func handleStatusError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		handleInternalError(w, r, logger, err)
	}
}

// handleInternalError logs the full error server-side and keeps the
// response generic.
func handleInternalError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	logger.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please try again")
}

// Response mapping

func toScheduleResponse(sched *schedule.Schedule) ScheduleResponse {
	slots := make([]SlotResponse, 0, len(sched.Slots))
	for _, s := range sched.Slots {
		slots = append(slots, SlotResponse{
			ID:        s.ID,
			Start:     s.Start,
			End:       s.End,
			Price:     s.Price,
			Available: s.Available(),
		})
	}

	return ScheduleResponse{
		ID:         sched.ID,
		HospitalID: sched.HospitalID,
		DoctorID:   sched.DoctorID,
		Date:       sched.Date.Format("2006-01-02"),
		Slots:      slots,
	}
}

func toAppointmentResponse(appt *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              appt.ID,
		PatientRecordID: appt.PatientRecordID,
		PatientName:     appt.PatientName,
		PatientPhone:    appt.PatientPhone,
		DoctorID:        appt.DoctorID,
		HospitalID:      appt.HospitalID,
		SlotID:          appt.SlotID,
		Date:            appt.Date.Format("2006-01-02"),
		Price:           appt.Price,
		Status:          string(appt.Status),
		CreatedAt:       appt.CreatedAt,
		UpdatedAt:       appt.UpdatedAt,
	}
}
