package api

import (
	"time"

	"github.com/google/uuid"
)

type SlotPayload struct {
	Start string `json:"start"` // HH:MM wall clock in the schedule zone
	End   string `json:"end"`
	Price int64  `json:"price"`
}

type CreateScheduleRequest struct {
	HospitalID string        `json:"hospitalId"`
	DoctorID   string        `json:"doctorId"`
	Date       string        `json:"date"` // YYYY-MM-DD
	Slots      []SlotPayload `json:"slots"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Price     int64     `json:"price"`
	Available bool      `json:"available"`
}

type ScheduleResponse struct {
	ID         uuid.UUID      `json:"id"`
	HospitalID uuid.UUID      `json:"hospitalId"`
	DoctorID   uuid.UUID      `json:"doctorId"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type CreateAppointmentRequest struct {
	DoctorID        string `json:"doctorId"`
	HospitalID      string `json:"hospitalId"`
	Date            string `json:"date"`
	SlotID          string `json:"slotId"`
	PatientRecordID string `json:"patientRecordId"`
	PatientName     string `json:"patientName"`
	PatientPhone    string `json:"patientPhone"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientRecordID uuid.UUID `json:"patientRecordId"`
	PatientName     string    `json:"patientName"`
	PatientPhone    string    `json:"patientPhone"`
	DoctorID        uuid.UUID `json:"doctorId"`
	HospitalID      uuid.UUID `json:"hospitalId"`
	SlotID          uuid.UUID `json:"slotId"`
	Date            string    `json:"date"`
	Price           int64     `json:"price"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
