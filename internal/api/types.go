package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

type RegisterRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
	Age      *int    `json:"age,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Address  *string `json:"address,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token  string    `json:"token"`
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

type BookRequest struct {
	DoctorID string `json:"doctor_id"`
	Slot     string `json:"slot"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Slot      string    `json:"slot"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	slot := scheduling.Slot{Date: a.Date, TimeOfDay: a.TimeOfDay}
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Slot:      slot.Value(),
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

type SlotStateResponse struct {
	Slot          string `json:"slot"`
	Label         string `json:"label"`
	Open          bool   `json:"open"`
	ExplicitlySet bool   `json:"explicitly_set"`
	Available     bool   `json:"available"`
	Booked        bool   `json:"booked"`
}

type DayScheduleResponse struct {
	Date  string              `json:"date"`
	Slots []SlotStateResponse `json:"slots"`
}

func toWindowResponse(days []scheduling.DaySchedule) []DayScheduleResponse {
	out := make([]DayScheduleResponse, 0, len(days))
	for _, day := range days {
		d := DayScheduleResponse{Date: day.Date.Format(time.DateOnly)}
		for _, st := range day.Slots {
			d.Slots = append(d.Slots, SlotStateResponse{
				Slot:          st.Slot.Value(),
				Label:         st.Slot.TimeOfDay,
				Open:          st.Open,
				ExplicitlySet: st.ExplicitlySet,
				Available:     st.AvailableFlag,
				Booked:        st.Booked,
			})
		}
		out = append(out, d)
	}
	return out
}

type OverrideItem struct {
	Slot      string `json:"slot"`
	Available bool   `json:"available"`
}

type OverrideGridRequest struct {
	Overrides []OverrideItem `json:"overrides"`
}

type CreateDoctorRequest struct {
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Password       string  `json:"password"`
	Specialization string  `json:"specialization"`
	Bio            *string `json:"bio,omitempty"`
	DepartmentID   *string `json:"department_id,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	Specialization string     `json:"specialization"`
	Bio            *string    `json:"bio,omitempty"`
	Active         bool       `json:"active"`
}

func toDoctorResponse(l scheduling.DoctorListing) DoctorResponse {
	return DoctorResponse{
		ID:             l.Doctor.ID,
		Name:           l.Name,
		Email:          l.Email,
		DepartmentID:   l.DepartmentID,
		Specialization: l.Specialization,
		Bio:            l.Bio,
		Active:         l.Active,
	}
}

type CreateDepartmentRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type DepartmentResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

func toDepartmentResponse(d *scheduling.Department) DepartmentResponse {
	return DepartmentResponse{ID: d.ID, Name: d.Name, Description: d.Description}
}

type DepartmentDoctorsResponse struct {
	Department DepartmentResponse `json:"department"`
	Doctors    []DoctorResponse   `json:"doctors"`
}

type SetDoctorActiveRequest struct {
	Active bool `json:"active"`
}

type TreatmentRequest struct {
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription"`
	Notes        string `json:"notes"`
}

type TreatmentResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Diagnosis     string    `json:"diagnosis"`
	Prescription  string    `json:"prescription"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
}

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone,omitempty"`
}

type OverviewResponse struct {
	TotalDoctors      int64                 `json:"total_doctors"`
	TotalPatients     int64                 `json:"total_patients"`
	TotalAppointments int64                 `json:"total_appointments"`
	Doctors           []DoctorResponse      `json:"doctors"`
	Patients          []PatientSummary      `json:"patients"`
	Upcoming          []AppointmentResponse `json:"upcoming"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
