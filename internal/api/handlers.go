package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicore/hospital-scheduling/internal/auth"
	redisclient "github.com/medicore/hospital-scheduling/internal/redis"
	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

type handlers struct {
	svc    *scheduling.Service
	tokens *auth.TokenManager
}

// Auth

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "email, name and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	user, _, err := h.svc.RegisterPatient(r.Context(), scheduling.RegisterPatientInput{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Phone:        req.Phone,
		Age:          req.Age,
		Gender:       req.Gender,
		Address:      req.Address,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	token, err := h.tokens.Issue(user, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token, UserID: user.ID, Role: string(user.Role)})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	user, err := h.svc.UserByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	token, err := h.tokens.Issue(user, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token, UserID: user.ID, Role: string(user.Role)})
}

// Doctors and slots

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, toDoctorResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) doctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	days, err := h.svc.Window(r.Context(), doctorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWindowResponse(days))
}

// Departments

func (h *handlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.svc.Departments(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]DepartmentResponse, 0, len(departments))
	for i := range departments {
		out = append(out, toDepartmentResponse(&departments[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) departmentDoctors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
		return
	}

	dept, doctors, err := h.svc.DepartmentDoctors(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := DepartmentDoctorsResponse{
		Department: toDepartmentResponse(dept),
		Doctors:    make([]DoctorResponse, 0, len(doctors)),
	}
	for _, d := range doctors {
		resp.Doctors = append(resp.Doctors, toDoctorResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Appointments

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	appt, err := h.svc.Book(r.Context(), actor, doctorID, req.Slot)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	appts, err := h.svc.Appointments(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	if err := h.svc.Cancel(r.Context(), actor, id); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.svc.Complete(r.Context(), actor, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Treatments

func (h *handlers) recordTreatment(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	var req TreatmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	t, err := h.svc.RecordTreatment(r.Context(), actor, id, req.Diagnosis, req.Prescription, req.Notes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TreatmentResponse{
		ID:            t.ID,
		AppointmentID: t.AppointmentID,
		Diagnosis:     t.Diagnosis,
		Prescription:  t.Prescription,
		Notes:         t.Notes,
		CreatedAt:     t.CreatedAt,
	})
}

func (h *handlers) getTreatment(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	t, err := h.svc.TreatmentFor(r.Context(), actor, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TreatmentResponse{
		ID:            t.ID,
		AppointmentID: t.AppointmentID,
		Diagnosis:     t.Diagnosis,
		Prescription:  t.Prescription,
		Notes:         t.Notes,
		CreatedAt:     t.CreatedAt,
	})
}

// Availability

func (h *handlers) applyOverrides(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req OverrideGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	changes := make([]scheduling.OverrideChange, 0, len(req.Overrides))
	for _, item := range req.Overrides {
		changes = append(changes, scheduling.OverrideChange{
			SlotValue: item.Slot,
			Available: item.Available,
		})
	}

	if err := h.svc.ApplyOverrides(r.Context(), actor, changes); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"applied": len(changes)})
}

func (h *handlers) clearOverride(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	slot := r.URL.Query().Get("slot")
	if slot == "" {
		writeError(w, http.StatusBadRequest, "missing_slot", "slot query parameter is required")
		return
	}

	if err := h.svc.ClearOverride(r.Context(), actor, slot); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Admin

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := OverviewResponse{
		TotalDoctors:      ov.TotalDoctors,
		TotalPatients:     ov.TotalPatients,
		TotalAppointments: ov.TotalAppointments,
		Doctors:           make([]DoctorResponse, 0, len(ov.Doctors)),
		Patients:          make([]PatientSummary, 0, len(ov.Patients)),
		Upcoming:          make([]AppointmentResponse, 0, len(ov.Upcoming)),
	}
	for _, d := range ov.Doctors {
		resp.Doctors = append(resp.Doctors, toDoctorResponse(d))
	}
	for _, p := range ov.Patients {
		resp.Patients = append(resp.Patients, PatientSummary{
			ID:    p.Patient.ID,
			Name:  p.Name,
			Email: p.Email,
			Phone: p.Phone,
		})
	}
	for i := range ov.Upcoming {
		resp.Upcoming = append(resp.Upcoming, toAppointmentResponse(&ov.Upcoming[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createDoctor(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.Email == "" || req.Name == "" || req.Password == "" || req.Specialization == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "email, name, password and specialization are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	var departmentID *uuid.UUID
	if req.DepartmentID != nil {
		id, err := uuid.Parse(*req.DepartmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
			return
		}
		departmentID = &id
	}

	user, doctor, err := h.svc.CreateDoctorAccount(r.Context(), actor, scheduling.CreateDoctorInput{
		Email:          req.Email,
		Name:           req.Name,
		PasswordHash:   hash,
		Specialization: req.Specialization,
		Bio:            req.Bio,
		DepartmentID:   departmentID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DoctorResponse{
		ID:             doctor.ID,
		Name:           user.Name,
		Email:          user.Email,
		DepartmentID:   doctor.DepartmentID,
		Specialization: doctor.Specialization,
		Bio:            doctor.Bio,
		Active:         doctor.Active,
	})
}

func (h *handlers) createDepartment(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "name is required")
		return
	}

	dept, err := h.svc.CreateDepartment(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDepartmentResponse(dept))
}

func (h *handlers) setDoctorActive(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	var req SetDoctorActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	doctor, err := h.svc.SetDoctorActive(r.Context(), actor, id, req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     doctor.ID,
		"active": doctor.Active,
	})
}

// handleServiceError maps scheduling errors onto HTTP responses. All
// user-facing failures flow through here; nothing is retried.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidSlotValue):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, scheduling.ErrSlotOutsideWindow):
		writeError(w, http.StatusBadRequest, "slot_outside_window", err.Error())
	case errors.Is(err, scheduling.ErrUserNotFound),
		errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, scheduling.ErrOverrideNotFound),
		errors.Is(err, scheduling.ErrTreatmentNotFound),
		errors.Is(err, scheduling.ErrDepartmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, scheduling.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, scheduling.ErrDepartmentTaken):
		writeError(w, http.StatusConflict, "department_taken", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable),
		errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrDoctorInactive):
		writeError(w, http.StatusConflict, "doctor_inactive", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrTreatmentNotReady):
		writeError(w, http.StatusConflict, "appointment_not_completed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
