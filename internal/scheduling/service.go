package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medicore/hospital-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAvailabilityChanged  = "AVAILABILITY_CHANGED"
	EventTreatmentRecorded    = "TREATMENT_RECORDED"
	EventDoctorStatusChanged  = "DOCTOR_STATUS_CHANGED"
)

var (
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	// ErrSlotOutsideWindow rejects bookings for times that are not template
	// slots inside the rolling window. Arbitrary times are refused rather
	// than silently written.
	ErrSlotOutsideWindow       = errors.New("slot is outside the booking window")
	ErrNotAllowed              = errors.New("requester may not act on this resource")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrDoctorInactive          = errors.New("doctor is not accepting appointments")
	ErrTreatmentNotReady       = errors.New("appointment is not completed yet")
)

// Actor is the authenticated caller, supplied by the auth collaborator.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type OverrideChange struct {
	SlotValue string
	Available bool
}

type AdminOverview struct {
	TotalDoctors      int64
	TotalPatients     int64
	TotalAppointments int64
	Doctors           []DoctorListing
	Patients          []PatientListing
	Upcoming          []Appointment
}

type Service struct {
	repo     Repository
	resolver *Resolver
	locker   redisclient.Locker
	log      zerolog.Logger

	// now is swappable so tests can pin the rolling window.
	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: NewResolver(repo),
		locker:   locker,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Resolver() *Resolver { return s.resolver }

// Window returns the doctor's resolved 7-day availability grid starting
// today.
func (s *Service) Window(ctx context.Context, doctorID uuid.UUID) ([]DaySchedule, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.resolver.ResolveWindow(ctx, doctorID, s.now())
}

// Book reserves the slot for the calling patient. The per-tuple lock plus
// the store's partial unique index together close the race where two
// concurrent bookings both pass the availability re-check.
func (s *Service) Book(ctx context.Context, actor Actor, doctorID uuid.UUID, slotValue string) (*Appointment, error) {
	slot, err := ParseSlotValue(slotValue)
	if err != nil {
		return nil, err
	}
	if !InWindow(slot, s.now()) {
		return nil, ErrSlotOutsideWindow
	}

	patient, err := s.repo.GetPatientByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, ErrDoctorInactive
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, doctorID, slot.Value(), func(lockCtx context.Context) error {
		// Last check before commit, inside the critical section.
		state, err := s.resolver.Resolve(lockCtx, doctorID, slot, uuid.Nil)
		if err != nil {
			return err
		}
		if !state.Open {
			return ErrSlotUnavailable
		}

		appt, err := s.repo.CreateAppointment(lockCtx, doctorID, patient.ID, slot.Date, slot.TimeOfDay)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, &appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patient.ID.String(),
			"slot":       slot.Value(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Cancel moves a booked appointment to cancelled. Allowed for the owning
// patient, the owning doctor, or an admin. The freed slot is visible to the
// resolver immediately since occupancy is computed live.
func (s *Service) Cancel(ctx context.Context, actor Actor, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}

	if err := s.authorizeAppointment(ctx, actor, appt); err != nil {
		return err
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusBooked, StatusCancelled); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidStatusTransition
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, &appt.ID, EventAppointmentCancelled, map[string]any{
		"by_user": actor.UserID.String(),
		"role":    string(actor.Role),
	})
	return nil
}

// Complete marks a booked appointment done. Owning doctor or admin only.
func (s *Service) Complete(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if actor.Role == RolePatient {
		return nil, ErrNotAllowed
	}
	if err := s.authorizeAppointment(ctx, actor, appt); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusBooked, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, &updated.ID, EventAppointmentCompleted, map[string]any{
		"by_user": actor.UserID.String(),
	})
	return updated, nil
}

// ApplyOverrides upserts the doctor's availability grid, one row per tuple.
// Idempotent: re-submitting the same grid changes nothing. Overrides on
// occupied slots are stored but never open them; occupancy stays
// authoritative in the resolver.
func (s *Service) ApplyOverrides(ctx context.Context, actor Actor, changes []OverrideChange) error {
	doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		return err
	}

	today := s.now()
	applied := make([]string, 0, len(changes))
	for _, ch := range changes {
		slot, err := ParseSlotValue(ch.SlotValue)
		if err != nil {
			return err
		}
		if !InWindow(slot, today) {
			return ErrSlotOutsideWindow
		}
		if _, err := s.repo.UpsertOverride(ctx, doctor.ID, slot.Date, slot.TimeOfDay, ch.Available); err != nil {
			return fmt.Errorf("upsert override: %w", err)
		}
		applied = append(applied, slot.Value())
	}

	if len(applied) > 0 {
		s.logEvent(ctx, nil, EventAvailabilityChanged, map[string]any{
			"doctor_id": doctor.ID.String(),
			"slots":     applied,
		})
	}
	return nil
}

// ClearOverride removes the doctor's explicit setting for one slot, putting
// it back to "no explicit override" where occupancy alone decides.
func (s *Service) ClearOverride(ctx context.Context, actor Actor, slotValue string) error {
	doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		return err
	}

	slot, err := ParseSlotValue(slotValue)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteOverride(ctx, doctor.ID, slot.Date, slot.TimeOfDay); err != nil {
		return err
	}

	s.logEvent(ctx, nil, EventAvailabilityChanged, map[string]any{
		"doctor_id": doctor.ID.String(),
		"slots":     []string{slot.Value()},
		"cleared":   true,
	})
	return nil
}

// Appointments lists the caller's own appointments: full history for a
// patient, the rolling window for a doctor.
func (s *Service) Appointments(ctx context.Context, actor Actor) ([]Appointment, error) {
	switch actor.Role {
	case RolePatient:
		patient, err := s.repo.GetPatientByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		return s.repo.ListAppointmentsByPatient(ctx, patient.ID)
	case RoleDoctor:
		doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		from := DateOnly(s.now())
		return s.repo.ListAppointmentsByDoctor(ctx, doctor.ID, from, from.AddDate(0, 0, WindowDays))
	default:
		return nil, ErrNotAllowed
	}
}

// RecordTreatment attaches diagnosis details to a completed appointment.
func (s *Service) RecordTreatment(ctx context.Context, actor Actor, appointmentID uuid.UUID, diagnosis, prescription, notes string) (*Treatment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if doctor.ID != appt.DoctorID {
		return nil, ErrNotAllowed
	}
	if appt.Status != StatusCompleted {
		return nil, ErrTreatmentNotReady
	}

	t, err := s.repo.CreateTreatment(ctx, Treatment{
		AppointmentID: appt.ID,
		Diagnosis:     diagnosis,
		Prescription:  prescription,
		Notes:         notes,
	})
	if err != nil {
		return nil, fmt.Errorf("record treatment: %w", err)
	}

	s.logEvent(ctx, &appt.ID, EventTreatmentRecorded, map[string]any{
		"doctor_id": doctor.ID.String(),
	})
	return t, nil
}

// TreatmentFor returns the treatment for an appointment the caller owns.
func (s *Service) TreatmentFor(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*Treatment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAppointment(ctx, actor, appt); err != nil {
		return nil, err
	}
	return s.repo.GetTreatmentByAppointment(ctx, appt.ID)
}

// ListDoctors returns the active doctors shown to patients.
func (s *Service) ListDoctors(ctx context.Context) ([]DoctorListing, error) {
	return s.repo.ListActiveDoctors(ctx)
}

// Departments lists the browsable departments.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}

// DepartmentDoctors returns one department plus its doctors, the
// browse-by-department view.
func (s *Service) DepartmentDoctors(ctx context.Context, departmentID uuid.UUID) (*Department, []DoctorListing, error) {
	dept, err := s.repo.GetDepartmentByID(ctx, departmentID)
	if err != nil {
		return nil, nil, err
	}
	doctors, err := s.repo.ListDoctorsByDepartment(ctx, departmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("list department doctors: %w", err)
	}
	return dept, doctors, nil
}

// CreateDepartment adds a department. Admin only.
func (s *Service) CreateDepartment(ctx context.Context, actor Actor, name string, description *string) (*Department, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotAllowed
	}
	return s.repo.CreateDepartment(ctx, Department{
		Name:        name,
		Description: description,
	})
}

// SetDoctorActive deactivates or reactivates a doctor. Admin only.
// Deactivation stops new bookings but leaves existing appointments and
// history untouched.
func (s *Service) SetDoctorActive(ctx context.Context, actor Actor, doctorID uuid.UUID, active bool) (*Doctor, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrNotAllowed
	}

	doctor, err := s.repo.SetDoctorActive(ctx, doctorID, active)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, nil, EventDoctorStatusChanged, map[string]any{
		"doctor_id": doctor.ID.String(),
		"active":    doctor.Active,
		"by_user":   actor.UserID.String(),
	})
	return doctor, nil
}

// Overview assembles the admin dashboard: counts, optionally filtered
// doctor/patient listings, and upcoming appointments.
func (s *Service) Overview(ctx context.Context, term string) (*AdminOverview, error) {
	ov := &AdminOverview{}

	var err error
	if ov.TotalDoctors, err = s.repo.CountDoctors(ctx); err != nil {
		return nil, fmt.Errorf("count doctors: %w", err)
	}
	if ov.TotalPatients, err = s.repo.CountPatients(ctx); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if ov.TotalAppointments, err = s.repo.CountAppointments(ctx); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	if ov.Doctors, err = s.repo.SearchDoctors(ctx, term); err != nil {
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	if ov.Patients, err = s.repo.SearchPatients(ctx, term); err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	if ov.Upcoming, err = s.repo.ListUpcomingAppointments(ctx, DateOnly(s.now()), 20); err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}

	return ov, nil
}

// authorizeAppointment enforces ownership: the owning patient, the owning
// doctor, or an admin.
func (s *Service) authorizeAppointment(ctx context.Context, actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if doctor.ID != appt.DoctorID {
			return ErrNotAllowed
		}
		return nil
	case RolePatient:
		patient, err := s.repo.GetPatientByUserID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if patient.ID != appt.PatientID {
			return ErrNotAllowed
		}
		return nil
	default:
		return ErrNotAllowed
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
