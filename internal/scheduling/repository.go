package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrOverrideNotFound    = errors.New("availability override not found")
	ErrTreatmentNotFound   = errors.New("treatment not found")
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrDepartmentTaken     = errors.New("department name already exists")

	// ErrSlotTaken is the store-level double-booking guard firing: the
	// partial unique index on (doctor_id, date, time_of_day) for
	// non-cancelled appointments rejected the insert.
	ErrSlotTaken = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Accounts and profiles
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
	CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	ListActiveDoctors(ctx context.Context) ([]DoctorListing, error)
	// SetDoctorActive flips the accepting-appointments flag. Inactive
	// doctors keep their history but refuse new bookings.
	SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*Doctor, error)

	// Departments
	CreateDepartment(ctx context.Context, d Department) (*Department, error)
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]DoctorListing, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// FindConflictingAppointment returns the non-cancelled appointment
	// occupying (doctor, date, timeOfDay), if any. excludeID, when not Nil,
	// ignores that appointment so an edit can re-check its own slot.
	FindConflictingAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, excludeID uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListUpcomingAppointments(ctx context.Context, from time.Time, limit int) ([]Appointment, error)

	// Availability overrides
	GetOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) (*Override, error)
	UpsertOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, available bool) (*Override, error)
	DeleteOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) error

	// Treatments
	CreateTreatment(ctx context.Context, t Treatment) (*Treatment, error)
	GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error)

	// Admin overview
	CountDoctors(ctx context.Context) (int64, error)
	CountPatients(ctx context.Context) (int64, error)
	CountAppointments(ctx context.Context) (int64, error)
	SearchDoctors(ctx context.Context, term string) ([]DoctorListing, error)
	SearchPatients(ctx context.Context, term string) ([]PatientListing, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
