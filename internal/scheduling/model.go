package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// User is the login account; doctors and patients hang a profile off it.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Department groups doctors for browsing; unrelated to slot resolution.
type Department struct {
	ID          uuid.UUID
	Name        string
	Description *string
	CreatedAt   time.Time
}

type Doctor struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	DepartmentID   *uuid.UUID
	Specialization string
	Bio            *string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Phone     *string
	Age       *int
	Gender    *string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	TimeOfDay string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Override is a doctor-authored availability flag for one slot. Absence of a
// row means "no explicit setting; occupancy alone decides".
type Override struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	TimeOfDay string
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Treatment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Diagnosis     string
	Prescription  string
	Notes         string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DoctorListing joins a doctor profile with its account for display.
type DoctorListing struct {
	Doctor
	Name  string
	Email string
}

// PatientListing joins a patient profile with its account for display.
type PatientListing struct {
	Patient
	Name  string
	Email string
}
