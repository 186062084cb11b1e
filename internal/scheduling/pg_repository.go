package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	activeAppointmentIndex = "uix_active_appointment_slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.DepartmentID,
		&d.Specialization,
		&d.Bio,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Phone,
		&p.Age,
		&p.Gender,
		&p.Address,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.TimeOfDay,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Date = DateOnly(a.Date)
	return &a, nil
}

func scanOverride(row pgx.Row) (*Override, error) {
	var o Override
	err := row.Scan(
		&o.ID,
		&o.DoctorID,
		&o.Date,
		&o.TimeOfDay,
		&o.Available,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	o.Date = DateOnly(o.Date)
	return &o, nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.Diagnosis,
		&t.Prescription,
		&t.Notes,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Accounts and profiles

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (r *PgRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, email, name, password_hash, role, created_at
	`, id, u.Email, u.Name, u.PasswordHash, u.Role)

	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, department_id, specialization, bio, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, user_id, department_id, specialization, bio, active, created_at, updated_at
	`, id, d.UserID, d.DepartmentID, d.Specialization, d.Bio, d.Active)
	return scanDoctor(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, user_id, phone, age, gender, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, user_id, phone, age, gender, address, created_at, updated_at
	`, id, p.UserID, p.Phone, p.Age, p.Gender, p.Address)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, department_id, specialization, bio, active, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, department_id, specialization, bio, active, created_at, updated_at
		FROM doctors
		WHERE user_id = $1
	`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, phone, age, gender, address, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, phone, age, gender, address, created_at, updated_at
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) ListActiveDoctors(ctx context.Context) ([]DoctorListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.user_id, d.department_id, d.specialization, d.bio, d.active, d.created_at, d.updated_at,
		       u.name, u.email
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.active
		ORDER BY u.name
	`)
	if err != nil {
		return nil, err
	}
	return collectDoctorListings(rows)
}

func (r *PgRepository) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET active = $2,
		    updated_at = CASE WHEN active IS DISTINCT FROM $2 THEN now() ELSE updated_at END
		WHERE id = $1
		RETURNING id, user_id, department_id, specialization, bio, active, created_at, updated_at
	`, id, active)
	return scanDoctor(row)
}

// Departments

func (r *PgRepository) CreateDepartment(ctx context.Context, d Department) (*Department, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO departments (id, name, description, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, name, description, created_at
	`, id, d.Name, d.Description)

	created, err := scanDepartment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDepartmentTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at
		FROM departments
		WHERE id = $1
	`, id)
	return scanDepartment(row)
}

func (r *PgRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, created_at
		FROM departments
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]DoctorListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.user_id, d.department_id, d.specialization, d.bio, d.active, d.created_at, d.updated_at,
		       u.name, u.email
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.department_id = $1
		ORDER BY u.name
	`, departmentID)
	if err != nil {
		return nil, err
	}
	return collectDoctorListings(rows)
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindConflictingAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, excludeID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND time_of_day = $3
		  AND status <> 'cancelled'
		  AND id <> $4
		LIMIT 1
	`, doctorID, DateOnly(date), timeOfDay, excludeID)
	return scanAppointment(row)
}

// CreateAppointment inserts a booked appointment. The partial unique index
// on active (doctor_id, date, time_of_day) rejects a concurrent double
// booking that slipped past the pre-check; that surfaces as ErrSlotTaken
// with nothing written.
func (r *PgRepository) CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'booked', now(), now())
		RETURNING id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
	`, id, doctorID, patientID, DateOnly(date), timeOfDay)

	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeAppointmentIndex {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, time_of_day DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date < $3
		ORDER BY date, time_of_day
	`, doctorID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListUpcomingAppointments(ctx context.Context, from time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, date, time_of_day, status, created_at, updated_at
		FROM appointments
		WHERE date >= $1
		ORDER BY date, time_of_day
		LIMIT $2
	`, DateOnly(from), limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Availability overrides

func (r *PgRepository) GetOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) (*Override, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, time_of_day, available, created_at, updated_at
		FROM availability
		WHERE doctor_id = $1 AND date = $2 AND time_of_day = $3
	`, doctorID, DateOnly(date), timeOfDay)
	return scanOverride(row)
}

// UpsertOverride is idempotent per (doctor, date, time_of_day): one row per
// tuple, updated_at only moves when the flag actually changes.
func (r *PgRepository) UpsertOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, available bool) (*Override, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, date, time_of_day, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (doctor_id, date, time_of_day)
		DO UPDATE SET available = EXCLUDED.available,
		              updated_at = CASE
		                WHEN availability.available IS DISTINCT FROM EXCLUDED.available THEN now()
		                ELSE availability.updated_at
		              END
		RETURNING id, doctor_id, date, time_of_day, available, created_at, updated_at
	`, id, doctorID, DateOnly(date), timeOfDay, available)
	return scanOverride(row)
}

func (r *PgRepository) DeleteOverride(ctx context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability
		WHERE doctor_id = $1 AND date = $2 AND time_of_day = $3
	`, doctorID, DateOnly(date), timeOfDay)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

// Treatments

func (r *PgRepository) CreateTreatment(ctx context.Context, t Treatment) (*Treatment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO treatments (id, appointment_id, diagnosis, prescription, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, appointment_id, diagnosis, prescription, notes, created_at
	`, id, t.AppointmentID, t.Diagnosis, t.Prescription, t.Notes)
	return scanTreatment(row)
}

func (r *PgRepository) GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, diagnosis, prescription, notes, created_at
		FROM treatments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanTreatment(row)
}

// Admin overview

func (r *PgRepository) CountDoctors(ctx context.Context) (int64, error) {
	return r.countRows(ctx, `SELECT COUNT(*) FROM doctors`)
}

func (r *PgRepository) CountPatients(ctx context.Context) (int64, error) {
	return r.countRows(ctx, `SELECT COUNT(*) FROM patients`)
}

func (r *PgRepository) CountAppointments(ctx context.Context) (int64, error) {
	return r.countRows(ctx, `SELECT COUNT(*) FROM appointments`)
}

func (r *PgRepository) countRows(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PgRepository) SearchDoctors(ctx context.Context, term string) ([]DoctorListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.user_id, d.department_id, d.specialization, d.bio, d.active, d.created_at, d.updated_at,
		       u.name, u.email
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE $1 = ''
		   OR u.name ILIKE '%' || $1 || '%'
		   OR d.specialization ILIKE '%' || $1 || '%'
		   OR u.email ILIKE '%' || $1 || '%'
		ORDER BY u.name
	`, term)
	if err != nil {
		return nil, err
	}
	return collectDoctorListings(rows)
}

func (r *PgRepository) SearchPatients(ctx context.Context, term string) ([]PatientListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.user_id, p.phone, p.age, p.gender, p.address, p.created_at, p.updated_at,
		       u.name, u.email
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE $1 = ''
		   OR u.name ILIKE '%' || $1 || '%'
		   OR p.phone ILIKE '%' || $1 || '%'
		   OR u.email ILIKE '%' || $1 || '%'
		ORDER BY u.name
	`, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PatientListing
	for rows.Next() {
		var l PatientListing
		err := rows.Scan(
			&l.ID, &l.UserID, &l.Phone, &l.Age, &l.Gender, &l.Address,
			&l.CreatedAt, &l.UpdatedAt, &l.Name, &l.Email,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectDoctorListings(rows pgx.Rows) ([]DoctorListing, error) {
	defer rows.Close()

	var result []DoctorListing
	for rows.Next() {
		var l DoctorListing
		err := rows.Scan(
			&l.ID, &l.UserID, &l.DepartmentID, &l.Specialization, &l.Bio, &l.Active,
			&l.CreatedAt, &l.UpdatedAt, &l.Name, &l.Email,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
