package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and local runs.
// It enforces the same invariants as the Postgres schema, including the
// unique active-appointment guard per (doctor, date, time-of-day).
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]User
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	departments  map[uuid.UUID]Department
	appointments map[uuid.UUID]Appointment
	overrides    map[string]Override
	treatments   map[uuid.UUID]Treatment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[uuid.UUID]User),
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		departments:  make(map[uuid.UUID]Department),
		appointments: make(map[uuid.UUID]Appointment),
		overrides:    make(map[string]Override),
		treatments:   make(map[uuid.UUID]Treatment),
	}
}

func overrideKey(doctorID uuid.UUID, date time.Time, timeOfDay string) string {
	return doctorID.String() + ":" + DateOnly(date).Format(time.DateOnly) + ":" + timeOfDay
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) CreateUser(_ context.Context, u User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	r.users[u.ID] = u
	return &u, nil
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.doctors[d.ID] = d
	return &d, nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.patients[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.UserID == userID {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPatientByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) ListActiveDoctors(_ context.Context) ([]DoctorListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DoctorListing
	for _, d := range r.doctors {
		if !d.Active {
			continue
		}
		l := DoctorListing{Doctor: d}
		if u, ok := r.users[d.UserID]; ok {
			l.Name = u.Name
			l.Email = u.Email
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) SetDoctorActive(_ context.Context, id uuid.UUID, active bool) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if d.Active != active {
		d.Active = active
		d.UpdatedAt = time.Now()
		r.doctors[id] = d
	}
	return &d, nil
}

func (r *MemoryRepository) CreateDepartment(_ context.Context, d Department) (*Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.departments {
		if strings.EqualFold(existing.Name, d.Name) {
			return nil, ErrDepartmentTaken
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	r.departments[d.ID] = d
	return &d, nil
}

func (r *MemoryRepository) GetDepartmentByID(_ context.Context, id uuid.UUID) (*Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListDepartments(_ context.Context) ([]Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Department
	for _, d := range r.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) ListDoctorsByDepartment(_ context.Context, departmentID uuid.UUID) ([]DoctorListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DoctorListing
	for _, d := range r.doctors {
		if d.DepartmentID == nil || *d.DepartmentID != departmentID {
			continue
		}
		l := DoctorListing{Doctor: d}
		if u, ok := r.users[d.UserID]; ok {
			l.Name = u.Name
			l.Email = u.Email
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) FindConflictingAppointment(_ context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, excludeID uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.findConflictLocked(doctorID, date, timeOfDay, excludeID)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) findConflictLocked(doctorID uuid.UUID, date time.Time, timeOfDay string, excludeID uuid.UUID) (Appointment, bool) {
	day := DateOnly(date)
	for _, a := range r.appointments {
		if a.ID == excludeID || a.Status == StatusCancelled {
			continue
		}
		if a.DoctorID == doctorID && a.TimeOfDay == timeOfDay && DateOnly(a.Date).Equal(day) {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Mirrors the partial unique index on active appointments.
	if _, taken := r.findConflictLocked(doctorID, date, timeOfDay, uuid.Nil); taken {
		return nil, ErrSlotTaken
	}

	now := time.Now()
	a := Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      DateOnly(date),
		TimeOfDay: timeOfDay,
		Status:    StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sortAppointmentsDesc(out)
	return out, nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		d := DateOnly(a.Date)
		if a.DoctorID == doctorID && !d.Before(DateOnly(from)) && d.Before(DateOnly(to)) {
			out = append(out, a)
		}
	}
	sortAppointmentsAsc(out)
	return out, nil
}

func (r *MemoryRepository) ListUpcomingAppointments(_ context.Context, from time.Time, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if !DateOnly(a.Date).Before(DateOnly(from)) {
			out = append(out, a)
		}
	}
	sortAppointmentsAsc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetOverride(_ context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) (*Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ov, ok := r.overrides[overrideKey(doctorID, date, timeOfDay)]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	return &ov, nil
}

func (r *MemoryRepository) UpsertOverride(_ context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string, available bool) (*Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := overrideKey(doctorID, date, timeOfDay)
	now := time.Now()

	if ov, ok := r.overrides[key]; ok {
		if ov.Available != available {
			ov.Available = available
			ov.UpdatedAt = now
			r.overrides[key] = ov
		}
		return &ov, nil
	}

	ov := Override{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      DateOnly(date),
		TimeOfDay: timeOfDay,
		Available: available,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.overrides[key] = ov
	return &ov, nil
}

func (r *MemoryRepository) DeleteOverride(_ context.Context, doctorID uuid.UUID, date time.Time, timeOfDay string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := overrideKey(doctorID, date, timeOfDay)
	if _, ok := r.overrides[key]; !ok {
		return ErrOverrideNotFound
	}
	delete(r.overrides, key)
	return nil
}

func (r *MemoryRepository) CreateTreatment(_ context.Context, t Treatment) (*Treatment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	r.treatments[t.AppointmentID] = t
	return &t, nil
}

func (r *MemoryRepository) GetTreatmentByAppointment(_ context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.treatments[appointmentID]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) CountDoctors(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.doctors)), nil
}

func (r *MemoryRepository) CountPatients(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.patients)), nil
}

func (r *MemoryRepository) CountAppointments(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.appointments)), nil
}

func (r *MemoryRepository) SearchDoctors(_ context.Context, term string) ([]DoctorListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	term = strings.ToLower(term)
	var out []DoctorListing
	for _, d := range r.doctors {
		u := r.users[d.UserID]
		if term != "" &&
			!strings.Contains(strings.ToLower(u.Name), term) &&
			!strings.Contains(strings.ToLower(d.Specialization), term) &&
			!strings.Contains(strings.ToLower(u.Email), term) {
			continue
		}
		out = append(out, DoctorListing{Doctor: d, Name: u.Name, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) SearchPatients(_ context.Context, term string) ([]PatientListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	term = strings.ToLower(term)
	var out []PatientListing
	for _, p := range r.patients {
		u := r.users[p.UserID]
		phone := ""
		if p.Phone != nil {
			phone = *p.Phone
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(u.Name), term) &&
			!strings.Contains(strings.ToLower(phone), term) &&
			!strings.Contains(strings.ToLower(u.Email), term) {
			continue
		}
		out = append(out, PatientListing{Patient: p, Name: u.Name, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the audit trail. Test helper.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func sortAppointmentsAsc(a []Appointment) {
	sort.Slice(a, func(i, j int) bool {
		if !a[i].Date.Equal(a[j].Date) {
			return a[i].Date.Before(a[j].Date)
		}
		return a[i].TimeOfDay < a[j].TimeOfDay
	})
}

func sortAppointmentsDesc(a []Appointment) {
	sort.Slice(a, func(i, j int) bool {
		if !a[i].Date.Equal(a[j].Date) {
			return a[i].Date.After(a[j].Date)
		}
		return a[i].TimeOfDay > a[j].TimeOfDay
	})
}
