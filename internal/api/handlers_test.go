package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-scheduling/internal/auth"
	redisclient "github.com/medicore/hospital-scheduling/internal/redis"
	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

var testToday = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	repo    *scheduling.MemoryRepository
	tokens  *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := scheduling.NewMemoryRepository()
	svc := scheduling.NewService(repo, redisclient.NewLocalLocker(), zerolog.Nop()).
		WithClock(func() time.Time { return testToday })
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	handler := NewRouter(RouterConfig{
		Service: svc,
		Tokens:  tokens,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
	return &testEnv{handler: handler, repo: repo, tokens: tokens}
}

// seedDoctor creates a doctor account directly in the store and returns the
// doctor id plus a valid bearer token for its user.
func (e *testEnv) seedDoctor(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	ctx := context.Background()

	u, err := e.repo.CreateUser(ctx, scheduling.User{
		Email:        email,
		Name:         "Dr. Seed",
		PasswordHash: "x",
		Role:         scheduling.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("create doctor user: %v", err)
	}
	d, err := e.repo.CreateDoctor(ctx, scheduling.Doctor{
		UserID:         u.ID,
		Specialization: "Cardiology",
		Active:         true,
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return d.ID, e.issueToken(t, u)
}

func (e *testEnv) seedAdmin(t *testing.T) string {
	t.Helper()
	u, err := e.repo.CreateUser(context.Background(), scheduling.User{
		Email:        "admin@example.com",
		Name:         "Admin",
		PasswordHash: "x",
		Role:         scheduling.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	return e.issueToken(t, u)
}

func (e *testEnv) issueToken(t *testing.T, u *scheduling.User) string {
	t.Helper()
	token, err := e.tokens.Issue(u, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func registerPatient(t *testing.T, e *testEnv, email string) TokenResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    email,
		Name:     "Pat Doe",
		Password: "hunter2-hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[TokenResponse](t, rec)
}

func TestRegisterLoginBookFlow(t *testing.T) {
	e := newTestEnv(t)
	doctorID, _ := e.seedDoctor(t, "doc@example.com")

	reg := registerPatient(t, e, "pat@example.com")
	if reg.Role != "patient" || reg.Token == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	// Log in with the same credentials.
	rec := e.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "pat@example.com",
		Password: "hunter2-hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	login := decode[TokenResponse](t, rec)

	// Wrong password is a 401, not a 404.
	rec = e.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "pat@example.com",
		Password: "nope",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rec.Code)
	}

	// Book a slot inside the window.
	rec = e.do(t, http.MethodPost, "/appointments", login.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d, body %s", rec.Code, rec.Body.String())
	}
	appt := decode[AppointmentResponse](t, rec)
	if appt.Slot != "2024-06-10|09:00" || appt.Status != "booked" {
		t.Errorf("unexpected appointment: %+v", appt)
	}

	// The booking shows up in the patient's list.
	rec = e.do(t, http.MethodGet, "/appointments", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	appts := decode[[]AppointmentResponse](t, rec)
	if len(appts) != 1 || appts[0].ID != appt.ID {
		t.Errorf("list = %+v", appts)
	}
}

func TestBook_ConflictIs409(t *testing.T) {
	e := newTestEnv(t)
	doctorID, _ := e.seedDoctor(t, "doc@example.com")

	first := registerPatient(t, e, "first@example.com")
	second := registerPatient(t, e, "second@example.com")

	req := BookRequest{DoctorID: doctorID.String(), Slot: "2024-06-11|14:00"}
	if rec := e.do(t, http.MethodPost, "/appointments", first.Token, req); rec.Code != http.StatusCreated {
		t.Fatalf("first booking status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec := e.do(t, http.MethodPost, "/appointments", second.Token, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second booking status = %d, want 409", rec.Code)
	}
	errResp := decode[ErrorResponse](t, rec)
	if errResp.Error != "slot_unavailable" {
		t.Errorf("error code = %q, want slot_unavailable", errResp.Error)
	}
}

func TestBook_BadSlotValues(t *testing.T) {
	e := newTestEnv(t)
	doctorID, _ := e.seedDoctor(t, "doc@example.com")
	pat := registerPatient(t, e, "pat@example.com")

	cases := []struct {
		name string
		slot string
		code string
	}{
		{"malformed", "tomorrow-morning", "invalid_slot"},
		{"past", "2024-06-01|09:00", "slot_outside_window"},
		{"off template", "2024-06-10|13:00", "slot_outside_window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/appointments", pat.Token, BookRequest{
				DoctorID: doctorID.String(),
				Slot:     tc.slot,
			})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if errResp := decode[ErrorResponse](t, rec); errResp.Error != tc.code {
				t.Errorf("error code = %q, want %q", errResp.Error, tc.code)
			}
		})
	}
}

func TestDoctorSlots_GridShape(t *testing.T) {
	e := newTestEnv(t)
	doctorID, _ := e.seedDoctor(t, "doc@example.com")
	pat := registerPatient(t, e, "pat@example.com")

	// Occupy one slot so the grid reflects it.
	if rec := e.do(t, http.MethodPost, "/appointments", pat.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-12|11:00",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d", rec.Code)
	}

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots", doctorID), pat.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots status = %d, body %s", rec.Code, rec.Body.String())
	}

	days := decode[[]DayScheduleResponse](t, rec)
	if len(days) != 7 {
		t.Fatalf("days = %d, want 7", len(days))
	}
	if days[0].Date != "2024-06-10" || days[6].Date != "2024-06-16" {
		t.Errorf("window bounds wrong: %s .. %s", days[0].Date, days[6].Date)
	}
	for _, d := range days {
		if len(d.Slots) != 4 {
			t.Fatalf("day %s has %d slots, want 4", d.Date, len(d.Slots))
		}
	}

	var closed []string
	for _, d := range days {
		for _, s := range d.Slots {
			if !s.Open {
				closed = append(closed, s.Slot)
				if !s.Booked {
					t.Errorf("closed slot %s not marked booked", s.Slot)
				}
			}
		}
	}
	if len(closed) != 1 || closed[0] != "2024-06-12|11:00" {
		t.Errorf("closed slots = %v, want just the booked one", closed)
	}

	// Unknown doctor is a 404.
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots", uuid.New()), pat.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown doctor status = %d, want 404", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	e := newTestEnv(t)
	doctorID, _ := e.seedDoctor(t, "doc@example.com")
	owner := registerPatient(t, e, "owner@example.com")
	other := registerPatient(t, e, "other@example.com")

	rec := e.do(t, http.MethodPost, "/appointments", owner.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|16:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d", rec.Code)
	}
	appt := decode[AppointmentResponse](t, rec)

	cancelPath := fmt.Sprintf("/appointments/%s/cancel", appt.ID)

	if rec := e.do(t, http.MethodPost, cancelPath, other.Token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("non-owner cancel status = %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, cancelPath, owner.Token, nil); rec.Code != http.StatusOK {
		t.Errorf("owner cancel status = %d, want 200", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, cancelPath, owner.Token, nil); rec.Code != http.StatusConflict {
		t.Errorf("double cancel status = %d, want 409", rec.Code)
	}
}

func TestAvailabilityEndpoints(t *testing.T) {
	e := newTestEnv(t)
	doctorID, doctorToken := e.seedDoctor(t, "doc@example.com")
	pat := registerPatient(t, e, "pat@example.com")

	grid := OverrideGridRequest{Overrides: []OverrideItem{
		{Slot: "2024-06-10|09:00", Available: false},
		{Slot: "2024-06-10|11:00", Available: false},
	}}

	// Patients cannot edit availability.
	if rec := e.do(t, http.MethodPut, "/availability", pat.Token, grid); rec.Code != http.StatusForbidden {
		t.Fatalf("patient override status = %d, want 403", rec.Code)
	}

	if rec := e.do(t, http.MethodPut, "/availability", doctorToken, grid); rec.Code != http.StatusOK {
		t.Fatalf("override status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Blocked slot refuses bookings.
	rec := e.do(t, http.MethodPost, "/appointments", pat.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("blocked slot booking status = %d, want 409", rec.Code)
	}

	// Clearing the override reopens it.
	if rec := e.do(t, http.MethodDelete, "/availability?slot=2024-06-10%7C09:00", doctorToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/appointments", pat.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking after clear status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Missing slot parameter.
	if rec := e.do(t, http.MethodDelete, "/availability", doctorToken, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing slot status = %d, want 400", rec.Code)
	}
}

func TestTreatmentEndpoints(t *testing.T) {
	e := newTestEnv(t)
	doctorID, doctorToken := e.seedDoctor(t, "doc@example.com")
	pat := registerPatient(t, e, "pat@example.com")

	rec := e.do(t, http.MethodPost, "/appointments", pat.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d", rec.Code)
	}
	appt := decode[AppointmentResponse](t, rec)

	treatPath := fmt.Sprintf("/appointments/%s/treatment", appt.ID)
	body := TreatmentRequest{Diagnosis: "flu", Prescription: "rest", Notes: "check back in a week"}

	// Not completed yet.
	if rec := e.do(t, http.MethodPost, treatPath, doctorToken, body); rec.Code != http.StatusConflict {
		t.Fatalf("early treatment status = %d, want 409", rec.Code)
	}

	completePath := fmt.Sprintf("/appointments/%s/complete", appt.ID)
	if rec := e.do(t, http.MethodPost, completePath, doctorToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rec.Code, rec.Body.String())
	}

	if rec := e.do(t, http.MethodPost, treatPath, doctorToken, body); rec.Code != http.StatusCreated {
		t.Fatalf("record treatment status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Owning patient can read it.
	rec = e.do(t, http.MethodGet, treatPath, pat.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get treatment status = %d", rec.Code)
	}
	if got := decode[TreatmentResponse](t, rec); got.Diagnosis != "flu" {
		t.Errorf("diagnosis = %q", got.Diagnosis)
	}

	// A different patient cannot.
	nosy := registerPatient(t, e, "nosy@example.com")
	if rec := e.do(t, http.MethodGet, treatPath, nosy.Token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("stranger treatment status = %d, want 403", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.seedAdmin(t)
	pat := registerPatient(t, e, "pat@example.com")

	// Only admins reach the dashboard.
	if rec := e.do(t, http.MethodGet, "/admin/overview", pat.Token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("patient overview status = %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/admin/overview", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous overview status = %d, want 401", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/admin/doctors", adminToken, CreateDoctorRequest{
		Email:          "newdoc@example.com",
		Name:           "Dr. New",
		Password:       "hunter2-hunter2",
		Specialization: "Dermatology",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create doctor status = %d, body %s", rec.Code, rec.Body.String())
	}
	doc := decode[DoctorResponse](t, rec)
	if doc.Specialization != "Dermatology" || !doc.Active {
		t.Errorf("unexpected doctor: %+v", doc)
	}

	rec = e.do(t, http.MethodGet, "/admin/overview?q=derma", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview status = %d, body %s", rec.Code, rec.Body.String())
	}
	ov := decode[OverviewResponse](t, rec)
	if ov.TotalDoctors != 1 || ov.TotalPatients != 1 {
		t.Errorf("counts = %d doctors / %d patients", ov.TotalDoctors, ov.TotalPatients)
	}
	if len(ov.Doctors) != 1 || ov.Doctors[0].Name != "Dr. New" {
		t.Errorf("filtered doctors = %+v", ov.Doctors)
	}
}

func TestHealthLiveness(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness status = %d", rec.Code)
	}
}

func TestDepartmentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAdmin(t)
	patient := registerPatient(t, env, "browse@example.com")

	// Creation is admin only.
	rec := env.do(t, http.MethodPost, "/admin/departments", patient.Token, CreateDepartmentRequest{Name: "Cardiology"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient create department status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/admin/departments", admin, CreateDepartmentRequest{Name: "Cardiology"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create department status = %d, body %s", rec.Code, rec.Body.String())
	}
	dept := decode[DepartmentResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/admin/departments", admin, CreateDepartmentRequest{Name: "Cardiology"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate department status = %d", rec.Code)
	}

	// The catalog is public.
	rec = env.do(t, http.MethodGet, "/departments", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list departments status = %d", rec.Code)
	}
	if list := decode[[]DepartmentResponse](t, rec); len(list) != 1 || list[0].Name != "Cardiology" {
		t.Fatalf("departments = %+v", list)
	}

	// A doctor created in the department shows up in the browse view.
	deptID := dept.ID.String()
	rec = env.do(t, http.MethodPost, "/admin/doctors", admin, CreateDoctorRequest{
		Email:          "dr.heart@example.com",
		Name:           "Dr. Heart",
		Password:       "hunter2-hunter2",
		Specialization: "Cardiology",
		DepartmentID:   &deptID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create doctor status = %d, body %s", rec.Code, rec.Body.String())
	}
	doc := decode[DoctorResponse](t, rec)
	if doc.DepartmentID == nil || *doc.DepartmentID != dept.ID {
		t.Fatalf("doctor department = %v, want %s", doc.DepartmentID, dept.ID)
	}

	rec = env.do(t, http.MethodGet, "/departments/"+deptID+"/doctors", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("department doctors status = %d", rec.Code)
	}
	browse := decode[DepartmentDoctorsResponse](t, rec)
	if browse.Department.ID != dept.ID || len(browse.Doctors) != 1 || browse.Doctors[0].ID != doc.ID {
		t.Fatalf("browse = %+v", browse)
	}

	rec = env.do(t, http.MethodGet, "/departments/"+uuid.NewString()+"/doctors", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown department status = %d", rec.Code)
	}

	// Unknown department on doctor creation is rejected.
	badDept := uuid.NewString()
	rec = env.do(t, http.MethodPost, "/admin/doctors", admin, CreateDoctorRequest{
		Email:          "dr.lost@example.com",
		Name:           "Dr. Lost",
		Password:       "hunter2-hunter2",
		Specialization: "Cardiology",
		DepartmentID:   &badDept,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("doctor with unknown department status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAdminSetDoctorActive(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAdmin(t)
	doctorID, doctorToken := env.seedDoctor(t, "dr.flag@example.com")
	patient := registerPatient(t, env, "flagged@example.com")

	// Doctors cannot deactivate themselves through the admin surface.
	rec := env.do(t, http.MethodPatch, "/admin/doctors/"+doctorID.String(), doctorToken, SetDoctorActiveRequest{Active: false})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("doctor self-deactivate status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/admin/doctors/"+doctorID.String(), admin, SetDoctorActiveRequest{Active: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Deactivated doctors drop out of the public listing and refuse bookings.
	rec = env.do(t, http.MethodGet, "/doctors", "", nil)
	if list := decode[[]DoctorResponse](t, rec); len(list) != 0 {
		t.Fatalf("inactive doctor still listed: %+v", list)
	}
	rec = env.do(t, http.MethodPost, "/appointments", patient.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("book inactive doctor status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/admin/doctors/"+doctorID.String(), admin, SetDoctorActiveRequest{Active: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/appointments", patient.Token, BookRequest{
		DoctorID: doctorID.String(),
		Slot:     "2024-06-10|09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book after reactivation status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/admin/doctors/"+uuid.NewString(), admin, SetDoctorActiveRequest{Active: false})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown doctor status = %d", rec.Code)
	}
}
