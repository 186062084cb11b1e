package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

func okHandler(t *testing.T, wantActor scheduling.Actor) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			t.Error("actor missing from context")
		}
		if actor != wantActor {
			t.Errorf("actor = %+v, want %+v", actor, wantActor)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	user := &scheduling.User{ID: uuid.New(), Role: scheduling.RolePatient}
	token, err := tm.Issue(user, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	want := scheduling.Actor{UserID: user.ID, Role: scheduling.RolePatient}
	h := Middleware(tm)(okHandler(t, want))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_RejectsMissingOrBadHeader(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	h := Middleware(tm)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached without a token")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	doctor := scheduling.Actor{UserID: uuid.New(), Role: scheduling.RoleDoctor}
	patient := scheduling.Actor{UserID: uuid.New(), Role: scheduling.RolePatient}

	h := RequireRole(scheduling.RoleDoctor, scheduling.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	cases := []struct {
		name  string
		actor *scheduling.Actor
		want  int
	}{
		{"allowed role", &doctor, http.StatusOK},
		{"disallowed role", &patient, http.StatusForbidden},
		{"no actor", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/appointments/x/complete", nil)
			if tc.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
