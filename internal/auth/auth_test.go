package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("password stored in the clear")
	}
	if !VerifyPassword(hash, "s3cret-pass") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong-pass") {
		t.Error("wrong password accepted")
	}
}

func TestTokenManager_IssueVerify(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	user := &scheduling.User{ID: uuid.New(), Role: scheduling.RoleDoctor}

	token, err := tm.Issue(user, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	actor, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != user.ID {
		t.Errorf("user id = %s, want %s", actor.UserID, user.ID)
	}
	if actor.Role != scheduling.RoleDoctor {
		t.Errorf("role = %s, want doctor", actor.Role)
	}
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Minute)
	user := &scheduling.User{ID: uuid.New(), Role: scheduling.RolePatient}

	token, err := tm.Issue(user, time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tm.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)
	user := &scheduling.User{ID: uuid.New(), Role: scheduling.RoleAdmin}

	token, err := issuer.Issue(user, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	for _, bad := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := tm.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", bad, err)
		}
	}
}

func TestTokenManager_RejectsUnknownRole(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	user := &scheduling.User{ID: uuid.New(), Role: scheduling.Role("superuser")}

	token, err := tm.Issue(user, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tm.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
