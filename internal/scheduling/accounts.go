package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type RegisterPatientInput struct {
	Email        string
	Name         string
	PasswordHash string
	Phone        *string
	Age          *int
	Gender       *string
	Address      *string
}

type CreateDoctorInput struct {
	Email          string
	Name           string
	PasswordHash   string
	Specialization string
	Bio            *string
	DepartmentID   *uuid.UUID
}

// RegisterPatient creates a patient account plus profile. Patients
// self-register; the password arrives already hashed by the auth layer.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*User, *Patient, error) {
	user, err := s.repo.CreateUser(ctx, User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: in.PasswordHash,
		Role:         RolePatient,
	})
	if err != nil {
		return nil, nil, err
	}

	patient, err := s.repo.CreatePatient(ctx, Patient{
		UserID:  user.ID,
		Phone:   in.Phone,
		Age:     in.Age,
		Gender:  in.Gender,
		Address: in.Address,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create patient profile: %w", err)
	}

	return user, patient, nil
}

// CreateDoctorAccount creates a doctor account plus profile. Admin only;
// doctors never self-register.
func (s *Service) CreateDoctorAccount(ctx context.Context, actor Actor, in CreateDoctorInput) (*User, *Doctor, error) {
	if actor.Role != RoleAdmin {
		return nil, nil, ErrNotAllowed
	}

	if in.DepartmentID != nil {
		if _, err := s.repo.GetDepartmentByID(ctx, *in.DepartmentID); err != nil {
			return nil, nil, err
		}
	}

	user, err := s.repo.CreateUser(ctx, User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: in.PasswordHash,
		Role:         RoleDoctor,
	})
	if err != nil {
		return nil, nil, err
	}

	doctor, err := s.repo.CreateDoctor(ctx, Doctor{
		UserID:         user.ID,
		DepartmentID:   in.DepartmentID,
		Specialization: in.Specialization,
		Bio:            in.Bio,
		Active:         true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create doctor profile: %w", err)
	}

	return user, doctor, nil
}

// UserByEmail looks up the account for a login attempt.
func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetUserByEmail(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
