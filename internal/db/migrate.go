package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// statements are applied in order on startup; every statement is
// idempotent so re-running on boot is safe.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY,
		email         text NOT NULL UNIQUE,
		name          text NOT NULL,
		password_hash text NOT NULL,
		role          text NOT NULL CHECK (role IN ('admin', 'doctor', 'patient')),
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS departments (
		id          uuid PRIMARY KEY,
		name        text NOT NULL UNIQUE,
		description text,
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS doctors (
		id             uuid PRIMARY KEY,
		user_id        uuid NOT NULL UNIQUE REFERENCES users (id),
		department_id  uuid REFERENCES departments (id),
		specialization text NOT NULL,
		bio            text,
		active         boolean NOT NULL DEFAULT true,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id         uuid PRIMARY KEY,
		user_id    uuid NOT NULL UNIQUE REFERENCES users (id),
		phone      text,
		age        integer,
		gender     text,
		address    text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id          uuid PRIMARY KEY,
		doctor_id   uuid NOT NULL REFERENCES doctors (id),
		patient_id  uuid NOT NULL REFERENCES patients (id),
		date        date NOT NULL,
		time_of_day text NOT NULL,
		status      text NOT NULL DEFAULT 'booked'
		            CHECK (status IN ('booked', 'completed', 'cancelled')),
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,

	// The store-level double-booking guard: at most one non-cancelled
	// appointment per (doctor, date, time-of-day).
	`CREATE UNIQUE INDEX IF NOT EXISTS uix_active_appointment_slot
		ON appointments (doctor_id, date, time_of_day)
		WHERE status <> 'cancelled'`,

	`CREATE INDEX IF NOT EXISTS ix_appointments_patient
		ON appointments (patient_id, date DESC)`,

	`CREATE TABLE IF NOT EXISTS availability (
		id          uuid PRIMARY KEY,
		doctor_id   uuid NOT NULL REFERENCES doctors (id),
		date        date NOT NULL,
		time_of_day text NOT NULL,
		available   boolean NOT NULL DEFAULT true,
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now(),
		UNIQUE (doctor_id, date, time_of_day)
	)`,

	`CREATE TABLE IF NOT EXISTS treatments (
		id             uuid PRIMARY KEY,
		appointment_id uuid NOT NULL UNIQUE REFERENCES appointments (id),
		diagnosis      text NOT NULL DEFAULT '',
		prescription   text NOT NULL DEFAULT '',
		notes          text NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS event_logs (
		id             bigserial PRIMARY KEY,
		event_type     text NOT NULL,
		appointment_id uuid,
		payload        jsonb,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema. Statements run inside one transaction so a
// failed boot never leaves a partial schema behind.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
