package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-scheduling/internal/auth"
	"github.com/medicore/hospital-scheduling/internal/db"
)

const (
	adminEmail = "admin@medicore.local"

	doctorCount  = 12
	patientCount = 200

	// Shared demo password; bcrypt per account would make seeding crawl.
	demoPassword = "changeme123"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "seed").Logger()

func main() {
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash demo password")
	}

	if err := seedAdmin(context.Background(), pool, hash); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	departmentIDs, err := seedDepartments(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed departments")
	}
	if err := seedDoctors(context.Background(), pool, hash, doctorCount, departmentIDs); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, hash, patientCount); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedAdmin creates the default admin account if missing.
func seedAdmin(ctx context.Context, pool *pgxpool.Pool, hash string) error {
	tag, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, 'Admin', $3, 'admin', now())
		ON CONFLICT (email) DO NOTHING
	`, uuid.New(), adminEmail, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		logger.Info().Str("email", adminEmail).Msg("admin already exists")
	} else {
		logger.Info().Str("email", adminEmail).Msg("default admin created")
	}
	return nil
}

// seedDepartments upserts the department catalog and returns the ids of
// all departments, pre-existing ones included.
func seedDepartments(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	departments := []struct {
		name        string
		description string
	}{
		{"Dermatology", "Skin, hair and nail care."},
		{"Cardiology", "Heart and circulatory system."},
		{"General Medicine", "Primary care and referrals."},
		{"Orthopedics", "Bones, joints and muscles."},
		{"Neurology", "Brain and nervous system."},
		{"Pediatrics", "Care for children and adolescents."},
	}

	for _, d := range departments {
		_, err := pool.Exec(ctx, `
			INSERT INTO departments (id, name, description, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), d.name, d.description)
		if err != nil {
			return nil, err
		}
	}

	rows, err := pool.Query(ctx, `SELECT id FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.Info().Int("count", len(ids)).Msg("departments seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hash string, count int, departmentIDs []uuid.UUID) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		userID := uuid.New()
		name := gofakeit.Name()
		email := fmt.Sprintf("dr.%s.%d@medicore.local", slugify(name), i)
		specialty := specializations[gofakeit.Number(0, len(specializations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, name, password_hash, role, created_at)
			VALUES ($1, $2, $3, $4, 'doctor', now())
		`, userID, email, name, hash)
		if err != nil {
			return err
		}

		departmentID := departmentIDs[gofakeit.Number(0, len(departmentIDs)-1)]

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, department_id, specialization, bio, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
		`, uuid.New(), userID, departmentID, specialty, gofakeit.Sentence(10))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, hash string, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 50

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			userID := uuid.New()
			name := gofakeit.Name()
			email := fmt.Sprintf("%s.%d@example.com", slugify(name), i)
			phone := gofakeit.Phone()
			age := gofakeit.Number(18, 90)
			gender := gofakeit.Gender()
			address := gofakeit.Address().Address

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, email, name, password_hash, role, created_at)
				VALUES ($1, $2, $3, $4, 'patient', now())
			`, userID, email, name, hash)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, phone, age, gender, address, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), userID, phone, age, gender, address)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "."))
}
