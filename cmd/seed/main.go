package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practIDs, err := seedPractitioners(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, practIDs); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	if err := seedReservations(context.Background(), pool, practIDs, patientIDs, 400); err != nil {
		log.Fatalf("seed reservations: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
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
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		// A few inactive practitioners so directory filtering has teeth.
		active := gofakeit.Number(0, 9) != 0

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, active)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	log.Println("patients seeded")
	return ids, nil
}

func seedSchedules(ctx context.Context, pool *pgxpool.Pool, practIDs []uuid.UUID) error {
	log.Printf("seeding schedules for %d practitioners", len(practIDs))

	starts := []string{"08:00", "08:30", "09:00", "10:00"}
	ends := []string{"16:00", "17:00", "17:30", "18:00"}
	slotMinutes := []int{15, 20, 30}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, practID := range practIDs {
		start := starts[gofakeit.Number(0, len(starts)-1)]
		end := ends[gofakeit.Number(0, len(ends)-1)]
		minutes := slotMinutes[gofakeit.Number(0, len(slotMinutes)-1)]

		// NULL daily_max means uncapped; roughly a third of practitioners
		// get a cap.
		var dailyMax *int
		if gofakeit.Number(0, 2) == 0 {
			n := gofakeit.Number(4, 12)
			dailyMax = &n
		}

		// Monday through Friday on the same daily window.
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_templates (id, practitioner_id, weekday, start_time, end_time, slot_interval_minutes, daily_max, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			`, uuid.New(), practID, weekday, start, end, minutes, dailyMax)
			if err != nil {
				return err
			}
		}

		// Scatter a few exceptions into the next month: mostly full days
		// off, occasionally a shortened custom window.
		for i := 0; i < gofakeit.Number(0, 3); i++ {
			date := today.AddDate(0, 0, gofakeit.Number(1, 28))
			if gofakeit.Number(0, 3) == 0 {
				_, err = tx.Exec(ctx, `
					INSERT INTO date_exceptions (id, practitioner_id, date, kind, start_time, end_time, slot_interval_minutes, created_at, updated_at)
					VALUES ($1, $2, $3, 'custom', '10:00', '13:00', $4, now(), now())
					ON CONFLICT (practitioner_id, date) DO NOTHING
				`, uuid.New(), practID, date, minutes)
			} else {
				_, err = tx.Exec(ctx, `
					INSERT INTO date_exceptions (id, practitioner_id, date, kind, created_at, updated_at)
					VALUES ($1, $2, $3, 'off', now(), now())
					ON CONFLICT (practitioner_id, date) DO NOTHING
				`, uuid.New(), practID, date)
			}
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules seeded")
	return nil
}

func seedReservations(ctx context.Context, pool *pgxpool.Pool, practIDs, patientIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d reservations", count)

	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "14:00", "14:30", "15:00"}
	statuses := []string{"requested", "requested", "confirmed", "confirmed", "confirmed", "cancelled", "declined"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	for i := 0; i < count; i++ {
		practID := practIDs[gofakeit.Number(0, len(practIDs)-1)]
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		date := today.AddDate(0, 0, gofakeit.Number(1, 28))
		startTime := times[gofakeit.Number(0, len(times)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		// The active-slot unique index rejects duplicate live holds;
		// skip those rows rather than aborting the whole seed.
		_, err := tx.Exec(ctx, `
			INSERT INTO reservations (id, practitioner_id, patient_id, date, start_time, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT DO NOTHING
		`, uuid.New(), practID, patientID, date, startTime, status)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("reservations seeded")
	return nil
}
