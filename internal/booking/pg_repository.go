package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Querier is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db Querier
}

func NewPgRepository(db Querier) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var declineReason *string

	err := row.Scan(
		&r.ID,
		&r.PractitionerID,
		&r.PatientID,
		&r.Date,
		&r.StartTime,
		&r.Status,
		&declineReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	r.DeclineReason = declineReason
	return &r, nil
}

// Interface methods

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) ListActivePractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM practitioners
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ActiveTimesForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time
		FROM reservations
		WHERE practitioner_id = $1
		  AND date = $2
		  AND status IN ('requested', 'confirmed')
	`, practitionerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		taken[t] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return taken, nil
}

func (r *PgRepository) CreateRequested(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, startTime string) (*Reservation, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO reservations (id, practitioner_id, patient_id, date, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'requested', now(), now())
		RETURNING id, practitioner_id, patient_id, date, start_time, status, decline_reason, created_at, updated_at
	`, id, practitionerID, patientID, date, startTime)

	res, err := scanReservation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	return res, nil
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, practitioner_id, patient_id, date, start_time, status, decline_reason, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) MoveReservation(ctx context.Context, id uuid.UUID, from Status, newDate time.Time, newStart string) (*Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}

	res, err := moveInTx(ctx, tx, id, from, newDate, newStart)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func moveInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from Status, newDate time.Time, newStart string) (*Reservation, error) {
	var practitionerID, patientID uuid.UUID
	err := tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING practitioner_id, patient_id
	`, id, from).Scan(&practitionerID, &patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	// The cancel above already removed the old row from the active-slot
	// index inside this transaction, so a same-slot move cannot collide
	// with itself.
	row := tx.QueryRow(ctx, `
		INSERT INTO reservations (id, practitioner_id, patient_id, date, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'requested', now(), now())
		RETURNING id, practitioner_id, patient_id, date, start_time, status, decline_reason, created_at, updated_at
	`, uuid.New(), practitionerID, patientID, newDate, newStart)

	res, err := scanReservation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return res, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, declineReason *string) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE reservations
		SET status = $2,
		    decline_reason = COALESCE($4, decline_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, practitioner_id, patient_id, date, start_time, status, decline_reason, created_at, updated_at
	`, id, to, from, declineReason)

	return scanReservation(row)
}
