package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRuleStore struct {
	db Querier
}

func NewPgRuleStore(db Querier) *PgRuleStore {
	return &PgRuleStore{db: db}
}

func scanTemplate(row pgx.Row) (*WeeklyTemplate, error) {
	var t WeeklyTemplate
	var weekday int
	var dailyMax *int

	err := row.Scan(
		&t.ID,
		&t.PractitionerID,
		&weekday,
		&t.StartTime,
		&t.EndTime,
		&t.SlotInterval,
		&dailyMax,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekday = time.Weekday(weekday)
	t.DailyMax = normalizeDailyMax(dailyMax)
	return &t, nil
}

// normalizeDailyMax maps the stored value to the model's "nil = no cap"
// convention. Zero rows predate the nullable column and also mean uncapped.
func normalizeDailyMax(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func scanException(row pgx.Row) (*DateException, error) {
	var e DateException
	var startTime, endTime *string
	var interval *int
	var dailyMax *int

	err := row.Scan(
		&e.ID,
		&e.PractitionerID,
		&e.Date,
		&e.Kind,
		&startTime,
		&endTime,
		&interval,
		&dailyMax,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	// OFF exceptions carry no work window.
	if startTime != nil {
		e.StartTime = *startTime
	}
	if endTime != nil {
		e.EndTime = *endTime
	}
	if interval != nil {
		e.SlotInterval = *interval
	}
	e.DailyMax = normalizeDailyMax(dailyMax)
	return &e, nil
}

func (s *PgRuleStore) TemplateFor(ctx context.Context, practitionerID uuid.UUID, weekday time.Weekday) (*WeeklyTemplate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, practitioner_id, weekday, start_time, end_time, slot_interval_minutes, daily_max, created_at, updated_at
		FROM weekly_templates
		WHERE practitioner_id = $1 AND weekday = $2
	`, practitionerID, int(weekday))
	return scanTemplate(row)
}

func (s *PgRuleStore) TemplatesFor(ctx context.Context, practitionerID uuid.UUID) ([]WeeklyTemplate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, practitioner_id, weekday, start_time, end_time, slot_interval_minutes, daily_max, created_at, updated_at
		FROM weekly_templates
		WHERE practitioner_id = $1
		ORDER BY weekday
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgRuleStore) ExceptionFor(ctx context.Context, practitionerID uuid.UUID, date time.Time) (*DateException, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, practitioner_id, date, kind, start_time, end_time, slot_interval_minutes, daily_max, created_at, updated_at
		FROM date_exceptions
		WHERE practitioner_id = $1 AND date = $2
	`, practitionerID, date)
	return scanException(row)
}
