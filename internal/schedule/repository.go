package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound  = errors.New("weekly template not found")
	ErrExceptionNotFound = errors.New("date exception not found")
)

// RuleStore is the engine's read-only view onto the administratively managed
// weekly templates and date exceptions.
type RuleStore interface {
	TemplateFor(ctx context.Context, practitionerID uuid.UUID, weekday time.Weekday) (*WeeklyTemplate, error)
	TemplatesFor(ctx context.Context, practitionerID uuid.UUID) ([]WeeklyTemplate, error)
	ExceptionFor(ctx context.Context, practitionerID uuid.UUID, date time.Time) (*DateException, error)
}

// Resolve loads the rule governing one practitioner+date: the exception for
// the date when present, else the template for the date's weekday, else an
// off day. Not-found on either lookup is part of normal resolution, not an
// error.
func Resolve(ctx context.Context, store RuleStore, practitionerID uuid.UUID, date time.Time) (DayRule, error) {
	exc, err := store.ExceptionFor(ctx, practitionerID, date)
	if err != nil && !errors.Is(err, ErrExceptionNotFound) {
		return DayRule{}, fmt.Errorf("load date exception: %w", err)
	}
	if exc != nil {
		return ResolveDayRule(nil, exc), nil
	}

	tmpl, err := store.TemplateFor(ctx, practitionerID, date.Weekday())
	if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return DayRule{}, fmt.Errorf("load weekly template: %w", err)
	}
	return ResolveDayRule(tmpl, nil), nil
}
