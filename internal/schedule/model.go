package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExceptionKind string

// Kind values match the date_exceptions.kind CHECK constraint; a scanned
// row compares against these directly.
const (
	ExceptionOff    ExceptionKind = "off"
	ExceptionCustom ExceptionKind = "custom"
)

// WeeklyTemplate is the recurring availability rule for one practitioner on
// one day of the week. At most one active template exists per
// (practitioner, weekday).
type WeeklyTemplate struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Weekday        time.Weekday
	StartTime      string // "HH:MM"
	EndTime        string // "HH:MM"
	SlotInterval   int    // minutes
	DailyMax       *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DateException overrides the weekly template for a single calendar date.
// An OFF exception closes the day; a CUSTOM exception carries its own work
// window and fully replaces the template, no merging.
type DateException struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Date           time.Time
	Kind           ExceptionKind
	StartTime      string
	EndTime        string
	SlotInterval   int
	DailyMax       *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DayRule is the resolved working rule for one practitioner on one date.
// Off covers both an explicit OFF exception and a weekday with no template.
type DayRule struct {
	Off          bool
	StartTime    string
	EndTime      string
	SlotInterval int
	DailyMax     *int
}

// ResolveDayRule applies the precedence rules: an exception, when present,
// fully supersedes the template; with neither, the practitioner is not
// working that date.
func ResolveDayRule(tmpl *WeeklyTemplate, exc *DateException) DayRule {
	if exc != nil {
		if exc.Kind == ExceptionOff {
			return DayRule{Off: true}
		}
		return DayRule{
			StartTime:    exc.StartTime,
			EndTime:      exc.EndTime,
			SlotInterval: exc.SlotInterval,
			DailyMax:     exc.DailyMax,
		}
	}
	if tmpl == nil {
		return DayRule{Off: true}
	}
	return DayRule{
		StartTime:    tmpl.StartTime,
		EndTime:      tmpl.EndTime,
		SlotInterval: tmpl.SlotInterval,
		DailyMax:     tmpl.DailyMax,
	}
}

// ParseTimeOfDay parses a "HH:MM" time-of-day into minutes from midnight.
func ParseTimeOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if len(s) != 5 || s[2] != ':' || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}

// FormatTimeOfDay renders minutes from midnight as "HH:MM".
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
