package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDeclined  Status = "declined"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the reservation still occupies its slot. A
// requested reservation holds the slot just like a confirmed one.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDeclined, StatusNoShow:
		return true
	}
	return false
}

type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Reservation struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time // calendar date, midnight UTC
	StartTime      string    // "HH:MM"
	Status         Status
	DeclineReason  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
