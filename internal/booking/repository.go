package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrReservationNotFound  = errors.New("reservation not found")

	// ErrSlotUnavailable is raised when an insert loses the race for a
	// slot: the storage layer's active-slot uniqueness rejected it.
	ErrSlotUnavailable = errors.New("slot is not available")
)

// Repository contains all DB interactions needed by the coordinator and the
// availability refresher.
type Repository interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	ListActivePractitioners(ctx context.Context) ([]Practitioner, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Occupancy lookup: times held by active reservations on one date.
	ActiveTimesForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) (map[string]bool, error)

	// CreateRequested inserts an active reservation; a conflict with the
	// active-slot uniqueness constraint comes back as ErrSlotUnavailable.
	CreateRequested(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, startTime string) (*Reservation, error)

	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// UpdateStatus is a compare-and-swap: the row moves from exactly
	// `from` to `to`, or ErrReservationNotFound when no row matches.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, declineReason *string) (*Reservation, error)

	// MoveReservation cancels the old row and inserts the replacement in
	// one atomic step, so no failure can leave the caller holding neither
	// slot. A missed compare-and-swap on the old row is
	// ErrReservationNotFound; losing the new slot is ErrSlotUnavailable,
	// and the old reservation keeps its status either way.
	MoveReservation(ctx context.Context, id uuid.UUID, from Status, newDate time.Time, newStart string) (*Reservation, error)
}
