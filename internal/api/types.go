package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/niceverygood/maria-reservation-sub001/internal/booking"
)

type CreateReservationRequest struct {
	PractitionerID string `json:"practitioner_id"`
	PatientID      string `json:"patient_id"`
	Date           string `json:"date"` // YYYY-MM-DD
	Time           string `json:"time"` // HH:MM
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

type ReservationResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Status         string    `json:"status"`
	DeclineReason  *string   `json:"decline_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toReservationResponse(r *booking.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:             r.ID,
		PractitionerID: r.PractitionerID,
		PatientID:      r.PatientID,
		Date:           r.Date.Format("2006-01-02"),
		Time:           r.StartTime,
		Status:         string(r.Status),
		DeclineReason:  r.DeclineReason,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type SlotResponse struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type DaySlotsResponse struct {
	PractitionerID uuid.UUID      `json:"practitioner_id"`
	Date           string         `json:"date"`
	Off            bool           `json:"off"`
	Slots          []SlotResponse `json:"slots"`
	Total          int            `json:"total"`
	Available      int            `json:"available"`
}

type CalendarDayResponse struct {
	Date           string    `json:"date"`
	AvailableCount int       `json:"available_count"`
	Off            bool      `json:"off"`
	ComputedAt     time.Time `json:"computed_at"`
}

// CalendarResponse rows come from the summary cache: advisory data that may
// lag live availability by up to one refresh cycle.
type CalendarResponse struct {
	PractitionerID uuid.UUID             `json:"practitioner_id"`
	Advisory       bool                  `json:"advisory"`
	Days           []CalendarDayResponse `json:"days"`
}

type AllCalendarResponse struct {
	Advisory      bool                   `json:"advisory"`
	Practitioners []PractitionerCalendar `json:"practitioners"`
}

type PractitionerCalendar struct {
	PractitionerID uuid.UUID             `json:"practitioner_id"`
	Name           string                `json:"name"`
	Days           []CalendarDayResponse `json:"days"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
