package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/niceverygood/maria-reservation-sub001/internal/availability"
	"github.com/niceverygood/maria-reservation-sub001/internal/booking"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
)

// BookingService is the coordinator surface the handlers need.
type BookingService interface {
	ListDaySlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) (schedule.DaySlots, error)
	Book(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, timeOfDay string) (*booking.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (*booking.Reservation, error)
	Approve(ctx context.Context, id uuid.UUID) (*booking.Reservation, error)
	Decline(ctx context.Context, id uuid.UUID, reason string) (*booking.Reservation, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Reservation, error)
	ListActivePractitioners(ctx context.Context) ([]booking.Practitioner, error)
}

// SummaryReader serves precomputed calendar counts.
type SummaryReader interface {
	GetRange(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]availability.DailySummary, error)
}

// Sweeper triggers an on-demand availability refresh.
type Sweeper interface {
	Sweep(ctx context.Context) (availability.SweepResult, error)
}

const dateLayout = "2006-01-02"

func parseDateParam(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		date, err := parseDateParam(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		grid, err := svc.ListDaySlots(r.Context(), practitionerID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := DaySlotsResponse{
			PractitionerID: practitionerID,
			Date:           date.Format(dateLayout),
			Off:            grid.Off,
			Slots:          make([]SlotResponse, 0, len(grid.Slots)),
			Total:          len(grid.Slots),
			Available:      grid.AvailableCount(),
		}
		for _, s := range grid.Slots {
			resp.Slots = append(resp.Slots, SlotResponse{Time: s.Time, Available: s.Available})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := parseDateParam(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Book(r.Context(), practitionerID, patientID, date, req.Time)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func getReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		res, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func cancelReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func rescheduleReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date, err := parseDateParam(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Reschedule(r.Context(), id, date, req.Time)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func approveReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		res, err := svc.Approve(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func declineReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		var req DeclineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.Decline(r.Context(), id, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func calendarRange(r *http.Request) (from, to time.Time, err error) {
	from, err = parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		return
	}
	to, err = parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		return
	}
	if to.Before(from) {
		err = errors.New("to is before from")
	}
	return
}

func practitionerCalendarHandler(summaries SummaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		from, to, err := calendarRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from/to must be YYYY-MM-DD with from <= to")
			return
		}

		rows, err := summaries.GetRange(r.Context(), practitionerID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, CalendarResponse{
			PractitionerID: practitionerID,
			Advisory:       true,
			Days:           toCalendarDays(rows),
		})
	}
}

func allCalendarHandler(svc BookingService, summaries SummaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := calendarRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from/to must be YYYY-MM-DD with from <= to")
			return
		}

		practs, err := svc.ListActivePractitioners(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := AllCalendarResponse{Advisory: true, Practitioners: make([]PractitionerCalendar, 0, len(practs))}
		for _, p := range practs {
			rows, err := summaries.GetRange(r.Context(), p.ID, from, to)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			resp.Practitioners = append(resp.Practitioners, PractitionerCalendar{
				PractitionerID: p.ID,
				Name:           p.Name,
				Days:           toCalendarDays(rows),
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func toCalendarDays(rows []availability.DailySummary) []CalendarDayResponse {
	days := make([]CalendarDayResponse, 0, len(rows))
	for _, row := range rows {
		days = append(days, CalendarDayResponse{
			Date:           row.Date.Format(dateLayout),
			AvailableCount: row.AvailableCount,
			Off:            row.Off,
			ComputedAt:     row.ComputedAt,
		})
	}
	return days
}

func refreshHandler(sweeper Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := sweeper.Sweep(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "refresh_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, booking.ErrHorizonExceeded):
		writeError(w, http.StatusBadRequest, "horizon_exceeded", err.Error())
	case errors.Is(err, booking.ErrLeadTime):
		writeError(w, http.StatusBadRequest, "lead_time_violation", err.Error())
	case errors.Is(err, booking.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, booking.ErrPractitionerInactive):
		writeError(w, http.StatusConflict, "practitioner_inactive", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot was taken, re-fetch availability and retry")
	case errors.Is(err, booking.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "already_processed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
