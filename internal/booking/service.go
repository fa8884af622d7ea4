package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/metrics"
	"github.com/niceverygood/maria-reservation-sub001/internal/notify"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
)

var (
	ErrValidation           = errors.New("invalid booking input")
	ErrPastDate             = errors.New("date is in the past")
	ErrHorizonExceeded      = errors.New("date is beyond the booking horizon")
	ErrLeadTime             = errors.New("slot starts below the minimum lead time")
	ErrPractitionerInactive = errors.New("practitioner is not active")
	ErrAlreadyProcessed     = errors.New("reservation is already in a terminal state")
)

// Coordinator owns every reservation state change. Availability for a
// booking decision is always re-derived live inside the operation; the
// summary cache is never consulted here.
type Coordinator struct {
	repo       Repository
	rules      schedule.RuleStore
	dispatcher *notify.Dispatcher
	metrics    *metrics.EngineMetrics
	logger     *zap.Logger
	cfg        config.Config
	now        func() time.Time
}

func NewCoordinator(repo Repository, rules schedule.RuleStore, dispatcher *notify.Dispatcher, m *metrics.EngineMetrics, logger *zap.Logger, cfg config.Config) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		repo:       repo,
		rules:      rules,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DateOnly truncates a timestamp to its calendar date at midnight UTC. All
// reservation dates are handled on this basis.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Coordinator) genOptions() schedule.GenerateOptions {
	return schedule.GenerateOptions{
		MinLeadTime:       c.cfg.MinLeadTime,
		CapClosesWholeDay: c.cfg.CapClosesWholeDay,
	}
}

func (c *Coordinator) validateDate(date, today time.Time) error {
	if date.Before(today) {
		return ErrPastDate
	}
	if date.After(today.AddDate(0, 0, c.cfg.HorizonDays)) {
		return ErrHorizonExceeded
	}
	return nil
}

// ListDaySlots returns the live slot grid for one practitioner and date,
// recomputed from the schedule rules and current occupancy.
func (c *Coordinator) ListDaySlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) (schedule.DaySlots, error) {
	now := c.now()
	date = DateOnly(date)

	if err := c.validateDate(date, DateOnly(now)); err != nil {
		return schedule.DaySlots{}, err
	}

	pract, err := c.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return schedule.DaySlots{}, err
		}
		return schedule.DaySlots{}, fmt.Errorf("load practitioner: %w", err)
	}
	if !pract.Active {
		return schedule.DaySlots{}, ErrPractitionerInactive
	}

	rule, err := schedule.Resolve(ctx, c.rules, practitionerID, date)
	if err != nil {
		return schedule.DaySlots{}, err
	}

	taken, err := c.repo.ActiveTimesForDay(ctx, practitionerID, date)
	if err != nil {
		return schedule.DaySlots{}, fmt.Errorf("load occupancy: %w", err)
	}

	return schedule.GenerateSlots(rule, taken, len(taken), date, now, c.genOptions()), nil
}

// ensureBookable runs every pre-insert check for a booking target: input
// shape, date window, practitioner and patient existence, and a live slot
// grid lookup. ignore, when set, is a reservation about to vacate its slot
// in the same operation; it is excluded from occupancy so moving within a
// day or back to the same time does not collide with itself.
func (c *Coordinator) ensureBookable(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, timeOfDay string, ignore *Reservation) error {
	now := c.now()
	today := DateOnly(now)

	minutes, err := schedule.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := c.validateDate(date, today); err != nil {
		return err
	}

	pract, err := c.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return err
		}
		return fmt.Errorf("load practitioner: %w", err)
	}
	if !pract.Active {
		return ErrPractitionerInactive
	}

	if _, err := c.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return err
		}
		return fmt.Errorf("load patient: %w", err)
	}

	rule, err := schedule.Resolve(ctx, c.rules, practitionerID, date)
	if err != nil {
		return err
	}
	taken, err := c.repo.ActiveTimesForDay(ctx, practitionerID, date)
	if err != nil {
		return fmt.Errorf("load occupancy: %w", err)
	}
	if ignore != nil && ignore.Date.Equal(date) {
		delete(taken, ignore.StartTime)
	}

	grid := schedule.GenerateSlots(rule, taken, len(taken), date, now, c.genOptions())
	slot, onGrid := grid.Find(timeOfDay)
	if !onGrid {
		return fmt.Errorf("%w: %s is not a bookable time that day", ErrValidation, timeOfDay)
	}
	if !slot.Available {
		capClosed := c.cfg.CapClosesWholeDay && rule.DailyMax != nil && len(taken) >= *rule.DailyMax
		if date.Equal(today) && !capClosed && !taken[timeOfDay] {
			startsAt := date.Add(time.Duration(minutes) * time.Minute)
			if startsAt.Before(now.Add(c.cfg.MinLeadTime)) {
				return ErrLeadTime
			}
		}
		c.metrics.ObserveBooking("slot_unavailable")
		return ErrSlotUnavailable
	}

	return nil
}

// Book reserves (practitioner, date, time) for a patient. The availability
// check and the insert resolve against the storage layer's active-slot
// uniqueness, so two concurrent attempts for the same slot cannot both
// succeed: the loser gets ErrSlotUnavailable and can re-fetch and retry.
func (c *Coordinator) Book(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, timeOfDay string) (*Reservation, error) {
	date = DateOnly(date)

	if err := c.ensureBookable(ctx, practitionerID, patientID, date, timeOfDay, nil); err != nil {
		return nil, err
	}

	res, err := c.repo.CreateRequested(ctx, practitionerID, patientID, date, timeOfDay)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			// Lost the race after the live check passed.
			c.metrics.ObserveBooking("slot_unavailable")
			c.metrics.ObserveSlotConflict()
			return nil, err
		}
		c.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	c.metrics.ObserveBooking("created")
	c.publish(notify.KindReservationCreated, res)

	return res, nil
}

// Cancel releases an active reservation. It is idempotent: cancelling an
// absent or already cancelled reservation succeeds, since callers may act
// on a stale view.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) error {
	res, err := c.repo.GetReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			c.logger.Debug("cancel of unknown reservation treated as no-op", zap.String("reservation_id", id.String()))
			return nil
		}
		return fmt.Errorf("load reservation: %w", err)
	}

	switch res.Status {
	case StatusCancelled, StatusDeclined:
		return nil
	case StatusCompleted, StatusNoShow:
		return ErrAlreadyProcessed
	}

	if res.Date.Before(DateOnly(c.now())) {
		return ErrPastDate
	}

	updated, err := c.repo.UpdateStatus(ctx, id, res.Status, StatusCancelled, nil)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			// Someone else transitioned it between our read and write.
			current, gerr := c.repo.GetReservationByID(ctx, id)
			if gerr == nil && (current.Status == StatusCancelled || current.Status == StatusDeclined) {
				return nil
			}
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("cancel reservation: %w", err)
	}

	c.publish(notify.KindReservationCancelled, updated)
	return nil
}

// Reschedule moves an active reservation to a new slot. The cancel of the
// old row and the insert of the new one commit atomically in the storage
// layer, so a failed move leaves the original reservation holding its slot.
func (c *Coordinator) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (*Reservation, error) {
	res, err := c.repo.GetReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if !res.Status.Active() {
		return nil, ErrAlreadyProcessed
	}
	prior := res.Status
	newDate = DateOnly(newDate)

	if err := c.ensureBookable(ctx, res.PractitionerID, res.PatientID, newDate, newTime, res); err != nil {
		return nil, err
	}

	created, err := c.repo.MoveReservation(ctx, id, prior, newDate, newTime)
	if err != nil {
		switch {
		case errors.Is(err, ErrReservationNotFound):
			// Someone else transitioned the old row between our read and
			// the move.
			return nil, ErrAlreadyProcessed
		case errors.Is(err, ErrSlotUnavailable):
			// Lost the race for the new slot after the live check passed.
			c.metrics.ObserveBooking("slot_unavailable")
			c.metrics.ObserveSlotConflict()
			return nil, err
		}
		return nil, fmt.Errorf("move reservation: %w", err)
	}

	c.metrics.ObserveBooking("created")

	cancelled := *res
	cancelled.Status = StatusCancelled
	c.publish(notify.KindReservationCancelled, &cancelled)
	c.publish(notify.KindReservationCreated, created)

	return created, nil
}

// Approve moves a requested reservation to confirmed. The slot was already
// claimed at request time, so this is a pure status transition.
func (c *Coordinator) Approve(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	updated, err := c.repo.UpdateStatus(ctx, id, StatusRequested, StatusConfirmed, nil)
	if err != nil {
		return nil, c.transitionError(ctx, id, err)
	}
	c.publish(notify.KindReservationConfirmed, updated)
	return updated, nil
}

// Decline moves a requested reservation to declined, recording the audit
// reason.
func (c *Coordinator) Decline(ctx context.Context, id uuid.UUID, reason string) (*Reservation, error) {
	var declineReason *string
	if reason != "" {
		declineReason = &reason
	}

	updated, err := c.repo.UpdateStatus(ctx, id, StatusRequested, StatusDeclined, declineReason)
	if err != nil {
		return nil, c.transitionError(ctx, id, err)
	}
	c.publish(notify.KindReservationDeclined, updated)
	return updated, nil
}

// Get retrieves a reservation by ID.
func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	res, err := c.repo.GetReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// ListActivePractitioners is used by calendar views that span the whole
// directory.
func (c *Coordinator) ListActivePractitioners(ctx context.Context) ([]Practitioner, error) {
	practs, err := c.repo.ListActivePractitioners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return practs, nil
}

// transitionError tells a missing reservation apart from one in the wrong
// state, since the CAS update reports both the same way.
func (c *Coordinator) transitionError(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, ErrReservationNotFound) {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if _, gerr := c.repo.GetReservationByID(ctx, id); errors.Is(gerr, ErrReservationNotFound) {
		return ErrReservationNotFound
	}
	return ErrAlreadyProcessed
}

func (c *Coordinator) publish(kind string, res *Reservation) {
	c.dispatcher.Dispatch(notify.Event{
		Kind:           kind,
		ReservationID:  res.ID,
		PractitionerID: res.PractitionerID,
		Date:           res.Date.Format("2006-01-02"),
		Time:           res.StartTime,
	})
}
