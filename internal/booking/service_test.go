package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/notify"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
)

// fakeRepo mirrors the storage semantics the coordinator relies on: the
// active-slot uniqueness check and the insert happen under one lock, like a
// unique index inside a transaction.
type fakeRepo struct {
	mu            sync.Mutex
	practitioners map[uuid.UUID]Practitioner
	patients      map[uuid.UUID]Patient
	reservations  map[uuid.UUID]*Reservation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		practitioners: make(map[uuid.UUID]Practitioner),
		patients:      make(map[uuid.UUID]Patient),
		reservations:  make(map[uuid.UUID]*Reservation),
	}
}

func (f *fakeRepo) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (f *fakeRepo) ListActivePractitioners(_ context.Context) ([]Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Practitioner
	for _, p := range f.practitioners {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (f *fakeRepo) ActiveTimesForDay(_ context.Context, practitionerID uuid.UUID, date time.Time) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeTimesLocked(practitionerID, date), nil
}

func (f *fakeRepo) activeTimesLocked(practitionerID uuid.UUID, date time.Time) map[string]bool {
	taken := make(map[string]bool)
	for _, r := range f.reservations {
		if r.PractitionerID == practitionerID && r.Date.Equal(date) && r.Status.Active() {
			taken[r.StartTime] = true
		}
	}
	return taken
}

func (f *fakeRepo) CreateRequested(_ context.Context, practitionerID, patientID uuid.UUID, date time.Time, startTime string) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeTimesLocked(practitionerID, date)[startTime] {
		return nil, ErrSlotUnavailable
	}
	now := time.Now().UTC()
	r := &Reservation{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		PatientID:      patientID,
		Date:           date,
		StartTime:      startTime,
		Status:         StatusRequested,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.reservations[r.ID] = r
	copied := *r
	return &copied, nil
}

func (f *fakeRepo) GetReservationByID(_ context.Context, id uuid.UUID) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, declineReason *string) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != from {
		return nil, ErrReservationNotFound
	}
	if to.Active() && !from.Active() {
		// Re-entering the active set hits the same uniqueness rule as an
		// insert.
		if f.activeTimesLocked(r.PractitionerID, r.Date)[r.StartTime] {
			return nil, ErrSlotUnavailable
		}
	}
	r.Status = to
	if declineReason != nil {
		r.DeclineReason = declineReason
	}
	r.UpdatedAt = time.Now().UTC()
	copied := *r
	return &copied, nil
}

func (f *fakeRepo) MoveReservation(_ context.Context, id uuid.UUID, from Status, newDate time.Time, newStart string) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, ok := f.reservations[id]
	if !ok || old.Status != from {
		return nil, ErrReservationNotFound
	}

	// Cancel and insert are checked and applied under one lock; on any
	// failure the old reservation is untouched.
	taken := f.activeTimesLocked(old.PractitionerID, newDate)
	if old.Date.Equal(newDate) {
		delete(taken, old.StartTime)
	}
	if taken[newStart] {
		return nil, ErrSlotUnavailable
	}

	now := time.Now().UTC()
	old.Status = StatusCancelled
	old.UpdatedAt = now

	r := &Reservation{
		ID:             uuid.New(),
		PractitionerID: old.PractitionerID,
		PatientID:      old.PatientID,
		Date:           newDate,
		StartTime:      newStart,
		Status:         StatusRequested,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.reservations[r.ID] = r
	copied := *r
	return &copied, nil
}

type fakeRules struct {
	templates  map[time.Weekday]schedule.WeeklyTemplate
	exceptions map[string]schedule.DateException
}

func (f *fakeRules) TemplateFor(_ context.Context, _ uuid.UUID, weekday time.Weekday) (*schedule.WeeklyTemplate, error) {
	t, ok := f.templates[weekday]
	if !ok {
		return nil, schedule.ErrTemplateNotFound
	}
	return &t, nil
}

func (f *fakeRules) TemplatesFor(_ context.Context, _ uuid.UUID) ([]schedule.WeeklyTemplate, error) {
	var out []schedule.WeeklyTemplate
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRules) ExceptionFor(_ context.Context, _ uuid.UUID, date time.Time) (*schedule.DateException, error) {
	e, ok := f.exceptions[date.Format("2006-01-02")]
	if !ok {
		return nil, schedule.ErrExceptionNotFound
	}
	return &e, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fixture struct {
	coord          *Coordinator
	repo           *fakeRepo
	rules          *fakeRules
	pub            *capturePublisher
	practitionerID uuid.UUID
	patientID      uuid.UUID
}

// Fixed clock: Wednesday 2024-05-01 08:00 UTC.
var testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// Monday within the horizon.
var monday = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	practitionerID := uuid.New()
	patientID := uuid.New()
	repo.practitioners[practitionerID] = Practitioner{ID: practitionerID, Name: "Dr. Kim", Active: true}
	repo.patients[patientID] = Patient{ID: patientID, Name: "Han"}

	rules := &fakeRules{
		templates:  make(map[time.Weekday]schedule.WeeklyTemplate),
		exceptions: make(map[string]schedule.DateException),
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		rules.templates[wd] = schedule.WeeklyTemplate{
			PractitionerID: practitionerID,
			Weekday:        wd,
			StartTime:      "09:00",
			EndTime:        "12:00",
			SlotInterval:   15,
		}
	}

	pub := &capturePublisher{}
	cfg := config.Config{
		HorizonDays:       30,
		MinLeadTime:       30 * time.Minute,
		CapClosesWholeDay: true,
	}

	coord := NewCoordinator(repo, rules, notify.NewDispatcher(pub, time.Second, zap.NewNop()), nil, zap.NewNop(), cfg)
	coord.now = func() time.Time { return testNow }

	return &fixture{coord: coord, repo: repo, rules: rules, pub: pub, practitionerID: practitionerID, patientID: patientID}
}

func (fx *fixture) waitForEvent(t *testing.T, kind string) notify.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fx.pub.mu.Lock()
		for _, ev := range fx.pub.events {
			if ev.Kind == kind {
				fx.pub.mu.Unlock()
				return ev
			}
		}
		fx.pub.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s never published", kind)
	return notify.Event{}
}

func TestBookSuccess(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	assert.Equal(t, StatusRequested, res.Status)
	assert.Equal(t, "10:00", res.StartTime)
	assert.True(t, res.Date.Equal(monday))

	ev := fx.waitForEvent(t, notify.KindReservationCreated)
	assert.Equal(t, res.ID, ev.ReservationID)
	assert.Equal(t, "2024-05-06", ev.Date)
}

func TestBookConcurrentSameSlot(t *testing.T) {
	fx := newFixture(t)

	const attempts = 8
	patients := make([]uuid.UUID, attempts)
	for i := range patients {
		id := uuid.New()
		patients[i] = id
		fx.repo.patients[id] = Patient{ID: id, Name: fmt.Sprintf("patient-%d", i)}
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.coord.Book(context.Background(), fx.practitionerID, patients[i], monday, "10:00")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, successes, "exactly one attempt may win the slot")
}

func TestBookValidationAndPolicy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:07")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "bogus")
	assert.ErrorIs(t, err, ErrValidation)

	past := testNow.AddDate(0, 0, -1)
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, past, "10:00")
	assert.ErrorIs(t, err, ErrPastDate)

	farOut := testNow.AddDate(0, 0, 31)
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, farOut, "10:00")
	assert.ErrorIs(t, err, ErrHorizonExceeded)

	_, err = fx.coord.Book(ctx, uuid.New(), fx.patientID, monday, "10:00")
	assert.ErrorIs(t, err, ErrPractitionerNotFound)

	_, err = fx.coord.Book(ctx, fx.practitionerID, uuid.New(), monday, "10:00")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestBookInactivePractitioner(t *testing.T) {
	fx := newFixture(t)
	p := fx.repo.practitioners[fx.practitionerID]
	p.Active = false
	fx.repo.practitioners[fx.practitionerID] = p

	_, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, monday, "10:00")
	assert.ErrorIs(t, err, ErrPractitionerInactive)
}

func TestBookLeadTimeToday(t *testing.T) {
	fx := newFixture(t)

	// Today is Wednesday with a template; at 10:45 a 30m lead blocks 11:00.
	fx.coord.now = func() time.Time { return time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC) }

	today := DateOnly(testNow)
	_, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, today, "11:00")
	assert.ErrorIs(t, err, ErrLeadTime)

	// 11:30 is beyond the lead window.
	_, err = fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, today, "11:30")
	assert.NoError(t, err)
}

func TestBookCapClosedDayNotReportedAsLeadTime(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.coord.now = func() time.Time { return time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC) }

	tmpl := fx.rules.templates[time.Wednesday]
	max := 1
	tmpl.DailyMax = &max
	fx.rules.templates[time.Wednesday] = tmpl

	filler := uuid.New()
	fx.repo.patients[filler] = Patient{ID: filler, Name: "filler"}
	today := DateOnly(testNow)
	_, err := fx.coord.Book(ctx, fx.practitionerID, filler, today, "11:30")
	require.NoError(t, err)

	// 11:00 sits inside the lead window, but the cap already closed the
	// day; the day-wide condition wins over the per-slot one.
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, today, "11:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookOffException(t *testing.T) {
	fx := newFixture(t)
	fx.rules.exceptions["2024-05-06"] = schedule.DateException{
		PractitionerID: fx.practitionerID,
		Date:           monday,
		Kind:           schedule.ExceptionOff,
	}

	_, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, monday, "10:00")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookDailyCapExhausted(t *testing.T) {
	fx := newFixture(t)

	tmpl := fx.rules.templates[time.Monday]
	max := 2
	tmpl.DailyMax = &max
	fx.rules.templates[time.Monday] = tmpl

	for _, at := range []string{"09:00", "09:15"} {
		pid := uuid.New()
		fx.repo.patients[pid] = Patient{ID: pid, Name: "filler"}
		_, err := fx.coord.Book(context.Background(), fx.practitionerID, pid, monday, at)
		require.NoError(t, err)
	}

	_, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, monday, "11:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	grid, err := fx.coord.ListDaySlots(context.Background(), fx.practitionerID, monday)
	require.NoError(t, err)
	assert.Zero(t, grid.AvailableCount())
	assert.Len(t, grid.Slots, 12)
}

func TestCancelIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	require.NoError(t, fx.coord.Cancel(ctx, res.ID))
	require.NoError(t, fx.coord.Cancel(ctx, res.ID))
	require.NoError(t, fx.coord.Cancel(ctx, uuid.New()))

	fx.waitForEvent(t, notify.KindReservationCancelled)

	// The slot is bookable again.
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	assert.NoError(t, err)
}

func TestCancelTerminalAndPast(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	_, err = fx.repo.UpdateStatus(ctx, res.ID, StatusRequested, StatusConfirmed, nil)
	require.NoError(t, err)
	_, err = fx.repo.UpdateStatus(ctx, res.ID, StatusConfirmed, StatusCompleted, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, fx.coord.Cancel(ctx, res.ID), ErrAlreadyProcessed)

	// A reservation dated before today cannot be cancelled.
	stale := &Reservation{
		ID:             uuid.New(),
		PractitionerID: fx.practitionerID,
		PatientID:      fx.patientID,
		Date:           testNow.AddDate(0, 0, -7),
		StartTime:      "10:00",
		Status:         StatusConfirmed,
	}
	fx.repo.reservations[stale.ID] = stale
	assert.ErrorIs(t, fx.coord.Cancel(ctx, stale.ID), ErrPastDate)
}

func TestRescheduleSuccess(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	moved, err := fx.coord.Reschedule(ctx, res.ID, monday, "11:00")
	require.NoError(t, err)
	assert.Equal(t, "11:00", moved.StartTime)

	old, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)

	// The vacated slot is open again.
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	assert.NoError(t, err)
}

func TestRescheduleFailureKeepsOriginalSlot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	blockerPatient := uuid.New()
	fx.repo.patients[blockerPatient] = Patient{ID: blockerPatient, Name: "other"}
	_, err := fx.coord.Book(ctx, fx.practitionerID, blockerPatient, monday, "11:00")
	require.NoError(t, err)

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	_, err = fx.coord.Reschedule(ctx, res.ID, monday, "11:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// The original reservation still holds its slot; the old slot was
	// never vacated, so another patient cannot grab it mid-move.
	kept, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, kept.Status)
	assert.Equal(t, "10:00", kept.StartTime)

	_, err = fx.coord.Book(ctx, fx.practitionerID, blockerPatient, monday, "10:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestRescheduleWithinCappedDay(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tmpl := fx.rules.templates[time.Monday]
	max := 1
	tmpl.DailyMax = &max
	fx.rules.templates[time.Monday] = tmpl

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	// The move does not count the vacating reservation against the cap.
	moved, err := fx.coord.Reschedule(ctx, res.ID, monday, "11:00")
	require.NoError(t, err)
	assert.Equal(t, "11:00", moved.StartTime)
}

func TestRescheduleSameSlot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	moved, err := fx.coord.Reschedule(ctx, res.ID, monday, "10:00")
	require.NoError(t, err)
	assert.Equal(t, "10:00", moved.StartTime)
	assert.NotEqual(t, res.ID, moved.ID)
}

func TestApproveAndDecline(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)

	confirmed, err := fx.coord.Approve(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Approving twice is an invalid transition.
	_, err = fx.coord.Approve(ctx, res.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = fx.coord.Approve(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrReservationNotFound)

	other, err := fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:30")
	require.NoError(t, err)

	declined, err := fx.coord.Decline(ctx, other.ID, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
	require.NotNil(t, declined.DeclineReason)
	assert.Equal(t, "schedule conflict", *declined.DeclineReason)

	// Declined reservations free their slot.
	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "10:30")
	assert.NoError(t, err)
}

func TestBookSurvivesNotifyFailure(t *testing.T) {
	fx := newFixture(t)
	fx.pub.err = errors.New("broadcast sink down")

	res, err := fx.coord.Book(context.Background(), fx.practitionerID, fx.patientID, monday, "10:00")
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, res.Status)
}

func TestListDaySlotsLive(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	grid, err := fx.coord.ListDaySlots(ctx, fx.practitionerID, monday)
	require.NoError(t, err)
	require.Len(t, grid.Slots, 12)
	assert.Equal(t, 12, grid.AvailableCount())

	_, err = fx.coord.Book(ctx, fx.practitionerID, fx.patientID, monday, "09:45")
	require.NoError(t, err)

	grid, err = fx.coord.ListDaySlots(ctx, fx.practitionerID, monday)
	require.NoError(t, err)
	assert.Equal(t, 11, grid.AvailableCount())

	slot, ok := grid.Find("09:45")
	require.True(t, ok)
	assert.False(t, slot.Available)
}
