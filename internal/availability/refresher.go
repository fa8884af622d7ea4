package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niceverygood/maria-reservation-sub001/internal/booking"
	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/metrics"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
)

// Directory lists the practitioners whose availability gets precomputed.
type Directory interface {
	ListActivePractitioners(ctx context.Context) ([]booking.Practitioner, error)
}

// Occupancy reports the times held by active reservations for one date.
type Occupancy interface {
	ActiveTimesForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) (map[string]bool, error)
}

type ItemFailure struct {
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Date           string    `json:"date"`
	Reason         string    `json:"reason"`
}

type SweepResult struct {
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Refresher rebuilds the summary store over the booking horizon. A sweep
// tolerates per-(practitioner, date) failures: it commits every row it can
// and reports the rest. Overlapping sweeps are safe because every write is
// an idempotent upsert.
type Refresher struct {
	dir     Directory
	rules   schedule.RuleStore
	occ     Occupancy
	store   *Store
	metrics *metrics.EngineMetrics
	logger  *zap.Logger
	cfg     config.Config
	now     func() time.Time
}

func NewRefresher(dir Directory, rules schedule.RuleStore, occ Occupancy, store *Store, m *metrics.EngineMetrics, logger *zap.Logger, cfg config.Config) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		dir:     dir,
		rules:   rules,
		occ:     occ,
		store:   store,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep recomputes every (active practitioner, date) pair over
// [today, today+horizon], then prunes summaries for past dates. It errors
// only when the practitioner listing itself fails; everything narrower is
// collected in the result.
func (r *Refresher) Sweep(ctx context.Context) (SweepResult, error) {
	now := r.now()
	today := booking.DateOnly(now)

	practs, err := r.dir.ListActivePractitioners(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list practitioners: %w", err)
	}

	opts := schedule.GenerateOptions{
		MinLeadTime:       r.cfg.MinLeadTime,
		CapClosesWholeDay: r.cfg.CapClosesWholeDay,
	}

	var result SweepResult
	for _, pract := range practs {
		for offset := 0; offset <= r.cfg.HorizonDays; offset++ {
			date := today.AddDate(0, 0, offset)
			if err := r.refreshOne(ctx, pract.ID, date, now, opts); err != nil {
				result.Failures = append(result.Failures, ItemFailure{
					PractitionerID: pract.ID,
					Date:           date.Format(dateLayout),
					Reason:         err.Error(),
				})
				continue
			}
			result.Updated++
		}

		deleted, err := r.store.DeleteBefore(ctx, pract.ID, today)
		if err != nil {
			result.Failures = append(result.Failures, ItemFailure{
				PractitionerID: pract.ID,
				Date:           today.Format(dateLayout),
				Reason:         fmt.Sprintf("prune: %v", err),
			})
			continue
		}
		result.Deleted += deleted
	}

	outcome := "ok"
	if len(result.Failures) > 0 {
		outcome = "partial"
	}
	r.metrics.ObserveSweep(outcome, len(result.Failures))
	r.logger.Info("availability sweep complete",
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("failures", len(result.Failures)),
	)

	return result, nil
}

func (r *Refresher) refreshOne(ctx context.Context, practitionerID uuid.UUID, date, now time.Time, opts schedule.GenerateOptions) error {
	rule, err := schedule.Resolve(ctx, r.rules, practitionerID, date)
	if err != nil {
		return err
	}

	taken, err := r.occ.ActiveTimesForDay(ctx, practitionerID, date)
	if err != nil {
		return err
	}

	grid := schedule.GenerateSlots(rule, taken, len(taken), date, now, opts)

	return r.store.Put(ctx, DailySummary{
		PractitionerID: practitionerID,
		Date:           date,
		AvailableCount: grid.AvailableCount(),
		Off:            grid.Off,
		ComputedAt:     now,
	})
}

// Run sweeps once immediately, then on every tick until the context ends.
func (r *Refresher) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping availability refresher")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	if _, err := r.Sweep(runCtx); err != nil {
		r.logger.Error("availability sweep failed", zap.Error(err))
		return
	}
	r.logger.Debug("availability sweep finished", zap.Duration("took", time.Since(start)))
}
