// Package availability precomputes daily slot counts for calendar views.
// The summary data is advisory: it may lag the true state by up to one
// refresh cycle and is never consulted for a booking decision.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dateLayout = "2006-01-02"

// ErrSummaryMiss means no summary has been computed for that
// (practitioner, date); callers should render "unknown", not zero.
var ErrSummaryMiss = errors.New("availability summary not computed")

type DailySummary struct {
	PractitionerID uuid.UUID
	Date           time.Time
	AvailableCount int
	Off            bool
	ComputedAt     time.Time
}

// summaryRecord is the redis hash-field payload.
type summaryRecord struct {
	Count      int       `json:"count"`
	Off        bool      `json:"off"`
	ComputedAt time.Time `json:"computed_at"`
}

// Store keeps one redis hash per practitioner, keyed avail:<uuid>, with one
// field per date. The hash TTL is refreshed on every write so abandoned
// practitioners age out on their own.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func summaryKey(practitionerID uuid.UUID) string {
	return "avail:" + practitionerID.String()
}

func (s *Store) Get(ctx context.Context, practitionerID uuid.UUID, date time.Time) (DailySummary, error) {
	raw, err := s.client.HGet(ctx, summaryKey(practitionerID), date.Format(dateLayout)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DailySummary{}, ErrSummaryMiss
		}
		return DailySummary{}, fmt.Errorf("read summary: %w", err)
	}
	return decodeSummary(practitionerID, date, raw)
}

// GetRange returns the summaries present for [from, to] inclusive, in date
// order. Dates without a computed summary are simply absent.
func (s *Store) GetRange(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]DailySummary, error) {
	var fields []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		fields = append(fields, d.Format(dateLayout))
	}
	if len(fields) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, summaryKey(practitionerID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("read summary range: %w", err)
	}

	var result []DailySummary
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // field not computed
		}
		date, _ := time.Parse(dateLayout, fields[i])
		summary, err := decodeSummary(practitionerID, date, raw)
		if err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, nil
}

// Put upserts one summary row. Writes are idempotent per
// (practitioner, date), which is what makes overlapping refresh runs safe.
func (s *Store) Put(ctx context.Context, summary DailySummary) error {
	payload, err := json.Marshal(summaryRecord{
		Count:      summary.AvailableCount,
		Off:        summary.Off,
		ComputedAt: summary.ComputedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	key := summaryKey(summary.PractitionerID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, summary.Date.Format(dateLayout), payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// DeleteBefore removes summaries for dates strictly before the cutoff and
// reports how many were dropped.
func (s *Store) DeleteBefore(ctx context.Context, practitionerID uuid.UUID, cutoff time.Time) (int, error) {
	key := summaryKey(practitionerID)
	fields, err := s.client.HKeys(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("list summary dates: %w", err)
	}

	// "YYYY-MM-DD" orders lexicographically.
	limit := cutoff.Format(dateLayout)
	var stale []string
	for _, f := range fields {
		if f < limit {
			stale = append(stale, f)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := s.client.HDel(ctx, key, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("prune summaries: %w", err)
	}
	return int(removed), nil
}

func decodeSummary(practitionerID uuid.UUID, date time.Time, raw string) (DailySummary, error) {
	var rec summaryRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return DailySummary{}, fmt.Errorf("decode summary: %w", err)
	}
	return DailySummary{
		PractitionerID: practitionerID,
		Date:           date,
		AvailableCount: rec.Count,
		Off:            rec.Off,
		ComputedAt:     rec.ComputedAt,
	}, nil
}
