package schedule

import "time"

type Slot struct {
	Time      string
	Available bool
}

// DaySlots is the generated grid for one practitioner and date. Off is true
// when the practitioner does not work that date at all; an off day has an
// empty grid rather than a grid of unavailable slots.
type DaySlots struct {
	Slots []Slot
	Off   bool
}

// AvailableCount reports how many slots are currently bookable.
func (d DaySlots) AvailableCount() int {
	n := 0
	for _, s := range d.Slots {
		if s.Available {
			n++
		}
	}
	return n
}

// Find returns the slot with the given start time, if it is on the grid.
func (d DaySlots) Find(timeOfDay string) (Slot, bool) {
	for _, s := range d.Slots {
		if s.Time == timeOfDay {
			return s, true
		}
	}
	return Slot{}, false
}

type GenerateOptions struct {
	MinLeadTime time.Duration
	// CapClosesWholeDay: once the day's active reservation count reaches
	// the rule's DailyMax, every remaining open slot is reported
	// unavailable. With it off the cap is ignored at generation time.
	CapClosesWholeDay bool
}

// GenerateSlots produces the ordered candidate grid for one date. It is a
// pure function of its inputs: the resolved rule, the set of times held by
// active reservations, the day's active reservation count, and the caller's
// clock. Candidate times run from the rule's start up to but excluding its
// end, stepping by the interval.
//
// A candidate is unavailable when its time is already taken, when the daily
// cap has been reached (and the cap policy closes the whole day), or when
// the date is today and the slot starts before now plus the minimum lead
// time.
func GenerateSlots(rule DayRule, taken map[string]bool, activeCount int, date, now time.Time, opts GenerateOptions) DaySlots {
	if rule.Off {
		return DaySlots{Off: true}
	}

	start, err := ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return DaySlots{}
	}
	end, err := ParseTimeOfDay(rule.EndTime)
	if err != nil || rule.SlotInterval <= 0 || start >= end {
		return DaySlots{}
	}

	capReached := rule.DailyMax != nil && activeCount >= *rule.DailyMax

	today := sameDate(date, now)
	cutoff := now.Add(opts.MinLeadTime)

	var slots []Slot
	for m := start; m < end; m += rule.SlotInterval {
		t := FormatTimeOfDay(m)
		available := !taken[t]
		if available && capReached && opts.CapClosesWholeDay {
			available = false
		}
		if available && today {
			startsAt := date.Add(time.Duration(m) * time.Minute)
			if startsAt.Before(cutoff) {
				available = false
			}
		}
		slots = append(slots, Slot{Time: t, Available: available})
	}

	return DaySlots{Slots: slots}
}

func sameDate(date, now time.Time) bool {
	y1, m1, d1 := date.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
