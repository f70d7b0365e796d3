package availability

import (
	"slices"
	"time"
)

// Booking is an existing appointment as seen by the slot computer.
type Booking struct {
	ID      string
	At      time.Time
	Holding bool
}

type Slot struct {
	Time     string `json:"time"`
	IsBooked bool   `json:"isBooked"`
}

// Calendar projects instants onto the single local zone the church runs in.
type Calendar struct {
	Loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{Loc: loc}
}

func (c Calendar) loc() *time.Location {
	if c.Loc == nil {
		return time.Local
	}
	return c.Loc
}

func (c Calendar) Weekday(t time.Time) string {
	return WeekdayName(t.In(c.loc()).Weekday())
}

// Clock renders the zero-padded 24h "HH:MM" of t.
func (c Calendar) Clock(t time.Time) string {
	return t.In(c.loc()).Format("15:04")
}

func (c Calendar) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(c.loc()).Date()
	by, bm, bd := b.In(c.loc()).Date()
	return ay == by && am == bm && ad == bd
}

// At combines a calendar day with an "HH:MM" clock string.
func (c Calendar) At(day time.Time, clock string) (time.Time, bool) {
	hm, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.In(c.loc()).Date()
	return time.Date(y, m, d, hm.Hour(), hm.Minute(), 0, 0, c.loc()), true
}

// Compute lists the base slots of target's weekday, flagging the ones
// consumed by a holding booking on the same calendar day. Bookings with a
// zero time are ignored. The result is sorted by time of day.
func (c Calendar) Compute(weekly Weekly, target time.Time, existing []Booking) []Slot {
	base := weekly.Get(c.Weekday(target))
	if len(base) == 0 {
		return []Slot{}
	}

	consumed := c.consumed(target, existing)
	slots := make([]Slot, 0, len(base))
	for _, s := range base {
		_, booked := consumed[s]
		slots = append(slots, Slot{Time: s, IsBooked: booked})
	}
	slices.SortFunc(slots, func(a, b Slot) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return slots
}

func (c Calendar) consumed(target time.Time, existing []Booking) map[string]struct{} {
	out := make(map[string]struct{})
	for _, b := range existing {
		if !b.Holding || b.At.IsZero() {
			continue
		}
		if !c.SameDay(b.At, target) {
			continue
		}
		out[c.Clock(b.At)] = struct{}{}
	}
	return out
}

// IsFree reports whether at is a configured slot not consumed by any holding
// booking. This is the commit time check; callers exclude the appointment
// being moved from existing.
func (c Calendar) IsFree(weekly Weekly, at time.Time, existing []Booking) bool {
	clock := c.Clock(at)
	for _, s := range c.Compute(weekly, at, existing) {
		if s.Time == clock {
			return !s.IsBooked
		}
	}
	return false
}

// Collides reports whether any holding booking sits at exactly the same
// local day and clock as at, regardless of configured availability.
func (c Calendar) Collides(at time.Time, existing []Booking) bool {
	_, taken := c.consumed(at, existing)[c.Clock(at)]
	return taken
}
