package availability

import (
	"testing"
	"time"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func monday(hour, minute int) time.Time {
	// 2024-01-08 is a Monday.
	return time.Date(2024, 1, 8, hour, minute, 0, 0, saoPaulo)
}

func TestCompute_ScenarioA(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"09:00", "10:00"}}
	existing := []Booking{{ID: "a1", At: monday(9, 0), Holding: true}}

	slots := cal.Compute(weekly, monday(0, 0), existing)
	want := []Slot{{Time: "09:00", IsBooked: true}, {Time: "10:00", IsBooked: false}}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: got %+v, want %+v", i, slots[i], want[i])
		}
	}
}

func TestCompute_NonHoldingBookingsDoNotBlock(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"09:00"}}
	existing := []Booking{
		{ID: "canceled", At: monday(9, 0), Holding: false},
		{ID: "queued", At: monday(9, 0), Holding: false},
	}
	slots := cal.Compute(weekly, monday(0, 0), existing)
	if len(slots) != 1 || slots[0].IsBooked {
		t.Fatalf("non-holding bookings blocked the slot: %v", slots)
	}
	if !cal.IsFree(weekly, monday(9, 0), existing) {
		t.Fatal("IsFree should be true")
	}
}

func TestCompute_SortsAndDeduplicates(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"14:00", "08:30", "14:00", " 10:00 "}}
	slots := cal.Compute(weekly, monday(12, 0), nil)
	got := make([]string, 0, len(slots))
	for _, s := range slots {
		got = append(got, s.Time)
	}
	if len(got) != 3 || got[0] != "08:30" || got[1] != "10:00" || got[2] != "14:00" {
		t.Fatalf("unexpected slots: %v", got)
	}
}

func TestCompute_EmptyCases(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	if got := cal.Compute(nil, monday(0, 0), nil); got == nil || len(got) != 0 {
		t.Fatalf("nil availability should yield empty non-nil list, got %v", got)
	}
	if got := cal.Compute(Weekly{Tuesday: {"09:00"}}, monday(0, 0), nil); len(got) != 0 {
		t.Fatalf("unconfigured weekday should yield no slots, got %v", got)
	}
}

func TestCompute_OtherDaysAndInvalidDatesIgnored(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"09:00"}}
	existing := []Booking{
		{ID: "next-week", At: monday(9, 0).AddDate(0, 0, 7), Holding: true},
		{ID: "corrupt", At: time.Time{}, Holding: true},
	}
	if slots := cal.Compute(weekly, monday(0, 0), existing); slots[0].IsBooked {
		t.Fatal("booking on another day blocked the slot")
	}
}

func TestCompute_ProjectsIntoCalendarZone(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"09:00"}}
	// 12:00 UTC is 09:00 in São Paulo.
	existing := []Booking{{ID: "utc", At: time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC), Holding: true}}
	if slots := cal.Compute(weekly, monday(0, 0), existing); !slots[0].IsBooked {
		t.Fatal("booking stored in UTC was not projected to local time")
	}
}

func TestNeverFreeWhenHoldingBookingCollides(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Weekly{Monday: {"08:00", "09:00", "10:00", "11:00"}}
	for _, clock := range weekly[Monday] {
		at, ok := cal.At(monday(0, 0), clock)
		if !ok {
			t.Fatalf("At(%s) failed", clock)
		}
		existing := []Booking{{At: at, Holding: true}}
		for _, s := range cal.Compute(weekly, at, existing) {
			if s.Time == clock && !s.IsBooked {
				t.Fatalf("slot %s marked free despite holding booking", clock)
			}
		}
		if cal.IsFree(weekly, at, existing) || !cal.Collides(at, existing) {
			t.Fatalf("slot %s should not be free", clock)
		}
	}
}

func TestIsFreeRequiresConfiguredSlot(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	if cal.IsFree(Weekly{Monday: {"09:00"}}, monday(9, 30), nil) {
		t.Fatal("09:30 is not a configured slot")
	}
}

func TestLegacyUnpaddedSlotMatchesBooking(t *testing.T) {
	cal := NewCalendar(saoPaulo)
	weekly := Decode([]byte(`{"Segunda":["9:00"]}`))
	existing := []Booking{{ID: "a1", At: monday(9, 0), Holding: true}}

	slots := cal.Compute(weekly, monday(0, 0), existing)
	if len(slots) != 1 || slots[0] != (Slot{Time: "09:00", IsBooked: true}) {
		t.Fatalf("unexpected slots: %v", slots)
	}
	if cal.IsFree(weekly, monday(9, 0), existing) {
		t.Fatal("booked legacy slot reported free")
	}
	if !cal.IsFree(Weekly{Monday: {"9:00"}}, monday(9, 0), nil) {
		t.Fatal("unpadded slot must be offered")
	}
}
