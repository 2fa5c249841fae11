package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func slotAt(hour int) Slot {
	start := time.Date(2026, 5, 10, hour, 0, 0, 0, time.UTC)
	return Slot{Start: start, End: start.Add(time.Hour)}
}

func TestSlotPeriod(t *testing.T) {
	assert.Equal(t, PeriodMorning, SlotPeriod(slotAt(9)))
	assert.Equal(t, PeriodMorning, SlotPeriod(slotAt(11)))
	assert.Equal(t, PeriodAfternoon, SlotPeriod(slotAt(12)))
	assert.Equal(t, PeriodAfternoon, SlotPeriod(slotAt(17)))
	assert.Equal(t, PeriodEvening, SlotPeriod(slotAt(18)))
	assert.Equal(t, PeriodEvening, SlotPeriod(slotAt(21)))
}

func TestGroupSlotsByPeriod(t *testing.T) {
	slots := []Slot{slotAt(9), slotAt(10), slotAt(14), slotAt(20)}
	grouped := GroupSlotsByPeriod(slots)

	assert.Len(t, grouped[PeriodMorning], 2)
	assert.Len(t, grouped[PeriodAfternoon], 1)
	assert.Len(t, grouped[PeriodEvening], 1)
	// server ordering preserved inside a bucket
	assert.Equal(t, slotAt(9), grouped[PeriodMorning][0])
	assert.Equal(t, slotAt(10), grouped[PeriodMorning][1])
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "10:00", FormatCountdown(600))
	assert.Equal(t, "09:59", FormatCountdown(599))
	assert.Equal(t, "00:00", FormatCountdown(0))
	assert.Equal(t, "00:00", FormatCountdown(-5))
}

func TestHoldActive(t *testing.T) {
	now := time.Now()
	hold := &Hold{ID: "h1", ExpiresAt: now.Add(10 * time.Minute)}

	assert.True(t, hold.Active(now))
	assert.False(t, hold.Active(now.Add(10*time.Minute)))
	assert.False(t, (&Hold{}).Active(now))

	var nilHold *Hold
	assert.False(t, nilHold.Active(now))
}

func TestDraftClearHoldGroup(t *testing.T) {
	d := NewDraft("s1")
	d.SportID = "football"
	d.HomeTeamID = "team-a"
	d.HoldID = "h1"
	d.HoldExpiresAt = time.Now().Add(10 * time.Minute)
	d.SelectedStart = time.Now()
	d.SelectedEnd = time.Now().Add(time.Hour)

	d.ClearHoldGroup()

	assert.Empty(t, d.HoldID)
	assert.True(t, d.HoldExpiresAt.IsZero())
	assert.True(t, d.SelectedStart.IsZero())
	assert.True(t, d.SelectedEnd.IsZero())
	// unrelated groups untouched
	assert.Equal(t, "football", d.SportID)
	assert.Equal(t, "team-a", d.HomeTeamID)
}

func TestDraftHasActiveHold(t *testing.T) {
	now := time.Now()
	d := NewDraft("s1")
	assert.False(t, d.HasActiveHold(now))

	d.HoldID = "h1"
	d.HoldExpiresAt = now.Add(time.Minute)
	assert.True(t, d.HasActiveHold(now))
	assert.False(t, d.HasActiveHold(now.Add(2*time.Minute)))
}

func TestVenueBookingPatchApply(t *testing.T) {
	d := NewDraft("s1")
	d.VenueID = "v1"
	d.DurationMin = 60

	newDuration := 90
	VenueBookingPatch{DurationMin: &newDuration}.Apply(d)

	assert.Equal(t, 90, d.DurationMin)
	assert.Equal(t, "v1", d.VenueID, "unset patch fields must not overwrite")

	bookingID := "b1"
	price := int64(90000)
	VenueBookingPatch{BookingID: &bookingID, EstimatedPrice: &price}.Apply(d)
	assert.Equal(t, "b1", d.BookingID)
	assert.Equal(t, int64(90000), d.EstimatedPrice)
}

func TestDraftSlotOffered(t *testing.T) {
	d := NewDraft("s1")
	start := time.Date(2026, 9, 3, 12, 0, 0, 0, time.UTC)

	assert.False(t, d.SlotOffered(start), "empty slot set offers nothing")

	d.AvailableStarts = []time.Time{start, start.Add(90 * time.Minute)}
	assert.True(t, d.SlotOffered(start))
	// Same instant in another zone still counts.
	assert.True(t, d.SlotOffered(start.In(time.FixedZone("COT", -5*3600))))
	assert.False(t, d.SlotOffered(start.Add(3*time.Hour)))
}

func TestDurationAllowed(t *testing.T) {
	assert.True(t, DurationAllowed(60))
	assert.True(t, DurationAllowed(90))
	assert.True(t, DurationAllowed(120))
	assert.False(t, DurationAllowed(45))
	assert.False(t, DurationAllowed(0))
}
