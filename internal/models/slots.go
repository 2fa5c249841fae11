package models

import (
	"fmt"
	"time"
)

const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
)

// SlotPeriod buckets a slot by its start hour: before noon is morning,
// before 18:00 afternoon, the rest evening.
func SlotPeriod(s Slot) string {
	hour := s.Start.Hour()
	switch {
	case hour < 12:
		return PeriodMorning
	case hour < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// GroupSlotsByPeriod splits slots into morning/afternoon/evening
// buckets, preserving the server's ordering inside each bucket.
func GroupSlotsByPeriod(slots []Slot) map[string][]Slot {
	grouped := map[string][]Slot{
		PeriodMorning:   {},
		PeriodAfternoon: {},
		PeriodEvening:   {},
	}
	for _, s := range slots {
		period := SlotPeriod(s)
		grouped[period] = append(grouped[period], s)
	}
	return grouped
}

// FormatCountdown renders remaining seconds as MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatTimeRange renders a slot as "HH:MM - HH:MM" in the slot's own
// location.
func FormatTimeRange(s Slot) string {
	return fmt.Sprintf("%s - %s", s.Start.Format("15:04"), s.End.Format("15:04"))
}

// ToYYYYMMDD formats a date the way the availability endpoint expects.
func ToYYYYMMDD(t time.Time) string {
	return t.Format("2006-01-02")
}
