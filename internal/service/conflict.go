package service

import (
	"time"

	"slotcal/internal/models"
)

// FindConflicts returns the bookings whose day ranges intersect the
// candidate range in the same slot. Both ranges are treated as closed
// intervals at day granularity, so a shared boundary day is a conflict.
// selfID excludes the candidate's own record when re-validating an edit.
// Pure function over its inputs; an empty booking list never conflicts.
func FindConflicts(slot string, start, end time.Time, selfID string, bookings []*models.Booking) []*models.Booking {
	candStart := models.StartOfDay(start)
	candEnd := models.EndOfDay(end)

	var conflicts []*models.Booking
	for _, b := range bookings {
		if b.Slot != slot {
			continue
		}
		if selfID != "" && b.ID == selfID {
			continue
		}
		if rangesOverlap(candStart, candEnd, models.StartOfDay(b.Start), models.EndOfDay(b.End)) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// rangesOverlap is the standard closed-interval test:
// aStart <= bEnd && aEnd >= bStart.
func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

func conflictRanges(bookings []*models.Booking) []DateRange {
	ranges := make([]DateRange, len(bookings))
	for i, b := range bookings {
		ranges[i] = DateRange{Start: b.Start, End: b.End}
	}
	return ranges
}
