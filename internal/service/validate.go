package service

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"slotcal/internal/models"
)

// ParseResourceID validates that raw is a positive integer in the remote
// scheduler's resource space. The check runs before any network call.
func ParseResourceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "courseResourceId", Reason: "must be an integer"}
	}
	if id <= 0 {
		return 0, &ValidationError{Field: "courseResourceId", Reason: "must be positive"}
	}
	return id, nil
}

// ValidateCourseraLink accepts an empty link (the field is optional) or any
// URL on coursera.org.
func ValidateCourseraLink(link string) error {
	if link == "" {
		return nil
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "courseraLink", Reason: "not a valid URL"}
	}
	host := strings.ToLower(u.Host)
	if host == "coursera.org" || host == "www.coursera.org" || strings.HasSuffix(host, ".coursera.org") {
		return nil
	}
	return &ValidationError{Field: "courseraLink", Reason: "must be a coursera.org link"}
}

// DatePolicy is the future-date rule in force: bookings start no earlier
// than minAdvanceDays from now and no later than maxBookingDays out.
type DatePolicy struct {
	MinAdvanceDays int
	MaxBookingDays int
	Now            func() time.Time
}

func (p DatePolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Validate checks a normalized [start, end] day range against the policy.
func (p DatePolicy) Validate(start, end time.Time) error {
	if end.Before(start) {
		return &ValidationError{Field: "endDate", Reason: "must not be before start date"}
	}

	minAdvance := p.MinAdvanceDays
	if minAdvance <= 0 {
		minAdvance = models.DefaultMinAdvanceDays
	}
	earliest := models.StartOfDay(p.now()).AddDate(0, 0, minAdvance)
	if start.Before(earliest) {
		return &ValidationError{Field: "startDate", Reason: "must be at least tomorrow or later"}
	}
	if end.Before(earliest) {
		return &ValidationError{Field: "endDate", Reason: "must be at least tomorrow or later"}
	}

	maxDays := p.MaxBookingDays
	if maxDays <= 0 {
		maxDays = models.DefaultMaxBookingDays
	}
	latest := models.StartOfDay(p.now()).AddDate(0, 0, maxDays)
	if start.After(latest) {
		return &ValidationError{Field: "startDate", Reason: "too far in the future"}
	}

	return nil
}
