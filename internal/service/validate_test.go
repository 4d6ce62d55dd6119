package service_test

import (
	"testing"
	"time"

	"slotcal/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceID(t *testing.T) {
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"510", 510, false},
		{" 42 ", 42, false},
		{"abc", 0, true},
		{"12.5", 0, true},
		{"", 0, true},
		{"0", 0, true},
		{"-3", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := service.ParseResourceID(tc.raw)
			if tc.wantErr {
				var validation *service.ValidationError
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, "courseResourceId", validation.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateCourseraLink(t *testing.T) {
	assert.NoError(t, service.ValidateCourseraLink(""))
	assert.NoError(t, service.ValidateCourseraLink("https://coursera.org/learn/golang"))
	assert.NoError(t, service.ValidateCourseraLink("https://www.coursera.org/learn/golang"))
	assert.NoError(t, service.ValidateCourseraLink("https://de.coursera.org/learn/golang"))

	assert.Error(t, service.ValidateCourseraLink("https://example.com/learn/golang"))
	assert.Error(t, service.ValidateCourseraLink("https://coursera.org.evil.com/x"))
	assert.Error(t, service.ValidateCourseraLink("not a url"))
}

func TestDatePolicy(t *testing.T) {
	now := time.Date(2026, time.May, 1, 15, 30, 0, 0, time.UTC)
	policy := service.DatePolicy{
		MinAdvanceDays: 1,
		MaxBookingDays: 30,
		Now:            func() time.Time { return now },
	}

	dayAt := func(d int) time.Time {
		return time.Date(2026, time.May, d, 0, 0, 0, 0, time.UTC)
	}

	t.Run("tomorrow is the earliest start", func(t *testing.T) {
		assert.NoError(t, policy.Validate(dayAt(2), dayAt(2)))
		assert.Error(t, policy.Validate(dayAt(1), dayAt(1)), "today is too soon")
		assert.Error(t, policy.Validate(dayAt(1).AddDate(0, 0, -5), dayAt(2)), "the past is rejected")
	})

	t.Run("end before start", func(t *testing.T) {
		assert.Error(t, policy.Validate(dayAt(10), dayAt(5)))
	})

	t.Run("horizon", func(t *testing.T) {
		assert.NoError(t, policy.Validate(dayAt(31), dayAt(31)))
		assert.Error(t, policy.Validate(dayAt(1).AddDate(0, 0, 45), dayAt(1).AddDate(0, 0, 46)))
	})
}
