package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a booking id does not resolve to an active
// record.
var ErrNotFound = errors.New("booking not found")

// ValidationError is a locally recoverable input error; the caller corrects
// and resubmits.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DateRange is an inclusive day range used in conflict diagnostics.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) String() string {
	return r.Start.Format("Jan 2") + " to " + r.End.Format("Jan 2")
}

// SlotConflictError reports that a candidate range intersects active
// bookings in the same slot. Conflicts carries the occupied ranges for a
// precise user message.
type SlotConflictError struct {
	Slot      string
	Conflicts []DateRange
}

func (e *SlotConflictError) Error() string {
	ranges := make([]string, len(e.Conflicts))
	for i, r := range e.Conflicts {
		ranges[i] = r.String()
	}
	return fmt.Sprintf("%s is already booked for %s", e.Slot, strings.Join(ranges, ", "))
}

// UpstreamWriteError means the remote scheduler call failed. On create it
// triggers the compensating delete; on cancel it aborts without mutation.
type UpstreamWriteError struct {
	Op  string
	Err error
}

func (e *UpstreamWriteError) Error() string {
	return fmt.Sprintf("scheduler %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamWriteError) Unwrap() error { return e.Err }

// InconsistentStateError means the two stores have diverged, e.g. a CREATED
// booking without a schedule id. It indicates a prior bug, not user error.
type InconsistentStateError struct {
	BookingID string
	Reason    string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("booking %s is in an inconsistent state: %s", e.BookingID, e.Reason)
}

// RollbackError means the compensating delete after an upstream failure
// itself failed, leaving a provisional record that blocks the slot until the
// repair worker removes it. Cause is the original upstream failure.
type RollbackError struct {
	BookingID   string
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("booking %s: rollback failed (%v) after upstream failure: %v",
		e.BookingID, e.RollbackErr, e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }
