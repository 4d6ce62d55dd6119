package domain

import (
	"context"
	"time"

	"slotcal/internal/models"
)

// RealtimeStore is the push-subscribable document store holding the
// user-visible booking list, one document per booking under events/{id}.
type RealtimeStore interface {
	PutEvent(ctx context.Context, doc *models.Document) error
	GetEvent(ctx context.Context, id string) (*models.Document, error)
	DeleteEvent(ctx context.Context, id string) error
	// ListEvents returns all documents ordered by start date ascending.
	ListEvents(ctx context.Context) ([]*models.Document, error)
	// Subscribe returns a channel that receives a signal after every
	// mutation, and a stop function that releases the subscription.
	Subscribe(ctx context.Context) (<-chan struct{}, func(), error)
}

// SchedulerClient talks to the remote scheduler, the authority for
// resource/time-window commitments.
type SchedulerClient interface {
	// CreateSchedule commits a resource for a time window and returns the
	// server-assigned schedule id.
	CreateSchedule(ctx context.Context, resourceID int64, start, end time.Time) (int64, error)
	CancelSchedule(ctx context.Context, scheduleID int64) error
	ListCourses(ctx context.Context) ([]models.Course, error)
}

// SnapshotSource exposes the live view of CREATED bookings.
type SnapshotSource interface {
	Bookings() []*models.Booking
}

// Journal records every booking and status transition durably, surviving
// the realtime store's physical delete of cancelled records.
type Journal interface {
	RecordBooking(ctx context.Context, booking *models.Booking) error
	RecordStatusChange(ctx context.Context, bookingID, status string) error
}

// RepairQueue accepts compensating actions that must eventually run even if
// they fail right now.
type RepairQueue interface {
	EnqueueDeleteEvent(ctx context.Context, eventID string) error
	EnqueueCancelSchedule(ctx context.Context, scheduleID int64) error
	EnqueueMirrorUpsert(ctx context.Context, booking *models.Booking) error
	EnqueueMirrorStatus(ctx context.Context, bookingID, status string) error
}

// EventPublisher fans out domain events to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SheetsWriter mirrors the booking ledger into a spreadsheet for ops.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
}
