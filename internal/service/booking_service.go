package service

import (
	"context"
	"errors"
	"fmt"

	"slotcal/internal/domain"
	"slotcal/internal/events"
	"slotcal/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrForbidden is returned when the caller is not the booking's creator.
var ErrForbidden = errors.New("not the booking creator")

// Coordinator owns the booking lifecycle: conflict checks and the dual write
// across the realtime store and the remote scheduler. The scheduler is the
// authority for committed time windows; a booking becomes CREATED in the
// store only after the scheduler has accepted it.
type Coordinator struct {
	store     domain.RealtimeStore
	scheduler domain.SchedulerClient
	snapshot  domain.SnapshotSource
	journal   domain.Journal
	repair    domain.RepairQueue
	events    domain.EventPublisher
	policy    DatePolicy
	logger    zerolog.Logger
}

// CoordinatorOpts carries the optional collaborators. Nil fields are
// skipped, which keeps unit tests small.
type CoordinatorOpts struct {
	Snapshot domain.SnapshotSource
	Journal  domain.Journal
	Repair   domain.RepairQueue
	Events   domain.EventPublisher
}

func NewCoordinator(store domain.RealtimeStore, scheduler domain.SchedulerClient, policy DatePolicy, opts CoordinatorOpts, logger *zerolog.Logger) *Coordinator {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "coordinator").Logger()
	}
	return &Coordinator{
		store:     store,
		scheduler: scheduler,
		snapshot:  opts.Snapshot,
		journal:   opts.Journal,
		repair:    opts.Repair,
		events:    opts.Events,
		policy:    policy,
		logger:    base,
	}
}

// Create validates the candidate, enforces slot exclusivity and performs the
// dual write: provisional store record, scheduler commit, final record with
// the schedule id. On scheduler failure the provisional record is deleted;
// if that delete also fails the error is surfaced as RollbackError and the
// delete is queued for repair.
func (c *Coordinator) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if err := c.validate(booking); err != nil {
		return nil, err
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	if err := c.checkConflicts(ctx, booking); err != nil {
		return nil, err
	}

	// Provisional record: blocks the slot for concurrent creates but is
	// filtered out of every user-facing view.
	booking.Status = models.StatusPending
	booking.HourglassID = nil
	if err := c.store.PutEvent(ctx, booking.Document()); err != nil {
		return nil, fmt.Errorf("write provisional record: %w", err)
	}

	scheduleID, err := c.scheduler.CreateSchedule(ctx, booking.CourseResourceID, booking.Start, booking.End)
	if err != nil {
		upstream := &UpstreamWriteError{Op: "create", Err: err}
		if delErr := c.store.DeleteEvent(ctx, booking.ID); delErr != nil {
			c.logger.Error().Err(delErr).Str("booking_id", booking.ID).
				Msg("compensating delete failed, queueing repair")
			c.enqueueDeleteRepair(ctx, booking.ID)
			return nil, &RollbackError{BookingID: booking.ID, Cause: upstream, RollbackErr: delErr}
		}
		return nil, upstream
	}

	booking.Status = models.StatusCreated
	booking.HourglassID = &scheduleID
	if err := c.store.PutEvent(ctx, booking.Document()); err != nil {
		// The scheduler committed but the store did not; undo both sides
		// through the repair queue so the window is not silently burned.
		c.logger.Error().Err(err).Str("booking_id", booking.ID).Int64("schedule_id", scheduleID).
			Msg("final record write failed after scheduler commit")
		c.enqueueCancelRepair(ctx, scheduleID)
		c.enqueueDeleteRepair(ctx, booking.ID)
		return nil, fmt.Errorf("write final record: %w", err)
	}

	c.recordAndAnnounce(ctx, booking, events.EventBookingCreated)
	return booking, nil
}

// Update edits a booking as create-with-same-id. The record keeps its
// original creator. The existing schedule id is reused only when neither the
// dates nor the course change; any edit the scheduler must know about commits
// a new window first, then cancels the old one after the store write.
func (c *Coordinator) Update(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if booking.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	existing, err := c.activeBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	booking.CreatedBy = existing.CreatedBy

	if err := c.validate(booking); err != nil {
		return nil, err
	}
	if err := c.checkConflicts(ctx, booking); err != nil {
		return nil, err
	}

	// A schedule commits a (resource, window) pair; a changed course needs a
	// rebook just like changed dates do.
	scheduleUnchanged := booking.CourseResourceID == existing.CourseResourceID &&
		models.SameDay(booking.Start, existing.Start) &&
		models.SameDay(booking.End, existing.End)
	if scheduleUnchanged {
		booking.Status = models.StatusCreated
		booking.HourglassID = existing.HourglassID
		if err := c.store.PutEvent(ctx, booking.Document()); err != nil {
			return nil, fmt.Errorf("overwrite record: %w", err)
		}
		c.recordAndAnnounce(ctx, booking, events.EventBookingUpdated)
		return booking, nil
	}

	// New window first: the existing record keeps the slot occupied while
	// the scheduler decides, so no gap opens for a concurrent create.
	scheduleID, err := c.scheduler.CreateSchedule(ctx, booking.CourseResourceID, booking.Start, booking.End)
	if err != nil {
		return nil, &UpstreamWriteError{Op: "create", Err: err}
	}

	booking.Status = models.StatusCreated
	booking.HourglassID = &scheduleID
	if err := c.store.PutEvent(ctx, booking.Document()); err != nil {
		c.enqueueCancelRepair(ctx, scheduleID)
		return nil, fmt.Errorf("overwrite record: %w", err)
	}

	if existing.HourglassID != nil {
		if err := c.scheduler.CancelSchedule(ctx, *existing.HourglassID); err != nil {
			c.logger.Warn().Err(err).Str("booking_id", booking.ID).
				Int64("schedule_id", *existing.HourglassID).
				Msg("old schedule cancel failed, queueing repair")
			c.enqueueCancelRepair(ctx, *existing.HourglassID)
		}
	}

	c.recordAndAnnounce(ctx, booking, events.EventBookingUpdated)
	return booking, nil
}

// Cancel retires a booking from both systems. Only the creator may cancel;
// requestedBy must name them. The scheduler is cancelled first; if it
// refuses, nothing is mutated and the slot stays occupied so the operation
// can be retried.
func (c *Coordinator) Cancel(ctx context.Context, bookingID, requestedBy string) error {
	booking, err := c.activeBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	// An anonymous caller cannot be the creator.
	if requestedBy == "" || booking.CreatedBy != requestedBy {
		return ErrForbidden
	}

	if booking.HourglassID == nil {
		err := &InconsistentStateError{BookingID: bookingID, Reason: "no schedule id; the dual write never completed"}
		c.logger.Error().Str("booking_id", bookingID).Msg(err.Error())
		return err
	}

	if err := c.scheduler.CancelSchedule(ctx, *booking.HourglassID); err != nil {
		return &UpstreamWriteError{Op: "cancel", Err: err}
	}

	if err := c.store.DeleteEvent(ctx, bookingID); err != nil {
		// The scheduler already released the window. Queue the delete so
		// the store catches up instead of reporting a failed cancel.
		c.logger.Error().Err(err).Str("booking_id", bookingID).
			Msg("store delete failed after scheduler cancel, queueing repair")
		if c.repair == nil {
			return fmt.Errorf("store delete after scheduler cancel: %w", err)
		}
		c.enqueueDeleteRepair(ctx, bookingID)
	}

	if c.journal != nil {
		if err := c.journal.RecordStatusChange(ctx, bookingID, models.StatusCancelled); err != nil {
			c.logger.Warn().Err(err).Str("booking_id", bookingID).Msg("journal status change failed")
		}
	}
	if c.repair != nil {
		if err := c.repair.EnqueueMirrorStatus(ctx, bookingID, models.StatusCancelled); err != nil {
			c.logger.Warn().Err(err).Str("booking_id", bookingID).Msg("mirror status enqueue failed")
		}
	}
	c.publish(events.EventBookingCancelled, booking)
	return nil
}

func (c *Coordinator) validate(b *models.Booking) error {
	if !models.IsValidSlot(b.Slot) {
		return &ValidationError{Field: "slotNumber", Reason: "not one of the seven slots"}
	}
	if b.CourseName == "" {
		return &ValidationError{Field: "courseName", Reason: "must not be empty"}
	}
	if b.CourseResourceID <= 0 {
		return &ValidationError{Field: "courseResourceId", Reason: "must be positive"}
	}
	if b.CreatedBy == "" {
		return &ValidationError{Field: "createdBy", Reason: "must not be empty"}
	}
	if err := ValidateCourseraLink(b.CourseraLink); err != nil {
		return err
	}

	b.Start = models.StartOfDay(b.Start)
	b.End = models.EndOfDay(b.End)
	return c.policy.Validate(b.Start, b.End)
}

// checkConflicts consults the push-fed snapshot when present, then re-reads
// the store directly. The fresh read also counts PENDING records, so an
// in-flight dual write blocks the slot. This shrinks the check-then-act
// window between near-simultaneous creates; it does not close it.
func (c *Coordinator) checkConflicts(ctx context.Context, b *models.Booking) error {
	if c.snapshot != nil {
		if found := FindConflicts(b.Slot, b.Start, b.End, b.ID, c.snapshot.Bookings()); len(found) > 0 {
			return &SlotConflictError{Slot: b.Slot, Conflicts: conflictRanges(found)}
		}
	}

	active, err := c.activeFromStore(ctx)
	if err != nil {
		return fmt.Errorf("read active bookings: %w", err)
	}
	if found := FindConflicts(b.Slot, b.Start, b.End, b.ID, active); len(found) > 0 {
		return &SlotConflictError{Slot: b.Slot, Conflicts: conflictRanges(found)}
	}
	return nil
}

// activeFromStore reads the store and keeps CREATED and PENDING records,
// rejecting anything that fails to decode.
func (c *Coordinator) activeFromStore(ctx context.Context) ([]*models.Booking, error) {
	docs, err := c.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*models.Booking, 0, len(docs))
	for _, doc := range docs {
		b, err := models.DecodeDocument(doc)
		if err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed record")
			continue
		}
		if b.Status == models.StatusCreated || b.Status == models.StatusPending {
			active = append(active, b)
		}
	}
	return active, nil
}

func (c *Coordinator) activeBooking(ctx context.Context, id string) (*models.Booking, error) {
	doc, err := c.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read booking %s: %w", id, err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	booking, err := models.DecodeDocument(doc)
	if err != nil {
		c.logger.Error().Err(err).Str("booking_id", id).Msg("stored record does not decode")
		return nil, &InconsistentStateError{BookingID: id, Reason: "stored record does not decode"}
	}
	if booking.Status == models.StatusPending {
		return nil, &InconsistentStateError{BookingID: id, Reason: "no schedule id; the dual write never completed"}
	}
	if booking.Status != models.StatusCreated {
		return nil, ErrNotFound
	}
	return booking, nil
}

func (c *Coordinator) recordAndAnnounce(ctx context.Context, b *models.Booking, eventType string) {
	if c.journal != nil {
		if err := c.journal.RecordBooking(ctx, b); err != nil {
			c.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("journal write failed")
		}
	}
	if c.repair != nil {
		if err := c.repair.EnqueueMirrorUpsert(ctx, b); err != nil {
			c.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("mirror upsert enqueue failed")
		}
	}
	c.publish(eventType, b)
}

func (c *Coordinator) publish(eventType string, b *models.Booking) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishJSON(eventType, events.NewBookingPayload(b)); err != nil {
		c.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func (c *Coordinator) enqueueDeleteRepair(ctx context.Context, eventID string) {
	if c.repair == nil {
		return
	}
	if err := c.repair.EnqueueDeleteEvent(ctx, eventID); err != nil {
		c.logger.Error().Err(err).Str("event_id", eventID).Msg("repair enqueue failed")
	}
}

func (c *Coordinator) enqueueCancelRepair(ctx context.Context, scheduleID int64) {
	if c.repair == nil {
		return
	}
	if err := c.repair.EnqueueCancelSchedule(ctx, scheduleID); err != nil {
		c.logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("repair enqueue failed")
	}
}
