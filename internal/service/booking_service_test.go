package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"slotcal/internal/domain"
	"slotcal/internal/models"
	"slotcal/internal/service"
	"slotcal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	mu        sync.Mutex
	nextID    int64
	createErr error
	cancelErr error
	created   []int64
	resources []int64
	cancelled []int64
}

func (f *fakeScheduler) CreateSchedule(ctx context.Context, resourceID int64, start, end time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, f.nextID)
	f.resources = append(f.resources, resourceID)
	return f.nextID, nil
}

func (f *fakeScheduler) CancelSchedule(ctx context.Context, scheduleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, scheduleID)
	return nil
}

func (f *fakeScheduler) ListCourses(ctx context.Context) ([]models.Course, error) {
	return []models.Course{{ID: 42, Name: "Go Fundamentals"}}, nil
}

// brokenDeleteStore wraps a real store but refuses deletes, simulating a
// store outage between the two halves of a rollback.
type brokenDeleteStore struct {
	domain.RealtimeStore
}

func (s *brokenDeleteStore) DeleteEvent(ctx context.Context, id string) error {
	return errors.New("store unavailable")
}

type recordingRepair struct {
	mu             sync.Mutex
	deletedEvents  []string
	cancelled      []int64
	mirrorUpserts  []string
	mirrorStatuses []string
}

func (r *recordingRepair) EnqueueDeleteEvent(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedEvents = append(r.deletedEvents, eventID)
	return nil
}

func (r *recordingRepair) EnqueueCancelSchedule(ctx context.Context, scheduleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, scheduleID)
	return nil
}

func (r *recordingRepair) EnqueueMirrorUpsert(ctx context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrorUpserts = append(r.mirrorUpserts, booking.ID)
	return nil
}

func (r *recordingRepair) EnqueueMirrorStatus(ctx context.Context, bookingID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrorStatuses = append(r.mirrorStatuses, bookingID+":"+status)
	return nil
}

var testNow = time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() service.DatePolicy {
	return service.DatePolicy{
		MinAdvanceDays: 1,
		MaxBookingDays: 365,
		Now:            func() time.Time { return testNow },
	}
}

func newBooking(slot string, startDay, endDay int) *models.Booking {
	return &models.Booking{
		CourseName:       "Go Fundamentals",
		CourseResourceID: 42,
		Slot:             slot,
		Start:            time.Date(2026, time.June, startDay, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2026, time.June, endDay, 0, 0, 0, 0, time.UTC),
		CreatedBy:        "alice",
		Department:       "QA",
	}
}

func TestCoordinatorCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path commits both systems", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		created, err := c.Create(ctx, newBooking("SLOT 1", 1, 5))
		require.NoError(t, err)
		require.NotNil(t, created.HourglassID)
		assert.Equal(t, models.StatusCreated, created.Status)
		assert.NotEmpty(t, created.ID)

		doc, err := st.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, models.StatusCreated, doc.Status)
		require.NotNil(t, doc.HourglassID)
		assert.Equal(t, *created.HourglassID, *doc.HourglassID)
	})

	t.Run("overlapping range in the same slot is rejected", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		_, err := c.Create(ctx, newBooking("SLOT 1", 1, 5))
		require.NoError(t, err)

		_, err = c.Create(ctx, newBooking("SLOT 1", 3, 10))
		var conflict *service.SlotConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "SLOT 1", conflict.Slot)
		require.Len(t, conflict.Conflicts, 1)
		assert.Equal(t, "Jun 1 to Jun 5", conflict.Conflicts[0].String())

		// The rejected attempt must leave no trace and no scheduler call.
		assert.Len(t, sched.created, 1)
	})

	t.Run("shared boundary day conflicts", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		_, err := c.Create(ctx, newBooking("SLOT 2", 1, 5))
		require.NoError(t, err)

		_, err = c.Create(ctx, newBooking("SLOT 2", 5, 8))
		var conflict *service.SlotConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("same dates in a different slot are fine", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		_, err := c.Create(ctx, newBooking("SLOT 1", 1, 5))
		require.NoError(t, err)
		_, err = c.Create(ctx, newBooking("SLOT 2", 1, 5))
		require.NoError(t, err)
	})

	t.Run("scheduler failure removes the provisional record", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{createErr: errors.New("boom")}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		_, err := c.Create(ctx, newBooking("SLOT 1", 1, 5))
		var upstream *service.UpstreamWriteError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, "create", upstream.Op)

		docs, err := st.ListEvents(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs, "failed create must leave no trace in the store")

		// The slot is immediately reusable.
		sched.createErr = nil
		_, err = c.Create(ctx, newBooking("SLOT 1", 1, 5))
		require.NoError(t, err)
	})

	t.Run("failed rollback queues a repair and reports it", func(t *testing.T) {
		st := &brokenDeleteStore{RealtimeStore: store.NewMemoryStore()}
		sched := &fakeScheduler{createErr: errors.New("boom")}
		repair := &recordingRepair{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{Repair: repair}, nil)

		b := newBooking("SLOT 1", 1, 5)
		_, err := c.Create(ctx, b)
		var rollback *service.RollbackError
		require.ErrorAs(t, err, &rollback)
		assert.Equal(t, b.ID, rollback.BookingID)
		require.Len(t, repair.deletedEvents, 1)
		assert.Equal(t, b.ID, repair.deletedEvents[0])

		// The stranded provisional record keeps the slot blocked.
		_, err = c.Create(ctx, newBooking("SLOT 1", 3, 4))
		var conflict *service.SlotConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("validation failures never reach the scheduler", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		cases := []struct {
			name   string
			mutate func(*models.Booking)
		}{
			{"unknown slot", func(b *models.Booking) { b.Slot = "SLOT 9" }},
			{"empty course name", func(b *models.Booking) { b.CourseName = "" }},
			{"zero resource id", func(b *models.Booking) { b.CourseResourceID = 0 }},
			{"end before start", func(b *models.Booking) { b.Start, b.End = b.End, b.Start.AddDate(0, 0, -2) }},
			{"start today", func(b *models.Booking) {
				b.Start = models.StartOfDay(testNow)
				b.End = b.Start
			}},
			{"non-coursera link", func(b *models.Booking) { b.CourseraLink = "https://example.com/c" }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				b := newBooking("SLOT 1", 1, 5)
				tc.mutate(b)
				_, err := c.Create(ctx, b)
				var validation *service.ValidationError
				require.ErrorAs(t, err, &validation)
			})
		}
		assert.Empty(t, sched.created)
	})
}

func TestCoordinatorCancel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*store.MemoryStore, *fakeScheduler, *service.Coordinator, *models.Booking) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)
		created, err := c.Create(ctx, newBooking("SLOT 3", 10, 12))
		require.NoError(t, err)
		return st, sched, c, created
	}

	t.Run("cancel releases both systems and frees the slot", func(t *testing.T) {
		st, sched, c, created := setup(t)

		require.NoError(t, c.Cancel(ctx, created.ID, "alice"))
		assert.Equal(t, []int64{*created.HourglassID}, sched.cancelled)

		doc, err := st.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, doc)

		// Immediate rebooking of the same window must succeed.
		_, err = c.Create(ctx, newBooking("SLOT 3", 10, 12))
		require.NoError(t, err)
	})

	t.Run("only the creator may cancel", func(t *testing.T) {
		_, _, c, created := setup(t)
		err := c.Cancel(ctx, created.ID, "mallory")
		require.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("anonymous caller may not cancel", func(t *testing.T) {
		st, sched, c, created := setup(t)
		err := c.Cancel(ctx, created.ID, "")
		require.ErrorIs(t, err, service.ErrForbidden)
		assert.Empty(t, sched.cancelled)

		doc, getErr := st.GetEvent(ctx, created.ID)
		require.NoError(t, getErr)
		assert.NotNil(t, doc, "booking must survive an unidentified cancel attempt")
	})

	t.Run("scheduler refusal leaves the booking untouched", func(t *testing.T) {
		st, sched, c, created := setup(t)
		sched.cancelErr = errors.New("boom")

		err := c.Cancel(ctx, created.ID, "alice")
		var upstream *service.UpstreamWriteError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, "cancel", upstream.Op)

		doc, err := st.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, doc, "booking must survive a failed cancel")
		assert.Equal(t, models.StatusCreated, doc.Status)
	})

	t.Run("missing schedule id is an inconsistency, not a cancel", func(t *testing.T) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)

		b := newBooking("SLOT 4", 1, 2)
		b.ID = "orphan-1"
		b.Status = models.StatusCreated
		require.NoError(t, st.PutEvent(ctx, b.Document()))

		err := c.Cancel(ctx, "orphan-1", "alice")
		var inconsistent *service.InconsistentStateError
		require.ErrorAs(t, err, &inconsistent)
		assert.Empty(t, sched.cancelled)

		doc, getErr := st.GetEvent(ctx, "orphan-1")
		require.NoError(t, getErr)
		assert.NotNil(t, doc, "inconsistent record is preserved for repair")
	})

	t.Run("cancelling twice reports not found", func(t *testing.T) {
		_, _, c, created := setup(t)
		require.NoError(t, c.Cancel(ctx, created.ID, "alice"))
		err := c.Cancel(ctx, created.ID, "alice")
		require.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		_, _, c, _ := setup(t)
		err := c.Cancel(ctx, "no-such-booking", "alice")
		require.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestCoordinatorUpdate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*store.MemoryStore, *fakeScheduler, *service.Coordinator, *models.Booking) {
		st := store.NewMemoryStore()
		sched := &fakeScheduler{}
		c := service.NewCoordinator(st, sched, testPolicy(), service.CoordinatorOpts{}, nil)
		created, err := c.Create(ctx, newBooking("SLOT 5", 10, 12))
		require.NoError(t, err)
		return st, sched, c, created
	}

	t.Run("unchanged dates keep the schedule id", func(t *testing.T) {
		_, sched, c, created := setup(t)

		edit := newBooking("SLOT 5", 10, 12)
		edit.ID = created.ID
		edit.Notes = "projector needed"

		updated, err := c.Update(ctx, edit)
		require.NoError(t, err)
		require.NotNil(t, updated.HourglassID)
		assert.Equal(t, *created.HourglassID, *updated.HourglassID)
		assert.Len(t, sched.created, 1, "no new schedule for a metadata edit")
		assert.Empty(t, sched.cancelled)
	})

	t.Run("new dates commit a new window then cancel the old", func(t *testing.T) {
		st, sched, c, created := setup(t)

		edit := newBooking("SLOT 5", 20, 22)
		edit.ID = created.ID

		updated, err := c.Update(ctx, edit)
		require.NoError(t, err)
		require.NotNil(t, updated.HourglassID)
		assert.NotEqual(t, *created.HourglassID, *updated.HourglassID)
		assert.Equal(t, []int64{*created.HourglassID}, sched.cancelled)

		doc, err := st.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "2026-06-20T00:00:00Z", doc.Start)
	})

	t.Run("changing the course rebooks the schedule", func(t *testing.T) {
		st, sched, c, created := setup(t)

		edit := newBooking("SLOT 5", 10, 12)
		edit.ID = created.ID
		edit.CourseName = "Kubernetes Basics"
		edit.CourseResourceID = 99

		updated, err := c.Update(ctx, edit)
		require.NoError(t, err)
		require.NotNil(t, updated.HourglassID)
		assert.NotEqual(t, *created.HourglassID, *updated.HourglassID,
			"the old schedule holds the wrong course")
		assert.Equal(t, []int64{42, 99}, sched.resources)
		assert.Equal(t, []int64{*created.HourglassID}, sched.cancelled)

		doc, err := st.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Len(t, doc.Resources, 1)
		assert.Equal(t, int64(99), doc.Resources[0].ID)
	})

	t.Run("update keeps the original creator", func(t *testing.T) {
		_, _, c, created := setup(t)

		edit := newBooking("SLOT 5", 10, 12)
		edit.ID = created.ID
		edit.CreatedBy = "mallory"

		updated, err := c.Update(ctx, edit)
		require.NoError(t, err)
		assert.Equal(t, "alice", updated.CreatedBy)
	})

	t.Run("update does not conflict with itself", func(t *testing.T) {
		_, _, c, created := setup(t)

		edit := newBooking("SLOT 5", 11, 13)
		edit.ID = created.ID

		_, err := c.Update(ctx, edit)
		require.NoError(t, err)
	})

	t.Run("update into another booking's range is rejected", func(t *testing.T) {
		_, _, c, created := setup(t)
		_, err := c.Create(ctx, newBooking("SLOT 5", 20, 25))
		require.NoError(t, err)

		edit := newBooking("SLOT 5", 22, 24)
		edit.ID = created.ID
		_, err = c.Update(ctx, edit)
		var conflict *service.SlotConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		_, _, c, _ := setup(t)
		edit := newBooking("SLOT 5", 10, 12)
		edit.ID = "no-such-booking"
		_, err := c.Update(ctx, edit)
		require.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestCoordinatorJournalAndEvents(t *testing.T) {
	ctx := context.Background()

	type journalEntry struct {
		id     string
		status string
	}
	var mu sync.Mutex
	var entries []journalEntry
	journal := &funcJournal{
		record: func(b *models.Booking) error {
			mu.Lock()
			defer mu.Unlock()
			entries = append(entries, journalEntry{b.ID, b.Status})
			return nil
		},
		status: func(id, status string) error {
			mu.Lock()
			defer mu.Unlock()
			entries = append(entries, journalEntry{id, status})
			return nil
		},
	}

	st := store.NewMemoryStore()
	repair := &recordingRepair{}
	c := service.NewCoordinator(st, &fakeScheduler{}, testPolicy(), service.CoordinatorOpts{
		Journal: journal,
		Repair:  repair,
	}, nil)

	created, err := c.Create(ctx, newBooking("SLOT 1", 1, 5))
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx, created.ID, "alice"))

	require.Len(t, entries, 2)
	assert.Equal(t, journalEntry{created.ID, models.StatusCreated}, entries[0])
	assert.Equal(t, journalEntry{created.ID, models.StatusCancelled}, entries[1])

	require.Len(t, repair.mirrorUpserts, 1)
	require.Len(t, repair.mirrorStatuses, 1)
	assert.Equal(t, fmt.Sprintf("%s:%s", created.ID, models.StatusCancelled), repair.mirrorStatuses[0])
}

type funcJournal struct {
	record func(*models.Booking) error
	status func(string, string) error
}

func (j *funcJournal) RecordBooking(ctx context.Context, b *models.Booking) error {
	return j.record(b)
}

func (j *funcJournal) RecordStatusChange(ctx context.Context, id, status string) error {
	return j.status(id, status)
}
