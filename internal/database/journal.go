package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotcal/internal/models"
)

// RecordBooking appends the booking's current state to the journal.
func (db *DB) RecordBooking(ctx context.Context, b *models.Booking) error {
	query := `
        INSERT INTO booking_journal
            (booking_id, course_name, resource_id, slot, start_date, end_date, created_by,
             department, status, hourglass_id, coursera_link, notes, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	var hourglassID interface{}
	if b.HourglassID != nil {
		hourglassID = *b.HourglassID
	}

	_, err := db.db.ExecContext(ctx, query,
		b.ID,
		b.CourseName,
		b.CourseResourceID,
		b.Slot,
		b.Start,
		b.End,
		b.CreatedBy,
		b.Department,
		b.Status,
		hourglassID,
		b.CourseraLink,
		b.Notes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record booking %s: %w", b.ID, err)
	}
	return nil
}

// RecordStatusChange appends a status transition, copying the descriptive
// fields from the booking's latest journal row so the ledger reads whole.
func (db *DB) RecordStatusChange(ctx context.Context, bookingID, status string) error {
	query := `
        INSERT INTO booking_journal
            (booking_id, course_name, resource_id, slot, start_date, end_date, created_by,
             department, status, hourglass_id, coursera_link, notes, recorded_at)
        SELECT booking_id, course_name, resource_id, slot, start_date, end_date, created_by,
               department, ?, hourglass_id, coursera_link, notes, ?
        FROM booking_journal
        WHERE booking_id = ?
        ORDER BY seq DESC
        LIMIT 1
    `

	result, err := db.db.ExecContext(ctx, query, status, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("record status change %s: %w", bookingID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Unknown booking: keep the transition anyway, with what we have.
		_, err = db.db.ExecContext(ctx,
			`INSERT INTO booking_journal (booking_id, status, recorded_at) VALUES (?, ?, ?)`,
			bookingID, status, time.Now())
		if err != nil {
			return fmt.Errorf("record bare status change %s: %w", bookingID, err)
		}
	}
	return nil
}

// GetHistory returns every journal row for a booking, oldest first.
func (db *DB) GetHistory(ctx context.Context, bookingID string) ([]models.JournalEntry, error) {
	query := `
        SELECT seq, booking_id, course_name, slot, start_date, end_date,
               created_by, department, status, recorded_at
        FROM booking_journal
        WHERE booking_id = ?
        ORDER BY seq ASC
    `
	return db.queryJournal(ctx, query, bookingID)
}

// GetRange returns journal rows whose day ranges touch [from, to], oldest
// first.
func (db *DB) GetRange(ctx context.Context, from, to time.Time) ([]models.JournalEntry, error) {
	query := `
        SELECT seq, booking_id, course_name, slot, start_date, end_date,
               created_by, department, status, recorded_at
        FROM booking_journal
        WHERE start_date <= ? AND end_date >= ?
        ORDER BY seq ASC
    `
	return db.queryJournal(ctx, query, to, from)
}

func (db *DB) queryJournal(ctx context.Context, query string, args ...interface{}) ([]models.JournalEntry, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var courseName, slot, createdBy, department sql.NullString
		var start, end sql.NullTime
		err := rows.Scan(
			&e.Seq,
			&e.BookingID,
			&courseName,
			&slot,
			&start,
			&end,
			&createdBy,
			&department,
			&e.Status,
			&e.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CourseName = courseName.String
		e.Slot = slot.String
		e.Start = start.Time
		e.End = end.Time
		e.CreatedBy = createdBy.String
		e.Department = department.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
