package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"slotcal/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	mirrorSheetName = "Bookings"
	headerRow       = 1
)

// Mirror keeps an ops-facing spreadsheet ledger of bookings. Writes flow
// through the repair worker, so a Sheets outage never touches the booking
// path.
type Mirror struct {
	service       *sheets.Service
	spreadsheetID string

	// row numbers by booking id, warmed lazily
	rowCache map[string]int
	cacheMu  sync.RWMutex
}

func NewMirror(credentialsFile, spreadsheetID string) (*Mirror, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &Mirror{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}, nil
}

func bookingRow(b *models.Booking) []interface{} {
	hourglass := ""
	if b.HourglassID != nil {
		hourglass = fmt.Sprintf("%d", *b.HourglassID)
	}
	return []interface{}{
		b.ID,
		b.CourseName,
		b.Slot,
		b.Start.Format("2006-01-02"),
		b.End.Format("2006-01-02"),
		b.CreatedBy,
		b.Department,
		b.Status,
		hourglass,
		time.Now().Format(time.RFC3339),
	}
}

// UpsertBooking writes the booking's row, appending when the id is unknown.
func (m *Mirror) UpsertBooking(ctx context.Context, b *models.Booking) error {
	row, ok := m.cachedRow(b.ID)
	if !ok {
		found, err := m.findRow(ctx, b.ID)
		if err != nil {
			return err
		}
		row = found
	}

	values := &sheets.ValueRange{Values: [][]interface{}{bookingRow(b)}}

	if row == 0 {
		resp, err := m.service.Spreadsheets.Values.
			Append(m.spreadsheetID, mirrorSheetName+"!A:J", values).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append booking row: %w", err)
		}
		if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			if _, r, ok := parseRangeRow(resp.Updates.UpdatedRange); ok {
				m.storeRow(b.ID, r)
			}
		}
		return nil
	}

	rangeRef := fmt.Sprintf("%s!A%d:J%d", mirrorSheetName, row, row)
	_, err := m.service.Spreadsheets.Values.
		Update(m.spreadsheetID, rangeRef, values).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update booking row: %w", err)
	}
	return nil
}

// UpdateBookingStatus rewrites only the status cell of a known row.
func (m *Mirror) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	row, ok := m.cachedRow(bookingID)
	if !ok {
		found, err := m.findRow(ctx, bookingID)
		if err != nil {
			return err
		}
		if found == 0 {
			return fmt.Errorf("booking %s not present in mirror", bookingID)
		}
		row = found
	}

	rangeRef := fmt.Sprintf("%s!H%d", mirrorSheetName, row)
	values := &sheets.ValueRange{Values: [][]interface{}{{status}}}
	_, err := m.service.Spreadsheets.Values.
		Update(m.spreadsheetID, rangeRef, values).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update status cell: %w", err)
	}
	return nil
}

func (m *Mirror) cachedRow(bookingID string) (int, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	row, ok := m.rowCache[bookingID]
	return row, ok
}

func (m *Mirror) storeRow(bookingID string, row int) {
	m.cacheMu.Lock()
	m.rowCache[bookingID] = row
	m.cacheMu.Unlock()
}

// findRow scans column A for the booking id and refreshes the cache.
// Returns 0 when the id is absent.
func (m *Mirror) findRow(ctx context.Context, bookingID string) (int, error) {
	resp, err := m.service.Spreadsheets.Values.
		Get(m.spreadsheetID, mirrorSheetName+"!A:A").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read id column: %w", err)
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	found := 0
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		id, ok := row[0].(string)
		if !ok || i+1 <= headerRow {
			continue
		}
		m.rowCache[id] = i + 1
		if id == bookingID {
			found = i + 1
		}
	}
	return found, nil
}

// parseRangeRow extracts the row number from a range like Bookings!A42:J42.
func parseRangeRow(rangeRef string) (string, int, bool) {
	name, ref, ok := strings.Cut(rangeRef, "!")
	if !ok {
		return "", 0, false
	}
	cell, _, _ := strings.Cut(ref, ":")
	i := 0
	for i < len(cell) && (cell[i] < '0' || cell[i] > '9') {
		i++
	}
	row, err := strconv.Atoi(cell[i:])
	if err != nil {
		return "", 0, false
	}
	return name, row, true
}
