package models

import (
	"fmt"
	"time"
)

// Booking is a course reservation occupying one slot for an inclusive day
// range. Start is normalized to start of day, End to end of day.
type Booking struct {
	ID               string    `json:"id"`
	CourseName       string    `json:"course_name"`
	CourseResourceID int64     `json:"course_resource_id"`
	Slot             string    `json:"slot"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	CreatedBy        string    `json:"created_by"`
	Department       string    `json:"department"`
	Status           string    `json:"status"`
	CourseraLink     string    `json:"coursera_link,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	HourglassID      *int64    `json:"hourglass_id,omitempty"`
}

// Resource is a foreign id in the remote scheduler's resource space.
type Resource struct {
	ID int64 `json:"id"`
}

// Course is an entry of the bookable catalog served by the remote scheduler.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Document is the wire form of a booking stored under events/{id} in the
// realtime store. Dates travel as ISO-8601 strings.
type Document struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	SlotNumber   string     `json:"slotNumber"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	Resources    []Resource `json:"resources"`
	CreatedBy    string     `json:"createdBy"`
	Department   string     `json:"department"`
	Status       string     `json:"status"`
	CourseraLink string     `json:"courseraLink,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	HourglassID  *int64     `json:"hourglassId,omitempty"`
}

// Document serializes the booking for the realtime store.
func (b *Booking) Document() *Document {
	return &Document{
		ID:           b.ID,
		Title:        b.CourseName,
		SlotNumber:   b.Slot,
		Start:        b.Start.Format(time.RFC3339),
		End:          b.End.Format(time.RFC3339),
		Resources:    []Resource{{ID: b.CourseResourceID}},
		CreatedBy:    b.CreatedBy,
		Department:   b.Department,
		Status:       b.Status,
		CourseraLink: b.CourseraLink,
		Notes:        b.Notes,
		HourglassID:  b.HourglassID,
	}
}

// DecodeDocument converts a wire document back into a Booking, rejecting
// malformed records at the store boundary so they cannot reach the conflict
// check.
func DecodeDocument(doc *Document) (*Booking, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("document has empty id")
	}

	start, err := time.Parse(time.RFC3339, doc.Start)
	if err != nil {
		return nil, fmt.Errorf("document %s: bad start %q: %w", doc.ID, doc.Start, err)
	}
	end, err := time.Parse(time.RFC3339, doc.End)
	if err != nil {
		return nil, fmt.Errorf("document %s: bad end %q: %w", doc.ID, doc.End, err)
	}

	var resourceID int64
	if len(doc.Resources) > 0 {
		resourceID = doc.Resources[0].ID
	}

	return &Booking{
		ID:               doc.ID,
		CourseName:       doc.Title,
		CourseResourceID: resourceID,
		Slot:             doc.SlotNumber,
		Start:            start,
		End:              end,
		CreatedBy:        doc.CreatedBy,
		Department:       doc.Department,
		Status:           doc.Status,
		CourseraLink:     doc.CourseraLink,
		Notes:            doc.Notes,
		HourglassID:      doc.HourglassID,
	}, nil
}
