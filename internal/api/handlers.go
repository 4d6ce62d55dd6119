package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"slotcal/internal/export"
	"slotcal/internal/metrics"
	"slotcal/internal/models"
	"slotcal/internal/service"
)

const dateLayout = "2006-01-02"

// Header naming the acting user on mutating requests. Cancellation is
// restricted to the booking's creator, so a DELETE without it is refused.
const userHeader = "x-user"

type bookingRequest struct {
	CourseName       string      `json:"courseName"`
	CourseResourceID json.Number `json:"courseResourceId"`
	SlotNumber       string      `json:"slotNumber"`
	Start            string      `json:"start"`
	End              string      `json:"end"`
	CreatedBy        string      `json:"createdBy"`
	Department       string      `json:"department"`
	CourseraLink     string      `json:"courseraLink,omitempty"`
	Notes            string      `json:"notes,omitempty"`
}

type bookingResponse struct {
	ID           string `json:"id"`
	CourseName   string `json:"courseName"`
	SlotNumber   string `json:"slotNumber"`
	Start        string `json:"start"`
	End          string `json:"end"`
	CreatedBy    string `json:"createdBy"`
	Department   string `json:"department"`
	Status       string `json:"status"`
	CourseraLink string `json:"courseraLink,omitempty"`
	Notes        string `json:"notes,omitempty"`
	HourglassID  *int64 `json:"hourglassId,omitempty"`
}

func toResponse(b *models.Booking) bookingResponse {
	return bookingResponse{
		ID:           b.ID,
		CourseName:   b.CourseName,
		SlotNumber:   b.Slot,
		Start:        b.Start.Format(dateLayout),
		End:          b.End.Format(dateLayout),
		CreatedBy:    b.CreatedBy,
		Department:   b.Department,
		Status:       b.Status,
		CourseraLink: b.CourseraLink,
		Notes:        b.Notes,
		HourglassID:  b.HourglassID,
	}
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.updateBooking(w, r, id)
	case http.MethodDelete:
		s.cancelBooking(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listBookings serves the live view, optionally narrowed to bookings whose
// day ranges touch [from, to].
func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
			return
		}
	}

	bookings := s.snapshot.Bookings()
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		if !from.IsZero() && b.End.Before(models.StartOfDay(from)) {
			continue
		}
		if !to.IsZero() && b.Start.After(models.EndOfDay(to)) {
			continue
		}
		out = append(out, toResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": out})
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := s.decodeBooking(w, r)
	if !ok {
		return
	}

	created, err := s.coordinator.Create(r.Context(), booking)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	metrics.IncBookingCreated()
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (s *HTTPServer) updateBooking(w http.ResponseWriter, r *http.Request, id string) {
	booking, ok := s.decodeBooking(w, r)
	if !ok {
		return
	}
	booking.ID = id

	updated, err := s.coordinator.Update(r.Context(), booking)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	requestedBy := r.Header.Get(userHeader)

	if err := s.coordinator.Cancel(r.Context(), id, requestedBy); err != nil {
		s.writeServiceError(w, err)
		return
	}
	metrics.IncBookingCancelled()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.StatusCancelled})
}

// decodeBooking parses and pre-validates the request body. The resource id is
// carried as json.Number so a non-numeric value is rejected here, before any
// store or scheduler traffic.
func (s *HTTPServer) decodeBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	var req bookingRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return nil, false
	}

	resourceID, err := service.ParseResourceID(req.CourseResourceID.String())
	if err != nil {
		s.writeServiceError(w, err)
		return nil, false
	}

	start, err := time.Parse(dateLayout, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be a YYYY-MM-DD date")
		return nil, false
	}
	end, err := time.Parse(dateLayout, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be a YYYY-MM-DD date")
		return nil, false
	}

	return &models.Booking{
		CourseName:       req.CourseName,
		CourseResourceID: resourceID,
		Slot:             req.SlotNumber,
		Start:            start,
		End:              end,
		CreatedBy:        req.CreatedBy,
		Department:       req.Department,
		CourseraLink:     req.CourseraLink,
		Notes:            req.Notes,
	}, true
}

func (s *HTTPServer) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	courses, err := s.cachedCourses(r)
	if err != nil {
		s.writeServiceError(w, &service.UpstreamWriteError{Op: "list courses", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// cachedCourses answers from the catalog cache while it is fresh. The lock
// covers only the cache fields, never the upstream fetch, so a slow Hourglass
// cannot stall requests that the cache can answer.
func (s *HTTPServer) cachedCourses(r *http.Request) ([]models.Course, error) {
	s.courses.mu.Lock()
	cached := s.courses.list
	fresh := cached != nil && time.Since(s.courses.fetchedAt) < s.courses.ttl
	s.courses.mu.Unlock()
	if fresh {
		return cached, nil
	}

	list, err := s.scheduler.ListCourses(r.Context())
	if err != nil {
		// Serve the stale catalog rather than an error when we have one.
		if cached != nil {
			s.logger.Warn().Err(err).Msg("course catalog refresh failed, serving cached")
			return cached, nil
		}
		return nil, err
	}

	s.courses.mu.Lock()
	s.courses.list = list
	s.courses.fetchedAt = time.Now()
	s.courses.mu.Unlock()
	return list, nil
}

func (s *HTTPServer) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"departments": s.departments})
}

// handleExport streams the slot occupancy grid as an xlsx workbook. The
// range defaults to the current month.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, -1)

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
			return
		}
	}

	f, err := export.WriteOccupancy(s.snapshot.Bookings(), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()

	filename := "slots_" + from.Format(dateLayout) + "_" + to.Format(dateLayout) + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("stream workbook")
	}
}

// writeServiceError maps coordinator errors to HTTP statuses. Conflict and
// upstream failures also feed the counters.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation   *service.ValidationError
		conflict     *service.SlotConflictError
		upstream     *service.UpstreamWriteError
		inconsistent *service.InconsistentStateError
		rollback     *service.RollbackError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		metrics.IncSlotConflict()
		ranges := make([]string, len(conflict.Conflicts))
		for i, dr := range conflict.Conflicts {
			ranges[i] = dr.String()
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     conflict.Error(),
			"slot":      conflict.Slot,
			"conflicts": ranges,
		})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "only the creator may cancel a booking")
	case errors.As(err, &rollback):
		s.logger.Error().Err(err).Msg("rollback failed, repair queued")
		writeError(w, http.StatusInternalServerError, "booking failed; the slot will be released shortly")
	case errors.As(err, &upstream):
		metrics.IncUpstreamError(upstream.Op)
		writeError(w, http.StatusBadGateway, upstream.Error())
	case errors.As(err, &inconsistent):
		s.logger.Error().Err(err).Msg("inconsistent booking state")
		writeError(w, http.StatusInternalServerError, inconsistent.Error())
	default:
		s.logger.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
