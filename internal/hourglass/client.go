package hourglass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"slotcal/internal/config"
	"slotcal/internal/models"

	"github.com/rs/zerolog"
)

// Client talks to the Hourglass scheduling API, the authority for
// resource/time-window commitments. Every call is bounded by the configured
// timeout; create is never retried automatically since a duplicate commit
// would burn the window.
type Client struct {
	baseURL         string
	apiKey          string
	serviceOffering int64
	http            *http.Client
	logger          zerolog.Logger
}

func New(cfg config.HourglassConfig, logger *zerolog.Logger) *Client {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "hourglass").Logger()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		serviceOffering: cfg.ServiceOffering,
		http:            &http.Client{Timeout: timeout},
		logger:          base,
	}
}

type scheduleRequest struct {
	Resources []models.Resource `json:"resources"`
	Timeslot  timeslot          `json:"timeslot"`
}

type timeslot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type scheduleResponse struct {
	ID int64 `json:"id"`
}

type statusRequest struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// CreateSchedule commits a resource for a time window and returns the
// server-assigned schedule id.
func (c *Client) CreateSchedule(ctx context.Context, resourceID int64, start, end time.Time) (int64, error) {
	body := scheduleRequest{
		Resources: []models.Resource{{ID: resourceID}},
		Timeslot: timeslot{
			Start: start.Format(time.RFC3339),
			End:   end.Format(time.RFC3339),
		},
	}

	var resp scheduleResponse
	if err := c.do(ctx, http.MethodPost, "/api/schedules", nil, body, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("schedule response carries no id")
	}

	c.logger.Info().Int64("schedule_id", resp.ID).Int64("resource_id", resourceID).
		Msg("schedule committed")
	return resp.ID, nil
}

// CancelSchedule transitions a schedule to CANCELLED.
func (c *Client) CancelSchedule(ctx context.Context, scheduleID int64) error {
	path := fmt.Sprintf("/api/schedules/%d/status", scheduleID)
	body := statusRequest{ID: scheduleID, Status: models.StatusCancelled}
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return err
	}
	c.logger.Info().Int64("schedule_id", scheduleID).Msg("schedule cancelled")
	return nil
}

// ListCourses fetches the bookable course catalog.
func (c *Client) ListCourses(ctx context.Context) ([]models.Course, error) {
	query := url.Values{}
	query.Set("activeOnly", "true")
	query.Set("resourceType", "Course")
	query.Set("serviceOffering", strconv.FormatInt(c.serviceOffering, 10))

	var courses []models.Course
	if err := c.do(ctx, http.MethodGet, "/api/resources", query, nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
