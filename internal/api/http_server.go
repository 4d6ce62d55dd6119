package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"slotcal/internal/config"
	"slotcal/internal/domain"
	"slotcal/internal/metrics"
	"slotcal/internal/models"
	"slotcal/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer is the presentation-facing surface: booking CRUD for the
// calendar client plus catalog, legend and export endpoints.
type HTTPServer struct {
	cfg         config.APIConfig
	coordinator *service.Coordinator
	snapshot    domain.SnapshotSource
	scheduler   domain.SchedulerClient
	departments []models.Department
	courses     courseCache
	server      *http.Server
	auth        *HTTPAuth
	logger      zerolog.Logger
}

type courseCache struct {
	mu        sync.Mutex
	list      []models.Course
	fetchedAt time.Time
	ttl       time.Duration
}

func NewHTTPServer(cfg config.APIConfig, coordinator *service.Coordinator, snapshot domain.SnapshotSource, scheduler domain.SchedulerClient, departments []models.Department, courseTTL time.Duration, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}
	if len(departments) == 0 {
		departments = models.DefaultDepartments
	}
	if courseTTL <= 0 {
		courseTTL = time.Duration(models.DefaultCourseCacheTTL) * time.Second
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:         cfg,
		coordinator: coordinator,
		snapshot:    snapshot,
		scheduler:   scheduler,
		departments: departments,
		courses:     courseCache{ttl: courseTTL},
		logger:      base,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBooking)
	mux.HandleFunc("/api/v1/courses", srv.handleCourses)
	mux.HandleFunc("/api/v1/departments", srv.handleDepartments)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the composed handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

const requestIDHeader = "x-request-id"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
