package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"seatwarden/internal/config"
	"seatwarden/internal/domain"
	"seatwarden/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services is the engine surface the HTTP API exposes.
type Services struct {
	Departures   domain.DepartureService
	Blocks       domain.BlockService
	Availability domain.AvailabilityService
	Holds        domain.HoldService
	Bookings     domain.BookingService
}

// HTTPServer exposes the engine over HTTP+JSON.
type HTTPServer struct {
	cfg    *config.APIConfig
	svc    Services
	store  Pinger
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, store Pinger, logger *zerolog.Logger) *HTTPServer {
	srvLogger := zerolog.Nop()
	if logger != nil {
		srvLogger = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, store: store, logger: srvLogger}
	srv.auth = NewHTTPAuth(cfg)
	srv.routes(mux)

	handler := loggingMiddleware(&srv.logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.IncHTTP(pattern)
			h(w, r)
		}))
	}

	handle("GET /healthz", s.handleHealth)

	handle("GET /api/v1/calendar", s.handleCalendar)
	handle("GET /api/v1/calendar/export", s.handleCalendarExport)

	handle("POST /api/v1/departures", s.handleCreateDeparture)
	handle("GET /api/v1/departures/{id}", s.handleGetDeparture)
	handle("PUT /api/v1/departures/{id}", s.handleUpdateDeparture)
	handle("POST /api/v1/departures/{id}/status", s.handleUpdateDepartureStatus)
	handle("GET /api/v1/departures/{id}/availability", s.handleAvailability)
	handle("GET /api/v1/departures/{id}/holds", s.handleListHolds)
	handle("GET /api/v1/departures/{id}/blocks", s.handleListBlocks)

	handle("POST /api/v1/holds", s.handleCreateHold)
	handle("POST /api/v1/holds/{id}/extend", s.handleExtendHold)
	handle("POST /api/v1/holds/{id}/release", s.handleReleaseHold)

	handle("POST /api/v1/blocks", s.handleBlockSeats)
	handle("DELETE /api/v1/blocks/{id}", s.handleRemoveBlock)

	handle("POST /api/v1/bookings", s.handleInitiateBooking)
	handle("GET /api/v1/bookings/{id}", s.handleGetBooking)
	handle("POST /api/v1/bookings/{id}/confirm", s.handleConfirmBooking)
	handle("POST /api/v1/bookings/{id}/cancel", s.handleCancelBooking)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      *config.APIConfig
	registry *clientRegistry
	limiter  *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:      cfg,
		registry: newClientRegistry(cfg.Auth),
		limiter:  newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.registry.authenticate(
				strings.TrimSpace(r.Header.Get(a.registry.headerAPIKey)),
				strings.TrimSpace(r.Header.Get(a.registry.headerExtra)),
				requiredPermissionHTTP(r),
			)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeFailure(w, statusCode, "unauthorized", err.Error())
				return
			}
			r = r.WithContext(domain.WithActor(r.Context(), actorFor(client)))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeFailure(w, http.StatusTooManyRequests, "rate_limited", errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case !strings.HasPrefix(path, "/api/v1/"):
		return ""
	case r.Method == http.MethodGet:
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/holds"):
		return permWriteHolds
	case strings.HasPrefix(path, "/api/v1/bookings"):
		return permWriteBookings
	default:
		return permManageInventory
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.registry.headerAPIKey)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

const requestIDHeader = "X-Request-ID"

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		ev := logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// apiResponse is the envelope of every JSON response.
type apiResponse struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, apiResponse{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, statusCode int, kind, message string) {
	writeJSON(w, statusCode, apiResponse{ErrorKind: kind, ErrorMessage: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
