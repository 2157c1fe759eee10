package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"
	"seatwarden/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidArgument, domain.KindInvalidCapacity:
		return http.StatusBadRequest
	case domain.KindInvalidStateTransition, domain.KindDepartureClosed,
		domain.KindInsufficientCapacity, domain.KindHoldNotActive:
		return http.StatusConflict
	case domain.KindHoldExpired:
		return http.StatusGone
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if !domain.IsDomainError(err) {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeFailure(w, http.StatusInternalServerError, string(domain.KindInternal), "internal error")
		return
	}
	writeFailure(w, statusForKind(kind), string(kind), err.Error())
}

func (s *HTTPServer) badRequest(w http.ResponseWriter, format string, args ...any) {
	writeFailure(w, http.StatusBadRequest, string(domain.KindInvalidArgument), fmt.Sprintf(format, args...))
}

// decodeJSON reads a JSON body. An empty body is accepted when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeFailure(w, http.StatusServiceUnavailable, string(domain.KindTransient), "store unavailable")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseDay(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	d, err := time.Parse(models.CalendarDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD", name)
	}
	return d, nil
}

func calendarQuery(r *http.Request) (from, to time.Time, resourceID string, err error) {
	q := r.URL.Query()
	if from, err = parseDay(q.Get("from"), "from"); err != nil {
		return
	}
	if to, err = parseDay(q.Get("to"), "to"); err != nil {
		return
	}
	resourceID = strings.TrimSpace(q.Get("resource_id"))
	return
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	from, to, resourceID, err := calendarQuery(r)
	if err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	days, err := s.svc.Availability.Calendar(r.Context(), from, to, resourceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"days": days})
}

func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	from, to, resourceID, err := calendarQuery(r)
	if err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Availability.ExportCalendar(r.Context(), &buf, from, to, resourceID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.CalendarExportName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleCreateDeparture(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateDepartureInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	dep, err := s.svc.Departures.CreateDeparture(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, dep)
}

func (s *HTTPServer) handleGetDeparture(w http.ResponseWriter, r *http.Request) {
	details, err := s.svc.Availability.GetDepartureDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, details)
}

func (s *HTTPServer) handleUpdateDeparture(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateDepartureInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	dep, err := s.svc.Departures.UpdateDeparture(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dep)
}

func (s *HTTPServer) handleUpdateDepartureStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.DepartureStatus `json:"status"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	status := models.DepartureStatus(strings.ToUpper(strings.TrimSpace(string(body.Status))))
	dep, err := s.svc.Departures.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dep)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	seats := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("seats")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "seats must be an integer")
			return
		}
		seats = n
	}
	av, err := s.svc.Availability.CheckAvailability(r.Context(), r.PathValue("id"), seats)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, av)
}

func (s *HTTPServer) handleListHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := s.svc.Holds.ListActiveHolds(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"holds": holds})
}

func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.svc.Blocks.ListBlocks(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"blocks": blocks})
}

type holdResponse struct {
	HoldID    string            `json:"hold_id"`
	HoldType  models.HoldType   `json:"hold_type"`
	Status    models.HoldStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func newHoldResponse(h *models.Hold) holdResponse {
	return holdResponse{HoldID: h.ID, HoldType: h.HoldType, Status: h.Status, ExpiresAt: h.ExpiresAt}
}

func (s *HTTPServer) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateHoldInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	hold, err := s.svc.Holds.CreateHold(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, newHoldResponse(hold))
}

func (s *HTTPServer) handleExtendHold(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HoldType models.HoldType `json:"hold_type"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	hold, err := s.svc.Holds.ExtendHold(r.Context(), r.PathValue("id"), body.HoldType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newHoldResponse(hold))
}

func (s *HTTPServer) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Holds.ReleaseHold(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *HTTPServer) handleBlockSeats(w http.ResponseWriter, r *http.Request) {
	var in domain.BlockSeatsInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	block, err := s.svc.Blocks.BlockSeats(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Blocks.RemoveBlock(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *HTTPServer) handleInitiateBooking(w http.ResponseWriter, r *http.Request) {
	var in domain.InitiateBookingInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	res, err := s.svc.Bookings.InitiateBooking(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HoldID string `json:"hold_id"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	booking, err := s.svc.Bookings.ConfirmBooking(r.Context(), r.PathValue("id"), body.HoldID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body, true); err != nil {
		s.badRequest(w, "%s", err.Error())
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, booking)
}
