// Package client is a Go caller for the engine's HTTP API, used by storefronts
// and back-office tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"

	"github.com/redis/go-redis/v9"
)

// Client calls a seatwarden HTTP API with an API key pair.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// APIError is a failed call. errors.Is matches it against domain sentinels of
// the same kind, so callers can branch on domain.ErrHoldExpired and friends.
type APIError struct {
	Status  int
	Kind    domain.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("seatwarden api: http %d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *APIError) Is(target error) bool {
	if !domain.IsDomainError(target) {
		return false
	}
	return domain.KindOf(target) == e.Kind
}

// Hold is the hold summary returned by create and extend.
type Hold struct {
	HoldID    string            `json:"hold_id"`
	HoldType  models.HoldType   `json:"hold_type"`
	Status    models.HoldStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	ErrorKind    string          `json:"error_kind"`
	ErrorMessage string          `json:"error_message"`
}

func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches calendar reads for ttl. Seat-level calls are never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) Calendar(ctx context.Context, from, to time.Time, resourceID string) ([]models.CalendarDay, error) {
	q := url.Values{}
	q.Set("from", from.Format(models.CalendarDateLayout))
	q.Set("to", to.Format(models.CalendarDateLayout))
	if resourceID != "" {
		q.Set("resource_id", resourceID)
	}
	cacheKey := fmt.Sprintf("calendar:%s:%s:%s", q.Get("from"), q.Get("to"), resourceID)

	var wrap struct {
		Days []models.CalendarDay `json:"days"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Days, nil
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/calendar?"+q.Encode(), nil, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Days, nil
}

func (c *Client) CheckAvailability(ctx context.Context, departureID string, seats int) (models.Availability, error) {
	var av models.Availability
	path := fmt.Sprintf("/api/v1/departures/%s/availability?seats=%d", url.PathEscape(departureID), seats)
	err := c.call(ctx, http.MethodGet, path, nil, &av)
	return av, err
}

func (c *Client) CreateHold(ctx context.Context, in domain.CreateHoldInput) (Hold, error) {
	var h Hold
	err := c.call(ctx, http.MethodPost, "/api/v1/holds", in, &h)
	return h, err
}

func (c *Client) ExtendHold(ctx context.Context, holdID string, holdType models.HoldType) (Hold, error) {
	var h Hold
	body := map[string]models.HoldType{"hold_type": holdType}
	err := c.call(ctx, http.MethodPost, "/api/v1/holds/"+url.PathEscape(holdID)+"/extend", body, &h)
	return h, err
}

func (c *Client) ReleaseHold(ctx context.Context, holdID string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/holds/"+url.PathEscape(holdID)+"/release", nil, nil)
}

func (c *Client) InitiateBooking(ctx context.Context, in domain.InitiateBookingInput) (domain.InitiateBookingResult, error) {
	var res domain.InitiateBookingResult
	err := c.call(ctx, http.MethodPost, "/api/v1/bookings", in, &res)
	return res, err
}

func (c *Client) ConfirmBooking(ctx context.Context, bookingID, holdID string) (*models.Booking, error) {
	var b models.Booking
	body := map[string]string{"hold_id": holdID}
	if err := c.call(ctx, http.MethodPost, "/api/v1/bookings/"+url.PathEscape(bookingID)+"/confirm", body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID, reason string) (*models.Booking, error) {
	var b models.Booking
	body := map[string]string{"reason": reason}
	if err := c.call(ctx, http.MethodPost, "/api/v1/bookings/"+url.PathEscape(bookingID)+"/cancel", body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b models.Booking
	if err := c.call(ctx, http.MethodGet, "/api/v1/bookings/"+url.PathEscape(bookingID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("seatwarden api: http %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Kind: domain.Kind(env.ErrorKind), Message: env.ErrorMessage}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
