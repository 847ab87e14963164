package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"seat-console/model"
)

const (
	defaultUserAgent   = "seat-console/1 (+terminal)"
	defaultTimeout     = 12 * time.Second
	defaultMaxAttempts = 3
	defaultRetryBase   = 200 * time.Millisecond
	defaultRetryCap    = 1200 * time.Millisecond

	headerSessionID      = "X-Session-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

// Endpoints are the seat-lock service URLs for one showtime.
type Endpoints struct {
	Showtime string
	SeatAPI  string
	Holds    string
	Release  string
}

// ShowtimeEndpoints derives the default endpoint layout for a showtime under
// baseURL. A non-empty seatAPI replaces the derived seat map URL.
func ShowtimeEndpoints(baseURL string, showtimeID string, seatAPI string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	root := fmt.Sprintf("%s/showtimes/%s", base, url.PathEscape(showtimeID))
	e := Endpoints{
		Showtime: root,
		SeatAPI:  root + "/seats",
		Holds:    root + "/holds",
		Release:  root + "/holds/release",
	}
	if strings.TrimSpace(seatAPI) != "" {
		e.SeatAPI = seatAPI
	}
	return e
}

// Client wraps HTTP access to the seat-lock service for one console session.
type Client struct {
	httpClient  *http.Client
	endpoints   Endpoints
	sessionID   string
	userAgent   string
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
	newKey      func() string
}

// ErrEmptyResponse is returned when a 2xx response carries no JSON body.
var ErrEmptyResponse = errors.New("empty response body")

// APIError is returned when the seat-lock service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "seat api error"
	}
	if e.Body == "" {
		return fmt.Sprintf("seat api error: %s", e.Status)
	}
	return fmt.Sprintf("seat api error: %s: %s", e.Status, e.Body)
}

// IsNotFound reports whether the error represents a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether the seat-lock service refused a hold because
// another session owns one of the seats.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == code
	}
	return false
}

// NewClient creates a new API client. If httpClient is nil, a default client is used.
// An empty sessionID gets a fresh random one.
func NewClient(httpClient *http.Client, endpoints Endpoints, sessionID string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}
	return &Client{
		httpClient:  httpClient,
		endpoints:   endpoints,
		sessionID:   sessionID,
		userAgent:   defaultUserAgent,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryCap:    defaultRetryCap,
		newKey:      uuid.NewString,
	}
}

// SessionID identifies this console to the seat-lock service.
func (c *Client) SessionID() string {
	return c.sessionID
}

// HTTPClient exposes the underlying client so a Beacon can share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ReleaseEndpoint is the URL a teardown beacon posts release payloads to.
func (c *Client) ReleaseEndpoint() string {
	return c.endpoints.Release
}

// GetShowtime fetches the showtime header shown above the seat map.
func (c *Client) GetShowtime(ctx context.Context) (model.Showtime, error) {
	if c.endpoints.Showtime == "" {
		return model.Showtime{}, errors.New("showtime endpoint is not configured")
	}
	var showtime model.Showtime
	if err := c.getJSON(ctx, c.endpoints.Showtime, &showtime); err != nil {
		return model.Showtime{}, err
	}
	return showtime, nil
}

// FetchSeatMap fetches the live seat map in a single attempt. Responses are
// never served from a cache; a failed fetch is shown and the user refreshes.
func (c *Client) FetchSeatMap(ctx context.Context) (model.SeatMap, error) {
	if c.endpoints.SeatAPI == "" {
		return model.SeatMap{}, errors.New("seat api endpoint is not configured")
	}
	var seatMap model.SeatMap
	if err := c.getJSONAttempts(ctx, c.endpoints.SeatAPI, &seatMap, 1); err != nil {
		return model.SeatMap{}, err
	}
	return seatMap, nil
}

// HoldSeats asks the seat-lock service to hold every id in one request.
func (c *Client) HoldSeats(ctx context.Context, ids []int64) error {
	return c.postSeatIDs(ctx, c.endpoints.Holds, ids)
}

// ReleaseSeats releases every id in one request.
func (c *Client) ReleaseSeats(ctx context.Context, ids []int64) error {
	return c.postSeatIDs(ctx, c.endpoints.Release, ids)
}

func (c *Client) postSeatIDs(ctx context.Context, endpoint string, ids []int64) error {
	if endpoint == "" {
		return errors.New("seat endpoint is not configured")
	}
	if len(ids) == 0 {
		return errors.New("at least one seat id is required")
	}
	return c.postJSON(ctx, endpoint, model.SeatIDsRequest{SeatIds: ids})
}

// postJSON sends a single attempt; failures go back to the caller.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIdempotencyKey, c.newKey())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return newAPIError(res, endpoint)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 8<<10))
	return nil
}

// getJSON retries and accepts an empty body, leaving out untouched.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	err := c.getJSONAttempts(ctx, endpoint, out, c.maxAttempts)
	if errors.Is(err, ErrEmptyResponse) {
		return nil
	}
	return err
}

func (c *Client) getJSONAttempts(ctx context.Context, endpoint string, out any, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Cache-Control", "no-cache, no-store")
		req.Header.Set("Pragma", "no-cache")

		res, err := c.httpClient.Do(req)
		if err != nil {
			if c.shouldRetryNetworkError(err) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			apiErr := newAPIError(res, endpoint)
			_ = res.Body.Close()
			if c.shouldRetryStatus(res.StatusCode) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return apiErr
		}

		dec := json.NewDecoder(res.Body)
		err = dec.Decode(out)
		_ = res.Body.Close()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w from %s", ErrEmptyResponse, endpoint)
			}
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
		return nil
	}

	return errors.New("request failed after retries")
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerSessionID, c.sessionID)
}

func newAPIError(res *http.Response, endpoint string) *APIError {
	snippet, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
	return &APIError{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Endpoint:   endpoint,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

func (c *Client) shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	delay := c.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.retryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	cap := c.retryCap
	if cap <= 0 {
		cap = defaultRetryCap
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= cap/2 {
			return cap
		}
		delay *= 2
	}
	if delay > cap {
		return cap
	}
	return delay
}
