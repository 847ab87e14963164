package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.Client(), ShowtimeEndpoints(server.URL, "42", ""), "session-1")
}

func TestShowtimeEndpoints(t *testing.T) {
	e := ShowtimeEndpoints("http://seats.local/api/", "42", "")
	if e.SeatAPI != "http://seats.local/api/showtimes/42/seats" {
		t.Fatalf("unexpected seat api: %s", e.SeatAPI)
	}
	if e.Holds != "http://seats.local/api/showtimes/42/holds" {
		t.Fatalf("unexpected holds endpoint: %s", e.Holds)
	}
	if e.Release != "http://seats.local/api/showtimes/42/holds/release" {
		t.Fatalf("unexpected release endpoint: %s", e.Release)
	}

	e = ShowtimeEndpoints("http://seats.local", "42", "http://cdn.local/map.json")
	if e.SeatAPI != "http://cdn.local/map.json" {
		t.Fatalf("expected seat api override, got %s", e.SeatAPI)
	}
}

func TestGetJSON_Non2xxReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 1

	var out map[string]any
	err := client.getJSON(context.Background(), server.URL+"/fail", &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetJSON_RetriesTransientServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&attempts, 1)
		if current < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("retry later"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 3
	client.retryBase = time.Millisecond
	client.retryCap = 2 * time.Millisecond

	var out map[string]any
	if err := client.getJSON(context.Background(), server.URL+"/retry", &out); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if ok, _ := out["ok"].(bool); !ok {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestGetJSON_DoesNotRetryOnClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 3
	client.retryBase = time.Millisecond
	client.retryCap = 2 * time.Millisecond

	var out map[string]any
	err := client.getJSON(context.Background(), server.URL+"/bad-request", &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestFetchSeatMap_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/showtimes/42/seats" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Cache-Control"); !strings.Contains(got, "no-cache") {
			t.Errorf("expected cache to be disabled, got %q", got)
		}
		if got := r.Header.Get("X-Session-Id"); got != "session-1" {
			t.Errorf("unexpected session header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "seats": [
    {"showtimeSeatId": 1, "rowLabel": "A", "seatNumber": 1, "status": "AVAILABLE", "couple": false, "heldByCurrentUser": false, "price": 50000},
    {"showtimeSeatId": 2, "rowLabel": "A", "seatNumber": 2, "status": "HELD", "couple": true, "couplePairId": "p1", "heldByCurrentUser": true, "price": 75000}
  ]
}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	seatMap, err := client.FetchSeatMap(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(seatMap.Seats) != 2 {
		t.Fatalf("expected 2 seats, got %d", len(seatMap.Seats))
	}
	if seatMap.Seats[0].PairID() != "" {
		t.Fatalf("expected no pair id, got %q", seatMap.Seats[0].PairID())
	}
	if seatMap.Seats[1].PairID() != "p1" || !seatMap.Seats[1].HeldByCurrentUser {
		t.Fatalf("unexpected couple seat: %+v", seatMap.Seats[1])
	}
}

func TestFetchSeatMap_NotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server)
	client.maxAttempts = 3
	client.retryBase = time.Millisecond

	if _, err := client.FetchSeatMap(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestFetchSeatMap_EmptyBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchSeatMap(context.Background())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGetShowtime_EmptyBodyIsAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := newTestClient(server).GetShowtime(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestGetShowtime_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/showtimes/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","title":"Movie One","hall":"Hall 3"}`))
	}))
	defer server.Close()

	showtime, err := newTestClient(server).GetShowtime(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if showtime.Title != "Movie One" || showtime.Hall != "Hall 3" {
		t.Fatalf("unexpected showtime: %+v", showtime)
	}
}

func TestHoldSeats_SendsAllIDsOnce(t *testing.T) {
	var attempts int32
	var body struct {
		SeatIds []int64 `json:"seatIds"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/showtimes/42/holds" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("expected idempotency key")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	if err := newTestClient(server).HoldSeats(context.Background(), []int64{7, 8}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if len(body.SeatIds) != 2 || body.SeatIds[0] != 7 || body.SeatIds[1] != 8 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHoldSeats_ConflictIsNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("seat already held"))
	}))
	defer server.Close()

	err := newTestClient(server).HoldSeats(context.Background(), []int64{1})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestReleaseSeats_Path(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/showtimes/42/holds/release" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(server).ReleaseSeats(context.Background(), []int64{3}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestHoldSeats_RequiresIDs(t *testing.T) {
	client := NewClient(nil, ShowtimeEndpoints("http://127.0.0.1:1", "1", ""), "")
	if err := client.HoldSeats(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty id list")
	}
	if client.SessionID() == "" {
		t.Fatal("expected a generated session id")
	}
}
