package devserver

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seat-console/model"
	"seat-console/service"
)

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(time.Minute, nil)
	info, seats := SampleShowtime("42")
	srv.AddShowtime(info, seats)
	ts := httptest.NewServer(srv.Router("/api"))
	t.Cleanup(ts.Close)
	return srv, ts
}

func clientFor(ts *httptest.Server, session string) *service.Client {
	return service.NewClient(ts.Client(), service.ShowtimeEndpoints(ts.URL+"/api", "42", ""), session)
}

func seatByID(m model.SeatMap, id int64) model.Seat {
	for _, s := range m.Seats {
		if s.Id == id {
			return s
		}
	}
	return model.Seat{}
}

func TestHoldAndRelease(t *testing.T) {
	_, ts := startServer(t)
	ctx := context.Background()
	client := clientFor(ts, uuid.NewString())

	require.NoError(t, client.HoldSeats(ctx, []int64{1, 2}))

	m, err := client.FetchSeatMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, seatByID(m, 1).Status)
	assert.True(t, seatByID(m, 1).HeldByCurrentUser)
	assert.True(t, seatByID(m, 2).HeldByCurrentUser)

	require.NoError(t, client.ReleaseSeats(ctx, []int64{1, 2}))

	m, err = client.FetchSeatMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seatByID(m, 1).Status)
	assert.False(t, seatByID(m, 1).HeldByCurrentUser)
}

func TestHold_ConflictWithOtherSession(t *testing.T) {
	srv, ts := startServer(t)
	require.NoError(t, srv.HoldFor("42", uuid.NewString(), 3))

	err := clientFor(ts, uuid.NewString()).HoldSeats(context.Background(), []int64{3})

	assert.True(t, service.IsConflict(err), "expected conflict, got %v", err)
}

func TestHold_SoldSeatIsConflict(t *testing.T) {
	_, ts := startServer(t)

	// C5 is sold in the sample hall.
	err := clientFor(ts, uuid.NewString()).HoldSeats(context.Background(), []int64{25})

	assert.True(t, service.IsConflict(err), "expected conflict, got %v", err)
}

func TestHold_RejectsSplitCouple(t *testing.T) {
	_, ts := startServer(t)
	client := clientFor(ts, uuid.NewString())

	// F1 and F2 (ids 51, 52) form a pair.
	err := client.HoldSeats(context.Background(), []int64{51})
	require.Error(t, err)

	assert.NoError(t, client.HoldSeats(context.Background(), []int64{51, 52}))
}

func TestHolds_Expire(t *testing.T) {
	srv, ts := startServer(t)
	now := time.Now()
	srv.mu.Lock()
	srv.now = func() time.Time { return now }
	srv.mu.Unlock()
	client := clientFor(ts, uuid.NewString())
	require.NoError(t, client.HoldSeats(context.Background(), []int64{4}))

	srv.mu.Lock()
	now = now.Add(2 * time.Minute)
	srv.mu.Unlock()

	m, err := client.FetchSeatMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seatByID(m, 4).Status)
}

func TestReplays_ExpireWithHolds(t *testing.T) {
	srv, ts := startServer(t)
	now := time.Now()
	srv.mu.Lock()
	srv.now = func() time.Time { return now }
	srv.mu.Unlock()
	client := clientFor(ts, uuid.NewString())

	require.NoError(t, client.HoldSeats(context.Background(), []int64{4}))
	srv.mu.Lock()
	assert.Len(t, srv.replays, 1)
	now = now.Add(2 * time.Minute)
	srv.mu.Unlock()

	require.NoError(t, client.HoldSeats(context.Background(), []int64{5}))
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Len(t, srv.replays, 1)
}

func TestRequiresSession(t *testing.T) {
	_, ts := startServer(t)

	err := clientFor(ts, "not-a-uuid").HoldSeats(context.Background(), []int64{1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestUnknownShowtime(t *testing.T) {
	_, ts := startServer(t)
	client := service.NewClient(ts.Client(), service.ShowtimeEndpoints(ts.URL+"/api", "nope", ""), uuid.NewString())

	_, err := client.FetchSeatMap(context.Background())

	assert.True(t, service.IsNotFound(err), "expected not found, got %v", err)
}
