// Package seat keeps a console's view of one showtime's seat map in step with
// the server-side seat-lock service. The server owns every hold; this package
// only renders the latest snapshot and asks for holds and releases.
package seat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"seat-console/model"
)

const defaultReleaseTimeout = 2 * time.Second

var (
	// ErrToggleInFlight is returned when a toggle is dispatched while the
	// previous one is still waiting on the server.
	ErrToggleInFlight = errors.New("seat toggle already in progress")
	// ErrUnknownSeat is returned for a seat id missing from the last snapshot.
	ErrUnknownSeat = errors.New("seat not in current seat map")
	// ErrClosed is returned for toggles dispatched after ReleaseAll.
	ErrClosed = errors.New("seat client closed")
)

// API is the seat-lock service as seen by the console.
type API interface {
	FetchSeatMap(ctx context.Context) (model.SeatMap, error)
	HoldSeats(ctx context.Context, ids []int64) error
	ReleaseSeats(ctx context.Context, ids []int64) error
	ReleaseEndpoint() string
}

// Beacon transmits a payload without waiting for the result. Send returns
// false when the payload could not be queued.
type Beacon interface {
	Send(endpoint string, body []byte) bool
}

// View is the render target.
type View interface {
	RenderGrid(grid Grid)
	RenderError(err error)
	RenderTotals(totals Totals)
}

// Alerter shows a message the user has to acknowledge.
type Alerter interface {
	Alert(message string)
}

type Options struct {
	View    View
	Alerter Alerter
	Beacon  Beacon
	// Combos returns the concession lines currently on the checkout form.
	Combos func() []model.ComboLineItem
	// Format renders the total; defaults to NewFormatter("en", "").
	Format         func(float64) string
	Logger         *slog.Logger
	ReleaseTimeout time.Duration
}

// Client is the seat-hold state machine for one showtime.
type Client struct {
	api            API
	view           View
	alerter        Alerter
	beacon         Beacon
	combos         func() []model.ComboLineItem
	format         func(float64) string
	logger         *slog.Logger
	releaseTimeout time.Duration

	mu      sync.Mutex
	state   state
	applied uint64
	// inflight is closed when the running toggle returns.
	inflight chan struct{}
	closing  bool
	released bool

	refreshes singleflight.Group
	fetchSeq  atomic.Uint64
	// renderMu orders reading state with pushing it to the view.
	renderMu sync.Mutex
}

// snapshot is a fetched seat map stamped with the order its fetch started in.
type snapshot struct {
	seq     uint64
	seatMap model.SeatMap
}

// New creates a client. Without a View the client does nothing at all, which
// keeps a console with no seat grid from failing at startup.
func New(api API, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	format := opts.Format
	if format == nil {
		format = NewFormatter("en", "")
	}
	combos := opts.Combos
	if combos == nil {
		combos = func() []model.ComboLineItem { return nil }
	}
	timeout := opts.ReleaseTimeout
	if timeout <= 0 {
		timeout = defaultReleaseTimeout
	}
	return &Client{
		api:            api,
		view:           opts.View,
		alerter:        opts.Alerter,
		beacon:         opts.Beacon,
		combos:         combos,
		format:         format,
		logger:         logger,
		releaseTimeout: timeout,
		state:          emptyState(),
	}
}

func (c *Client) active() bool {
	return c != nil && c.view != nil && c.api != nil
}

// Refresh fetches the seat map and replaces all local state with it.
// On failure the view shows an error and the previous state is kept.
// Concurrent calls share one fetch.
func (c *Client) Refresh(ctx context.Context) error {
	if !c.active() {
		return nil
	}
	return c.refresh(ctx, true)
}

// refresh applies a fetched snapshot unless one from a later fetch is
// already applied. A refresh that follows a hold or release passes
// shared=false so it never reuses a fetch started before the change.
func (c *Client) refresh(ctx context.Context, shared bool) error {
	fetch := func() (any, error) {
		seq := c.fetchSeq.Add(1)
		seatMap, err := c.api.FetchSeatMap(ctx)
		return snapshot{seq: seq, seatMap: seatMap}, err
	}
	var (
		v   any
		err error
	)
	if shared {
		v, err, _ = c.refreshes.Do("seatmap", fetch)
	} else {
		v, err = fetch()
	}
	snap, _ := v.(snapshot)

	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	if err != nil {
		c.logger.Warn("seat map refresh failed", "error", err)
		c.mu.Lock()
		stale := snap.seq < c.applied
		c.mu.Unlock()
		if !stale {
			c.view.RenderError(err)
		}
		return fmt.Errorf("refresh seat map: %w", err)
	}

	next := buildState(snap.seatMap)
	c.mu.Lock()
	if snap.seq < c.applied {
		c.mu.Unlock()
		c.logger.Debug("stale seat map dropped", "seq", snap.seq)
		return nil
	}
	c.applied = snap.seq
	c.state = next
	grid := next.grid()
	c.mu.Unlock()

	c.logger.Debug("seat map refreshed", "seats", len(next.seats), "selected", len(next.selection))
	c.view.RenderGrid(grid)
	c.renderTotals()
	return nil
}

// InteractionSet returns the ids a toggle on seatID acts on: the seat alone,
// or its whole couple pair.
func (c *Client) InteractionSet(seatID int64) ([]int64, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.interactionSet(seatID)
}

// Toggle holds or releases seatID together with the rest of its pair. The set
// is released only when every member is already held. The seat map is always
// refreshed afterwards, whatever the outcome, with a fetch that starts after
// the hold or release.
func (c *Client) Toggle(ctx context.Context, seatID int64) error {
	if !c.active() {
		return nil
	}
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.inflight != nil {
		c.mu.Unlock()
		return ErrToggleInFlight
	}
	done := make(chan struct{})
	c.inflight = done
	ids, ok := c.state.interactionSet(seatID)
	release := ok && c.state.allSelected(ids)
	labels := c.state.labels(ids)
	c.mu.Unlock()
	defer c.finishToggle(done)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSeat, seatID)
	}

	action := "hold"
	var err error
	if release {
		action = "release"
		err = c.Release(ctx, ids)
	} else {
		err = c.Hold(ctx, ids)
	}
	if err != nil {
		c.logger.Warn("seat toggle failed", "action", action, "seats", ids, "error", err)
		c.alert(fmt.Sprintf("Could not %s %s: %v", action, labels, err))
	} else {
		c.logger.Info("seat toggle", "action", action, "seats", ids)
	}

	if c.settleAfterClose(ids, err == nil, release) {
		return err
	}

	c.refreshes.Forget("seatmap")
	if refreshErr := c.refresh(ctx, false); refreshErr != nil && err == nil {
		return refreshErr
	}
	return err
}

// settleAfterClose handles a toggle that outlived the start of ReleaseAll.
// While ReleaseAll still waits, the selection it is about to release is
// updated with the toggle's outcome. Once it has gone, the toggle releases
// its own fresh holds. It reports whether the client is shutting down.
func (c *Client) settleAfterClose(ids []int64, succeeded bool, release bool) bool {
	c.mu.Lock()
	closing, released := c.closing, c.released
	if closing && !released && succeeded {
		selection := make(map[int64]model.Seat, len(c.state.selection)+len(ids))
		for id, s := range c.state.selection {
			selection[id] = s
		}
		for _, id := range ids {
			if release {
				delete(selection, id)
			} else {
				selection[id] = c.state.seats[id]
			}
		}
		c.state.selection = selection
	}
	c.mu.Unlock()

	if released && succeeded && !release {
		ctx, cancel := context.WithTimeout(context.Background(), c.releaseTimeout)
		defer cancel()
		if err := c.api.ReleaseSeats(ctx, ids); err != nil {
			c.logger.Warn("late release failed", "seats", ids, "error", err)
		} else {
			c.logger.Info("late release sent", "seats", ids)
		}
	}
	return closing
}

func (c *Client) finishToggle(done chan struct{}) {
	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(done)
}

// Hold asks the server to hold ids in a single request.
func (c *Client) Hold(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.api.HoldSeats(ctx, ids); err != nil {
		return fmt.Errorf("hold seats: %w", err)
	}
	return nil
}

// Release asks the server to release ids in a single request.
func (c *Client) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.api.ReleaseSeats(ctx, ids); err != nil {
		return fmt.Errorf("release seats: %w", err)
	}
	return nil
}

// ReleaseAll is the shutdown cleanup. It waits up to the release timeout for a
// running toggle, then clears the selection and sends one release for every
// held id, through the beacon when it accepts the payload and as a short
// detached request otherwise. It returns the ids it tried to
// release and, for the fallback path only, the delivery error. Nothing here
// is guaranteed to reach the server; holds still expire server-side.
func (c *Client) ReleaseAll() ([]int64, error) {
	if c == nil || c.api == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.closing = true
	inflight := c.inflight
	c.mu.Unlock()
	if inflight != nil {
		timer := time.NewTimer(c.releaseTimeout)
		select {
		case <-inflight:
		case <-timer.C:
			c.logger.Warn("seat toggle still in flight at exit")
		}
		timer.Stop()
	}

	c.mu.Lock()
	c.released = true
	ids := c.state.selectedIDs()
	c.state.selection = map[int64]model.Seat{}
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil, nil
	}

	if c.beacon != nil {
		body, err := json.Marshal(model.SeatIDsRequest{SeatIds: ids})
		if err == nil && c.beacon.Send(c.api.ReleaseEndpoint(), body) {
			c.logger.Info("release queued", "seats", ids, "via", "beacon")
			return ids, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.releaseTimeout)
	defer cancel()
	if err := c.api.ReleaseSeats(ctx, ids); err != nil {
		c.logger.Warn("release on exit failed", "seats", ids, "error", err)
		return ids, fmt.Errorf("release on exit: %w", err)
	}
	c.logger.Info("release sent", "seats", ids, "via", "request")
	return ids, nil
}

// UpdateTotals recomputes the checkout total from held seats and combo lines
// and pushes it to the view.
func (c *Client) UpdateTotals() Totals {
	if !c.active() {
		return Totals{}
	}
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	return c.renderTotals()
}

func (c *Client) renderTotals() Totals {
	c.mu.Lock()
	ids := c.state.selectedIDs()
	selected := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		selected = append(selected, c.state.selection[id])
	}
	c.mu.Unlock()

	amount := computeTotals(selected, c.combos())
	totals := Totals{
		Amount:    amount,
		Formatted: c.format(amount),
		SeatIDs:   joinIDs(ids),
		SeatCount: len(ids),
	}
	c.view.RenderTotals(totals)
	return totals
}

// Selected returns the held ids from the last snapshot, ascending.
func (c *Client) Selected() []int64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.selectedIDs()
}

func (c *Client) alert(message string) {
	if c.alerter == nil {
		return
	}
	c.alerter.Alert(message)
}

func (st state) labels(ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := st.seats[id]; ok {
			names = append(names, s.Label())
		}
	}
	if len(names) == 0 {
		return "seat"
	}
	return "seat " + strings.Join(names, ", ")
}
