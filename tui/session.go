package tui

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"seat-console/config"
	"seat-console/model"
	"seat-console/seat"
	"seat-console/service"
	"seat-console/store"
)

// session is everything bound to one open showtime. It is shared by pointer
// between model copies and tea commands.
type session struct {
	showtimeID string
	api        *service.Client
	beacon     *service.Beacon
	seats      *seat.Client
	bridge     *bridge
	combos     *comboForm
	logger     *slog.Logger
}

// bridge is the seat.View and seat.Alerter of a session. Renders become tea
// messages on a channel the program listens to.
type bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

func newBridge() *bridge {
	return &bridge{events: make(chan tea.Msg, 16), done: make(chan struct{})}
}

func (b *bridge) RenderGrid(grid seat.Grid)       { b.push(gridMsg{from: b, grid: grid}) }
func (b *bridge) RenderError(err error)           { b.push(seatMapErrMsg{from: b, err: err}) }
func (b *bridge) RenderTotals(totals seat.Totals) { b.push(totalsMsg{from: b, totals: totals}) }
func (b *bridge) Alert(message string)            { b.push(alertMsg{from: b, message: message}) }

func (b *bridge) push(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

func (b *bridge) close() {
	b.once.Do(func() { close(b.done) })
}

// listen waits for the next render from the session's seat client.
func (b *bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// comboForm holds the concession quantities typed into the console. The seat
// client reads it from command goroutines.
type comboForm struct {
	mu    sync.Mutex
	lines []model.ComboLineItem
}

func newComboForm(offered []config.Combo, saved []model.ComboLineItem) *comboForm {
	quantities := map[string]string{}
	for _, line := range saved {
		quantities[line.Id] = line.Quantity
	}
	lines := make([]model.ComboLineItem, 0, len(offered))
	for _, combo := range offered {
		qty, ok := quantities[combo.ID]
		if !ok {
			qty = "0"
		}
		lines = append(lines, model.ComboLineItem{
			Id:       combo.ID,
			Name:     combo.Name,
			Quantity: qty,
			Price:    combo.Price,
		})
	}
	return &comboForm{lines: lines}
}

func (f *comboForm) Lines() []model.ComboLineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ComboLineItem(nil), f.lines...)
}

// adjust changes a line's quantity by delta, never below zero. Unparsable
// quantities restart from zero.
func (f *comboForm) adjust(index int, delta int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.lines) {
		return false
	}
	qty, err := strconv.Atoi(f.lines[index].Quantity)
	if err != nil {
		qty = 0
	}
	next := max(0, qty+delta)
	if next == qty && err == nil {
		return false
	}
	f.lines[index].Quantity = strconv.Itoa(next)
	return true
}

func (f *comboForm) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

func newSession(opts Options, showtimeID string, api seat.API) *session {
	logger := opts.Logger.With("showtime", showtimeID)
	var client *service.Client
	if api == nil {
		endpoints := service.ShowtimeEndpoints(opts.Config.BaseURL, showtimeID, opts.Config.SeatAPI)
		client = service.NewClient(opts.HTTPClient, endpoints, "")
		api = client
	}

	var beacon *service.Beacon
	if client != nil {
		beacon = service.NewBeacon(client.HTTPClient(), client.SessionID(), opts.Config.ReleaseTimeout, logger)
	}

	saved, err := store.LoadComboForm(showtimeID)
	if err != nil {
		logger.Warn("load combo form", "error", err)
	}
	combos := newComboForm(opts.Config.Combos, saved)
	b := newBridge()

	seatOpts := seat.Options{
		View:           b,
		Alerter:        b,
		Combos:         combos.Lines,
		Format:         seat.NewFormatter(opts.Config.Locale, opts.Config.Currency),
		Logger:         logger,
		ReleaseTimeout: opts.Config.ReleaseTimeout,
	}
	// A nil *service.Beacon must not become a non-nil seat.Beacon.
	if beacon != nil {
		seatOpts.Beacon = beacon
	}

	return &session{
		showtimeID: showtimeID,
		api:        client,
		beacon:     beacon,
		seats:      seat.New(api, seatOpts),
		bridge:     b,
		combos:     combos,
		logger:     logger,
	}
}

// flushPending retries releases journaled by an earlier run of this showtime,
// using the session id that placed each hold.
func (s *session) flushPending(ctx context.Context, opts Options) {
	releases, err := store.TakePendingReleases(s.showtimeID)
	if err != nil {
		s.logger.Warn("read pending releases", "error", err)
		return
	}
	for _, pending := range releases {
		endpoints := service.ShowtimeEndpoints(opts.Config.BaseURL, s.showtimeID, opts.Config.SeatAPI)
		client := service.NewClient(opts.HTTPClient, endpoints, pending.SessionID)
		if err := client.ReleaseSeats(ctx, pending.SeatIDs); err != nil {
			s.logger.Warn("pending release failed", "seats", pending.SeatIDs, "error", err)
			continue
		}
		s.logger.Info("pending release sent", "seats", pending.SeatIDs)
	}
}

// unload releases every seat this session holds and stops its renders. When
// the release could not even be attempted through the beacon and the
// fallback request failed, the ids are journaled for the next start.
func (s *session) unload(flushTimeout time.Duration) {
	if s == nil {
		return
	}
	s.bridge.close()
	ids, err := s.seats.ReleaseAll()
	if err != nil && len(ids) > 0 && s.api != nil {
		if jerr := store.RecordPendingRelease(s.showtimeID, s.api.SessionID(), ids); jerr != nil {
			s.logger.Warn("journal pending release", "error", jerr)
		}
	}
	if s.beacon != nil && !s.beacon.Flush(flushTimeout) {
		s.logger.Warn("release beacon still in flight at exit", "seats", ids)
	}
}
