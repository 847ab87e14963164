package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"seat-console/config"
	"seat-console/model"
	"seat-console/seat"
	"seat-console/store"
)

const unloadFlushTimeout = 2 * time.Second

type appState int

const (
	stateLoadingShowtimes appState = iota
	stateSelectShowtime
	stateLoadingSeatMap
	stateShowSeatMap
	stateAlert
)

// Options configure the console.
type Options struct {
	Config     config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client

	// api replaces the HTTP seat-lock client in tests.
	api seat.API
}

type appModel struct {
	opts Options

	state     appState
	lastState appState

	width  int
	height int

	showtimeList list.Model

	session  *session
	showtime model.Showtime

	grid     seat.Grid
	gridErr  error
	totals   seat.Totals
	alert    string
	toggling bool

	cursorRow int
	cursorCol int

	focusCombos bool
	comboCursor int

	showSeatNumbers bool

	spinner spinner.Model
}

type recentsMsg struct {
	recents []store.RecentShowtime
	err     error
}

type showtimeMsg struct {
	from     *bridge
	showtime model.Showtime
	err      error
}

type gridMsg struct {
	from *bridge
	grid seat.Grid
}

type seatMapErrMsg struct {
	from *bridge
	err  error
}

type totalsMsg struct {
	from   *bridge
	totals seat.Totals
}

type alertMsg struct {
	from    *bridge
	message string
}

type toggleDoneMsg struct {
	from *bridge
	err  error
}

func New(opts Options) tea.Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := appModel{
		opts:  opts,
		state: stateLoadingShowtimes,
	}
	m.showtimeList = newList("Select Showtime")
	m.showSeatNumbers = true

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	m.spinner = sp

	return m
}

func (m appModel) Init() tea.Cmd {
	if id := strings.TrimSpace(m.opts.Config.ShowtimeID); id != "" {
		// Init cannot replace the model, so the session opens in Update.
		return func() tea.Msg { return openShowtimeMsg{id: id} }
	}
	return tea.Batch(loadRecentsCmd(), m.spinner.Tick)
}

type openShowtimeMsg struct {
	id string
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLists()
		return m, nil

	case tea.KeyMsg:
		if m.handleFilterInput(msg) {
			return m, nil
		}
		next, cmd, handled := m.handleKey(msg)
		if handled {
			return next, cmd
		}
		m = next

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.isLoadingState() || m.toggling {
			return m, cmd
		}
		return m, nil

	case recentsMsg:
		if msg.err != nil {
			m.opts.Logger.Warn("load recent showtimes", "error", msg.err)
		}
		m.showtimeList.SetItems(buildShowtimeItems(msg.recents))
		m.state = stateSelectShowtime
		return m, nil

	case openShowtimeMsg:
		return m.openShowtime(msg.id)

	case showtimeMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		if msg.err == nil {
			m.showtime = msg.showtime
		}
		return m, nil

	case gridMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		m.grid = msg.grid
		m.gridErr = nil
		m.clampCursor()
		m.seatMapLoaded()
		return m, m.session.bridge.listen()

	case seatMapErrMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		m.gridErr = msg.err
		m.seatMapLoaded()
		return m, m.session.bridge.listen()

	case totalsMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		m.totals = msg.totals
		return m, m.session.bridge.listen()

	case alertMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		m.alert = msg.message
		if m.state != stateAlert {
			m.lastState = m.state
		}
		m.state = stateAlert
		return m, m.session.bridge.listen()

	case toggleDoneMsg:
		if !m.fromCurrent(msg.from) {
			return m, nil
		}
		m.toggling = false
		if msg.err != nil && !errors.Is(msg.err, seat.ErrToggleInFlight) {
			m.opts.Logger.Debug("toggle finished with error", "error", msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateSelectShowtime:
		m.showtimeList, cmd = m.showtimeList.Update(msg)
	}
	return m, cmd
}

func (m appModel) View() string {
	header := m.headerView()
	switch m.state {
	case stateLoadingShowtimes, stateLoadingSeatMap:
		return header + "\n\n" + m.loadingView()
	case stateSelectShowtime:
		return header + "\n\n" + m.showtimeList.View()
	case stateShowSeatMap:
		return header + "\n\n" + m.seatMapView()
	case stateAlert:
		return header + "\n\n" + m.alertView()
	default:
		return header
	}
}

func (m appModel) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Render("Seat Console")
	sub := []string{}
	if m.session != nil {
		label := m.showtime.Title
		if label == "" {
			label = m.session.showtimeID
		}
		sub = append(sub, fmt.Sprintf("Showtime: %s", label))
		if m.showtime.Hall != "" {
			sub = append(sub, fmt.Sprintf("Hall: %s", m.showtime.Hall))
		}
		if !m.showtime.StartsAt.IsZero() {
			sub = append(sub, fmt.Sprintf("Starts: %s", m.showtime.StartsAt.Format("2006-01-02 15:04")))
		}
	}
	meta := strings.Join(sub, " • ")
	if meta != "" {
		meta = "\n" + lipgloss.NewStyle().Faint(true).Render(meta)
	}
	hints := "ctrl+c quit • esc back"
	switch m.state {
	case stateSelectShowtime:
		hints = "ctrl+c quit • type to filter • enter open (or type a showtime id)"
	case stateShowSeatMap:
		if m.focusCombos {
			hints = "q quit • ↑/↓ combo • +/- quantity • tab seats"
		} else {
			hints = "q quit • arrows move • space hold/release • r refresh • n numbers • tab combos • esc showtimes"
		}
	case stateAlert:
		hints = "enter dismiss"
	}
	filterLine := ""
	if listPtr := m.activeList(); listPtr != nil {
		if filter := listPtr.FilterValue(); filter != "" {
			filterLine = "\n" + hint(fmt.Sprintf("Filter: %s", filter))
		}
	}
	return title + meta + filterLine + "\n" + hint(hints)
}

func (m appModel) alertView() string {
	chip := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("203")).
		Padding(0, 2)
	content := strings.Join([]string{
		chip.Render("Seat request failed"),
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true).Render(m.alert),
		"",
		hint("Reloading the seat map from the server. Press ENTER to continue."),
	}, "\n")

	panelStyle := lipgloss.NewStyle().
		Padding(1, 3).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("203")).
		MarginTop(1)
	if m.width > 56 {
		panelStyle = panelStyle.Width(min(m.width-8, 84))
	}
	panel := panelStyle.Render(content)
	if m.width > 0 {
		panel = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, panel)
	}
	return panel
}

func (m appModel) handleKey(msg tea.KeyMsg) (appModel, tea.Cmd, bool) {
	if m.state == stateAlert {
		switch msg.String() {
		case "enter", "esc", " ":
			m.state = m.lastState
			m.alert = ""
			return m, nil, true
		case "ctrl+c":
			return m, tea.Quit, true
		}
		return m, nil, true
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit, true
	case "esc":
		if listPtr := m.activeList(); listPtr != nil {
			if listPtr.SettingFilter() || listPtr.IsFiltered() {
				listPtr.ResetFilter()
				return m, nil, true
			}
		}
		next, cmd := m.goBack()
		return next, cmd, true
	}

	if m.state == stateShowSeatMap {
		return m.handleSeatMapKey(msg)
	}

	if msg.Type == tea.KeyEnter && m.state == stateSelectShowtime {
		if item, ok := m.showtimeList.SelectedItem().(showtimeItem); ok {
			next, cmd := m.openShowtime(item.recent.ID)
			return next, cmd, true
		}
		if id := strings.TrimSpace(m.showtimeList.FilterValue()); id != "" {
			next, cmd := m.openShowtime(id)
			return next, cmd, true
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m appModel) handleSeatMapKey(msg tea.KeyMsg) (appModel, tea.Cmd, bool) {
	switch msg.String() {
	case "tab":
		if m.session.combos.count() > 0 {
			m.focusCombos = !m.focusCombos
		}
		return m, nil, true
	case "r":
		return m, m.refreshCmd(m.session), true
	case "n":
		m.showSeatNumbers = !m.showSeatNumbers
		return m, nil, true
	}

	if m.focusCombos {
		switch msg.String() {
		case "up", "k":
			m.comboCursor = max(0, m.comboCursor-1)
		case "down", "j":
			m.comboCursor = min(m.session.combos.count()-1, m.comboCursor+1)
		case "+", "=", "right", "l":
			return m, m.adjustComboCmd(1), true
		case "-", "_", "left", "h":
			return m, m.adjustComboCmd(-1), true
		}
		return m, nil, true
	}

	switch msg.String() {
	case "up", "k":
		m.moveCursor(-1, 0)
	case "down", "j":
		m.moveCursor(1, 0)
	case "left", "h":
		m.moveCursor(0, -1)
	case "right", "l":
		m.moveCursor(0, 1)
	case " ", "enter":
		return m.toggleAtCursor()
	}
	return m, nil, true
}

func (m appModel) toggleAtCursor() (appModel, tea.Cmd, bool) {
	current, ok := m.cursorSeat()
	if !ok || m.toggling || !selectable(current, m.grid) {
		return m, nil, true
	}
	m.toggling = true
	return m, tea.Batch(m.toggleCmd(m.session, current.Id), m.spinner.Tick), true
}

func (m appModel) adjustComboCmd(delta int) tea.Cmd {
	s := m.session
	if !s.combos.adjust(m.comboCursor, delta) {
		return nil
	}
	return func() tea.Msg {
		if err := store.SaveComboForm(s.showtimeID, s.combos.Lines()); err != nil {
			s.logger.Warn("save combo form", "error", err)
		}
		s.seats.UpdateTotals()
		return nil
	}
}

func (m appModel) openShowtime(id string) (appModel, tea.Cmd) {
	var unload tea.Cmd
	if m.session != nil {
		unload = unloadCmd(m.session)
	}
	m.session = newSession(m.opts, id, m.opts.api)
	m.showtime = model.Showtime{Id: id}
	m.grid = seat.Grid{}
	m.gridErr = nil
	m.totals = seat.Totals{}
	m.cursorRow, m.cursorCol = 0, 0
	m.focusCombos = false
	m.comboCursor = 0
	m.toggling = false
	m.state = stateLoadingSeatMap

	return m, tea.Batch(
		unload,
		m.session.bridge.listen(),
		m.fetchShowtimeCmd(m.session),
		m.initialRefreshCmd(m.session),
		m.spinner.Tick,
	)
}

func (m appModel) goBack() (appModel, tea.Cmd) {
	switch m.state {
	case stateShowSeatMap, stateLoadingSeatMap:
		if m.focusCombos {
			m.focusCombos = false
			return m, nil
		}
		old := m.session
		m.session = nil
		m.showtime = model.Showtime{}
		m.grid = seat.Grid{}
		m.state = stateLoadingShowtimes
		return m, tea.Batch(unloadCmd(old), loadRecentsCmd(), m.spinner.Tick)
	default:
		return m, nil
	}
}

// Shutdown releases the open session's holds. It runs after the program has
// exited, the console's equivalent of a page unload.
func (m appModel) Shutdown() {
	if m.session == nil {
		return
	}
	m.session.unload(unloadFlushTimeout)
}

// seatMapLoaded leaves the loading screen, including when an alert opened
// on top of it.
func (m *appModel) seatMapLoaded() {
	if m.state == stateLoadingSeatMap {
		m.state = stateShowSeatMap
	}
	if m.state == stateAlert && m.lastState == stateLoadingSeatMap {
		m.lastState = stateShowSeatMap
	}
}

func (m appModel) fromCurrent(from *bridge) bool {
	return m.session != nil && m.session.bridge == from
}

func (m *appModel) handleFilterInput(msg tea.KeyMsg) bool {
	listPtr := m.activeList()
	if listPtr == nil {
		return false
	}
	if !listPtr.FilteringEnabled() {
		return false
	}
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) == 0 {
			return false
		}
		m.appendFilter(listPtr, string(msg.Runes))
		return true
	case tea.KeySpace:
		m.appendFilter(listPtr, " ")
		return true
	case tea.KeyBackspace, tea.KeyDelete:
		if listPtr.FilterValue() == "" {
			return false
		}
		m.popFilter(listPtr)
		return true
	default:
		return false
	}
}

func (m *appModel) appendFilter(listPtr *list.Model, value string) {
	if value == "" {
		return
	}
	current := listPtr.FilterValue()
	listPtr.SetFilterText(current + value)
}

func (m *appModel) popFilter(listPtr *list.Model) {
	value := listPtr.FilterValue()
	if value == "" {
		return
	}
	value = trimLastRune(value)
	if value == "" {
		listPtr.ResetFilter()
		return
	}
	listPtr.SetFilterText(value)
}

func trimLastRune(value string) string {
	runes := []rune(value)
	if len(runes) <= 1 {
		return ""
	}
	return string(runes[:len(runes)-1])
}

func (m *appModel) activeList() *list.Model {
	switch m.state {
	case stateSelectShowtime:
		return &m.showtimeList
	default:
		return nil
	}
}

func (m appModel) isLoadingState() bool {
	return m.state == stateLoadingShowtimes || m.state == stateLoadingSeatMap
}

func (m appModel) loadingView() string {
	title := "Loading"
	switch m.state {
	case stateLoadingShowtimes:
		title = "Loading recent showtimes"
	case stateLoadingSeatMap:
		title = "Loading seat map"
	}

	return fmt.Sprintf("%s %s\n\n%s", m.spinner.View(), title, hint("Fetching data..."))
}

func (m *appModel) resizeLists() {
	if m.width == 0 || m.height == 0 {
		return
	}
	h := m.height - 6
	if h < 6 {
		h = 6
	}
	m.showtimeList.SetSize(m.width, h)
}

func newList(title string) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = title
	l.Filter = caseInsensitiveFilter
	l.SetFilteringEnabled(true)
	l.SetShowFilter(true)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	return l
}

func hint(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}

func caseInsensitiveFilter(term string, targets []string) []list.Rank {
	term = strings.ToLower(term)
	lower := make([]string, len(targets))
	for i, t := range targets {
		lower[i] = strings.ToLower(t)
	}
	return list.DefaultFilter(term, lower)
}

func loadRecentsCmd() tea.Cmd {
	return func() tea.Msg {
		recents, err := store.LoadRecentShowtimes()
		return recentsMsg{recents: recents, err: err}
	}
}

func (m appModel) fetchShowtimeCmd(s *session) tea.Cmd {
	if s.api == nil {
		return nil
	}
	baseURL := m.opts.Config.BaseURL
	return func() tea.Msg {
		showtime, err := s.api.GetShowtime(context.Background())
		if err != nil {
			s.logger.Warn("fetch showtime", "error", err)
			showtime = model.Showtime{Id: s.showtimeID}
		}
		if showtime.Id == "" {
			showtime.Id = s.showtimeID
		}
		if rerr := store.RememberShowtime(baseURL, showtime); rerr != nil {
			s.logger.Warn("remember showtime", "error", rerr)
		}
		return showtimeMsg{from: s.bridge, showtime: showtime, err: err}
	}
}

func (m appModel) initialRefreshCmd(s *session) tea.Cmd {
	opts := m.opts
	return func() tea.Msg {
		ctx := context.Background()
		if s.api != nil {
			s.flushPending(ctx, opts)
		}
		_ = s.seats.Refresh(ctx)
		return nil
	}
}

func (m appModel) refreshCmd(s *session) tea.Cmd {
	return func() tea.Msg {
		_ = s.seats.Refresh(context.Background())
		return nil
	}
}

func (m appModel) toggleCmd(s *session, seatID int64) tea.Cmd {
	return func() tea.Msg {
		err := s.seats.Toggle(context.Background(), seatID)
		return toggleDoneMsg{from: s.bridge, err: err}
	}
}

func unloadCmd(s *session) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		s.unload(unloadFlushTimeout)
		return nil
	}
}
