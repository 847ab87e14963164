package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"seat-console/model"
	"seat-console/seat"
)

type seatCell struct {
	token  string
	status string
	label  string
}

type seatCount struct {
	available int
	mine      int
	held      int
	sold      int
	total     int
}

func seatToken(s model.Seat, grid seat.Grid) (string, string) {
	switch {
	case grid.IsSelected(s.Id):
		return "**", "mine"
	case s.Status == model.SeatSold:
		return "XX", "sold"
	case s.Status == model.SeatHeld:
		return "HH", "held"
	case s.Status == model.SeatAvailable && s.Couple:
		return "<>", "available"
	case s.Status == model.SeatAvailable:
		return "[]", "available"
	default:
		return "  ", "unknown"
	}
}

// selectable reports whether pressing space on s would send anything.
func selectable(s model.Seat, grid seat.Grid) bool {
	return s.Status == model.SeatAvailable || grid.IsSelected(s.Id) || s.HeldByCurrentUser
}

func countSeats(grid seat.Grid) seatCount {
	var counts seatCount
	for _, row := range grid.Rows {
		for _, s := range row.Seats {
			counts.total++
			_, status := seatToken(s, grid)
			switch status {
			case "available":
				counts.available++
			case "mine":
				counts.mine++
			case "held":
				counts.held++
			case "sold":
				counts.sold++
			}
		}
	}
	return counts
}

func (m appModel) cursorSeat() (model.Seat, bool) {
	if m.cursorRow < 0 || m.cursorRow >= len(m.grid.Rows) {
		return model.Seat{}, false
	}
	row := m.grid.Rows[m.cursorRow]
	if m.cursorCol < 0 || m.cursorCol >= len(row.Seats) {
		return model.Seat{}, false
	}
	return row.Seats[m.cursorCol], true
}

func (m *appModel) moveCursor(dRow int, dCol int) {
	if len(m.grid.Rows) == 0 {
		return
	}
	m.cursorRow += dRow
	m.cursorCol += dCol
	m.clampCursor()
}

// clampCursor keeps the cursor on a seat after a move or a fresh snapshot
// with a different layout.
func (m *appModel) clampCursor() {
	if len(m.grid.Rows) == 0 {
		m.cursorRow, m.cursorCol = 0, 0
		return
	}
	m.cursorRow = min(max(0, m.cursorRow), len(m.grid.Rows)-1)
	seats := len(m.grid.Rows[m.cursorRow].Seats)
	if seats == 0 {
		m.cursorCol = 0
		return
	}
	m.cursorCol = min(max(0, m.cursorCol), seats-1)
}

func (m appModel) seatMapView() string {
	sections := []string{m.renderSeatMap()}
	if m.gridErr != nil {
		sections = append(sections, lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render("Seat map unavailable: "+m.gridErr.Error()))
	}
	if current, ok := m.cursorSeat(); ok {
		sections = append(sections, m.cursorLine(current))
	}
	if combos := m.renderCombos(); combos != "" {
		sections = append(sections, combos)
	}
	sections = append(sections, m.renderTotals())
	return strings.Join(sections, "\n\n")
}

func (m appModel) renderSeatMap() string {
	if len(m.grid.Rows) == 0 {
		return "No seat map data."
	}

	rowWidth := 1
	cols := 0
	maxLabelWidth := 2
	for _, row := range m.grid.Rows {
		rowWidth = max(rowWidth, len(row.Label))
		cols = max(cols, len(row.Seats))
		if m.showSeatNumbers {
			for _, s := range row.Seats {
				maxLabelWidth = max(maxLabelWidth, len(strconv.Itoa(s.SeatNumber)))
			}
		}
	}
	cellWidth := max(2, maxLabelWidth)

	seatStyleAvailable := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	seatStyleCouple := lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	seatStyleMine := lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	seatStyleHeld := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	seatStyleSold := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	cursorStyle := lipgloss.NewStyle().Reverse(true)

	var b strings.Builder

	gridWidth := cols*(cellWidth+1) - 1
	screenStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("214"))
	screenBorderStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Background(lipgloss.Color("236"))
	screenBar := screenBarBlock(gridWidth, "SCREEN")
	indent := strings.Repeat(" ", rowWidth+1)
	b.WriteString(indent + screenBorderStyle.Render(screenBar.top) + "\n")
	b.WriteString(indent + screenStyle.Render(screenBar.mid) + "\n")
	b.WriteString(indent + screenBorderStyle.Render(screenBar.bot) + "\n\n")

	for r, row := range m.grid.Rows {
		b.WriteString(fmt.Sprintf("%*s ", rowWidth, row.Label))
		for c := 0; c < cols; c++ {
			if c >= len(row.Seats) {
				b.WriteString(strings.Repeat(" ", cellWidth))
			} else {
				s := row.Seats[c]
				token, _ := seatToken(s, m.grid)
				cell := seatCell{token: token, label: strconv.Itoa(s.SeatNumber)}
				text := cell.token
				if m.showSeatNumbers && cell.label != "" {
					text = cell.label
				}
				rendered := padCell(text, cellWidth)
				switch cell.token {
				case "[]":
					rendered = seatStyleAvailable.Render(rendered)
				case "<>":
					rendered = seatStyleCouple.Render(rendered)
				case "**":
					rendered = seatStyleMine.Render(rendered)
				case "HH":
					rendered = seatStyleHeld.Render(rendered)
				case "XX":
					rendered = seatStyleSold.Render(rendered)
				}
				if !m.focusCombos && r == m.cursorRow && c == m.cursorCol {
					rendered = cursorStyle.Render(rendered)
				}
				b.WriteString(rendered)
			}
			if c < cols-1 {
				b.WriteString(" ")
			}
		}
		b.WriteString(fmt.Sprintf(" %*s\n", rowWidth, row.Label))
	}

	legend := "Legend: [] available • <> couple • ** yours • HH held • XX sold"
	if m.showSeatNumbers {
		legend = "Legend: color shows status • numbers are seat numbers • couple seats in magenta"
	}
	counts := countSeats(m.grid)
	percent := float64(counts.available) / float64(max(1, counts.total)) * 100
	summary := fmt.Sprintf("Available: %d • Yours: %d • Held: %d • Sold: %d • Total: %d • %.0f%% available",
		counts.available, counts.mine, counts.held, counts.sold, counts.total, percent)
	return b.String() + "\n" + hint(legend) + "\n" + hint(summary)
}

func (m appModel) cursorLine(current model.Seat) string {
	parts := []string{fmt.Sprintf("Seat %s", current.Label())}
	if current.Couple {
		parts = append(parts, "couple")
	}
	_, status := seatToken(current, m.grid)
	parts = append(parts, status)
	if current.Price > 0 {
		parts = append(parts, seat.NewFormatter(m.opts.Config.Locale, m.opts.Config.Currency)(current.Price))
	}
	line := strings.Join(parts, " • ")
	if m.toggling {
		line = m.spinner.View() + " " + line
	}
	return line
}

func (m appModel) renderCombos() string {
	if m.session == nil {
		return ""
	}
	lines := m.session.combos.Lines()
	if len(lines) == 0 {
		return ""
	}
	title := lipgloss.NewStyle().Bold(true).Render("Combos")
	rows := []string{title}
	cursorStyle := lipgloss.NewStyle().Reverse(true)
	for i, line := range lines {
		text := fmt.Sprintf("%-24s x%-3s %s", line.Name, line.Quantity, line.Price)
		if m.focusCombos && i == m.comboCursor {
			text = cursorStyle.Render(text)
		}
		rows = append(rows, text)
	}
	return strings.Join(rows, "\n")
}

func (m appModel) renderTotals() string {
	amount := m.totals.Formatted
	if amount == "" {
		amount = seat.NewFormatter(m.opts.Config.Locale, m.opts.Config.Currency)(0)
	}
	label := lipgloss.NewStyle().Bold(true).Render("Total: " + amount)
	if m.totals.SeatCount == 0 {
		return label + "  " + hint("no seats held")
	}
	return label + "  " + hint(fmt.Sprintf("%d seat(s) held • ids %s", m.totals.SeatCount, m.totals.SeatIDs))
}

func padCell(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if text == "" {
		return strings.Repeat(" ", width)
	}
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	left := padding / 2
	right := padding - left
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", right)
}

type screenBlock struct {
	top string
	mid string
	bot string
}

func screenBarBlock(width int, label string) screenBlock {
	if width < len(label)+4 {
		width = len(label) + 4
	}
	if width < 10 {
		width = 10
	}

	border := "╭" + strings.Repeat("─", width-2) + "╮"
	bottom := "╰" + strings.Repeat("─", width-2) + "╯"

	labelText := " " + label + " "
	padding := width - len(labelText) - 2
	left := padding / 2
	right := padding - left
	mid := "│" + strings.Repeat(" ", left) + labelText + strings.Repeat(" ", right) + "│"
	return screenBlock{top: border, mid: mid, bot: bottom}
}
