package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"seat-console/store"
)

type showtimeItem struct {
	recent store.RecentShowtime
}

func (s showtimeItem) Title() string {
	if s.recent.Title == "" {
		return fmt.Sprintf("Showtime %s", s.recent.ID)
	}
	return fmt.Sprintf("%s (#%s)", s.recent.Title, s.recent.ID)
}

func (s showtimeItem) Description() string {
	parts := []string{}
	if s.recent.Hall != "" {
		parts = append(parts, s.recent.Hall)
	}
	if !s.recent.UsedAt.IsZero() {
		parts = append(parts, "opened "+s.recent.UsedAt.Format("02/01 15:04"))
	}
	if s.recent.BaseURL != "" {
		parts = append(parts, s.recent.BaseURL)
	}
	return strings.Join(parts, " • ")
}

func (s showtimeItem) FilterValue() string {
	return strings.ToLower(strings.Join([]string{s.recent.ID, s.recent.Title, s.recent.Hall}, " "))
}

func buildShowtimeItems(recents []store.RecentShowtime) []list.Item {
	items := make([]list.Item, 0, len(recents))
	for _, recent := range recents {
		items = append(items, showtimeItem{recent: recent})
	}
	return items
}
