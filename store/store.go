package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"seat-console/model"
)

const (
	appDir             = "seat-console"
	maxRecentShowtimes = 8
	pendingReleaseTTL  = 30 * time.Minute
)

type RecentShowtime struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Hall    string    `json:"hall"`
	BaseURL string    `json:"base_url"`
	UsedAt  time.Time `json:"used_at"`
}

type showtimeHistory struct {
	Showtimes []RecentShowtime `json:"showtimes"`
}

type comboForm struct {
	UpdatedAt time.Time             `json:"updated_at"`
	Lines     []model.ComboLineItem `json:"lines"`
}

// PendingRelease is a release that could not be sent when the console exited.
// The session id is kept because the service only releases holds owned by
// the session that placed them.
type PendingRelease struct {
	ShowtimeID string    `json:"showtime_id"`
	SessionID  string    `json:"session_id"`
	SeatIDs    []int64   `json:"seat_ids"`
	RecordedAt time.Time `json:"recorded_at"`
}

type pendingJournal struct {
	Releases []PendingRelease `json:"releases"`
}

func LoadRecentShowtimes() ([]RecentShowtime, error) {
	var history showtimeHistory
	found, err := loadJSON("showtimes.json", &history)
	if err != nil {
		return nil, errors.New("invalid showtime history format")
	}
	if !found {
		return nil, nil
	}
	return history.Showtimes, nil
}

func RememberShowtime(baseURL string, showtime model.Showtime) error {
	if strings.TrimSpace(showtime.Id) == "" {
		return errors.New("showtime id is required")
	}
	history, _ := LoadRecentShowtimes()
	next := []RecentShowtime{{
		ID:      showtime.Id,
		Title:   showtime.Title,
		Hall:    showtime.Hall,
		BaseURL: baseURL,
		UsedAt:  time.Now(),
	}}

	for _, existing := range history {
		if existing.ID == showtime.Id && existing.BaseURL == baseURL {
			continue
		}
		next = append(next, existing)
		if len(next) >= maxRecentShowtimes {
			break
		}
	}

	return saveJSON("showtimes.json", showtimeHistory{Showtimes: next})
}

// LoadComboForm returns the concession lines last saved for a showtime.
func LoadComboForm(showtimeID string) ([]model.ComboLineItem, error) {
	if strings.TrimSpace(showtimeID) == "" {
		return nil, nil
	}
	var form comboForm
	found, err := loadJSON(comboFile(showtimeID), &form)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return form.Lines, nil
}

func SaveComboForm(showtimeID string, lines []model.ComboLineItem) error {
	if strings.TrimSpace(showtimeID) == "" {
		return errors.New("showtime id is required")
	}
	return saveJSON(comboFile(showtimeID), comboForm{UpdatedAt: time.Now(), Lines: lines})
}

// RecordPendingRelease appends ids to the journal so the next start for the
// same showtime can retry the release.
func RecordPendingRelease(showtimeID string, sessionID string, ids []int64) error {
	showtimeID = strings.TrimSpace(showtimeID)
	sessionID = strings.TrimSpace(sessionID)
	if showtimeID == "" || sessionID == "" || len(ids) == 0 {
		return errors.New("showtime id, session id and seat ids are required")
	}
	journal, err := loadPendingJournal()
	if err != nil {
		return err
	}
	journal.Releases = append(journal.Releases, PendingRelease{
		ShowtimeID: showtimeID,
		SessionID:  sessionID,
		SeatIDs:    append([]int64(nil), ids...),
		RecordedAt: time.Now(),
	})
	return saveJSON("pending_releases.json", journal)
}

// TakePendingReleases removes and returns the journaled releases for a
// showtime, merged per session with ids ascending. Entries older than the
// server-side hold lifetime are dropped since those holds have already
// expired.
func TakePendingReleases(showtimeID string) ([]PendingRelease, error) {
	journal, err := loadPendingJournal()
	if err != nil {
		return nil, err
	}

	bySession := map[string]*PendingRelease{}
	var order []string
	var keep []PendingRelease
	for _, entry := range journal.Releases {
		if time.Since(entry.RecordedAt) > pendingReleaseTTL {
			continue
		}
		if entry.ShowtimeID != showtimeID {
			keep = append(keep, entry)
			continue
		}
		merged, ok := bySession[entry.SessionID]
		if !ok {
			merged = &PendingRelease{ShowtimeID: showtimeID, SessionID: entry.SessionID}
			bySession[entry.SessionID] = merged
			order = append(order, entry.SessionID)
		}
		if entry.RecordedAt.After(merged.RecordedAt) {
			merged.RecordedAt = entry.RecordedAt
		}
		for _, id := range entry.SeatIDs {
			if !containsID(merged.SeatIDs, id) {
				merged.SeatIDs = append(merged.SeatIDs, id)
			}
		}
	}

	releases := make([]PendingRelease, 0, len(order))
	for _, session := range order {
		merged := bySession[session]
		sort.Slice(merged.SeatIDs, func(i, j int) bool { return merged.SeatIDs[i] < merged.SeatIDs[j] })
		releases = append(releases, *merged)
	}

	if err := saveJSON("pending_releases.json", pendingJournal{Releases: keep}); err != nil {
		return nil, err
	}
	return releases, nil
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func loadPendingJournal() (pendingJournal, error) {
	var journal pendingJournal
	if _, err := loadJSON("pending_releases.json", &journal); err != nil {
		return pendingJournal{}, errors.New("invalid pending release format")
	}
	return journal, nil
}

func comboFile(showtimeID string) string {
	return fmt.Sprintf("combos_%s.json", sanitize(showtimeID))
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func loadJSON(name string, out any) (bool, error) {
	path, err := configPath(name)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func saveJSON(name string, data any) error {
	path, err := configPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func configPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, name), nil
}
