package seat

import (
	"sort"

	"seat-console/model"
)

// Row is one labelled row of the seat grid, seats ordered by number.
type Row struct {
	Label string
	Seats []model.Seat
}

// Grid is what a View draws: the row-grouped seat map plus the ids the
// current session holds. A Grid is never mutated after it is rendered.
type Grid struct {
	Rows     []Row
	Selected map[int64]bool
}

// IsSelected reports whether id is held by this session.
func (g Grid) IsSelected(id int64) bool {
	return g.Selected[id]
}

// state is rebuilt from a server snapshot on every refresh and never edited
// in place afterwards.
type state struct {
	seats     map[int64]model.Seat
	rows      []Row
	pairs     map[string][]int64
	selection map[int64]model.Seat
}

func emptyState() state {
	return state{
		seats:     map[int64]model.Seat{},
		pairs:     map[string][]int64{},
		selection: map[int64]model.Seat{},
	}
}

func buildState(seatMap model.SeatMap) state {
	st := emptyState()
	byRow := map[string][]model.Seat{}
	for _, s := range seatMap.Seats {
		st.seats[s.Id] = s
		byRow[s.RowLabel] = append(byRow[s.RowLabel], s)
		if pid := s.PairID(); pid != "" {
			st.pairs[pid] = append(st.pairs[pid], s.Id)
		}
		if s.HeldByCurrentUser {
			st.selection[s.Id] = s
		}
	}

	labels := make([]string, 0, len(byRow))
	for label := range byRow {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		seats := byRow[label]
		sort.SliceStable(seats, func(i, j int) bool {
			return seats[i].SeatNumber < seats[j].SeatNumber
		})
		st.rows = append(st.rows, Row{Label: label, Seats: seats})
	}

	for pid := range st.pairs {
		sortIDs(st.pairs[pid])
	}
	return st
}

func (st state) grid() Grid {
	selected := make(map[int64]bool, len(st.selection))
	for id := range st.selection {
		selected[id] = true
	}
	return Grid{Rows: st.rows, Selected: selected}
}

// interactionSet expands a seat to every id a toggle must act on. A couple
// seat whose pair id is indexed expands to the whole pair; anything else acts
// alone.
func (st state) interactionSet(seatID int64) ([]int64, bool) {
	s, ok := st.seats[seatID]
	if !ok {
		return nil, false
	}
	if s.Couple {
		if members, ok := st.pairs[s.PairID()]; ok && s.PairID() != "" {
			return append([]int64(nil), members...), true
		}
	}
	return []int64{seatID}, true
}

// allSelected is true only when every id is held; a half-held pair counts as
// not selected so the next toggle completes it.
func (st state) allSelected(ids []int64) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := st.selection[id]; !ok {
			return false
		}
	}
	return true
}

func (st state) selectedIDs() []int64 {
	ids := make([]int64, 0, len(st.selection))
	for id := range st.selection {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
