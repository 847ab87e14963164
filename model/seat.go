package model

import "strconv"

const (
	SeatAvailable = "AVAILABLE"
	SeatHeld      = "HELD"
	SeatSold      = "SOLD"
)

type SeatMap struct {
	Seats []Seat `json:"seats"`
}

type Seat struct {
	Id                int64   `json:"showtimeSeatId"`
	RowLabel          string  `json:"rowLabel"`
	SeatNumber        int     `json:"seatNumber"`
	Status            string  `json:"status"`
	Couple            bool    `json:"couple"`
	CouplePairId      *string `json:"couplePairId,omitempty"`
	HeldByCurrentUser bool    `json:"heldByCurrentUser"`
	Price             float64 `json:"price"`
}

// PairID returns the couple pair id, or "" when the seat has none.
func (s Seat) PairID() string {
	if s.CouplePairId == nil {
		return ""
	}
	return *s.CouplePairId
}

// Label is the printed seat name, e.g. "C7".
func (s Seat) Label() string {
	return s.RowLabel + strconv.Itoa(s.SeatNumber)
}

type SeatIDsRequest struct {
	SeatIds []int64 `json:"seatIds"`
}
