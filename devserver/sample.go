package devserver

import (
	"fmt"
	"time"

	"seat-console/model"
)

// SampleShowtime builds a small hall: two front rows, three standard rows and
// a back row of couple pairs, with a few seats already sold.
func SampleShowtime(id string) (model.Showtime, []model.Seat) {
	info := model.Showtime{
		Id:       id,
		Title:    "Demo Screening",
		Hall:     "Hall 1",
		StartsAt: time.Now().Add(2 * time.Hour).Truncate(time.Minute),
	}

	const perRow = 10
	var seats []model.Seat
	var next int64 = 1
	for _, row := range []string{"A", "B", "C", "D", "E", "F"} {
		for n := 1; n <= perRow; n++ {
			seat := model.Seat{
				Id:         next,
				RowLabel:   row,
				SeatNumber: n,
				Status:     model.SeatAvailable,
				Price:      75000,
			}
			switch row {
			case "A", "B":
				seat.Price = 50000
			case "F":
				pid := fmt.Sprintf("F-%d", (n+1)/2)
				seat.Couple = true
				seat.CouplePairId = &pid
				seat.Price = 90000
			}
			if (row == "C" && (n == 5 || n == 6)) || (row == "D" && n == 1) {
				seat.Status = model.SeatSold
			}
			seats = append(seats, seat)
			next++
		}
	}
	return info, seats
}
