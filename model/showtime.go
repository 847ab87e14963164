package model

import "time"

type Showtime struct {
	Id       string    `json:"id"`
	Title    string    `json:"title"`
	Hall     string    `json:"hall"`
	StartsAt time.Time `json:"startsAt"`
}
