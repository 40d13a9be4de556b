package domain

import "time"

// Passenger is canonical booking data keyed by PNR.
type Passenger struct {
	PNR          string
	CustomerName string
	FlightNumber string
	SeatNumber   string
	Source       string
	Destination  string
	CreatedAt    time.Time
}
