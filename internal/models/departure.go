package models

import (
	"time"

	"github.com/google/uuid"
)

// DepartureStatus is the sale state of a dated tour departure
type DepartureStatus string

const (
	DepartureStatusOpen     DepartureStatus = "open"
	DepartureStatusClosed   DepartureStatus = "closed"
	DepartureStatusCanceled DepartureStatus = "canceled"
)

// DateLayout is the wire format of departure dates
const DateLayout = "2006-01-02"

// Departure is one dated, seat-limited instance of a tour.
// SeatsLeft is only ever changed through a guarded delta (0 <= SeatsLeft <= SeatsTotal).
type Departure struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	TourID     uuid.UUID       `json:"tour_id" db:"tour_id"`
	TourName   string          `json:"tour_name" db:"tour_name"`
	TourImage  string          `json:"tour_image" db:"tour_image"`
	Date       time.Time       `json:"date" db:"departure_date"`
	PriceAdult int64           `json:"price_adult" db:"price_adult"`
	PriceChild int64           `json:"price_child" db:"price_child"`
	SeatsTotal int             `json:"seats_total" db:"seats_total"`
	SeatsLeft  int             `json:"seats_left" db:"seats_left"`
	Status     DepartureStatus `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// DateKey returns the departure date in DateLayout
func (d *Departure) DateKey() string {
	return d.Date.Format(DateLayout)
}

// IsOpen reports whether seats can be held on this departure
func (d *Departure) IsOpen() bool {
	return d.Status == DepartureStatusOpen
}

// Price computes the server-side amount for a party on this departure
func (d *Departure) Price(adults, children int) int64 {
	return int64(adults)*d.PriceAdult + int64(children)*d.PriceChild
}
