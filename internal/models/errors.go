package models

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound     = errors.New("payment session not found")
	ErrSessionResolved     = errors.New("payment session is no longer pending")
	ErrDuplicateSession    = errors.New("payment session already exists for this order")
	ErrDepartureNotFound   = errors.New("departure not found")
	ErrDepartureClosed     = errors.New("departure is not open for booking")
	ErrInvalidSignature    = errors.New("invalid provider signature")
	ErrDuplicateBooking    = errors.New("booking already exists for this payment")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrCartNotFound        = errors.New("cart not found")
	ErrEmptySelection      = errors.New("no items selected for payment")
	ErrInvalidItem         = errors.New("invalid line item")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// InsufficientSeatsError is returned by a hold when a departure cannot cover a line item.
// Any decrement already applied for the same session has been compensated when it is returned.
type InsufficientSeatsError struct {
	TourName  string `json:"tour_name"`
	Date      string `json:"date"`
	Needed    int    `json:"needed"`
	Available int    `json:"available"`
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats for %s on %s: needed %d, available %d",
		e.TourName, e.Date, e.Needed, e.Available)
}
