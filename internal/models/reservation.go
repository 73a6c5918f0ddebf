package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "Confirmed"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

func (s ReservationStatus) Valid() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusCancelled
}

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID               int64             `bun:"id,pk,autoincrement" json:"id"`
	ReservationCode  string            `bun:"reservation_code,unique,notnull" json:"reservationCode"`
	CustomerID       int64             `bun:"customer_id,notnull" json:"customerId"`
	FlightID         int64             `bun:"flight_id,notnull" json:"flightId"`
	SeatID           int64             `bun:"seat_id,notnull" json:"seatId"`
	Status           ReservationStatus `bun:"status,notnull" json:"status"`
	ReservationDate  time.Time         `bun:"reservation_date,notnull" json:"reservationDate"`
	CancellationDate *time.Time        `bun:"cancellation_date" json:"cancellationDate,omitempty"`

	Customer *Customer `bun:"rel:belongs-to,join:customer_id=id" json:"customer,omitempty"`
	Flight   *Flight   `bun:"rel:belongs-to,join:flight_id=id" json:"flight,omitempty"`
	Seat     *Seat     `bun:"rel:belongs-to,join:seat_id=id" json:"seat,omitempty"`
}

// Active reports whether the reservation still holds its seat.
func (r Reservation) Active() bool {
	return r.Status != ReservationStatusCancelled
}

// ReservationInput carries the admin-editable fields of a reservation.
type ReservationInput struct {
	ReservationCode string            `json:"reservationCode"`
	CustomerID      int64             `json:"customerId"`
	FlightID        int64             `json:"flightId"`
	SeatID          int64             `json:"seatId"`
	Status          ReservationStatus `json:"status"`
}

func (in ReservationInput) Validate() error {
	v := NewValidationError()
	if in.CustomerID <= 0 {
		v.Add("customerId", "customer is required")
	}
	if in.FlightID <= 0 {
		v.Add("flightId", "flight is required")
	}
	if in.SeatID <= 0 {
		v.Add("seatId", "seat is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		v.Add("status", "status must be Confirmed or Cancelled")
	}
	return v.OrNil()
}

type QuickReserveResult struct {
	Reservation Reservation
	Seat        Seat
}
