package models

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusReserved  SeatStatus = "RESERVED"
)

// SeatStatusEvent is published to Kafka and streamed to SSE subscribers
// whenever a reservation takes or frees a seat on a flight.
type SeatStatusEvent struct {
	FlightID   int64      `json:"flight_id"`
	SeatID     int64      `json:"seat_id"`
	SeatNumber string     `json:"seat_number,omitempty"`
	Status     SeatStatus `json:"status"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func NewSeatStatusEvent(flightID, seatID int64, seatNumber string, status SeatStatus) SeatStatusEvent {
	return SeatStatusEvent{
		FlightID:   flightID,
		SeatID:     seatID,
		SeatNumber: seatNumber,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
}

// ReservationEvent is the payload of the reservation lifecycle topics.
type ReservationEvent struct {
	ReservationID   int64             `json:"reservation_id"`
	ReservationCode string            `json:"reservation_code"`
	CustomerID      int64             `json:"customer_id"`
	FlightID        int64             `json:"flight_id"`
	SeatID          int64             `json:"seat_id"`
	Status          ReservationStatus `json:"status"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

func NewReservationEvent(r Reservation) ReservationEvent {
	return ReservationEvent{
		ReservationID:   r.ID,
		ReservationCode: r.ReservationCode,
		CustomerID:      r.CustomerID,
		FlightID:        r.FlightID,
		SeatID:          r.SeatID,
		Status:          r.Status,
		OccurredAt:      time.Now().UTC(),
	}
}
