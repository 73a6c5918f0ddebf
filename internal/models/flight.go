package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SeatClass string

const (
	SeatClassEconomy  SeatClass = "Economy"
	SeatClassBusiness SeatClass = "Business"
	SeatClassFirst    SeatClass = "First"
)

type Airport struct {
	bun.BaseModel `bun:"table:airports"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Code string `bun:"code,unique,notnull" json:"code"`
	Name string `bun:"name,notnull" json:"name"`
	City string `bun:"city" json:"city"`
}

type Aircraft struct {
	bun.BaseModel `bun:"table:aircraft"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Model        string `bun:"model,notnull" json:"model"`
	Registration string `bun:"registration,unique,notnull" json:"registration"`

	Seats []Seat `bun:"rel:has-many,join:id=aircraft_id" json:"seats,omitempty"`
}

// Seat belongs to exactly one aircraft.
type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	AircraftID int64     `bun:"aircraft_id,notnull" json:"aircraftId"`
	SeatNumber string    `bun:"seat_number,notnull" json:"seatNumber"`
	SeatClass  SeatClass `bun:"seat_class,notnull,default:'Economy'" json:"seatClass"`

	Aircraft *Aircraft `bun:"rel:belongs-to,join:aircraft_id=id" json:"-"`
}

type Flight struct {
	bun.BaseModel `bun:"table:flights"`

	ID                   int64     `bun:"id,pk,autoincrement" json:"id"`
	FlightNumber         string    `bun:"flight_number,notnull" json:"flightNumber"`
	OriginAirportID      int64     `bun:"origin_airport_id,notnull" json:"originAirportId"`
	DestinationAirportID int64     `bun:"destination_airport_id,notnull" json:"destinationAirportId"`
	ScheduledDeparture   time.Time `bun:"scheduled_departure,notnull" json:"scheduledDeparture"`
	ScheduledArrival     time.Time `bun:"scheduled_arrival,notnull" json:"scheduledArrival"`

	OriginAirport      *Airport        `bun:"rel:belongs-to,join:origin_airport_id=id" json:"originAirport,omitempty"`
	DestinationAirport *Airport        `bun:"rel:belongs-to,join:destination_airport_id=id" json:"destinationAirport,omitempty"`
	Segments           []FlightSegment `bun:"rel:has-many,join:id=flight_id" json:"segments,omitempty"`
}

// FlightSegment is one leg of a flight flown by a specific aircraft.
type FlightSegment struct {
	bun.BaseModel `bun:"table:flight_segments"`

	ID           int64 `bun:"id,pk,autoincrement" json:"id"`
	FlightID     int64 `bun:"flight_id,notnull" json:"flightId"`
	AircraftID   int64 `bun:"aircraft_id,notnull" json:"aircraftId"`
	SegmentOrder int   `bun:"segment_order,notnull,default:1" json:"segmentOrder"`

	Flight   *Flight   `bun:"rel:belongs-to,join:flight_id=id" json:"-"`
	Aircraft *Aircraft `bun:"rel:belongs-to,join:aircraft_id=id" json:"-"`
}

// FlightSummary is the flattened flight shape returned by the route search endpoints.
type FlightSummary struct {
	FlightID               int64     `json:"flightId"`
	FlightNumber           string    `json:"flightNumber"`
	OriginAirportName      string    `json:"originAirportName"`
	DestinationAirportName string    `json:"destinationAirportName"`
	ScheduledDeparture     time.Time `json:"scheduledDeparture"`
	ScheduledArrival       time.Time `json:"scheduledArrival"`
}

func (f Flight) Summary() FlightSummary {
	s := FlightSummary{
		FlightID:           f.ID,
		FlightNumber:       f.FlightNumber,
		ScheduledDeparture: f.ScheduledDeparture,
		ScheduledArrival:   f.ScheduledArrival,
	}
	if f.OriginAirport != nil {
		s.OriginAirportName = f.OriginAirport.Name
	}
	if f.DestinationAirport != nil {
		s.DestinationAirportName = f.DestinationAirport.Name
	}
	return s
}

// SeatOption is the {id, seatNumber} pair used by seat pickers.
type SeatOption struct {
	ID         int64  `json:"id"`
	SeatNumber string `json:"seatNumber"`
}

func SeatOptions(seats []Seat) []SeatOption {
	out := make([]SeatOption, 0, len(seats))
	for _, s := range seats {
		out = append(out, SeatOption{ID: s.ID, SeatNumber: s.SeatNumber})
	}
	return out
}
