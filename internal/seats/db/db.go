package db

import (
	"context"
	"fmt"

	"atlas-air/internal/database"
	"atlas-air/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetAvailableSeatsByFlightID returns the seats of the aircraft flying the
// flight's segments that are not held by an active reservation on it.
// A flight without segments has no seats; that is not an error.
func (d *DB) GetAvailableSeatsByFlightID(ctx context.Context, flightID int64) ([]models.Seat, error) {
	aircraftIDs, err := d.aircraftForFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if len(aircraftIDs) == 0 {
		return []models.Seat{}, nil
	}

	var reserved []int64
	err = d.Bun.NewSelect().
		Model((*models.Reservation)(nil)).
		Column("seat_id").
		Where("flight_id = ?", flightID).
		Where("status <> ?", models.ReservationStatusCancelled).
		Scan(ctx, &reserved)
	if err != nil {
		return nil, fmt.Errorf("list reserved seats: %w", err)
	}

	seats := []models.Seat{}
	q := d.Bun.NewSelect().
		Model(&seats).
		Where("aircraft_id IN (?)", bun.In(aircraftIDs)).
		Order("seat_number ASC")
	if len(reserved) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(reserved))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list available seats: %w", err)
	}
	return seats, nil
}

func (d *DB) aircraftForFlight(ctx context.Context, flightID int64) ([]int64, error) {
	var ids []int64
	err := d.Bun.NewSelect().
		Model((*models.FlightSegment)(nil)).
		ColumnExpr("DISTINCT aircraft_id").
		Where("flight_id = ?", flightID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list flight aircraft: %w", err)
	}
	return ids, nil
}

func (d *DB) GetSeatByID(ctx context.Context, id int64) (*models.Seat, error) {
	var seat models.Seat
	err := d.Bun.NewSelect().
		Model(&seat).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &seat, nil
}

func (d *DB) GetAllSeats(ctx context.Context) ([]models.Seat, error) {
	var seats []models.Seat
	if err := d.Bun.NewSelect().Model(&seats).Order("aircraft_id ASC", "seat_number ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	return seats, nil
}

// SeatServesFlight reports whether the seat is on an aircraft assigned to one
// of the flight's segments.
func (d *DB) SeatServesFlight(ctx context.Context, flightID, seatID int64) (bool, error) {
	aircraftIDs, err := d.aircraftForFlight(ctx, flightID)
	if err != nil {
		return false, err
	}
	if len(aircraftIDs) == 0 {
		return false, nil
	}
	exists, err := d.Bun.NewSelect().
		Model((*models.Seat)(nil)).
		Where("id = ?", seatID).
		Where("aircraft_id IN (?)", bun.In(aircraftIDs)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check seat on flight: %w", err)
	}
	return exists, nil
}
