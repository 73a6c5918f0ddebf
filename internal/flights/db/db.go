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

// GetAllFlights → every flight with its airports, earliest departure first
func (d *DB) GetAllFlights(ctx context.Context) ([]models.Flight, error) {
	var flights []models.Flight
	err := d.Bun.NewSelect().
		Model(&flights).
		Relation("OriginAirport").
		Relation("DestinationAirport").
		Order("flight.scheduled_departure ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	return flights, nil
}

// GetFlightByID → one flight with airports and segments
func (d *DB) GetFlightByID(ctx context.Context, id int64) (*models.Flight, error) {
	var flight models.Flight
	err := d.Bun.NewSelect().
		Model(&flight).
		Relation("OriginAirport").
		Relation("DestinationAirport").
		Relation("Segments").
		Where("flight.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &flight, nil
}

// GetFlightsByRoute → flights between two airports, earliest departure first
func (d *DB) GetFlightsByRoute(ctx context.Context, originID, destinationID int64) ([]models.Flight, error) {
	var flights []models.Flight
	err := d.Bun.NewSelect().
		Model(&flights).
		Relation("OriginAirport").
		Relation("DestinationAirport").
		Where("flight.origin_airport_id = ?", originID).
		Where("flight.destination_airport_id = ?", destinationID).
		Order("flight.scheduled_departure ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flights by route: %w", err)
	}
	return flights, nil
}

func (d *DB) GetAirports(ctx context.Context) ([]models.Airport, error) {
	var airports []models.Airport
	if err := d.Bun.NewSelect().Model(&airports).Order("code ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list airports: %w", err)
	}
	return airports, nil
}
