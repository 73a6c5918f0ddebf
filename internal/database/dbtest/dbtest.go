// Package dbtest provides an in-memory sqlite database with the full schema
// and a small fixture set for repository and service tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"atlas-air/internal/database"
	"atlas-air/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var dbSeq int64

// NewTestDB opens a private in-memory database with the schema applied.
func NewTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := fmt.Sprintf("file:atlas%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	sqldb, err := sql.Open(sqliteshim.ShimName, name)
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := database.CreateSchema(ctx, db); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// Fixture is the data inserted by Seed.
type Fixture struct {
	Origin      models.Airport
	Destination models.Airport
	Other       models.Airport
	Aircraft    models.Aircraft
	OtherPlane  models.Aircraft
	Seats       []models.Seat // on Aircraft: 1A, 1B, 2A
	OtherSeat   models.Seat   // on OtherPlane
	Flight      models.Flight // Origin -> Destination, flown by Aircraft
	LaterFlight models.Flight // Origin -> Destination, no segment
	Customer    models.Customer
	Stranger    models.Customer
	Admin       models.Customer
}

// Seed inserts a minimal route network. Password hashes are placeholders.
func Seed(t *testing.T, db *bun.DB) Fixture {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f := Fixture{
		Origin:      models.Airport{Code: "LIS", Name: "Lisbon Humberto Delgado", City: "Lisbon"},
		Destination: models.Airport{Code: "OPO", Name: "Porto Francisco Sa Carneiro", City: "Porto"},
		Other:       models.Airport{Code: "FAO", Name: "Faro", City: "Faro"},
	}
	for _, a := range []*models.Airport{&f.Origin, &f.Destination, &f.Other} {
		_, err := db.NewInsert().Model(a).Exec(ctx)
		must(err)
	}

	f.Aircraft = models.Aircraft{Model: "A320", Registration: "CS-TNA"}
	f.OtherPlane = models.Aircraft{Model: "E190", Registration: "CS-TPX"}
	_, err := db.NewInsert().Model(&f.Aircraft).Exec(ctx)
	must(err)
	_, err = db.NewInsert().Model(&f.OtherPlane).Exec(ctx)
	must(err)

	f.Seats = []models.Seat{
		{AircraftID: f.Aircraft.ID, SeatNumber: "1A", SeatClass: models.SeatClassBusiness},
		{AircraftID: f.Aircraft.ID, SeatNumber: "1B", SeatClass: models.SeatClassBusiness},
		{AircraftID: f.Aircraft.ID, SeatNumber: "2A", SeatClass: models.SeatClassEconomy},
	}
	_, err = db.NewInsert().Model(&f.Seats).Exec(ctx)
	must(err)

	f.OtherSeat = models.Seat{AircraftID: f.OtherPlane.ID, SeatNumber: "9C", SeatClass: models.SeatClassEconomy}
	_, err = db.NewInsert().Model(&f.OtherSeat).Exec(ctx)
	must(err)

	dep := time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	f.Flight = models.Flight{
		FlightNumber:         "AT100",
		OriginAirportID:      f.Origin.ID,
		DestinationAirportID: f.Destination.ID,
		ScheduledDeparture:   dep,
		ScheduledArrival:     dep.Add(time.Hour),
	}
	f.LaterFlight = models.Flight{
		FlightNumber:         "AT102",
		OriginAirportID:      f.Origin.ID,
		DestinationAirportID: f.Destination.ID,
		ScheduledDeparture:   dep.Add(6 * time.Hour),
		ScheduledArrival:     dep.Add(7 * time.Hour),
	}
	_, err = db.NewInsert().Model(&f.Flight).Exec(ctx)
	must(err)
	_, err = db.NewInsert().Model(&f.LaterFlight).Exec(ctx)
	must(err)

	seg := models.FlightSegment{FlightID: f.Flight.ID, AircraftID: f.Aircraft.ID, SegmentOrder: 1}
	_, err = db.NewInsert().Model(&seg).Exec(ctx)
	must(err)

	f.Customer = models.Customer{Name: "Ana Silva", Phone: "912345678", Email: "ana@example.com", PasswordHash: "x"}
	f.Stranger = models.Customer{Name: "Rui Costa", Phone: "923456789", PasswordHash: "x"}
	f.Admin = models.Customer{Name: "Ops Admin", Phone: "900000000", PasswordHash: "x", IsAdmin: true}
	for _, c := range []*models.Customer{&f.Customer, &f.Stranger, &f.Admin} {
		_, err := db.NewInsert().Model(c).Exec(ctx)
		must(err)
	}

	return f
}

// Reserve inserts a reservation directly, bypassing every guard.
func Reserve(t *testing.T, db *bun.DB, code string, customerID, flightID, seatID int64, status models.ReservationStatus) models.Reservation {
	t.Helper()
	r := models.Reservation{
		ReservationCode: code,
		CustomerID:      customerID,
		FlightID:        flightID,
		SeatID:          seatID,
		Status:          status,
		ReservationDate: time.Now().UTC(),
	}
	if status == models.ReservationStatusCancelled {
		now := time.Now().UTC()
		r.CancellationDate = &now
	}
	if _, err := db.NewInsert().Model(&r).Exec(context.Background()); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return r
}
