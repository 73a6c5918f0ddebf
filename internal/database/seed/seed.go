// Package seed loads a small demo network: three airports, two aircraft with
// their cabins, a handful of flights and two accounts.
package seed

import (
	"context"
	"fmt"
	"time"

	"atlas-air/internal/auth"
	customerdb "atlas-air/internal/customers/db"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"

	"github.com/uptrace/bun"
)

type Options struct {
	AdminPhone       string
	AdminPassword    string
	CustomerPhone    string
	CustomerPassword string

	// FirstDeparture anchors the generated timetable.
	FirstDeparture time.Time
}

type Summary struct {
	Airports  int
	Aircraft  int
	Seats     int
	Flights   int
	Customers int
	Skipped   bool
}

// Run inserts the demo data in one transaction. A database that already has
// airports is left alone. log may be nil.
func Run(ctx context.Context, db *bun.DB, opts Options, log *logger.Logger) (Summary, error) {
	var sum Summary

	n, err := db.NewSelect().Model((*models.Airport)(nil)).Count(ctx)
	if err != nil {
		return sum, fmt.Errorf("count airports: %w", err)
	}
	if n > 0 {
		log.LogDatabase("SKIP", "airports", fmt.Sprintf("%d rows already present", n))
		sum.Skipped = true
		return sum, nil
	}
	if opts.FirstDeparture.IsZero() {
		opts.FirstDeparture = time.Now().UTC().Truncate(24*time.Hour).Add(24*time.Hour + 7*time.Hour)
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		airports := []models.Airport{
			{Code: "LIS", Name: "Lisbon Humberto Delgado", City: "Lisbon"},
			{Code: "OPO", Name: "Porto Francisco Sa Carneiro", City: "Porto"},
			{Code: "FNC", Name: "Madeira Cristiano Ronaldo", City: "Funchal"},
		}
		if _, err := tx.NewInsert().Model(&airports).Exec(ctx); err != nil {
			return fmt.Errorf("insert airports: %w", err)
		}
		sum.Airports = len(airports)
		log.LogDatabase("INSERT", "airports", fmt.Sprintf("%d rows", sum.Airports))

		aircraft := []models.Aircraft{
			{Model: "Airbus A320", Registration: "CS-ATA"},
			{Model: "Embraer E190", Registration: "CS-ATB"},
		}
		if _, err := tx.NewInsert().Model(&aircraft).Exec(ctx); err != nil {
			return fmt.Errorf("insert aircraft: %w", err)
		}
		sum.Aircraft = len(aircraft)
		log.LogDatabase("INSERT", "aircraft", fmt.Sprintf("%d rows", sum.Aircraft))

		seats := append(cabin(aircraft[0].ID, 2, 6, 20), cabin(aircraft[1].ID, 0, 4, 12)...)
		if _, err := tx.NewInsert().Model(&seats).Exec(ctx); err != nil {
			return fmt.Errorf("insert seats: %w", err)
		}
		sum.Seats = len(seats)
		log.LogDatabase("INSERT", "seats", fmt.Sprintf("%d rows", sum.Seats))

		type leg struct {
			number         string
			from, to       int
			offset, length time.Duration
			plane          int
		}
		legs := []leg{
			{"AT100", 0, 1, 0, 55 * time.Minute, 0},
			{"AT101", 1, 0, 3 * time.Hour, 55 * time.Minute, 0},
			{"AT200", 0, 2, 2 * time.Hour, 105 * time.Minute, 1},
			{"AT201", 2, 0, 6 * time.Hour, 100 * time.Minute, 1},
			{"AT102", 0, 1, 24 * time.Hour, 55 * time.Minute, 0},
		}
		for _, l := range legs {
			dep := opts.FirstDeparture.Add(l.offset)
			f := models.Flight{
				FlightNumber:         l.number,
				OriginAirportID:      airports[l.from].ID,
				DestinationAirportID: airports[l.to].ID,
				ScheduledDeparture:   dep,
				ScheduledArrival:     dep.Add(l.length),
			}
			if _, err := tx.NewInsert().Model(&f).Exec(ctx); err != nil {
				return fmt.Errorf("insert flight %s: %w", l.number, err)
			}
			seg := models.FlightSegment{FlightID: f.ID, AircraftID: aircraft[l.plane].ID, SegmentOrder: 1}
			if _, err := tx.NewInsert().Model(&seg).Exec(ctx); err != nil {
				return fmt.Errorf("insert segment %s: %w", l.number, err)
			}
		}
		sum.Flights = len(legs)
		log.LogDatabase("INSERT", "flights", fmt.Sprintf("%d rows with segments", sum.Flights))
		return nil
	})
	if err != nil {
		return sum, err
	}

	// Customers go through the repository so that phone and email are validated.
	customers := &customerdb.DB{Bun: db}
	accounts := []struct {
		name, phone, email, password string
		admin                        bool
	}{
		{"Atlas Operations", opts.AdminPhone, "", opts.AdminPassword, true},
		{"Demo Customer", opts.CustomerPhone, "demo@atlas-air.example", opts.CustomerPassword, false},
	}
	for _, a := range accounts {
		hash, err := auth.HashPassword(a.password)
		if err != nil {
			return sum, fmt.Errorf("hash password: %w", err)
		}
		c := &models.Customer{Name: a.name, Phone: a.phone, Email: a.email, PasswordHash: hash, IsAdmin: a.admin}
		if err := customers.Create(ctx, c); err != nil {
			return sum, fmt.Errorf("create customer %s: %w", a.name, err)
		}
		sum.Customers++
	}
	log.LogDatabase("INSERT", "customers", fmt.Sprintf("%d rows", sum.Customers))
	return sum, nil
}

// cabin lays out rows of seats lettered A-F (A-D on narrow cabins). The first
// businessRows rows are Business class.
func cabin(aircraftID int64, businessRows, perRow, rows int) []models.Seat {
	letters := "ABCDEF"[:perRow]
	seats := make([]models.Seat, 0, rows*perRow)
	for row := 1; row <= rows; row++ {
		class := models.SeatClassEconomy
		if row <= businessRows {
			class = models.SeatClassBusiness
		}
		for _, l := range letters {
			seats = append(seats, models.Seat{
				AircraftID: aircraftID,
				SeatNumber: fmt.Sprintf("%d%c", row, l),
				SeatClass:  class,
			})
		}
	}
	return seats
}
