package db

import (
	"context"
	"fmt"
	"time"

	"atlas-air/internal/database"
	"atlas-air/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func withRelations(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Customer").
		Relation("Flight").
		Relation("Flight.OriginAirport").
		Relation("Flight.DestinationAirport").
		Relation("Seat")
}

// CreateReservation inserts a reservation after re-checking, inside the same
// transaction, that the seat has no active reservation on the flight.
func (d *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := tx.NewSelect().
			Model((*models.Reservation)(nil)).
			Where("flight_id = ?", r.FlightID).
			Where("seat_id = ?", r.SeatID).
			Where("status <> ?", models.ReservationStatusCancelled).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check seat: %w", err)
		}
		if taken {
			return models.ErrSeatUnavailable
		}
		_, err = tx.NewInsert().Model(r).Exec(ctx)
		return err
	})
	return database.ClassifyReservationWrite(err)
}

// InsertReservation stores a reservation without the availability re-check.
// The active-seat index still rejects a second active reservation.
func (d *DB) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return database.ClassifyReservationWrite(err)
}

// GetReservationByID → one reservation with customer, flight and seat loaded
func (d *DB) GetReservationByID(ctx context.Context, id int64) (*models.Reservation, error) {
	var r models.Reservation
	err := withRelations(d.Bun.NewSelect().Model(&r)).
		Where("reservation.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &r, nil
}

func (d *DB) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	var r models.Reservation
	err := withRelations(d.Bun.NewSelect().Model(&r)).
		Where("reservation.reservation_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &r, nil
}

// UpdateReservation → update the admin-editable columns
func (d *DB) UpdateReservation(ctx context.Context, r *models.Reservation) error {
	res, err := d.Bun.NewUpdate().
		Model(r).
		Column("reservation_code", "customer_id", "flight_id", "seat_id", "status", "cancellation_date").
		WherePK().
		Exec(ctx)
	if err != nil {
		return database.ClassifyReservationWrite(err)
	}
	return expectRow(res)
}

// CancelReservation marks the reservation Cancelled and stamps the time.
func (d *DB) CancelReservation(ctx context.Context, id int64, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.ReservationStatusCancelled).
		Set("cancellation_date = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	return expectRow(res)
}

// DeleteReservation removes a reservation. The schema has no table pointing
// at reservations today; any added later makes a referenced delete fail with
// ErrStorageConflict instead of a raw driver error.
func (d *DB) DeleteReservation(ctx context.Context, id int64) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Reservation)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %v", models.ErrStorageConflict, err)
		}
		return fmt.Errorf("delete reservation: %w", err)
	}
	return expectRow(res)
}

// ListReservations → every reservation, newest first
func (d *DB) ListReservations(ctx context.Context) ([]models.Reservation, error) {
	reservations := []models.Reservation{}
	err := withRelations(d.Bun.NewSelect().Model(&reservations)).
		Order("reservation.reservation_date DESC", "reservation.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return reservations, nil
}

// ListReservationsByCustomer → one customer's reservations, newest first
func (d *DB) ListReservationsByCustomer(ctx context.Context, customerID int64) ([]models.Reservation, error) {
	reservations := []models.Reservation{}
	err := withRelations(d.Bun.NewSelect().Model(&reservations)).
		Where("reservation.customer_id = ?", customerID).
		Order("reservation.reservation_date DESC", "reservation.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customer reservations: %w", err)
	}
	return reservations, nil
}

func expectRow(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
