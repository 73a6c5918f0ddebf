package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atlas-air/internal/config"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	maxRetries = 5
)

// ActiveSeatIndex is the partial unique index that allows at most one
// non-cancelled reservation per (flight, seat).
const ActiveSeatIndex = "reservations_active_seat_uidx"

// Open connects to the configured store, retrying postgres a few times while
// the container comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" || strings.HasPrefix(dsn, "postgres") {
			dsn = "file::memory:?cache=shared"
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
		log.Info("DATABASE", "Connected to SQLite")
		return db, nil

	case DriverPostgres, "":
		var sqldb *sql.DB
		var err error
		for i := 0; i < maxRetries; i++ {
			log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
			sqldb, err = sql.Open("postgres", cfg.DSN)
			if err == nil {
				err = sqldb.PingContext(ctx)
			}
			if err == nil {
				break
			}
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			if i < maxRetries-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("connect postgres after %d attempts: %w", maxRetries, err)
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		log.Info("DATABASE", "Connected to PostgreSQL")
		return bun.NewDB(sqldb, pgdialect.New()), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// CreateSchema builds the tables from the bun models. It is used for the
// sqlite driver and in tests; postgres deployments go through migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []struct {
		model interface{}
		fks   []string
	}{
		{model: (*models.Airport)(nil)},
		{model: (*models.Aircraft)(nil)},
		{model: (*models.Seat)(nil), fks: []string{`("aircraft_id") REFERENCES "aircraft" ("id")`}},
		{model: (*models.Flight)(nil), fks: []string{
			`("origin_airport_id") REFERENCES "airports" ("id")`,
			`("destination_airport_id") REFERENCES "airports" ("id")`,
		}},
		{model: (*models.FlightSegment)(nil), fks: []string{
			`("flight_id") REFERENCES "flights" ("id")`,
			`("aircraft_id") REFERENCES "aircraft" ("id")`,
		}},
		{model: (*models.Customer)(nil)},
		{model: (*models.Reservation)(nil), fks: []string{
			`("customer_id") REFERENCES "customers" ("id")`,
			`("flight_id") REFERENCES "flights" ("id")`,
			`("seat_id") REFERENCES "seats" ("id")`,
		}},
	}

	for _, tbl := range tables {
		q := db.NewCreateTable().Model(tbl.model).IfNotExists()
		for _, fk := range tbl.fks {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS `+ActiveSeatIndex+
		` ON reservations (flight_id, seat_id) WHERE status <> 'Cancelled'`)
	if err != nil {
		return fmt.Errorf("create active seat index: %w", err)
	}
	return nil
}

// IsUniqueViolation reports a unique constraint failure from either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports a foreign key failure from either driver.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// ViolatesColumn reports whether a constraint error names the given column.
func ViolatesColumn(err error, column string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Constraint, column) ||
			strings.Contains(pqErr.Detail, column) ||
			strings.Contains(pqErr.Message, column)
	}
	return err != nil && strings.Contains(err.Error(), column)
}

// ClassifyReservationWrite maps a failed reservation insert/update onto the
// domain errors.
func ClassifyReservationWrite(err error) error {
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err) && ViolatesColumn(err, "reservation_code"):
		return fmt.Errorf("%w: %v", models.ErrDuplicateReservationCode, err)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", models.ErrSeatUnavailable, err)
	case IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	default:
		return err
	}
}

// NotFound converts sql.ErrNoRows into models.ErrNotFound.
func NotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
