package db

import (
	"context"
	"fmt"
	"strings"

	"atlas-air/internal/database"
	"atlas-air/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	err := d.Bun.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

// GetByLogin finds a customer by phone number or, when login contains "@",
// by email (case-insensitive).
func (d *DB) GetByLogin(ctx context.Context, login string) (*models.Customer, error) {
	login = strings.TrimSpace(login)
	var c models.Customer
	q := d.Bun.NewSelect().Model(&c).Limit(1)
	if strings.Contains(login, "@") {
		q = q.Where("LOWER(email) = ?", strings.ToLower(login))
	} else {
		q = q.Where("phone = ?", login)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

// Create validates and inserts a customer. A taken phone number is reported
// as a field error.
func (d *DB) Create(ctx context.Context, c *models.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := d.Bun.NewInsert().Model(c).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			v := models.NewValidationError()
			v.Add("phone", "phone number already registered")
			return v
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (d *DB) List(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := d.Bun.NewSelect().Model(&customers).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}
