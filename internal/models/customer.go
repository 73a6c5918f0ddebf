package models

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/uptrace/bun"
)

var phonePattern = regexp.MustCompile(`^\d{8,15}$`)

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Name         string `bun:"name,notnull" json:"name"`
	Phone        string `bun:"phone,unique,notnull" json:"phone"`
	Email        string `bun:"email,nullzero" json:"email,omitempty"`
	PasswordHash string `bun:"password_hash,notnull" json:"-"`
	IsAdmin      bool   `bun:"is_admin,notnull,default:false" json:"isAdmin"`
}

// Validate checks the fields a customer record must satisfy before it is stored.
func (c Customer) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(c.Name) == "" {
		v.Add("name", "name is required")
	}
	if !phonePattern.MatchString(c.Phone) {
		v.Add("phone", "phone must contain only digits (8 to 15)")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			v.Add("email", "invalid email address")
		}
	}
	return v.OrNil()
}
