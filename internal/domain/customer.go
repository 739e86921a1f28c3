package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Customer is a laundry customer. Code is unique among live customers.
type Customer struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Customer) RecordID() string { return c.ID }

func (c Customer) WithID(id string) Customer {
	c.ID = id
	return c
}

func (c Customer) Remap(oldID, newID string) (Customer, bool) {
	if c.ID != oldID {
		return c, false
	}
	c.ID = newID
	return c, true
}

// Validate checks required fields and formats.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: customer code is required", ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if c.Email != nil && *c.Email != "" {
		if _, err := mail.ParseAddress(*c.Email); err != nil {
			return fmt.Errorf("%w: invalid email %q", ErrValidation, *c.Email)
		}
	}
	return nil
}
