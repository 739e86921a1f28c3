package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMinQuantity is the low-stock threshold used when none is given.
const DefaultMinQuantity = 10

// StockItem is a tracked consumable. Quantity is never negative.
type StockItem struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	ProductCode *string   `json:"product_code,omitempty"`
	Quantity    int       `json:"quantity"`
	MinQuantity int       `json:"min_quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s StockItem) RecordID() string { return s.ID }

func (s StockItem) WithID(id string) StockItem {
	s.ID = id
	return s
}

func (s StockItem) Remap(oldID, newID string) (StockItem, bool) {
	if s.ID != oldID {
		return s, false
	}
	s.ID = newID
	return s, true
}

// Low reports whether the item is at or below its threshold.
func (s StockItem) Low() bool { return s.Quantity <= s.MinQuantity }

// Reduce returns the item with qty removed. A reduction below zero is
// rejected with ErrInsufficientStock and the item is returned unchanged.
func (s StockItem) Reduce(qty int) (StockItem, error) {
	if qty <= 0 {
		return s, fmt.Errorf("%w: reduction must be positive, got %d", ErrValidation, qty)
	}
	if qty > s.Quantity {
		return s, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientStock, s.Quantity, qty)
	}
	s.Quantity -= qty
	return s, nil
}

// Add returns the item with qty added.
func (s StockItem) Add(qty int) (StockItem, error) {
	if qty <= 0 {
		return s, fmt.Errorf("%w: addition must be positive, got %d", ErrValidation, qty)
	}
	s.Quantity += qty
	return s, nil
}

// Validate checks required fields and numeric bounds.
func (s StockItem) Validate() error {
	if strings.TrimSpace(s.ProductName) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if s.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}
	if s.MinQuantity < 0 {
		return fmt.Errorf("%w: min quantity cannot be negative", ErrValidation)
	}
	return nil
}
