package domain

import (
	"fmt"
	"strings"
	"time"
)

// PackageStatus is the shipping state of a package.
type PackageStatus string

const (
	PackagePending PackageStatus = "pending"
	PackageShipped PackageStatus = "shipped"
)

// Package is a bundle received from a customer. Status only ever moves
// from pending to shipped.
type Package struct {
	ID          string        `json:"id"`
	CustomerID  string        `json:"customer_id"`
	ProductName string        `json:"product_name"`
	Quantity    int           `json:"quantity"`
	Barcode     string        `json:"barcode"`
	Status      PackageStatus `json:"status"`
	ContainerID *string       `json:"container_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (p Package) RecordID() string { return p.ID }

func (p Package) WithID(id string) Package {
	p.ID = id
	return p
}

func (p Package) Remap(oldID, newID string) (Package, bool) {
	changed := false
	if p.ID == oldID {
		p.ID = newID
		changed = true
	}
	if p.CustomerID == oldID {
		p.CustomerID = newID
		changed = true
	}
	var ok bool
	if p.ContainerID, ok = remapPtr(p.ContainerID, oldID, newID); ok {
		changed = true
	}
	return p, changed
}

// InContainer reports whether the package is assigned to containerID.
func (p Package) InContainer(containerID string) bool {
	return p.ContainerID != nil && *p.ContainerID == containerID
}

// Validate checks required fields and numeric bounds.
func (p Package) Validate() error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return fmt.Errorf("%w: customer is required", ErrValidation)
	}
	if strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, p.Quantity)
	}
	if strings.TrimSpace(p.Barcode) == "" {
		return fmt.Errorf("%w: barcode is required", ErrValidation)
	}
	switch p.Status {
	case PackagePending, PackageShipped:
	default:
		return fmt.Errorf("%w: unknown package status %q", ErrValidation, p.Status)
	}
	return nil
}

// CanTransition reports whether a package may move from one status to another.
func (s PackageStatus) CanTransition(to PackageStatus) bool {
	if s == to {
		return true
	}
	return s == PackagePending && to == PackageShipped
}
