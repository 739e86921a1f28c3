package domain

import (
	"fmt"
	"time"
)

// ContainerStatus is the loading state of a container.
type ContainerStatus string

const (
	ContainerActive    ContainerStatus = "active"
	ContainerCompleted ContainerStatus = "completed"
)

// ContainerNumberLayout is the time layout container numbers derive from.
const ContainerNumberLayout = "20060102-150405"

// Container is a shipping container. PackageCount is derived from the
// packages assigned to it and recomputed on every read.
type Container struct {
	ID              string          `json:"id"`
	ContainerNumber string          `json:"container_number"`
	Status          ContainerStatus `json:"status"`
	PackageCount    int             `json:"package_count"`
	CreatedAt       time.Time       `json:"created_at"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
}

// ContainerNumberAt derives the container number for a creation time.
func ContainerNumberAt(t time.Time) string {
	return "C-" + t.UTC().Format(ContainerNumberLayout)
}

func (c Container) RecordID() string { return c.ID }

func (c Container) WithID(id string) Container {
	c.ID = id
	return c
}

func (c Container) Remap(oldID, newID string) (Container, bool) {
	if c.ID != oldID {
		return c, false
	}
	c.ID = newID
	return c, true
}

// Active reports whether packages can still be loaded.
func (c Container) Active() bool { return c.Status == ContainerActive }

// Validate checks required fields.
func (c Container) Validate() error {
	if c.ContainerNumber == "" {
		return fmt.Errorf("%w: container number is required", ErrValidation)
	}
	switch c.Status {
	case ContainerActive:
	case ContainerCompleted:
		if c.ClosedAt == nil {
			return fmt.Errorf("%w: completed container needs closed_at", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown container status %q", ErrValidation, c.Status)
	}
	return nil
}
