package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
)

// ContainerManager owns the container cache. PackageCount is filled in from
// the package cache on every read.
type ContainerManager struct {
	*Manager[domain.Container]
	packages *PackageManager
}

// NewContainerManager creates a container manager. The package manager is
// attached by NewManagers.
func NewContainerManager(app *Context, c *cache.Cache[domain.Container], outbox Outbox) *ContainerManager {
	return &ContainerManager{Manager: newManager(app, c, outbox)}
}

// Open starts a new active container numbered after the current time.
func (m *ContainerManager) Open(ctx context.Context) (domain.Container, error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	now := m.app.now()
	c := domain.Container{
		ContainerNumber: domain.ContainerNumberAt(now),
		Status:          domain.ContainerActive,
		CreatedAt:       now,
	}
	if err := c.Validate(); err != nil {
		return domain.Container{}, err
	}
	if _, ok := m.GetByNumber(c.ContainerNumber); ok {
		return domain.Container{}, fmt.Errorf("%w: container %s already exists", domain.ErrValidation, c.ContainerNumber)
	}
	if err := m.app.authorize(m.action("create")); err != nil {
		return domain.Container{}, err
	}
	created, err := m.insert(ctx, c)
	if err != nil {
		return domain.Container{}, err
	}
	return m.withCount(created), nil
}

// Complete closes an active container and ships every package loaded into
// it. Each shipment is an independent write; failures are joined into the
// returned error while the container itself stays completed.
func (m *ContainerManager) Complete(ctx context.Context, id string) (domain.Container, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	c, ok := m.cache.Get(id)
	if !ok {
		return domain.Container{}, fmt.Errorf("%w: container %s", domain.ErrNotFound, id)
	}
	if !c.Active() {
		return domain.Container{}, fmt.Errorf("%w: %s", domain.ErrContainerClosed, c.ContainerNumber)
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.Container{}, err
	}

	closed := m.app.now()
	c.Status = domain.ContainerCompleted
	c.ClosedAt = &closed
	c.PackageCount = m.count(id)
	completed, err := m.update(ctx, c)
	if err != nil {
		return domain.Container{}, err
	}

	var errs []error
	if m.packages != nil {
		for _, p := range m.packages.ListByContainer(id) {
			if p.Status == domain.PackageShipped {
				continue
			}
			if _, err := m.packages.MarkShipped(ctx, p.ID); err != nil {
				errs = append(errs, fmt.Errorf("ship %s: %w", p.Barcode, err))
			}
		}
	}
	return m.withCount(completed), errors.Join(errs...)
}

// Delete removes an empty container.
func (m *ContainerManager) Delete(ctx context.Context, id string) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	if n := m.count(id); n > 0 {
		return fmt.Errorf("%w: %d package(s)", domain.ErrContainerNotEmpty, n)
	}
	if err := m.app.authorize(m.action("delete")); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

// Get returns the container with id.
func (m *ContainerManager) Get(id string) (domain.Container, bool) {
	c, ok := m.cache.Get(id)
	if !ok {
		return domain.Container{}, false
	}
	return m.withCount(c), true
}

// List returns every container.
func (m *ContainerManager) List() []domain.Container {
	return m.withCounts(m.cache.Values())
}

// Active returns the containers still accepting packages.
func (m *ContainerManager) Active() []domain.Container {
	return m.withCounts(m.cache.Find(domain.Container.Active))
}

// GetByNumber returns the container with number.
func (m *ContainerManager) GetByNumber(number string) (domain.Container, bool) {
	found := m.cache.Find(func(c domain.Container) bool { return c.ContainerNumber == number })
	if len(found) == 0 {
		return domain.Container{}, false
	}
	return m.withCount(found[0]), true
}

func (m *ContainerManager) count(id string) int {
	if m.packages == nil {
		return 0
	}
	return m.packages.CountByContainer(id)
}

func (m *ContainerManager) withCount(c domain.Container) domain.Container {
	c.PackageCount = m.count(c.ID)
	return c
}

func (m *ContainerManager) withCounts(cs []domain.Container) []domain.Container {
	for i := range cs {
		cs[i] = m.withCount(cs[i])
	}
	return cs
}
