package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
	"github.com/bft-labs/washline/internal/textnorm"
)

// PackageInput holds the fields for a new package. An empty Barcode is
// generated.
type PackageInput struct {
	CustomerID  string
	ProductName string
	Quantity    int
	Barcode     string
}

// PackagePatch lists the fields to change.
type PackagePatch struct {
	ProductName *string
	Quantity    *int
}

// PackageManager owns the package cache.
type PackageManager struct {
	*Manager[domain.Package]
	customers  *CustomerManager
	containers *ContainerManager
}

// NewPackageManager creates a package manager reading customers and
// containers through their managers.
func NewPackageManager(app *Context, c *cache.Cache[domain.Package], outbox Outbox, customers *CustomerManager, containers *ContainerManager) *PackageManager {
	return &PackageManager{Manager: newManager(app, c, outbox), customers: customers, containers: containers}
}

// Create registers a pending package for an existing customer.
func (m *PackageManager) Create(ctx context.Context, in PackageInput) (domain.Package, error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	now := m.app.now()
	p := domain.Package{
		CustomerID:  m.customers.key(strings.TrimSpace(in.CustomerID)),
		ProductName: strings.TrimSpace(in.ProductName),
		Quantity:    in.Quantity,
		Barcode:     strings.TrimSpace(in.Barcode),
		Status:      domain.PackagePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Barcode == "" {
		p.Barcode = m.newBarcode()
	}
	if err := p.Validate(); err != nil {
		return domain.Package{}, err
	}
	if _, ok := m.GetByBarcode(p.Barcode); ok {
		return domain.Package{}, fmt.Errorf("%w: %s", domain.ErrDuplicateBarcode, p.Barcode)
	}
	if err := m.customerExists(ctx, p.CustomerID); err != nil {
		return domain.Package{}, err
	}
	if err := m.app.authorize(m.action("create")); err != nil {
		return domain.Package{}, err
	}
	return m.insert(ctx, p)
}

// Update applies patch to a package.
func (m *PackageManager) Update(ctx context.Context, id string, patch PackagePatch) (domain.Package, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	p, err := m.lookup(id)
	if err != nil {
		return domain.Package{}, err
	}
	if patch.ProductName != nil {
		p.ProductName = strings.TrimSpace(*patch.ProductName)
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	p.UpdatedAt = m.app.now()
	if err := p.Validate(); err != nil {
		return domain.Package{}, err
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.Package{}, err
	}
	return m.update(ctx, p)
}

// AssignToContainer loads a pending package into an active container.
func (m *PackageManager) AssignToContainer(ctx context.Context, id, containerID string) (domain.Package, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id, containerID = m.key(id), m.containers.key(containerID)

	p, err := m.lookup(id)
	if err != nil {
		return domain.Package{}, err
	}
	if p.Status != domain.PackagePending {
		return domain.Package{}, fmt.Errorf("%w: package %s is %s", domain.ErrInvalidTransition, id, p.Status)
	}
	c, ok := m.containers.Get(containerID)
	if !ok {
		return domain.Package{}, fmt.Errorf("%w: container %s", domain.ErrNotFound, containerID)
	}
	if !c.Active() {
		return domain.Package{}, fmt.Errorf("%w: %s", domain.ErrContainerClosed, c.ContainerNumber)
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.Package{}, err
	}
	p.ContainerID = domain.StringPtr(containerID)
	p.UpdatedAt = m.app.now()
	return m.update(ctx, p)
}

// MarkShipped moves a package to shipped. Shipping is one-way; marking an
// already shipped package is a no-op.
func (m *PackageManager) MarkShipped(ctx context.Context, id string) (domain.Package, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	p, err := m.lookup(id)
	if err != nil {
		return domain.Package{}, err
	}
	if p.Status == domain.PackageShipped {
		return p, nil
	}
	if !p.Status.CanTransition(domain.PackageShipped) {
		return domain.Package{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, p.Status, domain.PackageShipped)
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.Package{}, err
	}
	p.Status = domain.PackageShipped
	p.UpdatedAt = m.app.now()
	return m.update(ctx, p)
}

// Delete removes a package.
func (m *PackageManager) Delete(ctx context.Context, id string) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	if err := m.app.authorize(m.action("delete")); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

// GetByBarcode returns the package with barcode.
func (m *PackageManager) GetByBarcode(barcode string) (domain.Package, bool) {
	found := m.cache.Find(func(p domain.Package) bool { return p.Barcode == barcode })
	if len(found) == 0 {
		return domain.Package{}, false
	}
	return found[0], true
}

// ListByCustomer returns the packages of one customer.
func (m *PackageManager) ListByCustomer(customerID string) []domain.Package {
	return m.cache.Find(func(p domain.Package) bool { return p.CustomerID == customerID })
}

// ListByContainer returns the packages loaded into one container.
func (m *PackageManager) ListByContainer(containerID string) []domain.Package {
	return m.cache.Find(func(p domain.Package) bool { return p.InContainer(containerID) })
}

// ListPending returns packages not shipped yet.
func (m *PackageManager) ListPending() []domain.Package {
	return m.cache.Find(func(p domain.Package) bool { return p.Status == domain.PackagePending })
}

// CountByCustomer returns how many packages reference customerID.
func (m *PackageManager) CountByCustomer(customerID string) int {
	return len(m.ListByCustomer(customerID))
}

// CountByContainer returns how many packages are loaded into containerID.
func (m *PackageManager) CountByContainer(containerID string) int {
	return len(m.ListByContainer(containerID))
}

// Search matches query against barcode and product name, and the owning
// customer's code and name.
func (m *PackageManager) Search(query string) []domain.Package {
	return m.cache.Find(func(p domain.Package) bool {
		fields := []string{p.Barcode, p.ProductName}
		if c, ok := m.customers.Get(p.CustomerID); ok {
			fields = append(fields, c.Code, c.Name)
		}
		return textnorm.MatchAny(query, fields...)
	})
}

func (m *PackageManager) lookup(id string) (domain.Package, error) {
	p, ok := m.cache.Get(id)
	if !ok {
		return domain.Package{}, fmt.Errorf("%w: package %s", domain.ErrNotFound, id)
	}
	return p, nil
}

// customerExists accepts a customer known to the cache, or one the remote
// store confirms when reachable.
func (m *PackageManager) customerExists(ctx context.Context, id string) error {
	if _, ok := m.customers.Get(id); ok {
		return nil
	}
	if domain.IsTempID(id) || !m.outbox.Online() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCustomer, id)
	}
	res, err := m.app.query(ctx, ports.Query{
		Entity:  domain.EntityCustomer,
		Op:      ports.OpSelect,
		Columns: "id",
		Filter:  map[string]any{"id": id},
		Limit:   1,
	})
	if err != nil {
		if domain.Retryable(err) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownCustomer, id)
		}
		return err
	}
	if _, ok := res.First(); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCustomer, id)
	}
	return nil
}

func (m *PackageManager) newBarcode() string {
	for {
		code := fmt.Sprintf("PKG%s%04d", m.app.now().Format("20060102150405"), rand.IntN(10000))
		if _, taken := m.GetByBarcode(code); !taken {
			return code
		}
	}
}
