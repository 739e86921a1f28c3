package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/textnorm"
)

// CustomerInput holds the fields for a new customer.
type CustomerInput struct {
	Code    string
	Name    string
	Email   string
	Phone   string
	Address string
}

// CustomerPatch lists the fields to change. Nil leaves a field alone.
type CustomerPatch struct {
	Code    *string
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}

// CustomerManager owns the customer cache.
type CustomerManager struct {
	*Manager[domain.Customer]
	packages *PackageManager
}

// NewCustomerManager creates a customer manager. The package manager is
// attached by NewManagers.
func NewCustomerManager(app *Context, c *cache.Cache[domain.Customer], outbox Outbox) *CustomerManager {
	return &CustomerManager{Manager: newManager(app, c, outbox)}
}

// Create validates in and stores a new customer.
func (m *CustomerManager) Create(ctx context.Context, in CustomerInput) (domain.Customer, error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	c := domain.Customer{
		Code:      strings.TrimSpace(in.Code),
		Name:      strings.TrimSpace(in.Name),
		Email:     domain.StringPtr(strings.TrimSpace(in.Email)),
		Phone:     domain.StringPtr(strings.TrimSpace(in.Phone)),
		Address:   domain.StringPtr(strings.TrimSpace(in.Address)),
		CreatedAt: m.app.now(),
	}
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	if err := m.checkCode(c.Code, ""); err != nil {
		return domain.Customer{}, err
	}
	if err := m.app.authorize(m.action("create")); err != nil {
		return domain.Customer{}, err
	}
	return m.insert(ctx, c)
}

// Update applies patch to the customer with id.
func (m *CustomerManager) Update(ctx context.Context, id string, patch CustomerPatch) (domain.Customer, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	c, ok := m.cache.Get(id)
	if !ok {
		return domain.Customer{}, fmt.Errorf("%w: customer %s", domain.ErrNotFound, id)
	}
	if patch.Code != nil {
		c.Code = strings.TrimSpace(*patch.Code)
	}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		c.Email = domain.StringPtr(strings.TrimSpace(*patch.Email))
	}
	if patch.Phone != nil {
		c.Phone = domain.StringPtr(strings.TrimSpace(*patch.Phone))
	}
	if patch.Address != nil {
		c.Address = domain.StringPtr(strings.TrimSpace(*patch.Address))
	}
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	if err := m.checkCode(c.Code, id); err != nil {
		return domain.Customer{}, err
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.Customer{}, err
	}
	return m.update(ctx, c)
}

// Delete removes the customer with id. A customer that still has packages
// is rejected before the remote store is contacted.
func (m *CustomerManager) Delete(ctx context.Context, id string) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	if m.packages != nil {
		if n := m.packages.CountByCustomer(id); n > 0 {
			return fmt.Errorf("%w: %d package(s)", domain.ErrCustomerHasPackages, n)
		}
	}
	if err := m.app.authorize(m.action("delete")); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

// GetByCode returns the customer with code, compared case-insensitively.
func (m *CustomerManager) GetByCode(code string) (domain.Customer, bool) {
	code = strings.TrimSpace(code)
	found := m.cache.Find(func(c domain.Customer) bool {
		return strings.EqualFold(c.Code, code)
	})
	if len(found) == 0 {
		return domain.Customer{}, false
	}
	return found[0], true
}

// Search matches query against code, name, phone and email.
func (m *CustomerManager) Search(query string) []domain.Customer {
	return m.cache.Find(func(c domain.Customer) bool {
		return textnorm.MatchAny(query, c.Code, c.Name,
			domain.StringValue(c.Phone), domain.StringValue(c.Email))
	})
}

func (m *CustomerManager) checkCode(code, selfID string) error {
	if existing, ok := m.GetByCode(code); ok && existing.ID != selfID {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, code)
	}
	return nil
}
