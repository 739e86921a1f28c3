package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/textnorm"
)

// StockInput holds the fields for a new stock item. A nil MinQuantity takes
// the configured default.
type StockInput struct {
	ProductName string
	ProductCode string
	Quantity    int
	MinQuantity *int
}

// StockPatch lists the descriptive fields to change. Quantities move only
// through AddStock and ReduceStock.
type StockPatch struct {
	ProductName *string
	ProductCode *string
	MinQuantity *int
}

// StockManager owns the stock cache.
type StockManager struct {
	*Manager[domain.StockItem]
}

// NewStockManager creates a stock manager.
func NewStockManager(app *Context, c *cache.Cache[domain.StockItem], outbox Outbox) *StockManager {
	return &StockManager{Manager: newManager(app, c, outbox)}
}

// Create adds a stock item.
func (m *StockManager) Create(ctx context.Context, in StockInput) (domain.StockItem, error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	minQty := m.app.Settings.DefaultMinQuantity
	if in.MinQuantity != nil {
		minQty = *in.MinQuantity
	}
	item := domain.StockItem{
		ProductName: strings.TrimSpace(in.ProductName),
		ProductCode: domain.StringPtr(strings.TrimSpace(in.ProductCode)),
		Quantity:    in.Quantity,
		MinQuantity: minQty,
		UpdatedAt:   m.app.now(),
	}
	if err := item.Validate(); err != nil {
		return domain.StockItem{}, err
	}
	if err := m.app.authorize(m.action("create")); err != nil {
		return domain.StockItem{}, err
	}
	return m.insert(ctx, item)
}

// Update applies patch to a stock item.
func (m *StockManager) Update(ctx context.Context, id string, patch StockPatch) (domain.StockItem, error) {
	return m.change(ctx, id, func(item domain.StockItem) (domain.StockItem, error) {
		if patch.ProductName != nil {
			item.ProductName = strings.TrimSpace(*patch.ProductName)
		}
		if patch.ProductCode != nil {
			item.ProductCode = domain.StringPtr(strings.TrimSpace(*patch.ProductCode))
		}
		if patch.MinQuantity != nil {
			item.MinQuantity = *patch.MinQuantity
		}
		return item, nil
	})
}

// AddStock increases the quantity of an item.
func (m *StockManager) AddStock(ctx context.Context, id string, qty int) (domain.StockItem, error) {
	return m.change(ctx, id, func(item domain.StockItem) (domain.StockItem, error) {
		return item.Add(qty)
	})
}

// ReduceStock decreases the quantity of an item. A reduction below zero is
// rejected and the item is left unchanged.
func (m *StockManager) ReduceStock(ctx context.Context, id string, qty int) (domain.StockItem, error) {
	return m.change(ctx, id, func(item domain.StockItem) (domain.StockItem, error) {
		return item.Reduce(qty)
	})
}

// SetMinQuantity changes the low-stock threshold of an item.
func (m *StockManager) SetMinQuantity(ctx context.Context, id string, minQty int) (domain.StockItem, error) {
	return m.Update(ctx, id, StockPatch{MinQuantity: &minQty})
}

// Delete removes a stock item.
func (m *StockManager) Delete(ctx context.Context, id string) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	if err := m.app.authorize(m.action("delete")); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

// LowStock returns items at or below their threshold.
func (m *StockManager) LowStock() []domain.StockItem {
	return m.cache.Find(domain.StockItem.Low)
}

// Search matches query against product name and code.
func (m *StockManager) Search(query string) []domain.StockItem {
	return m.cache.Find(func(s domain.StockItem) bool {
		return textnorm.MatchAny(query, s.ProductName, domain.StringValue(s.ProductCode))
	})
}

func (m *StockManager) change(ctx context.Context, id string, fn func(domain.StockItem) (domain.StockItem, error)) (domain.StockItem, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	id = m.key(id)

	item, ok := m.cache.Get(id)
	if !ok {
		return domain.StockItem{}, fmt.Errorf("%w: stock item %s", domain.ErrNotFound, id)
	}
	next, err := fn(item)
	if err != nil {
		return domain.StockItem{}, err
	}
	next.UpdatedAt = m.app.now()
	if err := next.Validate(); err != nil {
		return domain.StockItem{}, err
	}
	if err := m.app.authorize(m.action("update")); err != nil {
		return domain.StockItem{}, err
	}
	return m.update(ctx, next)
}
