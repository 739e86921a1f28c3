package app

import (
	"context"
	"errors"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// Managers bundles the four entity managers sharing one application
// context and outbox.
type Managers struct {
	Customers  *CustomerManager
	Packages   *PackageManager
	Containers *ContainerManager
	Stock      *StockManager
}

// NewManagers builds every manager with a cache backed by store.
func NewManagers(app *Context, store ports.KVStore, outbox Outbox, opts ...cache.Option) *Managers {
	log := app.Logger
	customers := NewCustomerManager(app, cache.New[domain.Customer](domain.EntityCustomer, store, log, opts...), outbox)
	containers := NewContainerManager(app, cache.New[domain.Container](domain.EntityContainer, store, log, opts...), outbox)
	packages := NewPackageManager(app, cache.New[domain.Package](domain.EntityPackage, store, log, opts...), outbox, customers, containers)
	stock := NewStockManager(app, cache.New[domain.StockItem](domain.EntityStock, store, log, opts...), outbox)

	customers.packages = packages
	containers.packages = packages

	return &Managers{
		Customers:  customers,
		Packages:   packages,
		Containers: containers,
		Stock:      stock,
	}
}

// Reconcilers returns the managers in dependency order.
func (ms *Managers) Reconcilers() []Reconciler {
	return []Reconciler{ms.Customers, ms.Containers, ms.Packages, ms.Stock}
}

// Load restores every cache from storage.
func (ms *Managers) Load(ctx context.Context) {
	ms.Customers.cache.Load(ctx)
	ms.Containers.cache.Load(ctx)
	ms.Packages.cache.Load(ctx)
	ms.Stock.cache.Load(ctx)
}

// Refresh pulls a remote snapshot for every entity type.
func (ms *Managers) Refresh(ctx context.Context) error {
	return errors.Join(
		ms.Customers.Refresh(ctx),
		ms.Containers.Refresh(ctx),
		ms.Packages.Refresh(ctx),
		ms.Stock.Refresh(ctx),
	)
}

// Flush writes every pending cache snapshot.
func (ms *Managers) Flush(ctx context.Context) error {
	return errors.Join(
		ms.Customers.cache.Flush(ctx),
		ms.Containers.cache.Flush(ctx),
		ms.Packages.cache.Flush(ctx),
		ms.Stock.cache.Flush(ctx),
	)
}

// Close flushes and stops every cache.
func (ms *Managers) Close(ctx context.Context) error {
	return errors.Join(
		ms.Customers.cache.Close(ctx),
		ms.Containers.cache.Close(ctx),
		ms.Packages.cache.Close(ctx),
		ms.Stock.cache.Close(ctx),
	)
}
