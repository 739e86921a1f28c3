package app

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/washline/internal/adapters/memory"
	"github.com/bft-labs/washline/internal/domain"
)

func intPtr(n int) *int { return &n }

func TestStock_HavluOfflineScenario(t *testing.T) {
	h := newHarness(t, false)

	item, err := h.ms.Stock.Create(h.ctx, StockInput{ProductName: "Havlu", Quantity: 10})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.ID, domain.TempIDPrefix))
	assert.Equal(t, domain.DefaultMinQuantity, item.MinQuantity)

	cached, ok := h.ms.Stock.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, "Havlu", cached.ProductName)

	pending := h.coord.PendingMutations()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpCreate, pending[0].Op)
	assert.Equal(t, item.ID, pending[0].CorrelationID)

	h.setOnline(true)
	h.drain(t)

	assert.Zero(t, h.coord.Pending())
	_, ok = h.ms.Stock.Get(item.ID)
	assert.False(t, ok)

	items := h.ms.Stock.List()
	require.Len(t, items, 1)
	assert.False(t, domain.IsTempID(items[0].ID))
	assert.Equal(t, h.remote.Rows(domain.EntityStock)[0]["id"], items[0].ID)
	assert.Equal(t, 10, items[0].Quantity)
}

func TestStock_ReduceStockRejectsNegative(t *testing.T) {
	h := newHarness(t, true)

	item, err := h.ms.Stock.Create(h.ctx, StockInput{ProductName: "Çarşaf", Quantity: 5})
	require.NoError(t, err)
	require.False(t, domain.IsTempID(item.ID))
	calls := h.remote.calls.Load()

	_, err = h.ms.Stock.ReduceStock(h.ctx, item.ID, 6)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, calls, h.remote.calls.Load())

	got, _ := h.ms.Stock.Get(item.ID)
	assert.Equal(t, 5, got.Quantity)
	assert.EqualValues(t, 5, h.remote.Rows(domain.EntityStock)[0]["quantity"])

	got, err = h.ms.Stock.ReduceStock(h.ctx, item.ID, 5)
	require.NoError(t, err)
	assert.Zero(t, got.Quantity)
	assert.True(t, got.Low())
}

func TestStock_LowStockAndSearch(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ms.Stock.Create(h.ctx, StockInput{ProductName: "Havlu", ProductCode: "HV-1", Quantity: 50})
	require.NoError(t, err)
	low, err := h.ms.Stock.Create(h.ctx, StockInput{ProductName: "Yumuşatıcı", Quantity: 2, MinQuantity: intPtr(5)})
	require.NoError(t, err)

	lows := h.ms.Stock.LowStock()
	require.Len(t, lows, 1)
	assert.Equal(t, low.ID, lows[0].ID)

	assert.Len(t, h.ms.Stock.Search("yumusatici"), 1)
	assert.Len(t, h.ms.Stock.Search("hv-1"), 1)

	updated, err := h.ms.Stock.SetMinQuantity(h.ctx, low.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MinQuantity)
	assert.Empty(t, h.ms.Stock.LowStock())
}

func TestCustomer_DeleteWithPackagesRejectedBeforeRemote(t *testing.T) {
	h := newHarness(t, true)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Fatma"})
	require.NoError(t, err)
	_, err = h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Battaniye", Quantity: 1})
	require.NoError(t, err)
	calls := h.remote.calls.Load()

	err = h.ms.Customers.Delete(h.ctx, c.ID)
	require.ErrorIs(t, err, domain.ErrCustomerHasPackages)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, calls, h.remote.calls.Load(), "no remote call may be made")

	_, ok := h.ms.Customers.Get(c.ID)
	assert.True(t, ok)
	assert.Zero(t, h.coord.Pending())
}

func TestCustomer_Validation(t *testing.T) {
	h := newHarness(t, true)

	tests := []struct {
		name string
		in   CustomerInput
		want error
	}{
		{"missing code", CustomerInput{Name: "Ali"}, domain.ErrValidation},
		{"missing name", CustomerInput{Code: "C9"}, domain.ErrValidation},
		{"bad email", CustomerInput{Code: "C9", Name: "Ali", Email: "not-an-email"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ms.Customers.Create(h.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, h.remote.calls.Load())
	assert.Empty(t, h.ms.Customers.List())
}

func TestCustomer_DuplicateCode(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "abc", Name: "Bir"})
	require.NoError(t, err)
	_, err = h.ms.Customers.Create(h.ctx, CustomerInput{Code: "ABC", Name: "İki"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	assert.Equal(t, 1, h.coord.Pending())
}

func TestCustomer_PermissionDenied(t *testing.T) {
	h := newHarness(t, false)
	h.app.Permissions = gateFunc(func(action string) bool { return action != "customers.create" })

	_, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Zero(t, h.coord.Pending(), "denied writes are never queued")
	assert.Empty(t, h.ms.Customers.List())
}

func TestCustomer_RemoteValidationSurfaced(t *testing.T) {
	h := newHarness(t, true)
	h.remote.FailNext(fmt.Errorf("%w: duplicate key", domain.ErrRemoteValidation))

	_, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.ErrorIs(t, err, domain.ErrRemoteValidation)
	assert.Zero(t, h.coord.Pending())
	assert.Empty(t, h.ms.Customers.List())
}

func TestCustomer_NetworkFailureQueues(t *testing.T) {
	h := newHarness(t, true)
	h.remote.FailNext(fmt.Errorf("%w: timeout", domain.ErrNetworkUnavailable))

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err, "offline is a success path")
	assert.True(t, domain.IsTempID(c.ID))
	assert.Equal(t, 1, h.coord.Pending())

	h.drain(t)
	assert.Len(t, h.remote.Rows(domain.EntityCustomer), 1)
}

func TestCustomer_UpdateQueuedBehindCreate(t *testing.T) {
	h := newHarness(t, false)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	name := "Ali Veli"
	_, err = h.ms.Customers.Update(h.ctx, c.ID, CustomerPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, 2, h.coord.Pending())

	got, _ := h.ms.Customers.Get(c.ID)
	assert.Equal(t, "Ali Veli", got.Name)

	h.setOnline(true)
	h.drain(t)

	rows := h.remote.Rows(domain.EntityCustomer)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ali Veli", rows[0]["name"])
}

func TestCustomer_UpdateNotFoundRemovesCached(t *testing.T) {
	h := newHarness(t, true)
	h.remote.Seed(domain.EntityCustomer, domain.Row{"id": "c1", "code": "C1", "name": "Eski"})
	require.NoError(t, h.ms.Customers.Refresh(h.ctx))
	h.remote.FailNext(fmt.Errorf("%w: no rows", domain.ErrNotFound))

	name := "Yeni"
	_, err := h.ms.Customers.Update(h.ctx, "c1", CustomerPatch{Name: &name})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, ok := h.ms.Customers.Get("c1")
	assert.False(t, ok)
}

func TestCustomer_SearchAndGetByCode(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "K-01", Name: "Gülşen Işık", Phone: "555 0101"})
	require.NoError(t, err)
	_, err = h.ms.Customers.Create(h.ctx, CustomerInput{Code: "K-02", Name: "Mert Can", Email: "mert@example.com"})
	require.NoError(t, err)

	assert.Len(t, h.ms.Customers.Search("gulsen isik"), 1)
	assert.Len(t, h.ms.Customers.Search("example.com"), 1)
	assert.Len(t, h.ms.Customers.Search("0101"), 1)
	assert.Len(t, h.ms.Customers.Search(""), 2)

	c, ok := h.ms.Customers.GetByCode("k-02")
	require.True(t, ok)
	assert.Equal(t, "Mert Can", c.Name)
}

func TestManagers_ReadsServedOffline(t *testing.T) {
	store := memory.NewKVStore()
	h := newHarnessWith(t, true, CoordinatorConfig{CallTimeout: time.Second}, store)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	_, err = h.ms.Containers.Open(h.ctx)
	require.NoError(t, err)
	require.NoError(t, h.ms.Flush(h.ctx))

	restarted := newHarnessWith(t, false, CoordinatorConfig{CallTimeout: time.Second}, store)
	restarted.ms.Load(restarted.ctx)

	got, ok := restarted.ms.Customers.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, "Ali", got.Name)
	assert.Len(t, restarted.ms.Containers.List(), 1)
	assert.Zero(t, restarted.remote.calls.Load())
}

func TestManagers_RefreshSkippedWhilePending(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)

	h.remote.SetOnline(true)
	h.remote.Seed(domain.EntityCustomer, domain.Row{"id": "c9", "code": "C9", "name": "Uzak"})
	require.NoError(t, h.ms.Refresh(h.ctx))

	_, ok := h.ms.Customers.Get("c9")
	assert.False(t, ok, "snapshot must not be applied while mutations are pending")
	assert.Len(t, h.ms.Customers.List(), 1)
}

func TestPackage_UnknownCustomer(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: "missing", ProductName: "Perde", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownCustomer)
	assert.Zero(t, h.coord.Pending())
}

func TestPackage_RemoteOnlyCustomerAccepted(t *testing.T) {
	h := newHarness(t, true)
	h.remote.Seed(domain.EntityCustomer, domain.Row{"id": "c1", "code": "C1", "name": "Uzak"})

	p, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: "c1", ProductName: "Perde", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.PackagePending, p.Status)
	assert.True(t, strings.HasPrefix(p.Barcode, "PKG"))
}

func TestPackage_Validation(t *testing.T) {
	h := newHarness(t, true)
	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)

	_, err = h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 1, Barcode: "B1"})
	require.NoError(t, err)
	_, err = h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Halı", Quantity: 1, Barcode: "B1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateBarcode)

	p, ok := h.ms.Packages.GetByBarcode("B1")
	require.True(t, ok)
	assert.Len(t, h.ms.Packages.Search("ali"), 1)
	assert.Len(t, h.ms.Packages.ListByCustomer(c.ID), 1)
	assert.Len(t, h.ms.Packages.ListPending(), 1)
	assert.Equal(t, p.ID, h.ms.Packages.ListPending()[0].ID)
}

func TestContainer_Lifecycle(t *testing.T) {
	h := newHarness(t, true)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	ctr, err := h.ms.Containers.Open(h.ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ctr.ContainerNumber, "C-2026"))
	assert.True(t, ctr.Active())

	p1, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 1})
	require.NoError(t, err)
	p2, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Halı", Quantity: 2})
	require.NoError(t, err)

	_, err = h.ms.Packages.AssignToContainer(h.ctx, p1.ID, ctr.ID)
	require.NoError(t, err)
	_, err = h.ms.Packages.AssignToContainer(h.ctx, p2.ID, ctr.ID)
	require.NoError(t, err)

	got, ok := h.ms.Containers.Get(ctr.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.PackageCount)

	err = h.ms.Containers.Delete(h.ctx, ctr.ID)
	assert.ErrorIs(t, err, domain.ErrContainerNotEmpty)

	done, err := h.ms.Containers.Complete(h.ctx, ctr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContainerCompleted, done.Status)
	require.NotNil(t, done.ClosedAt)
	assert.Equal(t, 2, done.PackageCount)

	for _, p := range h.ms.Packages.ListByContainer(ctr.ID) {
		assert.Equal(t, domain.PackageShipped, p.Status)
	}
	assert.Empty(t, h.ms.Packages.ListPending())
	assert.Empty(t, h.ms.Containers.Active())

	_, err = h.ms.Containers.Complete(h.ctx, ctr.ID)
	assert.ErrorIs(t, err, domain.ErrContainerClosed)
}

func TestContainer_AssignToClosedRejected(t *testing.T) {
	h := newHarness(t, true)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	ctr, err := h.ms.Containers.Open(h.ctx)
	require.NoError(t, err)
	_, err = h.ms.Containers.Complete(h.ctx, ctr.ID)
	require.NoError(t, err)

	p, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 1})
	require.NoError(t, err)
	_, err = h.ms.Packages.AssignToContainer(h.ctx, p.ID, ctr.ID)
	assert.ErrorIs(t, err, domain.ErrContainerClosed)
}

func TestPackage_ShippingIsOneWay(t *testing.T) {
	h := newHarness(t, true)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	ctr, err := h.ms.Containers.Open(h.ctx)
	require.NoError(t, err)
	p, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 1})
	require.NoError(t, err)

	shipped, err := h.ms.Packages.MarkShipped(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageShipped, shipped.Status)

	again, err := h.ms.Packages.MarkShipped(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageShipped, again.Status)

	_, err = h.ms.Packages.AssignToContainer(h.ctx, p.ID, ctr.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestContainer_OfflineCompleteShipsPending(t *testing.T) {
	h := newHarness(t, false)

	c, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "C1", Name: "Ali"})
	require.NoError(t, err)
	ctr, err := h.ms.Containers.Open(h.ctx)
	require.NoError(t, err)
	p, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: c.ID, ProductName: "Perde", Quantity: 1})
	require.NoError(t, err)
	_, err = h.ms.Packages.AssignToContainer(h.ctx, p.ID, ctr.ID)
	require.NoError(t, err)
	_, err = h.ms.Containers.Complete(h.ctx, ctr.ID)
	require.NoError(t, err)

	h.setOnline(true)
	report := h.drain(t)
	assert.Zero(t, report.Dropped)

	pkgs := h.remote.Rows(domain.EntityPackage)
	require.Len(t, pkgs, 1)
	containers := h.remote.Rows(domain.EntityContainer)
	require.Len(t, containers, 1)
	assert.Equal(t, containers[0]["id"], pkgs[0]["container_id"])
	assert.Equal(t, string(domain.PackageShipped), pkgs[0]["status"])
	assert.Equal(t, string(domain.ContainerCompleted), containers[0]["status"])
}
