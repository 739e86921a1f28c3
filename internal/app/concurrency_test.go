package app

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestCoordinator_UpdateDuringDrainSurvivesRemap(t *testing.T) {
	h := newHarness(t, false)

	customer, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "A", Name: "Old"})
	require.NoError(t, err)
	require.True(t, domain.IsTempID(customer.ID))
	h.setOnline(true)

	inGate := make(chan struct{})
	release := make(chan struct{})
	var gateOnce sync.Once
	h.app.Permissions = gateFunc(func(action string) bool {
		if action == "customers.update" {
			gateOnce.Do(func() {
				close(inGate)
				<-release
			})
		}
		return true
	})

	inserted := make(chan struct{})
	var insertOnce sync.Once
	h.remote.after = func(q ports.Query, res ports.Result) ports.Result {
		if q.Op == ports.OpInsert {
			insertOnce.Do(func() { close(inserted) })
		}
		return res
	}

	updated := make(chan error, 1)
	go func() {
		name := "New"
		_, err := h.ms.Customers.Update(h.ctx, customer.ID, CustomerPatch{Name: &name})
		updated <- err
	}()
	// The update now holds the customer gate with the temp id in hand.
	waitClosed(t, inGate, "update to reach the permission check")

	drained := make(chan DrainReport, 1)
	go func() {
		report, err := h.coord.Drain(h.ctx)
		assert.NoError(t, err)
		drained <- report
	}()
	waitClosed(t, inserted, "create to reach the remote store")
	close(release)

	require.NoError(t, <-updated)
	report := <-drained
	if h.coord.Pending() > 0 {
		next := h.drain(t)
		report.Replayed += next.Replayed
		report.Dropped += next.Dropped
	}

	assert.Equal(t, 2, report.Replayed)
	assert.Zero(t, report.Dropped)
	assert.Zero(t, h.coord.Pending())

	rows := h.remote.Rows(domain.EntityCustomer)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0]["name"])

	serverID, _ := rows[0]["id"].(string)
	got, ok := h.ms.Customers.Get(serverID)
	require.True(t, ok)
	assert.Equal(t, "New", got.Name)
	_, ok = h.ms.Customers.Get(customer.ID)
	assert.False(t, ok)
}

func TestCoordinator_SubmitAfterConfirmRewritesTempID(t *testing.T) {
	h := newHarness(t, false)

	customer, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "A", Name: "Ali"})
	require.NoError(t, err)
	h.setOnline(true)
	h.drain(t)

	rows := h.remote.Rows(domain.EntityCustomer)
	require.Len(t, rows, 1)
	serverID, _ := rows[0]["id"].(string)
	assert.Equal(t, serverID, h.coord.Resolve(customer.ID))
	assert.Equal(t, "c-unknown", h.coord.Resolve("c-unknown"))

	h.setOnline(false)
	_, err = h.coord.Submit(h.ctx, domain.Mutation{
		CorrelationID: domain.NewCorrelationID(),
		Op:            domain.OpUpdate,
		Entity:        domain.EntityCustomer,
		TargetID:      customer.ID,
		Payload:       domain.Row{"name": "Ali Veli"},
	})
	require.NoError(t, err)

	pending := h.coord.PendingMutations()
	require.Len(t, pending, 1)
	assert.Equal(t, serverID, pending[0].TargetID)
}

func TestCustomer_StaleTempIDFollowsServerID(t *testing.T) {
	h := newHarness(t, false)

	customer, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "A", Name: "Ali"})
	require.NoError(t, err)
	h.setOnline(true)
	h.drain(t)

	name := "Ali Veli"
	got, err := h.ms.Customers.Update(h.ctx, customer.ID, CustomerPatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, domain.IsTempID(got.ID))
	assert.Equal(t, "Ali Veli", got.Name)

	rows := h.remote.Rows(domain.EntityCustomer)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ali Veli", rows[0]["name"])

	p, err := h.ms.Packages.Create(h.ctx, PackageInput{CustomerID: customer.ID, ProductName: "Nevresim", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, got.ID, p.CustomerID)
}

func TestCustomer_ConcurrentCreateSameCode(t *testing.T) {
	for _, online := range []bool{false, true} {
		t.Run(fmt.Sprintf("online=%v", online), func(t *testing.T) {
			h := newHarness(t, online)

			const n = 16
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = h.ms.Customers.Create(h.ctx, CustomerInput{Code: "DUP", Name: fmt.Sprintf("Müşteri %d", i)})
				}(i)
			}
			wg.Wait()

			created := 0
			for _, err := range errs {
				if err == nil {
					created++
					continue
				}
				assert.ErrorIs(t, err, domain.ErrDuplicateCode)
			}
			assert.Equal(t, 1, created)
			assert.Len(t, h.ms.Customers.List(), 1)
		})
	}
}

func TestPackage_ConcurrentCreateSameBarcode(t *testing.T) {
	h := newHarness(t, false)
	customer, err := h.ms.Customers.Create(h.ctx, CustomerInput{Code: "A", Name: "Ali"})
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, duplicates := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ms.Packages.Create(h.ctx, PackageInput{
				CustomerID:  customer.ID,
				ProductName: "Havlu",
				Quantity:    1,
				Barcode:     "PKG-0001",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicateBarcode):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, duplicates)
	assert.Len(t, h.ms.Packages.List(), 1)
}

func TestManagers_RefreshDroppedWhenWriteQueuedDuringSelect(t *testing.T) {
	h := newHarness(t, true)
	h.remote.Seed(domain.EntityCustomer, domain.Row{"id": "c1", "code": "C1", "name": "Ali"})
	require.NoError(t, h.ms.Customers.Refresh(h.ctx))

	h.remote.after = func(q ports.Query, res ports.Result) ports.Result {
		if q.Op != ports.OpSelect || q.Entity != domain.EntityCustomer {
			return res
		}
		tempID := domain.NewTempID()
		_, err := h.coord.Submit(h.ctx, domain.Mutation{
			CorrelationID: tempID,
			Op:            domain.OpCreate,
			Entity:        domain.EntityStock,
			TargetID:      tempID,
			Payload:       domain.Row{"product_name": "Havlu", "quantity": 1, "min_quantity": 5},
		})
		assert.NoError(t, err)
		return ports.Result{Rows: []domain.Row{{"id": "c1", "code": "C1", "name": "Veli"}}}
	}

	require.NoError(t, h.ms.Customers.Refresh(h.ctx))

	got, ok := h.ms.Customers.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "Ali", got.Name)
	assert.Equal(t, 1, h.coord.Pending())
}

func TestManager_UndecodableUpdateResponseKeepsLocalValue(t *testing.T) {
	h := newHarness(t, true)
	h.remote.Seed(domain.EntityCustomer, domain.Row{"id": "c1", "code": "C1", "name": "Ali"})
	require.NoError(t, h.ms.Customers.Refresh(h.ctx))

	h.remote.after = func(q ports.Query, res ports.Result) ports.Result {
		if q.Op != ports.OpUpdate {
			return res
		}
		return ports.Result{Rows: []domain.Row{{"id": "c1", "code": "C1", "name": 42}}}
	}

	name := "Ali Veli"
	got, err := h.ms.Customers.Update(h.ctx, "c1", CustomerPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ali Veli", got.Name)

	cached, ok := h.ms.Customers.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "Ali Veli", cached.Name)
	assert.Contains(t, h.logger.Warns(), "cannot decode updated row, keeping local value")
}
