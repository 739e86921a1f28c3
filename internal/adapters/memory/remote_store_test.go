package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

func TestRemoteStore_InsertAssignsID(t *testing.T) {
	s := NewRemoteStore()
	s.SetIDGenerator(func() string { return "srv-1" })

	res, err := s.Query(context.Background(), ports.Query{
		Entity: domain.EntityCustomer,
		Op:     ports.OpInsert,
		Data:   []domain.Row{{"code": "C1", "name": "Ayşe"}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	row, ok := res.First()
	if !ok || row["id"] != "srv-1" {
		t.Fatalf("expected server id, got %v", res.Rows)
	}
}

func TestRemoteStore_Offline(t *testing.T) {
	s := NewRemoteStore()
	s.SetOnline(false)

	_, err := s.Query(context.Background(), ports.Query{Entity: domain.EntityStock, Op: ports.OpSelect})
	if !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Fatalf("error = %v, want ErrNetworkUnavailable", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("Ping should fail offline")
	}
}

func TestRemoteStore_IdempotentReplay(t *testing.T) {
	s := NewRemoteStore()
	q := ports.Query{
		Entity:         domain.EntityStock,
		Op:             ports.OpInsert,
		Data:           []domain.Row{{"product_name": "Havlu", "quantity": 10}},
		IdempotencyKey: "k1",
	}

	first, err := s.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	second, err := s.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("replayed insert: %v", err)
	}

	if got := len(s.Rows(domain.EntityStock)); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	if first.Rows[0]["id"] != second.Rows[0]["id"] {
		t.Error("replay returned a different row")
	}
	if got := len(s.Applied()); got != 1 {
		t.Errorf("applied writes = %d, want 1", got)
	}
}

func TestRemoteStore_UpdateDeleteNotFound(t *testing.T) {
	s := NewRemoteStore()
	ctx := context.Background()

	_, err := s.Query(ctx, ports.Query{
		Entity: domain.EntityPackage,
		Op:     ports.OpUpdate,
		Filter: map[string]any{"id": "missing"},
		Data:   []domain.Row{{"status": "shipped"}},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update error = %v, want ErrNotFound", err)
	}

	_, err = s.Query(ctx, ports.Query{
		Entity: domain.EntityPackage,
		Op:     ports.OpDelete,
		Filter: map[string]any{"id": "missing"},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("delete error = %v, want ErrNotFound", err)
	}
}

func TestRemoteStore_Unique(t *testing.T) {
	s := NewRemoteStore()
	s.Unique(domain.EntityPackage, "barcode")
	s.Seed(domain.EntityPackage, domain.Row{"id": "p1", "barcode": "B1"})

	_, err := s.Query(context.Background(), ports.Query{
		Entity: domain.EntityPackage,
		Op:     ports.OpInsert,
		Data:   []domain.Row{{"barcode": "B1"}},
	})
	if !errors.Is(err, domain.ErrRemoteValidation) {
		t.Fatalf("error = %v, want ErrRemoteValidation", err)
	}
}

func TestRemoteStore_SelectFilterOrder(t *testing.T) {
	s := NewRemoteStore()
	s.Seed(domain.EntityPackage,
		domain.Row{"id": "p2", "customer_id": "c1", "barcode": "B2"},
		domain.Row{"id": "p1", "customer_id": "c1", "barcode": "B1"},
		domain.Row{"id": "p3", "customer_id": "c2", "barcode": "B3"},
	)

	res, err := s.Query(context.Background(), ports.Query{
		Entity:  domain.EntityPackage,
		Op:      ports.OpSelect,
		Columns: "id,barcode",
		Filter:  map[string]any{"customer_id": "c1"},
		Order:   &ports.Order{Column: "barcode", Ascending: true},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0]["id"] != "p1" || res.Rows[1]["id"] != "p2" {
		t.Fatalf("unexpected rows %v", res.Rows)
	}
	if _, ok := res.Rows[0]["customer_id"]; ok {
		t.Error("projection should drop unselected columns")
	}
}

func TestRemoteStore_FailNext(t *testing.T) {
	s := NewRemoteStore()
	s.FailNext(domain.ErrPermissionDenied)

	q := ports.Query{Entity: domain.EntityStock, Op: ports.OpSelect}
	if _, err := s.Query(context.Background(), q); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("first error = %v", err)
	}
	if _, err := s.Query(context.Background(), q); err != nil {
		t.Fatalf("second query should succeed: %v", err)
	}
}
