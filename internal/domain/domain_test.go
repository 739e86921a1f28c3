package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"validation", fmt.Errorf("%w: bad", ErrValidation), KindValidation},
		{"domain validation", ErrInsufficientStock, KindValidation},
		{"wrapped domain validation", fmt.Errorf("reduce: %w", ErrCustomerHasPackages), KindValidation},
		{"permission", ErrPermissionDenied, KindPermissionDenied},
		{"network", fmt.Errorf("dial: %w", ErrNetworkUnavailable), KindNetworkUnavailable},
		{"deadline", context.DeadlineExceeded, KindNetworkUnavailable},
		{"remote validation", ErrRemoteValidation, KindRemoteValidation},
		{"not found", ErrNotFound, KindNotFound},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrNetworkUnavailable) {
		t.Error("network errors must be retryable")
	}
	for _, err := range []error{ErrValidation, ErrPermissionDenied, ErrRemoteValidation, ErrNotFound} {
		if Retryable(err) {
			t.Errorf("%v must not be retryable", err)
		}
	}
}

func TestTempID(t *testing.T) {
	a, b := NewTempID(), NewTempID()
	if !IsTempID(a) {
		t.Fatalf("expected %q to be a temp id", a)
	}
	if a == b {
		t.Fatal("temp ids must be unique")
	}
	if IsTempID("3f1c") {
		t.Error("server id reported as temp")
	}
}

func TestStockItem_Reduce(t *testing.T) {
	item := StockItem{ID: "s1", ProductName: "Havlu", Quantity: 5}

	got, err := item.Reduce(3)
	if err != nil {
		t.Fatalf("Reduce(3): %v", err)
	}
	if got.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", got.Quantity)
	}

	got, err = item.Reduce(6)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Reduce(6) error = %v, want ErrInsufficientStock", err)
	}
	if got.Quantity != 5 {
		t.Errorf("rejected reduction changed quantity to %d", got.Quantity)
	}

	if _, err := item.Reduce(0); !errors.Is(err, ErrValidation) {
		t.Errorf("Reduce(0) error = %v, want ErrValidation", err)
	}
}

func TestPackage_Remap(t *testing.T) {
	cid := "temp_c"
	p := Package{ID: "temp_p", CustomerID: "temp_a", ContainerID: &cid}

	got, changed := p.Remap("temp_a", "srv-1")
	if !changed || got.CustomerID != "srv-1" {
		t.Fatalf("customer reference not remapped: %+v", got)
	}
	if p.CustomerID != "temp_a" {
		t.Error("Remap must not mutate the receiver")
	}

	got, changed = got.Remap("temp_c", "srv-2")
	if !changed || StringValue(got.ContainerID) != "srv-2" {
		t.Fatalf("container reference not remapped: %+v", got)
	}
	if cid != "temp_c" {
		t.Error("Remap must not write through the shared container pointer")
	}

	if _, changed := got.Remap("nope", "x"); changed {
		t.Error("unrelated remap reported a change")
	}
}

func TestPackageStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to PackageStatus
		want     bool
	}{
		{PackagePending, PackageShipped, true},
		{PackagePending, PackagePending, true},
		{PackageShipped, PackageShipped, true},
		{PackageShipped, PackagePending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMutation_Remap(t *testing.T) {
	m := Mutation{
		Op:       OpUpdate,
		TargetID: "temp_a",
		Payload: Row{
			"customer_id": "temp_a",
			"name":        "temp_a-ish",
			"tags":        []any{"x", "temp_a"},
			"nested":      map[string]any{"ref": "temp_a"},
		},
	}

	if !m.Remap("temp_a", "srv") {
		t.Fatal("expected a change")
	}
	if m.TargetID != "srv" || m.Payload["customer_id"] != "srv" {
		t.Errorf("target/payload not remapped: %+v", m)
	}
	if m.Payload["name"] != "temp_a-ish" {
		t.Error("partial matches must not be rewritten")
	}
	if m.Payload["tags"].([]any)[1] != "srv" {
		t.Error("slice element not remapped")
	}
	if m.Payload["nested"].(map[string]any)["ref"] != "srv" {
		t.Error("nested value not remapped")
	}
}

func TestRowRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := StockItem{ID: "s1", ProductName: "Deterjan", ProductCode: StringPtr("D-1"), Quantity: 4, MinQuantity: 2, UpdatedAt: now}

	row, err := ToRow(in)
	if err != nil {
		t.Fatalf("ToRow: %v", err)
	}
	out, err := FromRow[StockItem](row)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if out.Quantity != 4 || StringValue(out.ProductCode) != "D-1" || !out.UpdatedAt.Equal(now) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestContainerNumberAt(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 30, 5, 0, time.UTC)
	if got := ContainerNumberAt(at); got != "C-20261014-093005" {
		t.Errorf("ContainerNumberAt = %s", got)
	}
}
