package venue

import (
	"context"
	"testing"
)

func TestStubPlaceAssignsDistinctIDs(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	r1, err := s.Place(ctx, PlacementRequest{PoolID: "ETH/USDC", Price: 3000, Quantity: 5, Side: "bid"})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	r2, err := s.Place(ctx, PlacementRequest{PoolID: "ETH/USDC", Price: 3100, Quantity: 5, Side: "ask"})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if r1.ExternalOrderID == "" || r1.ExternalOrderID == r2.ExternalOrderID {
		t.Errorf("ids = %q, %q", r1.ExternalOrderID, r2.ExternalOrderID)
	}

	// Default stub reports no fill.
	if r1.FilledQuantity != 0 {
		t.Errorf("filled = %d, want 0", r1.FilledQuantity)
	}
}

func TestStubFillFraction(t *testing.T) {
	s := NewStub()
	s.FillNum = 1
	s.FillDen = 2

	r, err := s.Place(context.Background(), PlacementRequest{PoolID: "ETH/USDC", Price: 3000, Quantity: 10, Side: "bid"})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if r.FilledQuantity != 5 {
		t.Errorf("filled = %d, want 5", r.FilledQuantity)
	}
}

func TestStubCancel(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	r, _ := s.Place(ctx, PlacementRequest{PoolID: "ETH/USDC", Price: 3000, Quantity: 5, Side: "bid"})
	if err := s.Cancel(ctx, r.ExternalOrderID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := s.Cancel(ctx, r.ExternalOrderID); err == nil {
		t.Error("double cancel should fail")
	}
	if err := s.Cancel(ctx, "ext-nope"); err == nil {
		t.Error("unknown id should fail")
	}
}

func TestStubRejectsZeroQuantity(t *testing.T) {
	s := NewStub()
	if _, err := s.Place(context.Background(), PlacementRequest{PoolID: "ETH/USDC", Price: 3000}); err == nil {
		t.Error("zero quantity should fail")
	}
}

func TestStubHonorsContext(t *testing.T) {
	s := NewStub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Place(ctx, PlacementRequest{PoolID: "ETH/USDC", Price: 3000, Quantity: 5}); err == nil {
		t.Error("cancelled context should fail")
	}
}
