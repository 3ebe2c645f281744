package venue

import (
	"context"
	"fmt"
	"sync"
)

// PlacementRequest is the order shape sent to the external matching venue
// for immediate execution. The ledger never matches anything itself; it only
// bookkeeps what the venue reports back.
type PlacementRequest struct {
	PoolID   string `json:"poolId"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
	Side     string `json:"side"` // "bid" or "ask"
}

// ExecutionResult is the venue's synchronous answer to a placement.
// FilledQuantity never exceeds the requested quantity.
type ExecutionResult struct {
	ExternalOrderID string `json:"externalOrderId"`
	FilledQuantity  uint64 `json:"filledQuantity"`
}

// Venue is the external matching engine as seen by this node.
type Venue interface {
	Place(ctx context.Context, req PlacementRequest) (ExecutionResult, error)
	Cancel(ctx context.Context, externalOrderID string) error
}

// Stub is an in-process venue for devnet and tests. It fills a fixed
// fraction of every placement (numerator/denominator) and accepts any
// cancellation it has seen.
type Stub struct {
	mu     sync.Mutex
	seq    uint64
	placed map[string]PlacementRequest

	// FillNum/FillDen control the filled fraction; 0/1 means no fill,
	// 1/1 means complete fill.
	FillNum uint64
	FillDen uint64
}

func NewStub() *Stub {
	return &Stub{
		placed:  make(map[string]PlacementRequest),
		FillNum: 0,
		FillDen: 1,
	}
}

func (s *Stub) Place(ctx context.Context, req PlacementRequest) (ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecutionResult{}, err
	}
	if req.Quantity == 0 {
		return ExecutionResult{}, fmt.Errorf("venue: zero quantity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("ext-%012x", s.seq)
	s.placed[id] = req

	den := s.FillDen
	if den == 0 {
		den = 1
	}
	return ExecutionResult{
		ExternalOrderID: id,
		FilledQuantity:  req.Quantity * s.FillNum / den,
	}, nil
}

func (s *Stub) Cancel(ctx context.Context, externalOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.placed[externalOrderID]; !ok {
		return fmt.Errorf("venue: unknown order %s", externalOrderID)
	}
	delete(s.placed, externalOrderID)
	return nil
}
