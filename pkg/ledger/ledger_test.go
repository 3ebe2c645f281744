package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

const t0 = uint64(1000)

func newTestLedger() *Ledger {
	return New(alice, t0)
}

func TestPlaceOrder(t *testing.T) {
	l := newTestLedger()

	orderID, evs, err := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if orderID != t0+1 {
		t.Errorf("order id = %d, want %d", orderID, t0+1)
	}
	if l.TotalCreated() != 1 {
		t.Errorf("total created = %d, want 1", l.TotalCreated())
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Kind() != "order_placed" {
		t.Errorf("event kind = %s, want order_placed", evs[0].Kind())
	}

	rec, err := l.Order(orderID)
	if err != nil {
		t.Fatalf("order lookup failed: %v", err)
	}
	if !rec.IsActive {
		t.Error("expected active order")
	}
	if rec.Price != 3000 || rec.Quantity != 5 {
		t.Errorf("record = %d @ %d, want 5 @ 3000", rec.Quantity, rec.Price)
	}
	if rec.OriginalQuantity != 5 {
		t.Errorf("original quantity = %d, want 5", rec.OriginalQuantity)
	}
	if rec.TimeInForce != GTC {
		t.Errorf("tif = %s, want GTC", rec.TimeInForce)
	}
}

func TestPlaceGuards(t *testing.T) {
	l := newTestLedger()

	if _, _, err := l.Place(bob, "ETH/USDC", 3000, 5, SideBid, t0+1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner place: err = %v, want ErrUnauthorized", err)
	}
	if _, _, err := l.Place(alice, "ETH/USDC", 0, 5, SideBid, t0+1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero price: err = %v, want ErrInvalidInput", err)
	}
	if _, _, err := l.Place(alice, "ETH/USDC", 3000, 0, SideBid, t0+1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero quantity: err = %v, want ErrInvalidInput", err)
	}
	if _, _, err := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0); !errors.Is(err, ErrTimestampInvalid) {
		t.Errorf("stale timestamp: err = %v, want ErrTimestampInvalid", err)
	}

	l.SetPaused(true, t0+1)
	if _, _, err := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+2); !errors.Is(err, ErrPaused) {
		t.Errorf("paused place: err = %v, want ErrPaused", err)
	}

	// Nothing leaked through the rejected calls.
	if l.TotalCreated() != 0 {
		t.Errorf("total created = %d, want 0", l.TotalCreated())
	}
	if len(l.ActiveOrderIDs()) != 0 {
		t.Errorf("active ids = %v, want none", l.ActiveOrderIDs())
	}
}

func TestSameTimestampPlacementsGetDistinctIDs(t *testing.T) {
	l := newTestLedger()

	id1, _, err := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	if err != nil {
		t.Fatalf("place 1 failed: %v", err)
	}
	id2, _, err := l.Place(alice, "ETH/USDC", 3100, 5, SideBid, t0+1)
	if err != nil {
		t.Fatalf("place 2 failed: %v", err)
	}
	if id1 == id2 {
		t.Errorf("duplicate ids at same timestamp: %d", id1)
	}
	if id2 != id1+1 {
		t.Errorf("id2 = %d, want %d", id2, id1+1)
	}
}

func TestCancelOrder(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	evs, err := l.Cancel(alice, orderID, t0+2)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(evs) != 1 || evs[0].Kind() != "order_cancelled" {
		t.Errorf("unexpected events: %v", evs)
	}

	rec, _ := l.Order(orderID)
	if rec.IsActive {
		t.Error("expected inactive order")
	}
	if rec.CancelledAt != t0+2 {
		t.Errorf("cancelled at = %d, want %d", rec.CancelledAt, t0+2)
	}
	if len(l.ActiveOrderIDs()) != 0 {
		t.Errorf("active ids = %v, want none", l.ActiveOrderIDs())
	}

	// Record survives cancellation for audit.
	if _, err := l.Order(orderID); err != nil {
		t.Errorf("cancelled record should remain readable: %v", err)
	}
}

func TestCancelGuards(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	if _, err := l.Cancel(bob, orderID, t0+2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner cancel: err = %v, want ErrUnauthorized", err)
	}
	if _, err := l.Cancel(alice, 99999, t0+2); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
	if _, err := l.Cancel(alice, orderID, t0+1); !errors.Is(err, ErrTimestampInvalid) {
		t.Errorf("non-advancing timestamp: err = %v, want ErrTimestampInvalid", err)
	}

	if _, err := l.Cancel(alice, orderID, t0+2); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := l.Cancel(alice, orderID, t0+3); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("double cancel: err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestCancelFilledOrder(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	l.ApplyFillStatus(orderID, false, t0+2)

	if _, err := l.Cancel(alice, orderID, t0+3); !errors.Is(err, ErrAlreadyFilled) {
		t.Errorf("cancel of filled order: err = %v, want ErrAlreadyFilled", err)
	}
}

func TestModifyOrder(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	evs, err := l.Modify(alice, orderID, 3100, 0, t0+2)
	if err != nil {
		t.Fatalf("modify price failed: %v", err)
	}
	mod := evs[0].(OrderModified)
	if mod.OldPrice != 3000 || mod.NewPrice != 3100 {
		t.Errorf("price change %d -> %d, want 3000 -> 3100", mod.OldPrice, mod.NewPrice)
	}
	if mod.OldQuantity != 5 || mod.NewQuantity != 5 {
		t.Errorf("quantity should be unchanged, got %d -> %d", mod.OldQuantity, mod.NewQuantity)
	}

	rec, _ := l.Order(orderID)
	if rec.Price != 3100 {
		t.Errorf("price = %d, want 3100", rec.Price)
	}
	if rec.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", rec.Quantity)
	}

	if _, err := l.Modify(alice, orderID, 0, 7, t0+3); err != nil {
		t.Fatalf("modify quantity failed: %v", err)
	}
	rec, _ = l.Order(orderID)
	if rec.Quantity != 7 {
		t.Errorf("quantity = %d, want 7", rec.Quantity)
	}

	if _, err := l.Modify(alice, orderID, 0, 0, t0+4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty modify: err = %v, want ErrInvalidInput", err)
	}
}

func TestModifyInactiveOrder(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	l.Cancel(alice, orderID, t0+2)

	if _, err := l.Modify(alice, orderID, 3100, 0, t0+3); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("modify cancelled: err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestCancelBatchIsolation(t *testing.T) {
	l := newTestLedger()
	id1, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	id2, _, _ := l.Place(alice, "ETH/USDC", 3100, 5, SideBid, t0+2)
	id3, _, _ := l.Place(alice, "ETH/USDC", 3200, 5, SideBid, t0+3)

	// Pre-cancel id2 so the batch hits a failure in the middle.
	if _, err := l.Cancel(alice, id2, t0+4); err != nil {
		t.Fatalf("setup cancel failed: %v", err)
	}

	result, evs := l.CancelBatch(alice, []uint64{id1, id2, 99999, id3}, t0+5)

	if len(result.Succeeded) != 2 {
		t.Fatalf("succeeded = %v, want [%d %d]", result.Succeeded, id1, id3)
	}
	if result.Succeeded[0] != id1 || result.Succeeded[1] != id3 {
		t.Errorf("succeeded = %v, want [%d %d]", result.Succeeded, id1, id3)
	}
	if !errors.Is(result.Failed[id2], ErrAlreadyCancelled) {
		t.Errorf("id2 failure = %v, want ErrAlreadyCancelled", result.Failed[id2])
	}
	if !errors.Is(result.Failed[99999], ErrNotFound) {
		t.Errorf("unknown id failure = %v, want ErrNotFound", result.Failed[99999])
	}
	if len(evs) != 2 {
		t.Errorf("expected 2 cancellation events, got %d", len(evs))
	}
	if len(l.ActiveOrderIDs()) != 0 {
		t.Errorf("active ids = %v, want none", l.ActiveOrderIDs())
	}
}

func TestApplyFillStatus(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	// Unknown id is a silent no-op: the venue may report about orders this
	// ledger never tracked.
	if evs := l.ApplyFillStatus(42, false, t0+2); evs != nil {
		t.Errorf("unknown id should no-op, got %v", evs)
	}

	evs := l.ApplyFillStatus(orderID, false, t0+2)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	rec, _ := l.Order(orderID)
	if rec.IsActive || !rec.IsFullyFilled {
		t.Errorf("after fill: active=%t filled=%t, want false/true", rec.IsActive, rec.IsFullyFilled)
	}
	if len(l.ActiveOrderIDs()) != 0 {
		t.Errorf("active ids = %v, want none", l.ActiveOrderIDs())
	}

	// Retry of the same notification is idempotent.
	if evs := l.ApplyFillStatus(orderID, false, t0+3); evs != nil {
		t.Errorf("repeated notification should no-op, got %v", evs)
	}

	// Reactivation (venue correction) restores the order.
	evs = l.ApplyFillStatus(orderID, true, t0+4)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	rec, _ = l.Order(orderID)
	if !rec.IsActive || rec.IsFullyFilled {
		t.Errorf("after reactivation: active=%t filled=%t, want true/false", rec.IsActive, rec.IsFullyFilled)
	}
	if ids := l.ActiveOrderIDs(); len(ids) != 1 || ids[0] != orderID {
		t.Errorf("active ids = %v, want [%d]", ids, orderID)
	}
}

func TestApplyFillStatusCannotReviveCancelled(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	if _, err := l.Cancel(alice, orderID, t0+2); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// The owner cancelled locally; a late venue "still active" report must
	// not undo that.
	if evs := l.ApplyFillStatus(orderID, true, t0+3); evs != nil {
		t.Errorf("reactivation of cancelled order should no-op, got %v", evs)
	}
	rec, _ := l.Order(orderID)
	if rec.IsActive {
		t.Error("cancelled order came back active")
	}
	if rec.CancelledAt != t0+2 {
		t.Errorf("cancelled at = %d, want %d", rec.CancelledAt, t0+2)
	}
	if len(l.ActiveOrderIDs()) != 0 {
		t.Errorf("active ids = %v, want none", l.ActiveOrderIDs())
	}
}

func TestActiveOrderIDsSorted(t *testing.T) {
	l := newTestLedger()
	var want []uint64
	for i := uint64(1); i <= 5; i++ {
		id, _, err := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+i)
		if err != nil {
			t.Fatalf("place %d failed: %v", i, err)
		}
		want = append(want, id)
	}
	got := l.ActiveOrderIDs()
	if len(got) != len(want) {
		t.Fatalf("active ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("active ids[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPauseBlocksMutationsButNotReads(t *testing.T) {
	l := newTestLedger()
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)

	l.SetPaused(true, t0+2)

	if _, err := l.Cancel(alice, orderID, t0+3); !errors.Is(err, ErrPaused) {
		t.Errorf("paused cancel: err = %v, want ErrPaused", err)
	}
	if _, err := l.Modify(alice, orderID, 3100, 0, t0+3); !errors.Is(err, ErrPaused) {
		t.Errorf("paused modify: err = %v, want ErrPaused", err)
	}
	if _, err := l.Order(orderID); err != nil {
		t.Errorf("paused read failed: %v", err)
	}

	l.SetPaused(false, t0+4)
	if _, err := l.Cancel(alice, orderID, t0+5); err != nil {
		t.Errorf("cancel after unpause failed: %v", err)
	}
}
