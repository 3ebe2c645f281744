package ledger

import (
	"fmt"
	"os"
	"testing"
)

// newTestStore creates a store with a temporary database. Each test gets a
// unique path to avoid Pebble lock conflicts.
func newTestStore(t *testing.T) *Store {
	dbPath := fmt.Sprintf("./tmp_test_store_%s.db", t.Name())
	os.RemoveAll(dbPath)
	t.Cleanup(func() {
		os.RemoveAll(dbPath)
	})

	s, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestStoreLoadMissingLedger(t *testing.T) {
	s := newTestStore(t)

	l, err := s.LoadLedger(alice)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if l != nil {
		t.Error("expected nil for missing ledger")
	}
}

func TestStoreLedgerRoundTrip(t *testing.T) {
	s := newTestStore(t)

	l := New(alice, t0)
	id1, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	id2, _, _ := l.Place(alice, "BTC/USDC", 60000, 1, SideAsk, t0+2)
	l.Cancel(alice, id2, t0+3)
	groupID, ids, _, _ := l.PlaceOCO(alice, "ETH/USDC",
		OCOLeg{Price: 2800, Quantity: 5, Side: SideAsk},
		OCOLeg{Price: 3200, Quantity: 5, Side: SideAsk},
		t0+4)
	l.SetPaused(true, t0+5)

	b := s.NewBatch()
	if err := b.SaveLedger(l); err != nil {
		t.Fatalf("save ledger failed: %v", err)
	}
	for _, id := range []uint64{id1, id2, ids[0], ids[1]} {
		if err := b.SaveRecord(alice, l.records[id]); err != nil {
			t.Fatalf("save record %d failed: %v", id, err)
		}
	}
	if err := b.SaveGroup(alice, l.groups[groupID]); err != nil {
		t.Fatalf("save group failed: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	b.Close()

	got, err := s.LoadLedger(alice)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected ledger")
	}

	if got.Owner() != alice {
		t.Errorf("owner = %s, want alice", got.Owner().Hex())
	}
	if got.CreatedAt() != t0 {
		t.Errorf("created at = %d, want %d", got.CreatedAt(), t0)
	}
	if got.TotalCreated() != l.TotalCreated() {
		t.Errorf("total created = %d, want %d", got.TotalCreated(), l.TotalCreated())
	}
	if !got.Paused() {
		t.Error("pause flag lost")
	}
	if len(got.records) != 4 {
		t.Errorf("records = %d, want 4", len(got.records))
	}

	rec, err := got.Order(id2)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec.IsActive || rec.CancelledAt != t0+3 {
		t.Errorf("cancelled record: active=%t at=%d", rec.IsActive, rec.CancelledAt)
	}

	group, err := got.Group(groupID)
	if err != nil {
		t.Fatalf("group lookup failed: %v", err)
	}
	if group.Order1ID != ids[0] || group.Order2ID != ids[1] {
		t.Errorf("group members = %d/%d, want %d/%d", group.Order1ID, group.Order2ID, ids[0], ids[1])
	}

	wantActive := l.ActiveOrderIDs()
	gotActive := got.ActiveOrderIDs()
	if len(gotActive) != len(wantActive) {
		t.Fatalf("active ids = %v, want %v", gotActive, wantActive)
	}
	for i := range wantActive {
		if gotActive[i] != wantActive[i] {
			t.Errorf("active ids[%d] = %d, want %d", i, gotActive[i], wantActive[i])
		}
	}
}

func TestStoreLedgerIsolation(t *testing.T) {
	s := newTestStore(t)

	la := New(alice, t0)
	la.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	lb := New(bob, t0)
	lb.Place(bob, "ETH/USDC", 3100, 2, SideAsk, t0+1)
	lb.Place(bob, "ETH/USDC", 3200, 2, SideAsk, t0+2)

	for _, l := range []*Ledger{la, lb} {
		b := s.NewBatch()
		if err := b.SaveLedger(l); err != nil {
			t.Fatalf("save ledger failed: %v", err)
		}
		for _, rec := range l.records {
			if err := b.SaveRecord(l.owner, rec); err != nil {
				t.Fatalf("save record failed: %v", err)
			}
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		b.Close()
	}

	gotA, _ := s.LoadLedger(alice)
	gotB, _ := s.LoadLedger(bob)
	if len(gotA.records) != 1 {
		t.Errorf("alice records = %d, want 1", len(gotA.records))
	}
	if len(gotB.records) != 2 {
		t.Errorf("bob records = %d, want 2", len(gotB.records))
	}
}

func TestStoreReceiptRoundTrip(t *testing.T) {
	s := newTestStore(t)

	l := New(alice, t0)
	orderID, _, _ := l.Place(alice, "ETH/USDC", 3000, 5, SideBid, t0+1)
	tok, _ := l.Detach(alice, orderID)
	tok.Transfer(alice, bob, t0+2)

	b := s.NewBatch()
	if err := b.SaveReceipt(tok); err != nil {
		t.Fatalf("save receipt failed: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	b.Close()

	got, err := s.LoadReceipt(orderID)
	if err != nil {
		t.Fatalf("load receipt failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected receipt")
	}
	if got.Owner != bob || got.LedgerOwner != alice {
		t.Errorf("owners = %s/%s, want bob/alice", got.Owner.Hex(), got.LedgerOwner.Hex())
	}
	if got.Record.OrderID != orderID {
		t.Errorf("wrapped id = %d, want %d", got.Record.OrderID, orderID)
	}

	b = s.NewBatch()
	if err := b.DeleteReceipt(orderID); err != nil {
		t.Fatalf("delete receipt failed: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	b.Close()

	got, err = s.LoadReceipt(orderID)
	if err != nil {
		t.Fatalf("load after delete failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
