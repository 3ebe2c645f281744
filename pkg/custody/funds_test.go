package custody

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")

func TestFundsRouteExactlyOnce(t *testing.T) {
	v := NewVault()
	f := Post("ETH/USDC/base", 100)

	if f.Routed() {
		t.Error("fresh funds should be unrouted")
	}
	if err := v.Refund(alice, f); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !f.Routed() {
		t.Error("funds should be routed after refund")
	}

	// Second disposal of the same claim must fail.
	if err := v.Refund(alice, f); err == nil {
		t.Error("double refund should fail")
	}
	if err := v.Forward("venue", f); err == nil {
		t.Error("forward after refund should fail")
	}

	if got := v.Refunded(alice, "ETH/USDC/base"); got != 100 {
		t.Errorf("refunded = %d, want 100", got)
	}
}

func TestFundsSplit(t *testing.T) {
	v := NewVault()
	f := Post("ETH/USDC/base", 100)

	part, err := f.Split(30)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if part.Amount() != 30 || f.Amount() != 70 {
		t.Errorf("split = %d/%d, want 30/70", part.Amount(), f.Amount())
	}
	if part.Asset() != f.Asset() {
		t.Errorf("split asset = %s, want %s", part.Asset(), f.Asset())
	}

	if _, err := f.Split(71); err == nil {
		t.Error("overdraw split should fail")
	}

	if err := v.Refund(alice, part); err != nil {
		t.Fatalf("refund of split failed: %v", err)
	}
	if err := v.Forward("venue", f); err != nil {
		t.Fatalf("forward of remainder failed: %v", err)
	}

	// No unit lost: split parts add up to the original posting.
	total := v.Refunded(alice, "ETH/USDC/base") + v.Forwarded("venue", "ETH/USDC/base")
	if total != 100 {
		t.Errorf("total accounted = %d, want 100", total)
	}

	if _, err := f.Split(1); err == nil {
		t.Error("split of routed funds should fail")
	}
}

func TestZeroAmountDisposal(t *testing.T) {
	v := NewVault()
	f := Post("ETH/USDC/quote", 0)

	// Empty claims still need explicit disposal and must be accepted.
	if err := v.Refund(alice, f); err != nil {
		t.Errorf("zero refund failed: %v", err)
	}
	if err := AssertRouted(f); err != nil {
		t.Errorf("assert routed failed: %v", err)
	}
}

func TestAssertRouted(t *testing.T) {
	f1 := Post("a", 10)
	f2 := Post("b", 20)

	if err := AssertRouted(f1, f2); err == nil {
		t.Error("expected leak error for unrouted funds")
	}

	v := NewVault()
	v.Refund(alice, f1)
	if err := AssertRouted(f1, f2); err == nil {
		t.Error("expected leak error while one claim is unrouted")
	}

	v.Forward("venue", f2)
	if err := AssertRouted(f1, f2); err != nil {
		t.Errorf("assert routed failed: %v", err)
	}
	if err := AssertRouted(nil, f1); err != nil {
		t.Errorf("nil entries should be skipped: %v", err)
	}
}
