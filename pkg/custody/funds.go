package custody

import (
	"fmt"
	"sync/atomic"
)

// Funds is a one-shot claim on a posted asset amount. Every Funds value must
// be routed to exactly one destination (refund, forward, or explicit
// zero-discard) before the operation that received it returns. Routing
// consumes the value; a second routing attempt fails.
type Funds struct {
	asset  string
	amount uint64
	routed atomic.Bool
}

// Post creates a new unrouted claim. Zero amounts are legal: they still have
// to be disposed of explicitly.
func Post(asset string, amount uint64) *Funds {
	return &Funds{asset: asset, amount: amount}
}

// Asset returns the asset identifier the claim is denominated in.
func (f *Funds) Asset() string { return f.asset }

// Amount returns the amount still held by this claim.
func (f *Funds) Amount() uint64 { return f.amount }

// Routed reports whether the claim has already been consumed.
func (f *Funds) Routed() bool { return f.routed.Load() }

// Split carves n units off into a new unrouted claim, leaving the remainder
// in the receiver. Fails if the claim was already routed or n exceeds the
// held amount.
func (f *Funds) Split(n uint64) (*Funds, error) {
	if f.routed.Load() {
		return nil, fmt.Errorf("split %s: funds already routed", f.asset)
	}
	if n > f.amount {
		return nil, fmt.Errorf("split %s: %d exceeds held %d", f.asset, n, f.amount)
	}
	f.amount -= n
	return &Funds{asset: f.asset, amount: n}, nil
}

// take consumes the claim and returns the amount. Used by custodians.
func (f *Funds) take() (uint64, error) {
	if !f.routed.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("funds %s already routed", f.asset)
	}
	return f.amount, nil
}

// AssertRouted fails if any of the given claims is still unrouted. Callers
// run this before returning from an operation that accepted posted funds, so
// a leak shows up as a hard error instead of silently vanished value.
func AssertRouted(fs ...*Funds) error {
	for _, f := range fs {
		if f == nil {
			continue
		}
		if !f.routed.Load() {
			return fmt.Errorf("posted funds leaked: %d %s left unrouted", f.amount, f.asset)
		}
	}
	return nil
}
