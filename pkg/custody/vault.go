package custody

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Custodian is the asset custody collaborator. It accepts a routed claim and
// credits it to a destination. A zero-amount refund must be accepted without
// error: it is how callers explicitly dispose of an empty claim.
type Custodian interface {
	// Refund credits the claim back to an account.
	Refund(to common.Address, f *Funds) error
	// Forward moves the claim onward to a named destination (e.g. the venue).
	Forward(destination string, f *Funds) error
}

// Vault is an in-process custodian. It keeps per-account and per-destination
// running totals so tests and operators can audit that every posted unit was
// accounted for.
type Vault struct {
	mu        sync.Mutex
	refunds   map[common.Address]map[string]uint64 // account -> asset -> total refunded
	forwarded map[string]map[string]uint64         // destination -> asset -> total forwarded
}

func NewVault() *Vault {
	return &Vault{
		refunds:   make(map[common.Address]map[string]uint64),
		forwarded: make(map[string]map[string]uint64),
	}
}

func (v *Vault) Refund(to common.Address, f *Funds) error {
	amount, err := f.take()
	if err != nil {
		return fmt.Errorf("refund to %s: %w", to.Hex(), err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	byAsset, ok := v.refunds[to]
	if !ok {
		byAsset = make(map[string]uint64)
		v.refunds[to] = byAsset
	}
	byAsset[f.Asset()] += amount
	return nil
}

func (v *Vault) Forward(destination string, f *Funds) error {
	amount, err := f.take()
	if err != nil {
		return fmt.Errorf("forward to %s: %w", destination, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	byAsset, ok := v.forwarded[destination]
	if !ok {
		byAsset = make(map[string]uint64)
		v.forwarded[destination] = byAsset
	}
	byAsset[f.Asset()] += amount
	return nil
}

// Refunded returns the total amount of asset refunded to an account.
func (v *Vault) Refunded(to common.Address, asset string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refunds[to][asset]
}

// Forwarded returns the total amount of asset forwarded to a destination.
func (v *Vault) Forwarded(destination, asset string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.forwarded[destination][asset]
}

var _ Custodian = (*Vault)(nil)
