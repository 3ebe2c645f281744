package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openclob/tally/pkg/custody"
)

// ReceiptToken detaches one order's record from its ledger so that
// cancellation and refund rights travel with the token instead of the
// placing account. After a transfer the token's owner may differ from the
// ledger's owner; the record itself lives solely inside the token.
type ReceiptToken struct {
	Record      *OrderRecord   `json:"record"`
	Owner       common.Address `json:"owner"`
	LedgerOwner common.Address `json:"ledgerOwner"`
	Consumed    bool           `json:"consumed"`
}

// Detach removes the record from the ledger's keyed store and wraps it with
// the ledger's current owner. The order is no longer visible via ledger
// lookups; its id stays in the active set until the token cancels it.
func (l *Ledger) Detach(caller common.Address, orderID uint64) (*ReceiptToken, error) {
	if err := l.checkOwner(caller); err != nil {
		return nil, err
	}
	if err := l.checkNotPaused(); err != nil {
		return nil, err
	}
	rec, ok := l.records[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, orderID)
	}
	// A settled order has no cancellation right left to wrap; a token over it
	// could never be consumed.
	if !rec.IsActive {
		if rec.IsFullyFilled {
			return nil, fmt.Errorf("%w: id %d", ErrAlreadyFilled, orderID)
		}
		return nil, fmt.Errorf("%w: id %d", ErrAlreadyCancelled, orderID)
	}

	delete(l.records, orderID)
	return &ReceiptToken{
		Record:      rec,
		Owner:       l.owner,
		LedgerOwner: l.owner,
	}, nil
}

// CancelWithToken cancels the detached order on behalf of the token's owner,
// runs OCO propagation if the order was a group member, refunds whatever the
// venue returned (currently a zero-value stub until real venue cancellation
// lands) and irrevocably destroys the token. The refunded amounts are
// returned to the caller.
func (l *Ledger) CancelWithToken(caller common.Address, tok *ReceiptToken, cust custody.Custodian, now uint64) (refundBase, refundQuote uint64, events []Event, err error) {
	if tok.Consumed {
		return 0, 0, nil, ErrReceiptConsumed
	}
	if caller != tok.Owner {
		return 0, 0, nil, fmt.Errorf("%w: caller %s is not token owner %s", ErrUnauthorized, caller.Hex(), tok.Owner.Hex())
	}
	if err := l.checkNotPaused(); err != nil {
		return 0, 0, nil, err
	}
	rec := tok.Record
	if !rec.IsActive {
		if rec.IsFullyFilled {
			return 0, 0, nil, fmt.Errorf("%w: id %d", ErrAlreadyFilled, rec.OrderID)
		}
		return 0, 0, nil, fmt.Errorf("%w: id %d", ErrAlreadyCancelled, rec.OrderID)
	}
	if err := checkTimestamp(now, rec.CreatedAt); err != nil {
		return 0, 0, nil, err
	}

	rec.IsActive = false
	rec.CancelledAt = now
	l.active.Delete(rec.OrderID)

	if rec.OCOGroupID != 0 {
		events = append(events, l.propagateOCO(rec.OCOGroupID, rec.OrderID, now, false)...)
	}

	// Zero-value refund stub pending real venue cancellation; the custodian
	// must accept an explicit zero disposal.
	base := custody.Post(rec.PoolID+"/base", 0)
	quote := custody.Post(rec.PoolID+"/quote", 0)
	if err := cust.Refund(tok.Owner, base); err != nil {
		return 0, 0, nil, err
	}
	if err := cust.Refund(tok.Owner, quote); err != nil {
		return 0, 0, nil, err
	}

	tok.Consumed = true
	events = append(events, OwnerCancelled{
		OrderID:       rec.OrderID,
		TokenOwner:    tok.Owner,
		RefundedBase:  base.Amount(),
		RefundedQuote: quote.Amount(),
		At:            now,
	})
	return base.Amount(), quote.Amount(), events, nil
}

// Transfer reassigns the token to a new owner. The underlying order data and
// lifecycle state are untouched.
func (tok *ReceiptToken) Transfer(caller, newOwner common.Address, now uint64) ([]Event, error) {
	if tok.Consumed {
		return nil, ErrReceiptConsumed
	}
	if caller != tok.Owner {
		return nil, fmt.Errorf("%w: caller %s is not token owner %s", ErrUnauthorized, caller.Hex(), tok.Owner.Hex())
	}
	from := tok.Owner
	tok.Owner = newOwner
	return []Event{OwnershipTransferred{
		OrderID: tok.Record.OrderID,
		From:    from,
		To:      newOwner,
		At:      now,
	}}, nil
}
