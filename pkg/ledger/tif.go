package ledger

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openclob/tally/pkg/custody"
)

// ExecutionReport is the venue's already-resolved answer to an immediate
// execution request. The core does not perform the round trip itself; the
// edge calls the venue and passes the result in.
type ExecutionReport struct {
	ExternalOrderID string
	FilledQuantity  uint64
}

// TIFOutcome summarizes how a time-in-force placement was resolved.
type TIFOutcome struct {
	// OrderID is zero when nothing was stored (FOK reject).
	OrderID       uint64
	Stored        bool
	FullyFilled   bool
	RefundedBase  uint64
	RefundedQuote uint64
}

// VenueDestination names where forwarded funds go.
const VenueDestination = "venue"

// mulDiv computes a*b/d without overflowing the intermediate product.
// Requires b < d so the quotient fits in uint64.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// PlaceTIF resolves an IOC or FOK placement against the venue's execution
// report and fully accounts for the posted assets:
//
//	IOC, remainder 0:  stored fully filled, everything forwarded
//	IOC, remainder >0: stored inactive at the filled quantity; base refunded
//	                   pro rata to the remainder, the rest forwarded
//	FOK, remainder 0:  stored fully filled, everything forwarded
//	FOK, remainder >0: rejected entirely; nothing stored, everything refunded
//
// Every unit of postedBase and postedQuote is routed before this returns,
// including on guard-failure paths (where both are refunded to the owner).
func (l *Ledger) PlaceTIF(
	caller common.Address,
	poolID string,
	price, quantity uint64,
	side Side,
	tif TimeInForce,
	exec ExecutionReport,
	postedBase, postedQuote *custody.Funds,
	cust custody.Custodian,
	now uint64,
) (TIFOutcome, []Event, error) {
	fail := func(err error) (TIFOutcome, []Event, error) {
		// The caller still owns the posted value on a rejected call.
		if rerr := cust.Refund(l.owner, postedBase); rerr != nil {
			return TIFOutcome{}, nil, fmt.Errorf("refund base after reject: %w", rerr)
		}
		if rerr := cust.Refund(l.owner, postedQuote); rerr != nil {
			return TIFOutcome{}, nil, fmt.Errorf("refund quote after reject: %w", rerr)
		}
		return TIFOutcome{}, nil, err
	}

	if err := l.checkOwner(caller); err != nil {
		return fail(err)
	}
	if err := l.checkNotPaused(); err != nil {
		return fail(err)
	}
	if tif != IOC && tif != FOK {
		return fail(fmt.Errorf("%w: time in force %s is not immediate", ErrInvalidInput, tif))
	}
	if err := validatePriceQuantity(price, quantity); err != nil {
		return fail(err)
	}
	if exec.FilledQuantity > quantity {
		return fail(fmt.Errorf("%w: filled %d exceeds requested %d", ErrInvalidInput, exec.FilledQuantity, quantity))
	}
	if err := checkTimestamp(now, l.createdAt); err != nil {
		return fail(err)
	}

	remainder := quantity - exec.FilledQuantity

	// FOK with any remainder rejects the whole order: nothing stored, the
	// entire posted value returns to the owner.
	if tif == FOK && remainder > 0 {
		refundBase := postedBase.Amount()
		refundQuote := postedQuote.Amount()
		if err := cust.Refund(l.owner, postedBase); err != nil {
			return TIFOutcome{}, nil, err
		}
		if err := cust.Refund(l.owner, postedQuote); err != nil {
			return TIFOutcome{}, nil, err
		}
		outcome := TIFOutcome{RefundedBase: refundBase, RefundedQuote: refundQuote}
		ev := OrderExpired{
			Owner:         l.owner,
			PoolID:        poolID,
			Price:         price,
			Quantity:      quantity,
			TimeInForce:   tif.String(),
			RefundedBase:  refundBase,
			RefundedQuote: refundQuote,
			At:            now,
		}
		return outcome, []Event{ev}, nil
	}

	orderID := l.nextOrderID(now)
	rec := &OrderRecord{
		OrderID:          orderID,
		ExternalOrderID:  exec.ExternalOrderID,
		PoolID:           poolID,
		Price:            price,
		Quantity:         exec.FilledQuantity,
		OriginalQuantity: quantity,
		Side:             side,
		Kind:             KindTIF,
		TimeInForce:      tif,
		CreatedAt:        now,
	}

	outcome := TIFOutcome{OrderID: orderID, Stored: true}
	events := []Event{TIFPlaced{
		Owner:       l.owner,
		OrderID:     orderID,
		PoolID:      poolID,
		Price:       price,
		Quantity:    quantity,
		Side:        side.String(),
		TimeInForce: tif.String(),
		At:          now,
	}}

	if remainder == 0 {
		rec.IsFullyFilled = true
		outcome.FullyFilled = true
		if err := cust.Forward(VenueDestination, postedBase); err != nil {
			return TIFOutcome{}, nil, err
		}
		if err := cust.Forward(VenueDestination, postedQuote); err != nil {
			return TIFOutcome{}, nil, err
		}
	} else {
		// IOC partial: the filled portion stays on the books inactive, the
		// unfilled remainder's share of the posted base comes back. The
		// product needs 128 bits before the division; remainder < quantity
		// keeps the quotient within uint64.
		refundBase := mulDiv(postedBase.Amount(), remainder, quantity)
		refund, err := postedBase.Split(refundBase)
		if err != nil {
			return TIFOutcome{}, nil, err
		}
		if err := cust.Refund(l.owner, refund); err != nil {
			return TIFOutcome{}, nil, err
		}
		if err := cust.Forward(VenueDestination, postedBase); err != nil {
			return TIFOutcome{}, nil, err
		}
		if err := cust.Forward(VenueDestination, postedQuote); err != nil {
			return TIFOutcome{}, nil, err
		}
		outcome.RefundedBase = refundBase
		events = append(events, PartialFill{
			Owner:          l.owner,
			OrderID:        orderID,
			FilledQuantity: exec.FilledQuantity,
			Remainder:      remainder,
			RefundedBase:   refundBase,
			At:             now,
		})
	}

	if err := custody.AssertRouted(postedBase, postedQuote); err != nil {
		return TIFOutcome{}, nil, err
	}

	l.records[orderID] = rec
	l.totalCreated++

	return outcome, events, nil
}
