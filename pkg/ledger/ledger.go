package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/btree"
)

// Ledger is the per-account aggregate of orders tracked alongside the
// external venue. It never matches anything itself; it is the authoritative
// local record of each order's lifecycle.
//
// A Ledger is not safe for concurrent use. The Registry serializes writers:
// exactly one operation holds the aggregate at a time, and every operation
// validates all of its guards before mutating anything, so a rejected call
// leaves no partial state.
type Ledger struct {
	owner        common.Address
	createdAt    uint64
	totalCreated uint64
	paused       bool

	records map[uint64]*OrderRecord
	groups  map[uint64]*OCOGroup
	active  btree.Set[uint64] // ordered set of live order ids
}

// New initializes an empty ledger for owner at logical time now.
func New(owner common.Address, now uint64) *Ledger {
	return &Ledger{
		owner:     owner,
		createdAt: now,
		records:   make(map[uint64]*OrderRecord),
		groups:    make(map[uint64]*OCOGroup),
	}
}

// ---- read accessors ----

func (l *Ledger) Owner() common.Address { return l.owner }
func (l *Ledger) CreatedAt() uint64     { return l.createdAt }
func (l *Ledger) TotalCreated() uint64  { return l.totalCreated }
func (l *Ledger) Paused() bool          { return l.paused }

// ActiveOrderIDs returns the live order ids in ascending order.
func (l *Ledger) ActiveOrderIDs() []uint64 {
	ids := make([]uint64, 0, l.active.Len())
	l.active.Scan(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Order returns the record for id. Records detached into receipt tokens are
// no longer visible here.
func (l *Ledger) Order(id uint64) (*OrderRecord, error) {
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return rec, nil
}

// Group returns the OCO group for id.
func (l *Ledger) Group(id uint64) (*OCOGroup, error) {
	g, ok := l.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOCOGroupNotFound, id)
	}
	return g, nil
}

// ---- guards ----
//
// Checked in a fixed order, short-circuiting on the first failure:
// identity, pause, input validation, timestamp monotonicity.

func (l *Ledger) checkOwner(caller common.Address) error {
	if caller != l.owner {
		return fmt.Errorf("%w: caller %s is not ledger owner %s", ErrUnauthorized, caller.Hex(), l.owner.Hex())
	}
	return nil
}

func (l *Ledger) checkNotPaused() error {
	if l.paused {
		return ErrPaused
	}
	return nil
}

func validatePriceQuantity(price, quantity uint64) error {
	if price == 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	return nil
}

// checkTimestamp enforces strict monotonicity against a reference timestamp.
// This is a logical-ordering invariant, not a wall-clock check.
func checkTimestamp(now, reference uint64) error {
	if now <= reference {
		return fmt.Errorf("%w: now %d, reference %d", ErrTimestampInvalid, now, reference)
	}
	return nil
}

// ---- mutating operations ----

// nextOrderID derives the id for the order about to be created. Collisions
// between same-timestamp placements are prevented by the counter offset.
func (l *Ledger) nextOrderID(now uint64) uint64 {
	return now + l.totalCreated
}

// Place records a standard GTC limit order and returns its id.
func (l *Ledger) Place(caller common.Address, poolID string, price, quantity uint64, side Side, now uint64) (uint64, []Event, error) {
	if err := l.checkOwner(caller); err != nil {
		return 0, nil, err
	}
	if err := l.checkNotPaused(); err != nil {
		return 0, nil, err
	}
	if err := validatePriceQuantity(price, quantity); err != nil {
		return 0, nil, err
	}
	if err := checkTimestamp(now, l.createdAt); err != nil {
		return 0, nil, err
	}

	orderID := l.nextOrderID(now)
	rec := &OrderRecord{
		OrderID:          orderID,
		PoolID:           poolID,
		Price:            price,
		Quantity:         quantity,
		OriginalQuantity: quantity,
		Side:             side,
		Kind:             KindStandard,
		TimeInForce:      GTC,
		CreatedAt:        now,
		IsActive:         true,
	}
	l.records[orderID] = rec
	l.active.Insert(orderID)
	l.totalCreated++

	ev := OrderPlaced{
		Owner:       l.owner,
		OrderID:     orderID,
		PoolID:      poolID,
		Price:       price,
		Quantity:    quantity,
		Side:        side.String(),
		OrderKind:   KindStandard.String(),
		TimeInForce: GTC.String(),
		At:          now,
	}
	return orderID, []Event{ev}, nil
}

// cancelGuards runs the full guard chain for a cancellation without mutating
// anything. It returns the record so the caller can apply the transition.
func (l *Ledger) cancelGuards(caller common.Address, orderID, now uint64) (*OrderRecord, error) {
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
	if !l.active.Contains(orderID) || !rec.IsActive {
		if rec.IsFullyFilled {
			return nil, fmt.Errorf("%w: id %d", ErrAlreadyFilled, orderID)
		}
		return nil, fmt.Errorf("%w: id %d", ErrAlreadyCancelled, orderID)
	}
	if err := checkTimestamp(now, rec.CreatedAt); err != nil {
		return nil, err
	}
	// A member of a vanished group would leave the sibling stranded; refuse
	// before touching anything.
	if rec.OCOGroupID != 0 {
		if _, ok := l.groups[rec.OCOGroupID]; !ok {
			return nil, fmt.Errorf("%w: id %d", ErrOCOGroupNotFound, rec.OCOGroupID)
		}
	}
	return rec, nil
}

// Cancel marks an active order cancelled and, for OCO members, propagates
// the cancellation to the sibling.
func (l *Ledger) Cancel(caller common.Address, orderID, now uint64) ([]Event, error) {
	rec, err := l.cancelGuards(caller, orderID, now)
	if err != nil {
		return nil, err
	}

	rec.IsActive = false
	rec.CancelledAt = now
	l.active.Delete(orderID)

	events := []Event{OrderCancelled{Owner: l.owner, OrderID: orderID, At: now}}
	if rec.OCOGroupID != 0 {
		events = append(events, l.propagateOCO(rec.OCOGroupID, orderID, now, false)...)
	}
	return events, nil
}

// Modify updates the price and/or quantity of an active order. A zero value
// leaves the corresponding field unchanged; supplying neither is rejected.
func (l *Ledger) Modify(caller common.Address, orderID, newPrice, newQuantity, now uint64) ([]Event, error) {
	if err := l.checkOwner(caller); err != nil {
		return nil, err
	}
	if err := l.checkNotPaused(); err != nil {
		return nil, err
	}
	if newPrice == 0 && newQuantity == 0 {
		return nil, fmt.Errorf("%w: nothing to modify", ErrInvalidInput)
	}
	rec, ok := l.records[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, orderID)
	}
	if !rec.IsActive {
		if rec.IsFullyFilled {
			return nil, fmt.Errorf("%w: id %d", ErrAlreadyFilled, orderID)
		}
		return nil, fmt.Errorf("%w: id %d", ErrAlreadyCancelled, orderID)
	}
	if err := checkTimestamp(now, rec.CreatedAt); err != nil {
		return nil, err
	}

	ev := OrderModified{
		Owner:       l.owner,
		OrderID:     orderID,
		OldPrice:    rec.Price,
		NewPrice:    rec.Price,
		OldQuantity: rec.Quantity,
		NewQuantity: rec.Quantity,
		At:          now,
	}
	if newPrice != 0 {
		rec.Price = newPrice
		ev.NewPrice = newPrice
	}
	if newQuantity != 0 {
		rec.Quantity = newQuantity
		ev.NewQuantity = newQuantity
	}
	return []Event{ev}, nil
}

// BatchCancelResult reports per-item outcomes of a batch cancellation.
type BatchCancelResult struct {
	Succeeded []uint64
	Failed    map[uint64]error
}

// CancelBatch attempts to cancel every id independently. A failing id is
// recorded and skipped; it never aborts the remaining cancellations. Each
// item runs the full single-cancel guard chain, so the all-or-nothing
// property still holds per item.
func (l *Ledger) CancelBatch(caller common.Address, orderIDs []uint64, now uint64) (BatchCancelResult, []Event) {
	result := BatchCancelResult{Failed: make(map[uint64]error)}
	var events []Event
	for _, id := range orderIDs {
		evs, err := l.Cancel(caller, id, now)
		if err != nil {
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
		events = append(events, evs...)
	}
	return result, events
}

// SetPaused flips the pause flag unconditionally. The capability check that
// gates this lives in the Registry; this is the only mutating operation
// exempt from the pause guard.
func (l *Ledger) SetPaused(paused bool, now uint64) []Event {
	l.paused = paused
	return []Event{PauseToggled{Owner: l.owner, Paused: paused, At: now}}
}

// ApplyFillStatus is the venue's push callback. Unknown ids are a no-op and
// repeated identical notifications are idempotent, so venue retries are
// harmless. A transition to inactive is a fill: the record is marked fully
// filled and, for OCO members, the sibling is cancelled.
func (l *Ledger) ApplyFillStatus(orderID uint64, isActive bool, now uint64) []Event {
	rec, ok := l.records[orderID]
	if !ok {
		return nil
	}
	if rec.IsActive == isActive {
		return nil
	}
	// Venue corrections only revive fills. A locally cancelled order is not
	// the venue's to restore; its CancelledAt stands.
	if isActive && rec.CancelledAt != 0 {
		return nil
	}

	rec.IsActive = isActive
	var events []Event
	if !isActive {
		rec.IsFullyFilled = true
		l.active.Delete(orderID)
		events = append(events, FillStatusApplied{Owner: l.owner, OrderID: orderID, IsActive: isActive, At: now})
		if rec.OCOGroupID != 0 {
			events = append(events, l.propagateOCO(rec.OCOGroupID, orderID, now, true)...)
		}
	} else {
		rec.IsFullyFilled = false
		l.active.Insert(orderID)
		events = append(events, FillStatusApplied{Owner: l.owner, OrderID: orderID, IsActive: isActive, At: now})
	}
	return events
}
