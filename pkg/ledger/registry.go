package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openclob/tally/pkg/crypto"
	"github.com/openclob/tally/pkg/custody"
	"github.com/openclob/tally/pkg/events"
)

// Registry owns every ledger instance and serializes access to them: one
// mutating operation at a time holds the aggregate, validates its guards,
// applies the transition, commits a single Pebble batch and only then
// publishes the resulting facts. A failed operation commits and publishes
// nothing.
//
// Uses an in-memory cache over Pebble persistence, loading ledgers and
// receipt tokens on first touch.
type Registry struct {
	mu       sync.RWMutex
	ledgers  map[common.Address]*Ledger
	receipts map[uint64]*ReceiptToken // order id -> detached token
	orderNdx map[uint64]common.Address

	store     *Store
	cust      custody.Custodian
	bus       *events.Bus
	admin     common.Address // issuer of pause capabilities
	log       *zap.SugaredLogger
	closeOnce sync.Once
}

// NewRegistry opens the backing store and wires the collaborators in.
func NewRegistry(dbPath string, admin common.Address, cust custody.Custodian, bus *events.Bus, log *zap.SugaredLogger) (*Registry, error) {
	store, err := OpenStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	r := &Registry{
		ledgers:  make(map[common.Address]*Ledger),
		receipts: make(map[uint64]*ReceiptToken),
		orderNdx: make(map[uint64]common.Address),
		store:    store,
		cust:     cust,
		bus:      bus,
		admin:    admin,
		log:      log,
	}
	// Venue fill notifications route by bare order id; the index must cover
	// every persisted order from the start, not just lazily loaded ledgers.
	if err := store.LoadOrderOwners(func(owner common.Address, orderID uint64) {
		r.orderNdx[orderID] = owner
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to rebuild order index: %w", err)
	}
	return r, nil
}

// Close closes the backing store. Safe to call more than once.
func (r *Registry) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.store.Close()
	})
	return err
}

// publish fans the facts of a committed operation out to subscribers.
func (r *Registry) publish(evs []Event) {
	if r.bus == nil {
		return
	}
	for _, ev := range evs {
		r.bus.Publish(ev.Kind(), ev)
	}
}

// ledgerLocked returns the cached ledger for owner, loading from Pebble on
// first touch. Assumes r.mu is held.
func (r *Registry) ledgerLocked(owner common.Address) (*Ledger, error) {
	if l, ok := r.ledgers[owner]; ok {
		return l, nil
	}
	l, err := r.store.LoadLedger(owner)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrLedgerNotFound, owner.Hex())
	}
	r.ledgers[owner] = l
	for id := range l.records {
		r.orderNdx[id] = owner
	}
	return l, nil
}

// receiptLocked returns the cached token for orderID, loading on first
// touch. Assumes r.mu is held.
func (r *Registry) receiptLocked(orderID uint64) (*ReceiptToken, error) {
	if tok, ok := r.receipts[orderID]; ok {
		return tok, nil
	}
	tok, err := r.store.LoadReceipt(orderID)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: no receipt for order %d", ErrNotFound, orderID)
	}
	r.receipts[orderID] = tok
	return tok, nil
}

// commit writes the staged batch; on failure the cached aggregate is evicted
// so the next touch reloads the last durable state instead of serving the
// half-applied one.
func (r *Registry) commit(b *Batch, owners ...common.Address) error {
	if err := b.Commit(); err != nil {
		for _, owner := range owners {
			delete(r.ledgers, owner)
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// stageOCOGroup stages the group and both member records, for operations
// that may have propagated a sibling cancellation.
func (r *Registry) stageOCOGroup(b *Batch, l *Ledger, groupID uint64) error {
	group, ok := l.groups[groupID]
	if !ok {
		return nil
	}
	if err := b.SaveGroup(l.owner, group); err != nil {
		return err
	}
	for _, id := range []uint64{group.Order1ID, group.Order2ID} {
		if rec, ok := l.records[id]; ok {
			if err := b.SaveRecord(l.owner, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---- ledger lifecycle ----

// CreateLedger initializes a ledger for owner. Fails if one already exists;
// a ledger lives for the account's lifetime and is never deleted.
func (r *Registry) CreateLedger(owner common.Address, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ledgers[owner]; ok {
		return fmt.Errorf("%w: %s", ErrLedgerExists, owner.Hex())
	}
	existing, err := r.store.LoadLedger(owner)
	if err != nil {
		return err
	}
	if existing != nil {
		r.ledgers[owner] = existing
		return fmt.Errorf("%w: %s", ErrLedgerExists, owner.Hex())
	}

	l := New(owner, now)
	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return err
	}
	if err := r.commit(b); err != nil {
		return err
	}
	r.ledgers[owner] = l
	r.log.Infow("ledger_created", "owner", owner.Hex(), "at", now)
	return nil
}

// ---- mutating order operations ----

// Place records a standard GTC order on the caller's ledger.
func (r *Registry) Place(caller common.Address, poolID string, price, quantity uint64, side Side, now uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return 0, err
	}
	orderID, evs, err := l.Place(caller, poolID, price, quantity, side, now)
	if err != nil {
		return 0, err
	}

	b := r.store.NewBatch()
	defer b.Close()
	rec := l.records[orderID]
	if err := b.SaveLedger(l); err != nil {
		return 0, err
	}
	if err := b.SaveRecord(caller, rec); err != nil {
		return 0, err
	}
	if err := r.commit(b, caller); err != nil {
		return 0, err
	}
	r.orderNdx[orderID] = caller
	r.publish(evs)
	return orderID, nil
}

// Cancel cancels one order, propagating to an OCO sibling when applicable.
func (r *Registry) Cancel(caller common.Address, orderID, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return err
	}
	rec, ok := l.records[orderID]
	var groupID uint64
	if ok {
		groupID = rec.OCOGroupID
	}

	evs, err := l.Cancel(caller, orderID, now)
	if err != nil {
		return err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return err
	}
	if err := b.SaveRecord(caller, rec); err != nil {
		return err
	}
	if groupID != 0 {
		if err := r.stageOCOGroup(b, l, groupID); err != nil {
			return err
		}
	}
	if err := r.commit(b, caller); err != nil {
		return err
	}
	r.publish(evs)
	return nil
}

// Modify updates price and/or quantity of an active order (zero = keep).
func (r *Registry) Modify(caller common.Address, orderID, newPrice, newQuantity, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return err
	}
	evs, err := l.Modify(caller, orderID, newPrice, newQuantity, now)
	if err != nil {
		return err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveRecord(caller, l.records[orderID]); err != nil {
		return err
	}
	if err := r.commit(b, caller); err != nil {
		return err
	}
	r.publish(evs)
	return nil
}

// CancelBatch cancels each id independently and reports per-item outcomes;
// one failing id never aborts the others.
func (r *Registry) CancelBatch(caller common.Address, orderIDs []uint64, now uint64) (BatchCancelResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return BatchCancelResult{}, err
	}

	result, evs := l.CancelBatch(caller, orderIDs, now)

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return BatchCancelResult{}, err
	}
	for _, id := range result.Succeeded {
		rec := l.records[id]
		if err := b.SaveRecord(caller, rec); err != nil {
			return BatchCancelResult{}, err
		}
		if rec.OCOGroupID != 0 {
			if err := r.stageOCOGroup(b, l, rec.OCOGroupID); err != nil {
				return BatchCancelResult{}, err
			}
		}
	}
	if err := r.commit(b, caller); err != nil {
		return BatchCancelResult{}, err
	}
	r.publish(evs)
	return result, nil
}

// PlaceOCO records a linked pair of orders on the caller's ledger.
func (r *Registry) PlaceOCO(caller common.Address, poolID string, leg1, leg2 OCOLeg, now uint64) (uint64, [2]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return 0, [2]uint64{}, err
	}
	groupID, ids, evs, err := l.PlaceOCO(caller, poolID, leg1, leg2, now)
	if err != nil {
		return 0, [2]uint64{}, err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return 0, [2]uint64{}, err
	}
	if err := r.stageOCOGroup(b, l, groupID); err != nil {
		return 0, [2]uint64{}, err
	}
	if err := r.commit(b, caller); err != nil {
		return 0, [2]uint64{}, err
	}
	for _, id := range ids {
		r.orderNdx[id] = caller
	}
	r.publish(evs)
	return groupID, ids, nil
}

// PlaceTIF resolves an immediate-execution placement. postedBase and
// postedQuote are the asset amounts the caller posted to cover the order;
// every unit is refunded or forwarded before this returns.
func (r *Registry) PlaceTIF(caller common.Address, poolID string, price, quantity uint64, side Side, tif TimeInForce, exec ExecutionReport, postedBase, postedQuote uint64, now uint64) (TIFOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return TIFOutcome{}, err
	}

	base := custody.Post(poolID+"/base", postedBase)
	quote := custody.Post(poolID+"/quote", postedQuote)
	outcome, evs, err := l.PlaceTIF(caller, poolID, price, quantity, side, tif, exec, base, quote, r.cust, now)
	if err != nil {
		return TIFOutcome{}, err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return TIFOutcome{}, err
	}
	if outcome.Stored {
		if err := b.SaveRecord(caller, l.records[outcome.OrderID]); err != nil {
			return TIFOutcome{}, err
		}
	}
	if err := r.commit(b, caller); err != nil {
		return TIFOutcome{}, err
	}
	if outcome.Stored {
		r.orderNdx[outcome.OrderID] = caller
	}
	r.publish(evs)
	return outcome, nil
}

// TogglePause flips a ledger's pause flag. Requires a capability issued by
// the admin key for the caller; ownership of the ledger grants nothing here.
func (r *Registry) TogglePause(cap crypto.Capability, caller, ledgerOwner common.Address, paused bool, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !cap.Verify(r.admin, caller) {
		return fmt.Errorf("%w: invalid pause capability for %s", ErrUnauthorized, caller.Hex())
	}
	l, err := r.ledgerLocked(ledgerOwner)
	if err != nil {
		return err
	}

	evs := l.SetPaused(paused, now)

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return err
	}
	if err := r.commit(b, ledgerOwner); err != nil {
		return err
	}
	r.log.Infow("ledger_pause_toggled", "owner", ledgerOwner.Hex(), "paused", paused, "by", caller.Hex())
	r.publish(evs)
	return nil
}

// NotifyFillStatus is the venue's push callback. Unknown order ids and
// repeated identical notifications are tolerated as no-ops.
func (r *Registry) NotifyFillStatus(orderID uint64, isActive bool, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.orderNdx[orderID]
	if !ok {
		return nil
	}
	l, err := r.ledgerLocked(owner)
	if err != nil {
		return err
	}
	rec, ok := l.records[orderID]
	if !ok {
		return nil
	}
	groupID := rec.OCOGroupID

	evs := l.ApplyFillStatus(orderID, isActive, now)
	if len(evs) == 0 {
		return nil
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return err
	}
	if err := b.SaveRecord(owner, rec); err != nil {
		return err
	}
	if groupID != 0 {
		if err := r.stageOCOGroup(b, l, groupID); err != nil {
			return err
		}
	}
	if err := r.commit(b, owner); err != nil {
		return err
	}
	r.publish(evs)
	return nil
}

// ---- receipt tokens ----

// Detach wraps an order into a transferable receipt token and removes the
// record from ledger visibility.
func (r *Registry) Detach(caller common.Address, orderID, now uint64) (*ReceiptToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.ledgerLocked(caller)
	if err != nil {
		return nil, err
	}
	tok, err := l.Detach(caller, orderID)
	if err != nil {
		return nil, err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.DeleteRecord(caller, orderID); err != nil {
		return nil, err
	}
	if err := b.SaveReceipt(tok); err != nil {
		return nil, err
	}
	if err := r.commit(b, caller); err != nil {
		return nil, err
	}
	r.receipts[orderID] = tok
	return tok, nil
}

// CancelWithToken cancels the wrapped order on behalf of the token's owner
// and destroys the token, returning the refunded amounts.
func (r *Registry) CancelWithToken(caller common.Address, orderID, now uint64) (refundBase, refundQuote uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, err := r.receiptLocked(orderID)
	if err != nil {
		return 0, 0, err
	}
	l, err := r.ledgerLocked(tok.LedgerOwner)
	if err != nil {
		return 0, 0, err
	}
	groupID := tok.Record.OCOGroupID

	refundBase, refundQuote, evs, err := l.CancelWithToken(caller, tok, r.cust, now)
	if err != nil {
		return 0, 0, err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveLedger(l); err != nil {
		return 0, 0, err
	}
	if groupID != 0 {
		if err := r.stageOCOGroup(b, l, groupID); err != nil {
			return 0, 0, err
		}
	}
	if err := b.DeleteReceipt(orderID); err != nil {
		return 0, 0, err
	}
	if err := r.commit(b, tok.LedgerOwner); err != nil {
		delete(r.receipts, orderID)
		return 0, 0, err
	}
	delete(r.receipts, orderID)
	r.publish(evs)
	return refundBase, refundQuote, nil
}

// TransferToken reassigns a receipt token to a new owner.
func (r *Registry) TransferToken(caller common.Address, orderID uint64, newOwner common.Address, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, err := r.receiptLocked(orderID)
	if err != nil {
		return err
	}
	evs, err := tok.Transfer(caller, newOwner, now)
	if err != nil {
		return err
	}

	b := r.store.NewBatch()
	defer b.Close()
	if err := b.SaveReceipt(tok); err != nil {
		return err
	}
	// The token already carries the new owner in memory; a failed commit must
	// evict it so the next touch reloads the durable owner.
	if err := r.commit(b); err != nil {
		delete(r.receipts, orderID)
		return err
	}
	r.publish(evs)
	return nil
}

// ---- read accessors ----

// Ledger returns a read view of an owner's ledger.
func (r *Registry) Ledger(owner common.Address) (*Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledgerLocked(owner)
}

// Order looks up a record on an owner's ledger.
func (r *Registry) Order(owner common.Address, orderID uint64) (*OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.ledgerLocked(owner)
	if err != nil {
		return nil, err
	}
	return l.Order(orderID)
}

// Receipt returns the receipt token wrapping orderID, if any.
func (r *Registry) Receipt(orderID uint64) (*ReceiptToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receiptLocked(orderID)
}
