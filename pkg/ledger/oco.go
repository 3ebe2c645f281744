package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ocoSiblingOffset separates the second leg's id from the first. Order ids
// derive from millisecond timestamps plus a counter (well under 2^50), so
// offsetting by 2^62 can never collide with an ordinary id.
const ocoSiblingOffset uint64 = 1 << 62

// OCOLeg describes one side of a linked pair.
type OCOLeg struct {
	Price    uint64
	Quantity uint64
	Side     Side
}

// PlaceOCO atomically records two linked orders sharing one group. The group
// id doubles as the first leg's order id; the second leg is offset. The
// lifetime counter advances by two.
func (l *Ledger) PlaceOCO(caller common.Address, poolID string, leg1, leg2 OCOLeg, now uint64) (uint64, [2]uint64, []Event, error) {
	var none [2]uint64
	if err := l.checkOwner(caller); err != nil {
		return 0, none, nil, err
	}
	if err := l.checkNotPaused(); err != nil {
		return 0, none, nil, err
	}
	if err := validatePriceQuantity(leg1.Price, leg1.Quantity); err != nil {
		return 0, none, nil, fmt.Errorf("leg1: %w", err)
	}
	if err := validatePriceQuantity(leg2.Price, leg2.Quantity); err != nil {
		return 0, none, nil, fmt.Errorf("leg2: %w", err)
	}
	if err := checkTimestamp(now, l.createdAt); err != nil {
		return 0, none, nil, err
	}

	groupID := l.nextOrderID(now)
	order1ID := groupID
	order2ID := groupID + ocoSiblingOffset

	legs := [2]struct {
		id  uint64
		leg OCOLeg
	}{{order1ID, leg1}, {order2ID, leg2}}

	events := []Event{OCOPlaced{
		Owner:    l.owner,
		GroupID:  groupID,
		Order1ID: order1ID,
		Order2ID: order2ID,
		PoolID:   poolID,
		At:       now,
	}}

	for _, entry := range legs {
		rec := &OrderRecord{
			OrderID:          entry.id,
			PoolID:           poolID,
			Price:            entry.leg.Price,
			Quantity:         entry.leg.Quantity,
			OriginalQuantity: entry.leg.Quantity,
			Side:             entry.leg.Side,
			Kind:             KindOCO,
			TimeInForce:      GTC,
			CreatedAt:        now,
			IsActive:         true,
			OCOGroupID:       groupID,
		}
		l.records[entry.id] = rec
		l.active.Insert(entry.id)
		events = append(events, OrderPlaced{
			Owner:       l.owner,
			OrderID:     entry.id,
			PoolID:      poolID,
			Price:       entry.leg.Price,
			Quantity:    entry.leg.Quantity,
			Side:        entry.leg.Side.String(),
			OrderKind:   KindOCO.String(),
			TimeInForce: GTC.String(),
			At:          now,
		})
	}

	l.groups[groupID] = &OCOGroup{
		GroupID:   groupID,
		Order1ID:  order1ID,
		Order2ID:  order2ID,
		CreatedAt: now,
		IsActive:  true,
	}
	l.totalCreated += 2

	return groupID, [2]uint64{order1ID, order2ID}, events, nil
}

// propagateOCO closes the group triggered by orderID and cancels the still
// active sibling. The trigger's own record is updated by the caller. Calling
// this against an already-inactive group is a deliberate no-op so that venue
// notification retries cannot abort an otherwise valid operation.
func (l *Ledger) propagateOCO(groupID, triggerID, now uint64, byFill bool) []Event {
	group, ok := l.groups[groupID]
	if !ok || !group.IsActive {
		return nil
	}
	siblingID, ok := group.Sibling(triggerID)
	if !ok {
		return nil
	}

	group.IsActive = false

	var events []Event
	if byFill {
		events = append(events, OCOFilled{Owner: l.owner, GroupID: groupID, TriggerID: triggerID, At: now})
	}

	sibling, ok := l.records[siblingID]
	if ok && sibling.IsActive {
		sibling.IsActive = false
		sibling.CancelledAt = now
		l.active.Delete(siblingID)
		events = append(events, OCOCancelled{
			Owner:     l.owner,
			GroupID:   groupID,
			TriggerID: triggerID,
			SiblingID: siblingID,
			At:        now,
		})
	}
	return events
}
