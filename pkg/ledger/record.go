package ledger

import "fmt"

// Side is the order direction.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ParseSide converts the wire form ("bid"/"ask") into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid":
		return SideBid, nil
	case "ask":
		return SideAsk, nil
	default:
		return 0, fmt.Errorf("%w: side %q", ErrInvalidInput, s)
	}
}

// OrderKind distinguishes how an order entered the ledger.
type OrderKind uint8

const (
	KindStandard OrderKind = iota
	KindOCO
	KindTIF
)

func (k OrderKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindOCO:
		return "oco"
	case KindTIF:
		return "tif"
	default:
		return "unknown"
	}
}

// TimeInForce is the execution policy attached to an order.
type TimeInForce uint8

const (
	GTC TimeInForce = iota // rest until cancelled
	IOC                    // fill what crosses immediately, cancel remainder
	FOK                    // fill completely immediately or reject entirely
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "unknown"
	}
}

// ParseTimeInForce converts the wire form into a TimeInForce.
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch s {
	case "GTC":
		return GTC, nil
	case "IOC":
		return IOC, nil
	case "FOK":
		return FOK, nil
	default:
		return 0, fmt.Errorf("%w: time in force %q", ErrInvalidInput, s)
	}
}

// OrderRecord is the ledger's view of one order. Ids derive from the
// placement timestamp plus the ledger's lifetime counter, so two orders
// placed at the same logical millisecond still get distinct ids.
//
// Zero means "unset" for CancelledAt, OCOGroupID and ExpiresAt: real values
// derive from timestamps strictly greater than the ledger's creation time.
type OrderRecord struct {
	OrderID          uint64      `json:"orderId"`
	ExternalOrderID  string      `json:"externalOrderId,omitempty"` // venue's own id, kept for cancellation routing
	PoolID           string      `json:"poolId"`
	Price            uint64      `json:"price"`
	Quantity         uint64      `json:"quantity"`
	OriginalQuantity uint64      `json:"originalQuantity"`
	Side             Side        `json:"side"`
	Kind             OrderKind   `json:"kind"`
	TimeInForce      TimeInForce `json:"timeInForce"`
	CreatedAt        uint64      `json:"createdAt"`
	IsActive         bool        `json:"isActive"`
	IsFullyFilled    bool        `json:"isFullyFilled"`
	CancelledAt      uint64      `json:"cancelledAt,omitempty"`
	OCOGroupID       uint64      `json:"ocoGroupId,omitempty"`
	ExpiresAt        uint64      `json:"expiresAt,omitempty"` // reserved, not enforced
}

// OCOGroup links exactly two orders created atomically; completion or
// cancellation of either member closes the group and cancels the sibling.
// IsActive flips to false exactly once and the group is never deleted.
type OCOGroup struct {
	GroupID   uint64 `json:"groupId"`
	Order1ID  uint64 `json:"order1Id"`
	Order2ID  uint64 `json:"order2Id"`
	CreatedAt uint64 `json:"createdAt"`
	IsActive  bool   `json:"isActive"`
}

// Sibling returns the member that is not the trigger, and whether the
// trigger belongs to the group at all.
func (g *OCOGroup) Sibling(triggerID uint64) (uint64, bool) {
	switch triggerID {
	case g.Order1ID:
		return g.Order2ID, true
	case g.Order2ID:
		return g.Order1ID, true
	default:
		return 0, false
	}
}
