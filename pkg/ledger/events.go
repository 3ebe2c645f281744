package ledger

import "github.com/ethereum/go-ethereum/common"

// Every state transition emits exactly one immutable fact. Facts are never
// retroactively amended; indexers and UIs key on Kind.
type Event interface {
	Kind() string
}

type OrderPlaced struct {
	Owner       common.Address `json:"owner"`
	OrderID     uint64         `json:"orderId"`
	PoolID      string         `json:"poolId"`
	Price       uint64         `json:"price"`
	Quantity    uint64         `json:"quantity"`
	Side        string         `json:"side"`
	OrderKind   string         `json:"orderKind"`
	TimeInForce string         `json:"timeInForce"`
	At          uint64         `json:"at"`
}

func (OrderPlaced) Kind() string { return "order_placed" }

type OrderCancelled struct {
	Owner   common.Address `json:"owner"`
	OrderID uint64         `json:"orderId"`
	At      uint64         `json:"at"`
}

func (OrderCancelled) Kind() string { return "order_cancelled" }

type OrderModified struct {
	Owner       common.Address `json:"owner"`
	OrderID     uint64         `json:"orderId"`
	OldPrice    uint64         `json:"oldPrice"`
	NewPrice    uint64         `json:"newPrice"`
	OldQuantity uint64         `json:"oldQuantity"`
	NewQuantity uint64         `json:"newQuantity"`
	At          uint64         `json:"at"`
}

func (OrderModified) Kind() string { return "order_modified" }

type PauseToggled struct {
	Owner  common.Address `json:"owner"`
	Paused bool           `json:"paused"`
	At     uint64         `json:"at"`
}

func (PauseToggled) Kind() string { return "pause_toggled" }

type OCOPlaced struct {
	Owner    common.Address `json:"owner"`
	GroupID  uint64         `json:"groupId"`
	Order1ID uint64         `json:"order1Id"`
	Order2ID uint64         `json:"order2Id"`
	PoolID   string         `json:"poolId"`
	At       uint64         `json:"at"`
}

func (OCOPlaced) Kind() string { return "oco_placed" }

// OCOFilled marks the group closing because one member filled.
type OCOFilled struct {
	Owner     common.Address `json:"owner"`
	GroupID   uint64         `json:"groupId"`
	TriggerID uint64         `json:"triggerId"`
	At        uint64         `json:"at"`
}

func (OCOFilled) Kind() string { return "oco_filled" }

// OCOCancelled is the sibling cancellation caused by group propagation; it is
// deliberately distinct from an ordinary OrderCancelled.
type OCOCancelled struct {
	Owner     common.Address `json:"owner"`
	GroupID   uint64         `json:"groupId"`
	TriggerID uint64         `json:"triggerId"`
	SiblingID uint64         `json:"siblingId"`
	At        uint64         `json:"at"`
}

func (OCOCancelled) Kind() string { return "oco_cancelled" }

type TIFPlaced struct {
	Owner       common.Address `json:"owner"`
	OrderID     uint64         `json:"orderId"`
	PoolID      string         `json:"poolId"`
	Price       uint64         `json:"price"`
	Quantity    uint64         `json:"quantity"`
	Side        string         `json:"side"`
	TimeInForce string         `json:"timeInForce"`
	At          uint64         `json:"at"`
}

func (TIFPlaced) Kind() string { return "tif_placed" }

type PartialFill struct {
	Owner          common.Address `json:"owner"`
	OrderID        uint64         `json:"orderId"`
	FilledQuantity uint64         `json:"filledQuantity"`
	Remainder      uint64         `json:"remainder"`
	RefundedBase   uint64         `json:"refundedBase"`
	At             uint64         `json:"at"`
}

func (PartialFill) Kind() string { return "partial_fill" }

// OrderExpired is the FOK reject: nothing was stored, everything posted was
// refunded.
type OrderExpired struct {
	Owner         common.Address `json:"owner"`
	PoolID        string         `json:"poolId"`
	Price         uint64         `json:"price"`
	Quantity      uint64         `json:"quantity"`
	TimeInForce   string         `json:"timeInForce"`
	RefundedBase  uint64         `json:"refundedBase"`
	RefundedQuote uint64         `json:"refundedQuote"`
	At            uint64         `json:"at"`
}

func (OrderExpired) Kind() string { return "order_expired" }

type OwnershipTransferred struct {
	OrderID uint64         `json:"orderId"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	At      uint64         `json:"at"`
}

func (OwnershipTransferred) Kind() string { return "ownership_transferred" }

// OwnerCancelled is a cancellation performed through a receipt token rather
// than through the placing ledger.
type OwnerCancelled struct {
	OrderID       uint64         `json:"orderId"`
	TokenOwner    common.Address `json:"tokenOwner"`
	RefundedBase  uint64         `json:"refundedBase"`
	RefundedQuote uint64         `json:"refundedQuote"`
	At            uint64         `json:"at"`
}

func (OwnerCancelled) Kind() string { return "owner_cancelled" }

type FillStatusApplied struct {
	Owner    common.Address `json:"owner"`
	OrderID  uint64         `json:"orderId"`
	IsActive bool           `json:"isActive"`
	At       uint64         `json:"at"`
}

func (FillStatusApplied) Kind() string { return "fill_status_applied" }
