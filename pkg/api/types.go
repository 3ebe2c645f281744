package api

// Request/response DTOs for the REST surface. Amounts, prices and quantities
// travel as decimal strings to survive JavaScript number precision.

type CreateLedgerRequest struct {
	Address string `json:"address"`
}

type PlaceOrderRequest struct {
	Address  string `json:"address"`
	PoolID   string `json:"poolId"`
	Price    uint64 `json:"price,string"`
	Quantity uint64 `json:"quantity,string"`
	Side     string `json:"side"` // "bid" | "ask"
}

type PlaceOrderResponse struct {
	Status  string `json:"status"`
	OrderID uint64 `json:"orderId,string"`
}

type CancelOrderRequest struct {
	Address string `json:"address"`
	OrderID uint64 `json:"orderId,string"`
}

type ModifyOrderRequest struct {
	Address     string `json:"address"`
	OrderID     uint64 `json:"orderId,string"`
	NewPrice    uint64 `json:"newPrice,string"`    // 0 = keep current
	NewQuantity uint64 `json:"newQuantity,string"` // 0 = keep current
}

type BatchCancelRequest struct {
	Address  string   `json:"address"`
	OrderIDs []uint64 `json:"orderIds"`
}

type BatchCancelResponse struct {
	Succeeded []uint64          `json:"succeeded"`
	Failed    map[string]string `json:"failed"` // order id -> reason
}

type OCOLegRequest struct {
	Price    uint64 `json:"price,string"`
	Quantity uint64 `json:"quantity,string"`
	Side     string `json:"side"`
}

type PlaceOCORequest struct {
	Address string        `json:"address"`
	PoolID  string        `json:"poolId"`
	Leg1    OCOLegRequest `json:"leg1"`
	Leg2    OCOLegRequest `json:"leg2"`
}

type PlaceOCOResponse struct {
	Status   string    `json:"status"`
	GroupID  uint64    `json:"groupId,string"`
	OrderIDs [2]uint64 `json:"orderIds"`
}

type PlaceTIFRequest struct {
	Address     string `json:"address"`
	PoolID      string `json:"poolId"`
	Price       uint64 `json:"price,string"`
	Quantity    uint64 `json:"quantity,string"`
	Side        string `json:"side"`
	TimeInForce string `json:"timeInForce"` // "IOC" | "FOK"
	PostedBase  uint64 `json:"postedBase,string"`
	PostedQuote uint64 `json:"postedQuote,string"`
}

type PlaceTIFResponse struct {
	Status        string `json:"status"` // "filled" | "partial" | "rejected"
	OrderID       uint64 `json:"orderId,string"`
	Stored        bool   `json:"stored"`
	FullyFilled   bool   `json:"fullyFilled"`
	RefundedBase  uint64 `json:"refundedBase,string"`
	RefundedQuote uint64 `json:"refundedQuote,string"`
}

type FillStatusRequest struct {
	OrderID  uint64 `json:"orderId,string"`
	IsActive bool   `json:"isActive"`
}

type PauseRequest struct {
	Caller      string `json:"caller"`
	LedgerOwner string `json:"ledgerOwner"`
	Paused      bool   `json:"paused"`
	// Capability signature issued by the admin key for Caller, hex-encoded.
	CapabilitySig string `json:"capabilitySig"`
}

type DetachRequest struct {
	Address string `json:"address"`
	OrderID uint64 `json:"orderId,string"`
}

type TokenCancelRequest struct {
	Caller  string `json:"caller"`
	OrderID uint64 `json:"orderId,string"`
}

type TokenCancelResponse struct {
	Status        string `json:"status"`
	RefundedBase  uint64 `json:"refundedBase,string"`
	RefundedQuote uint64 `json:"refundedQuote,string"`
}

type TokenTransferRequest struct {
	Caller   string `json:"caller"`
	OrderID  uint64 `json:"orderId,string"`
	NewOwner string `json:"newOwner"`
}

type LedgerInfo struct {
	Owner          string   `json:"owner"`
	CreatedAt      uint64   `json:"createdAt"`
	TotalCreated   uint64   `json:"totalCreated"`
	Paused         bool     `json:"paused"`
	ActiveOrderIDs []uint64 `json:"activeOrderIds"`
}

type OrderInfo struct {
	OrderID         uint64 `json:"orderId,string"`
	ExternalOrderID string `json:"externalOrderId,omitempty"`
	PoolID          string `json:"poolId"`
	Price           uint64 `json:"price,string"`
	Quantity        uint64 `json:"quantity,string"`
	OriginalQty     uint64 `json:"originalQuantity,string"`
	Side            string `json:"side"`
	Kind            string `json:"kind"`
	TimeInForce     string `json:"timeInForce"`
	CreatedAt       uint64 `json:"createdAt"`
	IsActive        bool   `json:"isActive"`
	IsFullyFilled   bool   `json:"isFullyFilled"`
	CancelledAt     uint64 `json:"cancelledAt,omitempty"`
	OCOGroupID      uint64 `json:"ocoGroupId,omitempty"`
}

type ReceiptInfo struct {
	Order       OrderInfo `json:"order"`
	Owner       string    `json:"owner"`
	LedgerOwner string    `json:"ledgerOwner"`
	Consumed    bool      `json:"consumed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}
