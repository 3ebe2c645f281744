package ledger

import "errors"

// Guard violations abort the whole enclosing operation before any state is
// mutated. Callers match with errors.Is; wrapped messages carry the ids and
// values involved.
var (
	ErrNotFound         = errors.New("order not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPaused           = errors.New("ledger paused")
	ErrTimestampInvalid = errors.New("timestamp not after reference")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrAlreadyFilled    = errors.New("order already filled")
	ErrOCOGroupNotFound = errors.New("oco group not found")
	ErrLedgerNotFound   = errors.New("ledger not found")
	ErrLedgerExists     = errors.New("ledger already exists")
	ErrReceiptConsumed  = errors.New("receipt token already consumed")
)
