package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so one range scan loads everything a
// ledger owns; numeric ids are zero-padded for lexicographic ordering.
const (
	prefixLedger  = "led:"
	prefixRecord  = "ord:"
	prefixGroup   = "oco:"
	prefixReceipt = "tok:"
)

// ledgerKey: "led:{address}"
func ledgerKey(owner common.Address) []byte {
	return []byte(prefixLedger + owner.Hex())
}

// recordKey: "ord:{address}:{orderID}" (zero-padded, 20 digits)
func recordKey(owner common.Address, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixRecord, owner.Hex(), orderID))
}

// recordPrefix: "ord:{address}:" for range scans over one ledger's records
func recordPrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixRecord, owner.Hex()))
}

// parseRecordKey recovers the owner and order id embedded in a record key.
func parseRecordKey(key []byte) (common.Address, uint64, error) {
	s := string(key)
	if !strings.HasPrefix(s, prefixRecord) {
		return common.Address{}, 0, fmt.Errorf("record key %q: missing prefix", s)
	}
	s = s[len(prefixRecord):]
	i := strings.IndexByte(s, ':')
	if i < 0 || !common.IsHexAddress(s[:i]) {
		return common.Address{}, 0, fmt.Errorf("record key %q: bad owner segment", s)
	}
	orderID, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return common.Address{}, 0, fmt.Errorf("record key %q: bad order id: %w", s, err)
	}
	return common.HexToAddress(s[:i]), orderID, nil
}

// groupKey: "oco:{address}:{groupID}"
func groupKey(owner common.Address, groupID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixGroup, owner.Hex(), groupID))
}

// groupPrefix: "oco:{address}:"
func groupPrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixGroup, owner.Hex()))
}

// receiptKey: "tok:{orderID}"; tokens are independent of any ledger
func receiptKey(orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixReceipt, orderID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
