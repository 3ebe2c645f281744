package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store is the Pebble-backed persistence layer. The physical format (JSON
// values under the key schema in keys.go) is private to this package; all
// access goes through the Registry's mutex.
type Store struct {
	db *pebble.DB
}

// OpenStore opens a Pebble database at the given path.
func OpenStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ledgerMeta is the persisted shape of the aggregate minus its keyed maps,
// which are stored entry by entry.
type ledgerMeta struct {
	Owner        common.Address `json:"owner"`
	CreatedAt    uint64         `json:"createdAt"`
	TotalCreated uint64         `json:"totalCreated"`
	Paused       bool           `json:"paused"`
	ActiveIDs    []uint64       `json:"activeIds"`
}

// LoadLedger reassembles a ledger from its meta row plus record and group
// range scans. Returns nil if no ledger exists for owner.
func (s *Store) LoadLedger(owner common.Address) (*Ledger, error) {
	data, closer, err := s.db.Get(ledgerKey(owner))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	var meta ledgerMeta
	uerr := json.Unmarshal(data, &meta)
	closer.Close()
	if uerr != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger meta: %w", uerr)
	}

	l := New(meta.Owner, meta.CreatedAt)
	l.totalCreated = meta.TotalCreated
	l.paused = meta.Paused
	for _, id := range meta.ActiveIDs {
		l.active.Insert(id)
	}

	if err := s.scanJSON(recordPrefix(owner), func(data []byte) error {
		var rec OrderRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		l.records[rec.OrderID] = &rec
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	if err := s.scanJSON(groupPrefix(owner), func(data []byte) error {
		var g OCOGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		l.groups[g.GroupID] = &g
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load oco groups: %w", err)
	}

	return l, nil
}

func (s *Store) scanJSON(prefix []byte, each func(data []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := each(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadOrderOwners walks every persisted order record and reports the owning
// ledger per order id. The registry rebuilds its fill-routing index from this
// at startup, so venue notifications work before any ledger is touched.
func (s *Store) LoadOrderOwners(each func(owner common.Address, orderID uint64)) error {
	prefix := []byte(prefixRecord)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		owner, orderID, err := parseRecordKey(iter.Key())
		if err != nil {
			return err
		}
		each(owner, orderID)
	}
	return iter.Error()
}

// LoadReceipt loads a receipt token by the wrapped order's id. Returns nil
// if no token exists.
func (s *Store) LoadReceipt(orderID uint64) (*ReceiptToken, error) {
	data, closer, err := s.db.Get(receiptKey(orderID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	defer closer.Close()
	var tok ReceiptToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &tok, nil
}

// Batch groups the writes of one ledger operation into a single atomic
// commit, mirroring the all-or-nothing transition of the in-memory state.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.batch.Set(key, data, nil)
}

// SaveLedger stages the aggregate's meta row.
func (b *Batch) SaveLedger(l *Ledger) error {
	meta := ledgerMeta{
		Owner:        l.owner,
		CreatedAt:    l.createdAt,
		TotalCreated: l.totalCreated,
		Paused:       l.paused,
		ActiveIDs:    l.ActiveOrderIDs(),
	}
	return b.setJSON(ledgerKey(l.owner), meta)
}

// SaveRecord stages one order record.
func (b *Batch) SaveRecord(owner common.Address, rec *OrderRecord) error {
	return b.setJSON(recordKey(owner, rec.OrderID), rec)
}

// DeleteRecord stages removal of a record (detached into a token).
func (b *Batch) DeleteRecord(owner common.Address, orderID uint64) error {
	return b.batch.Delete(recordKey(owner, orderID), nil)
}

// SaveGroup stages one OCO group.
func (b *Batch) SaveGroup(owner common.Address, g *OCOGroup) error {
	return b.setJSON(groupKey(owner, g.GroupID), g)
}

// SaveReceipt stages a receipt token.
func (b *Batch) SaveReceipt(tok *ReceiptToken) error {
	return b.setJSON(receiptKey(tok.Record.OrderID), tok)
}

// DeleteReceipt stages removal of a consumed token.
func (b *Batch) DeleteReceipt(orderID uint64) error {
	return b.batch.Delete(receiptKey(orderID), nil)
}

// Commit writes the batch atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
