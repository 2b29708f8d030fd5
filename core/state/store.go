package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"datamarket/native/market"
	"datamarket/storage"
)

// SchemaVersion is written on first open and checked on every later open.
const SchemaVersion = 1

var (
	ErrReadOnly        = errors.New("state: write attempted in read-only view")
	ErrVersionMismatch = errors.New("state: schema version mismatch")
)

// Store persists marketplace records in a key-value database. Update
// callbacks run one at a time against a staging overlay which is flushed to the
// database as a single batch only when the callback succeeds.
type Store struct {
	db storage.Database
	mu sync.RWMutex
}

// NewStore wraps db and stamps or verifies the schema version.
func NewStore(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	raw, err := db.Get(versionKeyBytes)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, SchemaVersion)
		if err := db.Put(versionKeyBytes, buf); err != nil {
			return nil, fmt.Errorf("state: write version: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("state: read version: %w", err)
	default:
		if len(raw) != 8 || binary.BigEndian.Uint64(raw) != SchemaVersion {
			return nil, ErrVersionMismatch
		}
	}
	return &Store{db: db}, nil
}

// Update implements market.Store. committed runs after the batch is written
// and before the next writer is admitted, so hooks observe commit order.
func (s *Store) Update(fn func(market.State) error, committed func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newTx(s.db, false)
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.db.Write(tx.batch()); err != nil {
		return err
	}
	if committed != nil {
		committed()
	}
	return nil
}

// View implements market.Store.
func (s *Store) View(fn func(market.State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(s.db, true))
}

// Tx is a staged view over the database. Reads observe the transaction's own
// writes; nothing reaches the database until the owning Store commits it.
type Tx struct {
	db       storage.Database
	readOnly bool
	order    []string
	writes   map[string][]byte
	deleted  map[string]struct{}
}

func newTx(db storage.Database, readOnly bool) *Tx {
	return &Tx{
		db:       db,
		readOnly: readOnly,
		writes:   make(map[string][]byte),
		deleted:  make(map[string]struct{}),
	}
}

func (tx *Tx) touch(key string) {
	if _, ok := tx.writes[key]; ok {
		return
	}
	if _, ok := tx.deleted[key]; ok {
		return
	}
	tx.order = append(tx.order, key)
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if value, ok := tx.writes[k]; ok {
		return append([]byte(nil), value...), true, nil
	}
	if _, ok := tx.deleted[k]; ok {
		return nil, false, nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (tx *Tx) put(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(key)
	tx.touch(k)
	delete(tx.deleted, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

func (tx *Tx) remove(key []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(key)
	tx.touch(k)
	delete(tx.writes, k)
	tx.deleted[k] = struct{}{}
	return nil
}

// scan returns every live value under prefix in key order, overlaying staged
// writes and deletions on the committed data.
func (tx *Tx) scan(prefix []byte) ([][]byte, error) {
	merged := make(map[string][]byte)
	err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return nil, err
	}
	for k, v := range tx.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range tx.deleted {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}

func (tx *Tx) batch() *storage.Batch {
	batch := storage.NewBatch()
	for _, k := range tx.order {
		if value, ok := tx.writes[k]; ok {
			batch.Put([]byte(k), value)
			continue
		}
		if _, ok := tx.deleted[k]; ok {
			batch.Delete([]byte(k))
		}
	}
	return batch
}

// NextID implements market.State. Sequences start at 1.
func (tx *Tx) NextID(sequence string) (uint64, error) {
	key := sequenceKey(sequence)
	raw, ok, err := tx.get(key)
	if err != nil {
		return 0, err
	}
	var current uint64
	if ok {
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: corrupt sequence %q", sequence)
		}
		current = binary.BigEndian.Uint64(raw)
	}
	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := tx.put(key, buf); err != nil {
		return 0, err
	}
	return next, nil
}
