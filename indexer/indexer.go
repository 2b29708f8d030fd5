// Package indexer keeps a queryable copy of every committed marketplace
// notification in a SQL database.
package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"lukechampine.com/blake3"

	"datamarket/core/events"
	"datamarket/core/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrDigestMismatch is returned by Verify when a stored record no longer
// matches the digest computed when it was indexed.
var ErrDigestMismatch = errors.New("indexer: digest mismatch")

// Record is the persisted form of a notification.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex;not null" json:"sequence"`
	Type       string    `gorm:"size:64;index;not null" json:"type"`
	Attributes string    `gorm:"type:text;not null" json:"-"`
	Digest     string    `gorm:"size:64;index;not null" json:"digest"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Record) TableName() string { return "market_events" }

// Event decodes the stored attributes back into the notification form.
func (r Record) Event() (*types.Event, error) {
	attrs := make(map[string]string)
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("indexer: decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Query filters List results.
type Query struct {
	Type  string
	After uint64
	Limit int
}

// Index persists notifications and serves them back in commit order. It
// implements events.Emitter so it can sit directly behind the engine.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64

	live subscribers
}

// Index drivers reported by Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Driver names the database driver Open selects for dsn.
func Driver(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use the postgres
// driver; anything else is treated as a sqlite path, with an empty DSN
// selecting a private in-memory database.
func Open(dsn string, logger *slog.Logger) (*Index, error) {
	trimmed := strings.TrimSpace(dsn)
	var dialector gorm.Dialector
	sqliteBacked := false
	switch {
	case Driver(trimmed) == DriverPostgres:
		dialector = postgres.Open(trimmed)
	case trimmed == "":
		dialector = sqlite.Open(":memory:")
		sqliteBacked = true
	default:
		dialector = sqlite.Open(trimmed)
		sqliteBacked = true
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if sqliteBacked {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("indexer: sqlite handle: %w", err)
		}
		// sqlite serialises writers and every :memory: connection is a
		// separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last struct{ Max uint64 }
	if err := db.Model(&Record{}).Select("COALESCE(MAX(sequence), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Index{
		db:     db,
		logger: logger.With("component", "indexer"),
		nowFn:  time.Now,
		seq:    last.Max,
	}, nil
}

// Close releases the database connection.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Digest hashes the event type and its attributes in key order.
func Digest(evt *types.Event) string {
	hasher := blake3.New(32, nil)
	hasher.Write([]byte(evt.Type))
	hasher.Write([]byte{0})
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hasher.Write([]byte(k))
		hasher.Write([]byte{'='})
		hasher.Write([]byte(evt.Attributes[k]))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Emit implements events.Emitter. Failures are logged; the engine has
// already committed by the time notifications are delivered.
func (ix *Index) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	if _, err := ix.Record(context.Background(), payload.Event()); err != nil {
		ix.logger.Error("index event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt and returns the persisted row.
func (ix *Index) Record(ctx context.Context, evt *types.Event) (*Record, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, fmt.Errorf("indexer: event type required")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	rec := &Record{
		ID:         uuid.New(),
		Sequence:   ix.seq + 1,
		Type:       evt.Type,
		Attributes: string(encoded),
		Digest:     Digest(evt),
		CreatedAt:  ix.nowFn().UTC(),
	}
	if err := ix.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("indexer: insert: %w", err)
	}
	ix.seq = rec.Sequence
	ix.live.publish(*rec)
	return rec, nil
}

// List returns records matching q ordered by sequence.
func (ix *Index) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := ix.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var out []Record
	if err := tx.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	return out, nil
}

// Get looks a record up by id.
func (ix *Index) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	err := ix.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: get %s: %w", id, err)
	}
	return &rec, nil
}

// Verify recomputes the digest of a stored record.
func (ix *Index) Verify(rec Record) error {
	evt, err := rec.Event()
	if err != nil {
		return err
	}
	if Digest(evt) != rec.Digest {
		return fmt.Errorf("%w: record %s", ErrDigestMismatch, rec.ID)
	}
	return nil
}
