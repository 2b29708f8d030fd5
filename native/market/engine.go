package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"datamarket/core/events"
	"datamarket/core/types"
	"datamarket/crypto"
	"datamarket/native/bank"
	"datamarket/native/common"
	"datamarket/native/fees"
)

// ModuleName identifies the marketplace for pause checks and metrics.
const ModuleName = "market"

// Identifier sequences handed to State.NextID.
const (
	SequenceDataset = "dataset"
	SequenceToken   = "token"
	SequenceStake   = "stake"
)

// State is the transactional view the engine reads and writes. All writes made
// through a State handed to an Update callback become visible together or not
// at all.
type State interface {
	bank.BalanceState
	MarketplaceGet() (*Marketplace, bool, error)
	MarketplacePut(m *Marketplace) error
	DatasetGet(id uint64) (*Dataset, bool, error)
	DatasetPut(ds *Dataset) error
	DatasetList() ([]*Dataset, error)
	TokenGet(id uint64) (*AccessToken, bool, error)
	TokenPut(token *AccessToken) error
	TokenList() ([]*AccessToken, error)
	StakeGet(id uint64) (*StakeRecord, bool, error)
	StakePut(stake *StakeRecord) error
	StakeDelete(id uint64) error
	StakeList() ([]*StakeRecord, error)
	NextID(sequence string) (uint64, error)
}

// Store runs callbacks against State. Update callbacks are serialised and
// committed atomically when they return nil; committed then runs before the
// next Update may begin. View callbacks only read.
type Store interface {
	Update(fn func(State) error, committed func()) error
	View(fn func(State) error) error
}

// Engine wires marketplace business logic with persistence and event emission.
type Engine struct {
	store   Store
	emitter events.Emitter
	nowFn   func() int64

	clockMu sync.Mutex
	lastNow int64
}

// NewEngine constructs a marketplace engine backed by store.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   wallClockMillis,
	}
}

func wallClockMillis() int64 { return time.Now().UnixMilli() }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the millisecond time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = wallClockMillis
		return
	}
	e.nowFn = now
}

// now returns the current time in unix milliseconds, never moving backwards.
func (e *Engine) now() int64 {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	current := e.nowFn()
	if current < e.lastNow {
		current = e.lastNow
	}
	e.lastNow = current
	return current
}

// Now exposes the engine clock so callers can evaluate token status against the
// same time source the engine uses.
func (e *Engine) Now() int64 { return e.now() }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

// txn carries per-operation state: the store view, the ledger bound to it and
// the events to publish once the operation commits.
type txn struct {
	state   State
	ledger  *bank.Ledger
	now     int64
	pending []*types.Event
}

func (tx *txn) record(evt *types.Event) { tx.pending = append(tx.pending, evt) }

func (tx *txn) marketplace() (*Marketplace, error) {
	m, ok, err := tx.state.MarketplaceGet()
	if err != nil {
		return nil, err
	}
	if !ok || m == nil {
		return nil, ErrNotInitialized
	}
	if m.RevenueTotal == nil {
		m.RevenueTotal = big.NewInt(0)
	}
	if m.Treasury == nil {
		m.Treasury = big.NewInt(0)
	}
	return m, nil
}

// activeMarketplace loads the marketplace and fails when it is paused.
func (tx *txn) activeMarketplace() (*Marketplace, error) {
	m, err := tx.marketplace()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(m, ModuleName); err != nil {
		return nil, err
	}
	return m, nil
}

func (tx *txn) dataset(id uint64) (*Dataset, error) {
	ds, ok, err := tx.state.DatasetGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || ds == nil {
		return nil, fmt.Errorf("%w: %d", ErrDatasetNotFound, id)
	}
	ensureDatasetDefaults(ds)
	return ds, nil
}

// update runs fn inside a store transaction and publishes the recorded events
// once the transaction commits, while the writer slot is still held. Emitters
// therefore see events in commit order and must not call back into the engine.
func (e *Engine) update(fn func(tx *txn) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	var pending []*types.Event
	return e.store.Update(func(state State) error {
		tx := &txn{state: state, ledger: bank.NewLedger(state), now: e.now()}
		if err := fn(tx); err != nil {
			return err
		}
		pending = tx.pending
		return nil
	}, func() {
		for _, evt := range pending {
			e.emit(evt)
		}
	})
}

func (e *Engine) view(fn func(tx *txn) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	return e.store.View(func(state State) error {
		return fn(&txn{state: state, ledger: bank.NewLedger(state), now: e.now()})
	})
}

// Bootstrap creates the marketplace singleton if it does not exist yet. An
// existing marketplace is left untouched and returned.
func (e *Engine) Bootstrap(admin [20]byte, platformFeePct uint8) (*Marketplace, error) {
	if platformFeePct > fees.MaxPercent {
		return nil, fmt.Errorf("%w: platform fee %d", ErrInvalidInput, platformFeePct)
	}
	if isZeroAddress(admin) {
		return nil, fmt.Errorf("%w: admin address required", ErrInvalidInput)
	}
	var out *Marketplace
	err := e.update(func(tx *txn) error {
		existing, ok, err := tx.state.MarketplaceGet()
		if err != nil {
			return err
		}
		if ok && existing != nil {
			out = existing
			return nil
		}
		m := &Marketplace{
			Admin:          admin,
			PlatformFeePct: platformFeePct,
			RevenueTotal:   big.NewInt(0),
			Treasury:       big.NewInt(0),
		}
		if err := tx.state.MarketplacePut(m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func ensureDatasetDefaults(ds *Dataset) {
	if ds.TotalRevenue == nil {
		ds.TotalRevenue = big.NewInt(0)
	}
	if ds.RewardPool == nil {
		ds.RewardPool = big.NewInt(0)
	}
	if ds.PoolCredited == nil {
		ds.PoolCredited = big.NewInt(0)
	}
	if ds.PoolWithdrawn == nil {
		ds.PoolWithdrawn = big.NewInt(0)
	}
}

// creditPool merges coin into the dataset's reward pool.
func creditPool(ds *Dataset, coin *bank.Coin) error {
	pool, err := bank.NewCoin(ds.RewardPool)
	if err != nil {
		return err
	}
	credited := coin.Value()
	if err := pool.Join(coin); err != nil {
		return err
	}
	ds.RewardPool = pool.Value()
	ds.PoolCredited = new(big.Int).Add(ds.PoolCredited, credited)
	return nil
}

// debitPool splits exactly amount out of the dataset's reward pool.
func debitPool(ds *Dataset, amount *big.Int) (*bank.Coin, error) {
	pool, err := bank.NewCoin(ds.RewardPool)
	if err != nil {
		return nil, err
	}
	out, err := pool.Split(amount)
	if err != nil {
		return nil, err
	}
	ds.RewardPool = pool.Value()
	ds.PoolWithdrawn = new(big.Int).Add(ds.PoolWithdrawn, amount)
	return out, nil
}

func withdrawFunds(tx *txn, addr [20]byte, amount *big.Int) (*bank.Coin, error) {
	coin, err := tx.ledger.Withdraw(addr, amount)
	if err != nil {
		if errors.Is(err, bank.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return nil, err
	}
	return coin, nil
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

// ParseAddress decodes a principal given as hex (0x-prefixed or bare) or as a
// bech32 marketplace address.
func ParseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return addr, nil
}
