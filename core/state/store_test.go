package state

import (
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datamarket/native/market"
	"datamarket/storage"
)

func newTestStore(t *testing.T) (*Store, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store, err := NewStore(db)
	require.NoError(t, err)
	return store, db
}

func TestStoreUpdateCommits(t *testing.T) {
	store, _ := newTestStore(t)
	var producer [20]byte
	producer[0] = 0xaa

	require.NoError(t, store.Update(func(s market.State) error {
		id, err := s.NextID(market.SequenceDataset)
		require.NoError(t, err)
		require.Equal(t, uint64(1), id)
		ds := &market.Dataset{ID: id, Producer: producer, Title: "weather", Price: big.NewInt(100), RewardPool: big.NewInt(0)}
		require.NoError(t, s.DatasetPut(ds))

		// Staged writes are visible inside the same callback.
		got, ok, err := s.DatasetGet(id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "weather", got.Title)
		return s.BalancePut(producer, big.NewInt(42))
	}, nil))

	require.NoError(t, store.View(func(s market.State) error {
		ds, ok, err := s.DatasetGet(1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, producer, ds.Producer)
		require.Zero(t, ds.Price.Cmp(big.NewInt(100)))

		balance, err := s.BalanceGet(producer)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(42)))
		return nil
	}))
}

func TestStoreUpdateRollsBackOnError(t *testing.T) {
	store, _ := newTestStore(t)
	var addr [20]byte
	addr[19] = 1
	failure := errors.New("boom")

	hookRan := false
	err := store.Update(func(s market.State) error {
		_, err := s.NextID(market.SequenceToken)
		require.NoError(t, err)
		require.NoError(t, s.BalancePut(addr, big.NewInt(500)))
		require.NoError(t, s.TokenPut(&market.AccessToken{ID: 1, DatasetID: 7, Owner: addr}))
		return failure
	}, func() { hookRan = true })
	require.ErrorIs(t, err, failure)
	require.False(t, hookRan, "commit hook must not run for a failed update")

	require.NoError(t, store.View(func(s market.State) error {
		balance, err := s.BalanceGet(addr)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
		_, ok, err := s.TokenGet(1)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	// The sequence was not advanced by the failed update.
	require.NoError(t, store.Update(func(s market.State) error {
		id, err := s.NextID(market.SequenceToken)
		require.NoError(t, err)
		require.Equal(t, uint64(1), id)
		return nil
	}, nil))
}

func TestStoreViewIsReadOnly(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.View(func(s market.State) error {
		return s.MarketplacePut(&market.Marketplace{PlatformFeePct: 5})
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestStakeDeleteAndList(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Update(func(s market.State) error {
		for id := uint64(1); id <= 3; id++ {
			require.NoError(t, s.StakePut(&market.StakeRecord{ID: id, DatasetID: 1, Amount: big.NewInt(int64(id) * 10)}))
		}
		return nil
	}, nil))
	require.NoError(t, store.Update(func(s market.State) error {
		require.NoError(t, s.StakeDelete(2))
		require.NoError(t, s.StakePut(&market.StakeRecord{ID: 4, DatasetID: 1, Amount: big.NewInt(40)}))
		stakes, err := s.StakeList()
		require.NoError(t, err)
		ids := make([]uint64, 0, len(stakes))
		for _, stake := range stakes {
			ids = append(ids, stake.ID)
		}
		require.Equal(t, []uint64{1, 3, 4}, ids)
		return nil
	}, nil))
	require.NoError(t, store.View(func(s market.State) error {
		_, ok, err := s.StakeGet(2)
		require.NoError(t, err)
		require.False(t, ok)
		stakes, err := s.StakeList()
		require.NoError(t, err)
		require.Len(t, stakes, 3)
		return nil
	}))
}

func TestStoreVersionCheck(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewStore(db)
	require.NoError(t, err)
	_, err = NewStore(db)
	require.NoError(t, err)

	require.NoError(t, db.Put(versionKeyBytes, []byte{0, 0, 0, 0, 0, 0, 0, 9}))
	_, err = NewStore(db)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestMarketplaceRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	var admin [20]byte
	admin[3] = 0x10
	require.NoError(t, store.Update(func(s market.State) error {
		_, ok, err := s.MarketplaceGet()
		require.NoError(t, err)
		require.False(t, ok)
		return s.MarketplacePut(&market.Marketplace{
			Admin:          admin,
			PlatformFeePct: 5,
			RevenueTotal:   big.NewInt(0),
			Treasury:       big.NewInt(15),
		})
	}, nil))
	require.NoError(t, store.View(func(s market.State) error {
		m, ok, err := s.MarketplaceGet()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, admin, m.Admin)
		require.Equal(t, uint8(5), m.PlatformFeePct)
		require.Zero(t, m.Treasury.Cmp(big.NewInt(15)))
		return nil
	}))
}

func TestStoreCommitHookRunsBeforeNextWriter(t *testing.T) {
	store, _ := newTestStore(t)
	var addr [20]byte
	addr[19] = 7

	release := make(chan struct{})
	inHook := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- store.Update(func(s market.State) error {
			return s.BalancePut(addr, big.NewInt(1))
		}, func() {
			close(inHook)
			<-release
		})
	}()
	<-inHook

	var mu sync.Mutex
	var order []string
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- store.Update(func(s market.State) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return s.BalancePut(addr, big.NewInt(2))
		}, nil)
	}()

	// The first writer's hook is still running, so the second writer waits.
	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-secondDone:
		t.Fatalf("second update finished while the first commit hook was running: %v", err)
	default:
	}
	mu.Lock()
	require.Empty(t, order)
	mu.Unlock()

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
	require.NoError(t, store.View(func(s market.State) error {
		balance, err := s.BalanceGet(addr)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(2)))
		return nil
	}))
}

func TestStoreSerialisesConcurrentWriters(t *testing.T) {
	store, _ := newTestStore(t)
	const writers = 32
	var addr [20]byte
	addr[0] = 0x42

	var wg sync.WaitGroup
	ids := make(chan uint64, writers)
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Update(func(s market.State) error {
				id, err := s.NextID(market.SequenceStake)
				if err != nil {
					return err
				}
				balance, err := s.BalanceGet(addr)
				if err != nil {
					return err
				}
				if err := s.BalancePut(addr, new(big.Int).Add(balance, big.NewInt(3))); err != nil {
					return err
				}
				ids <- id
				return nil
			}, nil)
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[uint64]struct{}, writers)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "sequence %d handed out twice", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, writers)
	require.NoError(t, store.View(func(s market.State) error {
		balance, err := s.BalanceGet(addr)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(3*writers)))
		return nil
	}))
}
