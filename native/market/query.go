package market

import (
	"fmt"
	"math/big"
	"sort"
)

// DatasetFilter narrows Datasets results. Zero values match everything.
type DatasetFilter struct {
	Producer   *[20]byte
	Category   *Category
	ActiveOnly bool
}

func (f DatasetFilter) match(ds *Dataset) bool {
	if f.Producer != nil && ds.Producer != *f.Producer {
		return false
	}
	if f.Category != nil && ds.Category != *f.Category {
		return false
	}
	if f.ActiveOnly && !ds.Active {
		return false
	}
	return true
}

// Marketplace returns the marketplace singleton.
func (e *Engine) Marketplace() (*Marketplace, error) {
	var out *Marketplace
	err := e.view(func(tx *txn) error {
		m, err := tx.marketplace()
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Dataset returns a single listing.
func (e *Engine) Dataset(id uint64) (*Dataset, error) {
	var out *Dataset
	err := e.view(func(tx *txn) error {
		ds, err := tx.dataset(id)
		out = ds
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Datasets lists listings matching filter ordered by id.
func (e *Engine) Datasets(filter DatasetFilter) ([]*Dataset, error) {
	var out []*Dataset
	err := e.view(func(tx *txn) error {
		all, err := tx.state.DatasetList()
		if err != nil {
			return err
		}
		for _, ds := range all {
			if ds == nil || !filter.match(ds) {
				continue
			}
			ensureDatasetDefaults(ds)
			out = append(out, ds)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Token returns a single access token.
func (e *Engine) Token(id uint64) (*AccessToken, error) {
	var out *AccessToken
	err := e.view(func(tx *txn) error {
		token, err := tx.token(id)
		out = token
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// TokensOf lists every token owned by owner ordered by id.
func (e *Engine) TokensOf(owner [20]byte) ([]*AccessToken, error) {
	var out []*AccessToken
	err := e.view(func(tx *txn) error {
		all, err := tx.state.TokenList()
		if err != nil {
			return err
		}
		for _, token := range all {
			if token != nil && token.Owner == owner {
				out = append(out, token)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StakeByID returns a single outstanding stake.
func (e *Engine) StakeByID(id uint64) (*StakeRecord, error) {
	var out *StakeRecord
	err := e.view(func(tx *txn) error {
		stake, err := tx.stake(id)
		out = stake
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// StakesOf lists the outstanding stakes of staker ordered by id.
func (e *Engine) StakesOf(staker [20]byte) ([]*StakeRecord, error) {
	var out []*StakeRecord
	err := e.view(func(tx *txn) error {
		all, err := tx.state.StakeList()
		if err != nil {
			return err
		}
		for _, stake := range all {
			if stake != nil && stake.Staker == staker {
				out = append(out, stake)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Balance returns the account balance of addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		balance, err := tx.ledger.Balance(addr)
		out = balance
		return err
	})
	return out, err
}

// Audit verifies that the dataset's reward pool equals everything credited to
// it minus everything withdrawn, and that it is not negative.
func (e *Engine) Audit(datasetID uint64) error {
	return e.view(func(tx *txn) error {
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		expected := new(big.Int).Sub(ds.PoolCredited, ds.PoolWithdrawn)
		if ds.RewardPool.Sign() < 0 || ds.RewardPool.Cmp(expected) != 0 {
			return fmt.Errorf("%w: dataset %d pool %s, credited %s, withdrawn %s",
				ErrPoolImbalance, ds.ID, ds.RewardPool, ds.PoolCredited, ds.PoolWithdrawn)
		}
		return nil
	})
}
