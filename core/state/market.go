package state

import (
	"encoding/json"
	"fmt"

	"datamarket/native/market"
)

func (tx *Tx) load(key []byte, out interface{}) (bool, error) {
	raw, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) store(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return tx.put(key, encoded)
}

// MarketplaceGet implements market.State.
func (tx *Tx) MarketplaceGet() (*market.Marketplace, bool, error) {
	m := new(market.Marketplace)
	ok, err := tx.load(marketplaceKey, m)
	if err != nil || !ok {
		return nil, false, err
	}
	return m, true, nil
}

// MarketplacePut implements market.State.
func (tx *Tx) MarketplacePut(m *market.Marketplace) error {
	if m == nil {
		return fmt.Errorf("state: nil marketplace")
	}
	return tx.store(marketplaceKey, m)
}

// DatasetGet implements market.State.
func (tx *Tx) DatasetGet(id uint64) (*market.Dataset, bool, error) {
	ds := new(market.Dataset)
	ok, err := tx.load(datasetKey(id), ds)
	if err != nil || !ok {
		return nil, false, err
	}
	return ds, true, nil
}

// DatasetPut implements market.State.
func (tx *Tx) DatasetPut(ds *market.Dataset) error {
	if ds == nil || ds.ID == 0 {
		return fmt.Errorf("state: dataset id required")
	}
	return tx.store(datasetKey(ds.ID), ds)
}

// DatasetList implements market.State.
func (tx *Tx) DatasetList() ([]*market.Dataset, error) {
	values, err := tx.scan(datasetPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*market.Dataset, 0, len(values))
	for _, raw := range values {
		ds := new(market.Dataset)
		if err := json.Unmarshal(raw, ds); err != nil {
			return nil, fmt.Errorf("state: decode dataset: %w", err)
		}
		out = append(out, ds)
	}
	return out, nil
}

// TokenGet implements market.State.
func (tx *Tx) TokenGet(id uint64) (*market.AccessToken, bool, error) {
	token := new(market.AccessToken)
	ok, err := tx.load(tokenKey(id), token)
	if err != nil || !ok {
		return nil, false, err
	}
	return token, true, nil
}

// TokenPut implements market.State.
func (tx *Tx) TokenPut(token *market.AccessToken) error {
	if token == nil || token.ID == 0 {
		return fmt.Errorf("state: token id required")
	}
	return tx.store(tokenKey(token.ID), token)
}

// TokenList implements market.State.
func (tx *Tx) TokenList() ([]*market.AccessToken, error) {
	values, err := tx.scan(tokenPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*market.AccessToken, 0, len(values))
	for _, raw := range values {
		token := new(market.AccessToken)
		if err := json.Unmarshal(raw, token); err != nil {
			return nil, fmt.Errorf("state: decode token: %w", err)
		}
		out = append(out, token)
	}
	return out, nil
}

// StakeGet implements market.State.
func (tx *Tx) StakeGet(id uint64) (*market.StakeRecord, bool, error) {
	stake := new(market.StakeRecord)
	ok, err := tx.load(stakeKey(id), stake)
	if err != nil || !ok {
		return nil, false, err
	}
	return stake, true, nil
}

// StakePut implements market.State.
func (tx *Tx) StakePut(stake *market.StakeRecord) error {
	if stake == nil || stake.ID == 0 {
		return fmt.Errorf("state: stake id required")
	}
	return tx.store(stakeKey(stake.ID), stake)
}

// StakeDelete implements market.State.
func (tx *Tx) StakeDelete(id uint64) error {
	return tx.remove(stakeKey(id))
}

// StakeList implements market.State.
func (tx *Tx) StakeList() ([]*market.StakeRecord, error) {
	values, err := tx.scan(stakePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*market.StakeRecord, 0, len(values))
	for _, raw := range values {
		stake := new(market.StakeRecord)
		if err := json.Unmarshal(raw, stake); err != nil {
			return nil, fmt.Errorf("state: decode stake: %w", err)
		}
		out = append(out, stake)
	}
	return out, nil
}
