package market

import (
	"fmt"
	"math/big"
)

const (
	// MillisPerDay is the accrual period for staking rewards.
	MillisPerDay = 86_400_000
	// MaxRewardDays caps reward accrual at one year.
	MaxRewardDays = 365
	// AnnualRewardPct is the linear yearly reward rate paid on staked principal.
	AnnualRewardPct = 5
)

// StakeReward computes the reward a stake of amount placed at stakedAt has
// accrued by now: floor(amount * 5 * days / (100 * 365)) with days capped at
// 365. The number of whole days counted is returned alongside.
func StakeReward(amount *big.Int, stakedAt, now int64) (*big.Int, int64) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), 0
	}
	days := int64(0)
	if now > stakedAt {
		days = (now - stakedAt) / MillisPerDay
	}
	if days > MaxRewardDays {
		days = MaxRewardDays
	}
	reward := new(big.Int).Mul(amount, big.NewInt(AnnualRewardPct*days))
	reward.Quo(reward, big.NewInt(100*MaxRewardDays))
	return reward, days
}

func (tx *txn) stake(id uint64) (*StakeRecord, error) {
	stake, ok, err := tx.state.StakeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || stake == nil {
		return nil, fmt.Errorf("%w: %d", ErrStakeNotFound, id)
	}
	return stake, nil
}

// Stake locks amount from the staker's account into the dataset's reward pool.
// Stakes share the pool that purchases feed, so producer withdrawals and stake
// redemptions draw on the same balance.
func (e *Engine) Stake(staker [20]byte, datasetID uint64, amount *big.Int) (*StakeRecord, error) {
	var out *StakeRecord
	err := e.update(func(tx *txn) error {
		if _, err := tx.activeMarketplace(); err != nil {
			return err
		}
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		if !ds.Active {
			return fmt.Errorf("%w: %d", ErrDatasetNotActive, ds.ID)
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		coin, err := withdrawFunds(tx, staker, amount)
		if err != nil {
			return err
		}
		if err := creditPool(ds, coin); err != nil {
			return err
		}
		id, err := tx.state.NextID(SequenceStake)
		if err != nil {
			return err
		}
		stake := &StakeRecord{
			ID:        id,
			DatasetID: ds.ID,
			Staker:    staker,
			Amount:    new(big.Int).Set(amount),
			StakedAt:  tx.now,
		}
		if err := tx.state.StakePut(stake); err != nil {
			return err
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		tx.record(StakeCreatedEvent(stake))
		out = stake
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Unstake redeems a stake for its principal plus accrued reward. The stake
// record is deleted, so it can be redeemed only once.
func (e *Engine) Unstake(staker [20]byte, stakeID uint64) (*UnstakePreview, error) {
	var out *UnstakePreview
	err := e.update(func(tx *txn) error {
		if _, err := tx.activeMarketplace(); err != nil {
			return err
		}
		stake, err := tx.stake(stakeID)
		if err != nil {
			return err
		}
		if stake.Staker != staker {
			return fmt.Errorf("%w: stake %d is not owned by caller", ErrUnauthorized, stakeID)
		}
		ds, err := tx.dataset(stake.DatasetID)
		if err != nil {
			return err
		}
		if !ds.Active {
			return fmt.Errorf("%w: %d", ErrDatasetNotActive, ds.ID)
		}
		reward, days := StakeReward(stake.Amount, stake.StakedAt, tx.now)
		total := new(big.Int).Add(stake.Amount, reward)
		if ds.RewardPool.Cmp(total) < 0 {
			return fmt.Errorf("%w: pool holds %s, redemption needs %s", ErrInsufficientRewards, ds.RewardPool, total)
		}
		coin, err := debitPool(ds, total)
		if err != nil {
			return err
		}
		if err := tx.ledger.Deposit(staker, coin); err != nil {
			return err
		}
		if err := tx.state.StakeDelete(stake.ID); err != nil {
			return err
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		tx.record(StakeRedeemedEvent(stake, reward, days))
		out = &UnstakePreview{
			StakeID:    stake.ID,
			Principal:  new(big.Int).Set(stake.Amount),
			Reward:     reward,
			DaysStaked: days,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewUnstake reports what Unstake would pay for the stake right now.
func (e *Engine) PreviewUnstake(stakeID uint64) (*UnstakePreview, error) {
	var out *UnstakePreview
	err := e.view(func(tx *txn) error {
		stake, err := tx.stake(stakeID)
		if err != nil {
			return err
		}
		reward, days := StakeReward(stake.Amount, stake.StakedAt, tx.now)
		out = &UnstakePreview{
			StakeID:    stake.ID,
			Principal:  new(big.Int).Set(stake.Amount),
			Reward:     reward,
			DaysStaked: days,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
