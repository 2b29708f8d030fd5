package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"datamarket/core/types"
)

const (
	// EventTypeDatasetRegistered is emitted when a producer lists a dataset.
	EventTypeDatasetRegistered = "market.dataset.registered"
	// EventTypeDatasetUpdated is emitted when a producer edits a listing.
	EventTypeDatasetUpdated = "market.dataset.updated"
	// EventTypeDatasetPurchased is emitted for every successful purchase.
	EventTypeDatasetPurchased = "market.dataset.purchased"
	// EventTypeRevenueDistributed reports how a payment was divided.
	EventTypeRevenueDistributed = "market.revenue.distributed"
	// EventTypeAccessUsed is emitted when an access token is consumed.
	EventTypeAccessUsed = "market.access.used"
	// EventTypeRewardWithdrawn is emitted when a producer draws from the pool.
	EventTypeRewardWithdrawn = "market.reward.withdrawn"
	// EventTypeStakeCreated is emitted when value is staked behind a dataset.
	EventTypeStakeCreated = "market.stake.created"
	// EventTypeStakeRedeemed is emitted when a stake is redeemed.
	EventTypeStakeRedeemed = "market.stake.redeemed"
	// EventTypeFeeUpdated is emitted when the platform fee changes.
	EventTypeFeeUpdated = "market.fee.updated"
	// EventTypePauseChanged is emitted when the marketplace is paused or resumed.
	EventTypePauseChanged = "market.pause.changed"
	// EventTypeAccountCredited is emitted when value enters an account from outside.
	EventTypeAccountCredited = "market.account.credited"
)

// DatasetRegisteredEvent announces a new listing.
func DatasetRegisteredEvent(ds *Dataset) *types.Event {
	return &types.Event{
		Type: EventTypeDatasetRegistered,
		Attributes: map[string]string{
			"datasetId": formatID(ds.ID),
			"producer":  HexAddr(ds.Producer),
			"category":  ds.Category.String(),
			"pricing":   ds.Pricing.String(),
			"price":     formatAmount(ds.Price),
			"title":     ds.Title,
		},
	}
}

// DatasetUpdatedEvent captures the post-update state of a listing.
func DatasetUpdatedEvent(ds *Dataset) *types.Event {
	return &types.Event{
		Type: EventTypeDatasetUpdated,
		Attributes: map[string]string{
			"datasetId": formatID(ds.ID),
			"producer":  HexAddr(ds.Producer),
			"price":     formatAmount(ds.Price),
			"active":    strconv.FormatBool(ds.Active),
			"updatedAt": formatTime(ds.UpdatedAt),
		},
	}
}

// DatasetPurchasedEvent records the buyer and the token minted for them.
func DatasetPurchasedEvent(ds *Dataset, token *AccessToken, price *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDatasetPurchased,
		Attributes: map[string]string{
			"datasetId": formatID(ds.ID),
			"tokenId":   formatID(token.ID),
			"buyer":     HexAddr(token.Owner),
			"price":     formatAmount(price),
			"pricing":   ds.Pricing.String(),
		},
	}
}

// RevenueDistributedEvent reports the three-way payment split.
func RevenueDistributedEvent(datasetID uint64, producer [20]byte, platformFee, producerAmount, refund *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRevenueDistributed,
		Attributes: map[string]string{
			"datasetId":      formatID(datasetID),
			"producer":       HexAddr(producer),
			"platformFee":    formatAmount(platformFee),
			"producerAmount": formatAmount(producerAmount),
			"refund":         formatAmount(refund),
		},
	}
}

// AccessUsedEvent records a consumed access token.
func AccessUsedEvent(token *AccessToken, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeAccessUsed,
		Attributes: map[string]string{
			"datasetId": formatID(token.DatasetID),
			"tokenId":   formatID(token.ID),
			"owner":     HexAddr(token.Owner),
			"useCount":  strconv.FormatUint(token.UseCount, 10),
			"usedAt":    formatTime(at),
		},
	}
}

// RewardWithdrawnEvent records a producer drawing from the reward pool.
func RewardWithdrawnEvent(ds *Dataset, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardWithdrawn,
		Attributes: map[string]string{
			"datasetId":  formatID(ds.ID),
			"producer":   HexAddr(ds.Producer),
			"amount":     formatAmount(amount),
			"rewardPool": formatAmount(ds.RewardPool),
		},
	}
}

// StakeCreatedEvent records a new stake.
func StakeCreatedEvent(stake *StakeRecord) *types.Event {
	return &types.Event{
		Type: EventTypeStakeCreated,
		Attributes: map[string]string{
			"stakeId":   formatID(stake.ID),
			"datasetId": formatID(stake.DatasetID),
			"staker":    HexAddr(stake.Staker),
			"amount":    formatAmount(stake.Amount),
			"stakedAt":  formatTime(stake.StakedAt),
		},
	}
}

// StakeRedeemedEvent records both the returned principal and the reward.
func StakeRedeemedEvent(stake *StakeRecord, reward *big.Int, days int64) *types.Event {
	return &types.Event{
		Type: EventTypeStakeRedeemed,
		Attributes: map[string]string{
			"stakeId":    formatID(stake.ID),
			"datasetId":  formatID(stake.DatasetID),
			"staker":     HexAddr(stake.Staker),
			"principal":  formatAmount(stake.Amount),
			"reward":     formatAmount(reward),
			"daysStaked": strconv.FormatInt(days, 10),
		},
	}
}

// FeeUpdatedEvent records a platform fee change.
func FeeUpdatedEvent(previous, next uint8) *types.Event {
	return &types.Event{
		Type: EventTypeFeeUpdated,
		Attributes: map[string]string{
			"previousPct": strconv.Itoa(int(previous)),
			"feePct":      strconv.Itoa(int(next)),
		},
	}
}

// PauseChangedEvent records the marketplace pause flag.
func PauseChangedEvent(paused bool) *types.Event {
	return &types.Event{
		Type:       EventTypePauseChanged,
		Attributes: map[string]string{"paused": strconv.FormatBool(paused)},
	}
}

// AccountCreditedEvent records externally sourced value entering an account.
func AccountCreditedEvent(addr [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAccountCredited,
		Attributes: map[string]string{
			"account": HexAddr(addr),
			"amount":  formatAmount(amount),
		},
	}
}

// HexAddr renders a principal in 0x-prefixed hex.
func HexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatTime(ms int64) string { return strconv.FormatInt(ms, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
