package routes

import (
	"math/big"
	"time"

	"datamarket/indexer"
	"datamarket/native/market"
)

type datasetView struct {
	ID                   uint64              `json:"id"`
	Producer             string              `json:"producer"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	Category             market.Category     `json:"category"`
	Pricing              market.PricingModel `json:"pricing"`
	Price                string              `json:"price,omitempty"`
	SubscriptionDuration *int64              `json:"subscriptionDuration,omitempty"`
	ContentRef           string              `json:"contentRef"`
	MetadataRef          string              `json:"metadataRef,omitempty"`
	SchemaHash           string              `json:"schemaHash,omitempty"`
	DataHash             string              `json:"dataHash"`
	Tags                 []string            `json:"tags,omitempty"`
	RoyaltyPct           uint8               `json:"royaltyPct"`
	Active               bool                `json:"active"`
	CreatedAt            int64               `json:"createdAt"`
	UpdatedAt            int64               `json:"updatedAt"`
	SaleCount            uint64              `json:"saleCount"`
	TotalRevenue         string              `json:"totalRevenue"`
	ViewCount            uint64              `json:"viewCount"`
	RewardPool           string              `json:"rewardPool"`
}

func newDatasetView(ds *market.Dataset) datasetView {
	view := datasetView{
		ID:                   ds.ID,
		Producer:             market.HexAddr(ds.Producer),
		Title:                ds.Title,
		Description:          ds.Description,
		Category:             ds.Category,
		Pricing:              ds.Pricing,
		SubscriptionDuration: ds.SubscriptionDuration,
		ContentRef:           ds.ContentRef,
		MetadataRef:          ds.MetadataRef,
		SchemaHash:           ds.SchemaHash,
		DataHash:             ds.DataHash,
		Tags:                 ds.Tags,
		RoyaltyPct:           ds.RoyaltyPct,
		Active:               ds.Active,
		CreatedAt:            ds.CreatedAt,
		UpdatedAt:            ds.UpdatedAt,
		SaleCount:            ds.SaleCount,
		TotalRevenue:         amount(ds.TotalRevenue),
		ViewCount:            ds.ViewCount,
		RewardPool:           amount(ds.RewardPool),
	}
	if ds.Price != nil {
		view.Price = ds.Price.String()
	}
	return view
}

type tokenView struct {
	ID          uint64             `json:"id"`
	DatasetID   uint64             `json:"datasetId"`
	Owner       string             `json:"owner"`
	PurchasedAt int64              `json:"purchasedAt"`
	ExpiresAt   *int64             `json:"expiresAt,omitempty"`
	UseCount    uint64             `json:"useCount"`
	MaxUses     *uint64            `json:"maxUses,omitempty"`
	Status      market.TokenStatus `json:"status"`
}

func newTokenView(token *market.AccessToken, now int64) tokenView {
	return tokenView{
		ID:          token.ID,
		DatasetID:   token.DatasetID,
		Owner:       market.HexAddr(token.Owner),
		PurchasedAt: token.PurchasedAt,
		ExpiresAt:   token.ExpiresAt,
		UseCount:    token.UseCount,
		MaxUses:     token.MaxUses,
		Status:      token.Status(now),
	}
}

type stakeView struct {
	ID         uint64 `json:"id"`
	DatasetID  uint64 `json:"datasetId"`
	Staker     string `json:"staker"`
	Amount     string `json:"amount"`
	StakedAt   int64  `json:"stakedAt"`
	Reward     string `json:"accruedReward,omitempty"`
	DaysStaked *int64 `json:"daysStaked,omitempty"`
}

func newStakeView(stake *market.StakeRecord, preview *market.UnstakePreview) stakeView {
	view := stakeView{
		ID:        stake.ID,
		DatasetID: stake.DatasetID,
		Staker:    market.HexAddr(stake.Staker),
		Amount:    amount(stake.Amount),
		StakedAt:  stake.StakedAt,
	}
	if preview != nil {
		view.Reward = amount(preview.Reward)
		days := preview.DaysStaked
		view.DaysStaked = &days
	}
	return view
}

type redemptionView struct {
	StakeID    uint64 `json:"stakeId"`
	Principal  string `json:"principal"`
	Reward     string `json:"reward"`
	Total      string `json:"total"`
	DaysStaked int64  `json:"daysStaked"`
}

func newRedemptionView(p *market.UnstakePreview) redemptionView {
	return redemptionView{
		StakeID:    p.StakeID,
		Principal:  amount(p.Principal),
		Reward:     amount(p.Reward),
		Total:      amount(p.Total()),
		DaysStaked: p.DaysStaked,
	}
}

type receiptView struct {
	Token          tokenView `json:"token"`
	Price          string    `json:"price"`
	PlatformFee    string    `json:"platformFee"`
	ProducerAmount string    `json:"producerAmount"`
	Refund         string    `json:"refund"`
}

func newReceiptView(r *market.PurchaseReceipt, now int64) receiptView {
	return receiptView{
		Token:          newTokenView(r.Token, now),
		Price:          amount(r.Price),
		PlatformFee:    amount(r.PlatformFee),
		ProducerAmount: amount(r.Producer),
		Refund:         amount(r.Refund),
	}
}

type marketplaceView struct {
	Admin          string `json:"admin"`
	PlatformFeePct uint8  `json:"platformFeePct"`
	Paused         bool   `json:"paused"`
	DatasetCount   uint64 `json:"datasetCount"`
	SaleCount      uint64 `json:"saleCount"`
	RevenueTotal   string `json:"revenueTotal"`
	Treasury       string `json:"treasury"`
}

func newMarketplaceView(m *market.Marketplace) marketplaceView {
	return marketplaceView{
		Admin:          market.HexAddr(m.Admin),
		PlatformFeePct: m.PlatformFeePct,
		Paused:         m.Paused,
		DatasetCount:   m.DatasetCount,
		SaleCount:      m.SaleCount,
		RevenueTotal:   amount(m.RevenueTotal),
		Treasury:       amount(m.Treasury),
	}
}

type accountView struct {
	Address string      `json:"address"`
	Bech32  string      `json:"bech32"`
	Balance string      `json:"balance"`
	Tokens  []tokenView `json:"tokens"`
	Stakes  []stakeView `json:"stakes"`
}

type eventView struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func newEventView(rec indexer.Record) (eventView, error) {
	evt, err := rec.Event()
	if err != nil {
		return eventView{}, err
	}
	return eventView{
		ID:         rec.ID.String(),
		Sequence:   rec.Sequence,
		Type:       rec.Type,
		Attributes: evt.Attributes,
		Digest:     rec.Digest,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
