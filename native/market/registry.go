package market

import (
	"fmt"
	"math/big"
	"strings"

	"datamarket/native/fees"
)

// RegisterParams describes a new dataset listing.
type RegisterParams struct {
	Title                string
	Description          string
	Category             Category
	Pricing              PricingModel
	ContentRef           string
	MetadataRef          string
	SchemaHash           string
	DataHash             string
	Price                *big.Int
	SubscriptionDuration int64
	Tags                 []string
	RoyaltyPct           uint8
}

// UpdateParams describes a producer edit. Empty strings, a nil or zero price
// and a nil Active leave the corresponding field unchanged.
type UpdateParams struct {
	Title       string
	Description string
	Price       *big.Int
	Active      *bool
}

func (p RegisterParams) validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: category %d out of range", ErrInvalidInput, uint8(p.Category))
	}
	if !p.Pricing.Valid() {
		return fmt.Errorf("%w: pricing model %d out of range", ErrInvalidInput, uint8(p.Pricing))
	}
	if p.RoyaltyPct > fees.MaxPercent {
		return fmt.Errorf("%w: royalty %d exceeds 100", ErrInvalidInput, p.RoyaltyPct)
	}
	if p.Pricing != PricingFree && (p.Price == nil || p.Price.Sign() <= 0) {
		return fmt.Errorf("%w: %s listings require a positive price", ErrInvalidInput, p.Pricing)
	}
	if p.Pricing == PricingSubscription && p.SubscriptionDuration <= 0 {
		return fmt.Errorf("%w: subscription duration required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.ContentRef) == "" {
		return fmt.Errorf("%w: content reference required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.DataHash) == "" {
		return fmt.Errorf("%w: data hash required", ErrInvalidInput)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Register lists a new dataset owned by producer.
func (e *Engine) Register(producer [20]byte, params RegisterParams) (*Dataset, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	var out *Dataset
	err := e.update(func(tx *txn) error {
		m, err := tx.activeMarketplace()
		if err != nil {
			return err
		}
		id, err := tx.state.NextID(SequenceDataset)
		if err != nil {
			return err
		}
		ds := &Dataset{
			ID:            id,
			Producer:      producer,
			Title:         strings.TrimSpace(params.Title),
			Description:   strings.TrimSpace(params.Description),
			Category:      params.Category,
			Pricing:       params.Pricing,
			ContentRef:    strings.TrimSpace(params.ContentRef),
			MetadataRef:   strings.TrimSpace(params.MetadataRef),
			SchemaHash:    strings.TrimSpace(params.SchemaHash),
			DataHash:      strings.TrimSpace(params.DataHash),
			Tags:          normalizeTags(params.Tags),
			RoyaltyPct:    params.RoyaltyPct,
			Active:        true,
			CreatedAt:     tx.now,
			UpdatedAt:     tx.now,
			TotalRevenue:  big.NewInt(0),
			RewardPool:    big.NewInt(0),
			PoolCredited:  big.NewInt(0),
			PoolWithdrawn: big.NewInt(0),
		}
		if params.Pricing != PricingFree {
			ds.Price = new(big.Int).Set(params.Price)
		}
		if params.Pricing == PricingSubscription {
			duration := params.SubscriptionDuration
			ds.SubscriptionDuration = &duration
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		m.DatasetCount++
		if err := tx.state.MarketplacePut(m); err != nil {
			return err
		}
		tx.record(DatasetRegisteredEvent(ds))
		out = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// UpdateMetadata applies a producer edit to an existing listing. A new price
// is only accepted for listings that already carry one, which keeps free
// listings free.
func (e *Engine) UpdateMetadata(caller [20]byte, datasetID uint64, params UpdateParams) (*Dataset, error) {
	var out *Dataset
	err := e.update(func(tx *txn) error {
		if _, err := tx.activeMarketplace(); err != nil {
			return err
		}
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		if ds.Producer != caller {
			return fmt.Errorf("%w: only the producer may update dataset %d", ErrUnauthorized, datasetID)
		}
		if title := strings.TrimSpace(params.Title); title != "" {
			ds.Title = title
		}
		if description := strings.TrimSpace(params.Description); description != "" {
			ds.Description = description
		}
		if ds.Price != nil && params.Price != nil && params.Price.Sign() > 0 {
			ds.Price = new(big.Int).Set(params.Price)
		}
		if params.Active != nil {
			ds.Active = *params.Active
		}
		ds.UpdatedAt = tx.now
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		tx.record(DatasetUpdatedEvent(ds))
		out = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
