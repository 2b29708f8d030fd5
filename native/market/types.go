package market

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Category classifies a dataset listing.
type Category uint8

const (
	CategoryResearch Category = iota
	CategoryFinance
	CategoryHealthcare
	CategoryGeospatial
	CategoryIoT
	CategorySocial
	CategoryMedia
	CategoryOther
	categoryCount
)

var categoryNames = [...]string{"research", "finance", "healthcare", "geospatial", "iot", "social", "media", "other"}

// Valid reports whether the category is one of the defined values.
func (c Category) Valid() bool { return c < categoryCount }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// ParseCategory resolves a category from its name.
func ParseCategory(name string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range categoryNames {
		if candidate == normalized {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, name)
}

func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: category %d", ErrInvalidInput, uint8(c))
	}
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseCategory(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// PricingModel determines what a purchase grants.
type PricingModel uint8

const (
	PricingFixed PricingModel = iota
	PricingSubscription
	PricingPerAccess
	PricingFree
	pricingCount
)

var pricingNames = [...]string{"fixed", "subscription", "per_access", "free"}

// Valid reports whether the pricing model is one of the defined values.
func (p PricingModel) Valid() bool { return p < pricingCount }

func (p PricingModel) String() string {
	if !p.Valid() {
		return fmt.Sprintf("pricing(%d)", uint8(p))
	}
	return pricingNames[p]
}

// ParsePricingModel resolves a pricing model from its name.
func ParsePricingModel(name string) (PricingModel, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for i, candidate := range pricingNames {
		if candidate == normalized {
			return PricingModel(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pricing model %q", ErrInvalidInput, name)
}

func (p PricingModel) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: pricing model %d", ErrInvalidInput, uint8(p))
	}
	return json.Marshal(p.String())
}

func (p *PricingModel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParsePricingModel(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Dataset is a registered listing together with its sales counters and the
// reward pool it owns.
type Dataset struct {
	ID                   uint64       `json:"id"`
	Producer             [20]byte     `json:"producer"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	Category             Category     `json:"category"`
	Pricing              PricingModel `json:"pricing"`
	Price                *big.Int     `json:"price,omitempty"`
	SubscriptionDuration *int64       `json:"subscriptionDuration,omitempty"`
	ContentRef           string       `json:"contentRef"`
	MetadataRef          string       `json:"metadataRef,omitempty"`
	SchemaHash           string       `json:"schemaHash"`
	DataHash             string       `json:"dataHash"`
	Tags                 []string     `json:"tags,omitempty"`
	RoyaltyPct           uint8        `json:"royaltyPct"`
	Active               bool         `json:"active"`
	CreatedAt            int64        `json:"createdAt"`
	UpdatedAt            int64        `json:"updatedAt"`
	SaleCount            uint64       `json:"saleCount"`
	TotalRevenue         *big.Int     `json:"totalRevenue"`
	ViewCount            uint64       `json:"viewCount"`
	RewardPool           *big.Int     `json:"rewardPool"`
	PoolCredited         *big.Int     `json:"poolCredited"`
	PoolWithdrawn        *big.Int     `json:"poolWithdrawn"`
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Price = cloneBig(d.Price)
	if d.SubscriptionDuration != nil {
		duration := *d.SubscriptionDuration
		clone.SubscriptionDuration = &duration
	}
	if d.Tags != nil {
		clone.Tags = append([]string(nil), d.Tags...)
	}
	clone.TotalRevenue = cloneBig(d.TotalRevenue)
	clone.RewardPool = cloneBig(d.RewardPool)
	clone.PoolCredited = cloneBig(d.PoolCredited)
	clone.PoolWithdrawn = cloneBig(d.PoolWithdrawn)
	return &clone
}

// AccessToken is the capability minted by a purchase.
type AccessToken struct {
	ID          uint64   `json:"id"`
	DatasetID   uint64   `json:"datasetId"`
	Owner       [20]byte `json:"owner"`
	PurchasedAt int64    `json:"purchasedAt"`
	ExpiresAt   *int64   `json:"expiresAt,omitempty"`
	UseCount    uint64   `json:"useCount"`
	MaxUses     *uint64  `json:"maxUses,omitempty"`
}

// Clone returns a deep copy of the token.
func (t *AccessToken) Clone() *AccessToken {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ExpiresAt != nil {
		expires := *t.ExpiresAt
		clone.ExpiresAt = &expires
	}
	if t.MaxUses != nil {
		maxUses := *t.MaxUses
		clone.MaxUses = &maxUses
	}
	return &clone
}

// TokenStatus describes whether a token would currently be accepted.
type TokenStatus string

const (
	TokenActive    TokenStatus = "active"
	TokenExpired   TokenStatus = "expired"
	TokenExhausted TokenStatus = "exhausted"
)

// Status evaluates the token against now without mutating it.
func (t *AccessToken) Status(now int64) TokenStatus {
	if t.ExpiresAt != nil && now >= *t.ExpiresAt {
		return TokenExpired
	}
	if t.MaxUses != nil && t.UseCount >= *t.MaxUses {
		return TokenExhausted
	}
	return TokenActive
}

// StakeRecord is a single-use claim on principal plus accrued reward.
type StakeRecord struct {
	ID        uint64   `json:"id"`
	DatasetID uint64   `json:"datasetId"`
	Staker    [20]byte `json:"staker"`
	Amount    *big.Int `json:"amount"`
	StakedAt  int64    `json:"stakedAt"`
}

// Clone returns a deep copy of the stake.
func (s *StakeRecord) Clone() *StakeRecord {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = cloneBig(s.Amount)
	return &clone
}

// Marketplace holds the singleton aggregate counters and the platform treasury.
type Marketplace struct {
	Admin          [20]byte `json:"admin"`
	PlatformFeePct uint8    `json:"platformFeePct"`
	Paused         bool     `json:"paused"`
	DatasetCount   uint64   `json:"datasetCount"`
	SaleCount      uint64   `json:"saleCount"`
	RevenueTotal   *big.Int `json:"revenueTotal"`
	Treasury       *big.Int `json:"treasury"`
}

// Clone returns a deep copy of the marketplace state.
func (m *Marketplace) Clone() *Marketplace {
	if m == nil {
		return nil
	}
	clone := *m
	clone.RevenueTotal = cloneBig(m.RevenueTotal)
	clone.Treasury = cloneBig(m.Treasury)
	return &clone
}

// IsPaused implements common.PauseView.
func (m *Marketplace) IsPaused(string) bool { return m != nil && m.Paused }

// UnstakePreview reports what redeeming a stake would pay at a given time.
type UnstakePreview struct {
	StakeID    uint64   `json:"stakeId"`
	Principal  *big.Int `json:"principal"`
	Reward     *big.Int `json:"reward"`
	DaysStaked int64    `json:"daysStaked"`
}

// Total returns principal plus reward.
func (p UnstakePreview) Total() *big.Int {
	return new(big.Int).Add(newBigInt(p.Principal), newBigInt(p.Reward))
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
