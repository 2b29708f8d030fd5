package bank

import (
	"errors"
	"math/big"
)

var (
	ErrNegativeAmount   = errors.New("bank: amount must not be negative")
	ErrInsufficientCoin = errors.New("bank: coin value below requested split")
	ErrNilCoin          = errors.New("bank: nil coin")
)

// Coin is an exact amount of fungible value. A coin can only be divided with
// Split or combined with Join, so the total value held across coins never
// changes while it moves between owners.
type Coin struct {
	value *big.Int
}

// NewCoin wraps the supplied amount. Negative amounts are rejected.
func NewCoin(amount *big.Int) (*Coin, error) {
	if amount == nil {
		return Zero(), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return &Coin{value: new(big.Int).Set(amount)}, nil
}

// Zero returns an empty coin.
func Zero() *Coin { return &Coin{value: big.NewInt(0)} }

// Value returns a copy of the coin's amount.
func (c *Coin) Value() *big.Int {
	if c == nil || c.value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.value)
}

// IsZero reports whether the coin holds no value.
func (c *Coin) IsZero() bool {
	return c == nil || c.value == nil || c.value.Sign() == 0
}

// Split removes exactly amount from c and returns it as a new coin. The
// receiver keeps the remainder.
func (c *Coin) Split(amount *big.Int) (*Coin, error) {
	if c == nil {
		return nil, ErrNilCoin
	}
	if amount == nil {
		return Zero(), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if c.value == nil {
		c.value = big.NewInt(0)
	}
	if c.value.Cmp(amount) < 0 {
		return nil, ErrInsufficientCoin
	}
	c.value = new(big.Int).Sub(c.value, amount)
	return &Coin{value: new(big.Int).Set(amount)}, nil
}

// Join merges other into c. The other coin is left empty.
func (c *Coin) Join(other *Coin) error {
	if c == nil {
		return ErrNilCoin
	}
	if other == nil {
		return nil
	}
	if c.value == nil {
		c.value = big.NewInt(0)
	}
	c.value = new(big.Int).Add(c.value, other.Value())
	other.value = big.NewInt(0)
	return nil
}

// Drain empties the coin and returns the amount it held.
func (c *Coin) Drain() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	out := c.Value()
	c.value = big.NewInt(0)
	return out
}

// String renders the amount in base 10.
func (c *Coin) String() string {
	return c.Value().String()
}
