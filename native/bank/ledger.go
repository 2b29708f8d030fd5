package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrStateNotConfigured  = errors.New("bank: state not configured")
)

// BalanceState persists per-principal balances.
type BalanceState interface {
	BalanceGet(addr [20]byte) (*big.Int, error)
	BalancePut(addr [20]byte, balance *big.Int) error
}

// Ledger moves value between principal accounts and coins. It is the transfer
// primitive the marketplace relies on: every debit yields a coin and every
// credit consumes one.
type Ledger struct {
	state BalanceState
}

// NewLedger binds a ledger to the supplied balance state.
func NewLedger(state BalanceState) *Ledger {
	return &Ledger{state: state}
}

// Balance returns the current balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrStateNotConfigured
	}
	balance, err := l.state.BalanceGet(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Withdraw debits amount from addr and returns it as a coin.
func (l *Ledger) Withdraw(addr [20]byte, amount *big.Int) (*Coin, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
	}
	if err := l.state.BalancePut(addr, new(big.Int).Sub(balance, amount)); err != nil {
		return nil, err
	}
	return &Coin{value: new(big.Int).Set(amount)}, nil
}

// Deposit credits the full value of coin to addr and empties the coin.
func (l *Ledger) Deposit(addr [20]byte, coin *Coin) error {
	if coin.IsZero() {
		return nil
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	return l.state.BalancePut(addr, new(big.Int).Add(balance, coin.Drain()))
}

// Credit mints amount into addr. It models value arriving from outside the
// marketplace and is restricted to administrative flows.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	coin, err := NewCoin(amount)
	if err != nil {
		return err
	}
	return l.Deposit(addr, coin)
}
