package market

import (
	"fmt"
	"math/big"

	"datamarket/native/fees"
)

func requireAdmin(m *Marketplace, caller [20]byte) error {
	if m.Admin != caller {
		return fmt.Errorf("%w: admin only", ErrUnauthorized)
	}
	return nil
}

// SetPlatformFee changes the fee percentage applied to future purchases.
func (e *Engine) SetPlatformFee(caller [20]byte, pct uint8) (*Marketplace, error) {
	if pct > fees.MaxPercent {
		return nil, fmt.Errorf("%w: platform fee %d exceeds 100", ErrInvalidInput, pct)
	}
	var out *Marketplace
	err := e.update(func(tx *txn) error {
		m, err := tx.marketplace()
		if err != nil {
			return err
		}
		if err := requireAdmin(m, caller); err != nil {
			return err
		}
		previous := m.PlatformFeePct
		m.PlatformFeePct = pct
		if err := tx.state.MarketplacePut(m); err != nil {
			return err
		}
		tx.record(FeeUpdatedEvent(previous, pct))
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// SetPaused halts or resumes every non-administrative mutation.
func (e *Engine) SetPaused(caller [20]byte, paused bool) (*Marketplace, error) {
	var out *Marketplace
	err := e.update(func(tx *txn) error {
		m, err := tx.marketplace()
		if err != nil {
			return err
		}
		if err := requireAdmin(m, caller); err != nil {
			return err
		}
		m.Paused = paused
		if err := tx.state.MarketplacePut(m); err != nil {
			return err
		}
		tx.record(PauseChangedEvent(paused))
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Credit funds addr with value arriving from outside the marketplace.
func (e *Engine) Credit(caller [20]byte, addr [20]byte, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var balance *big.Int
	err := e.update(func(tx *txn) error {
		m, err := tx.marketplace()
		if err != nil {
			return err
		}
		if err := requireAdmin(m, caller); err != nil {
			return err
		}
		if err := tx.ledger.Credit(addr, amount); err != nil {
			return err
		}
		balance, err = tx.ledger.Balance(addr)
		if err != nil {
			return err
		}
		tx.record(AccountCreditedEvent(addr, amount))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}
