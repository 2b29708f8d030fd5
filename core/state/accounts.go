package state

import (
	"fmt"
	"math/big"
)

// BalanceGet implements bank.BalanceState. Unknown accounts hold zero.
func (tx *Tx) BalanceGet(addr [20]byte) (*big.Int, error) {
	raw, ok, err := tx.get(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// BalancePut implements bank.BalanceState.
func (tx *Tx) BalancePut(addr [20]byte, balance *big.Int) error {
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	return tx.put(balanceKey(addr), balance.Bytes())
}
