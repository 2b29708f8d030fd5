package bank

import (
	"errors"
	"math/big"
	"testing"
)

type mapState map[[20]byte]*big.Int

func (m mapState) BalanceGet(addr [20]byte) (*big.Int, error) {
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m mapState) BalancePut(addr [20]byte, balance *big.Int) error {
	m[addr] = new(big.Int).Set(balance)
	return nil
}

func TestLedgerWithdrawDeposit(t *testing.T) {
	state := mapState{}
	ledger := NewLedger(state)
	alice := [20]byte{0x01}
	bob := [20]byte{0x02}

	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	coin, err := ledger.Withdraw(alice, big.NewInt(60))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := ledger.Deposit(bob, coin); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !coin.IsZero() {
		t.Fatalf("deposited coin must be drained")
	}
	aliceBal, _ := ledger.Balance(alice)
	bobBal, _ := ledger.Balance(bob)
	if aliceBal.Int64() != 40 || bobBal.Int64() != 60 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
	if _, err := ledger.Withdraw(alice, big.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestLedgerWithoutState(t *testing.T) {
	var ledger *Ledger
	if _, err := ledger.Balance([20]byte{}); !errors.Is(err, ErrStateNotConfigured) {
		t.Fatalf("expected state error, got %v", err)
	}
}
