package bank

import (
	"errors"
	"math/big"
	"testing"
)

func TestCoinSplitIsExact(t *testing.T) {
	coin, err := NewCoin(big.NewInt(150))
	if err != nil {
		t.Fatalf("new coin: %v", err)
	}
	piece, err := coin.Split(big.NewInt(50))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if piece.Value().Int64() != 50 || coin.Value().Int64() != 100 {
		t.Fatalf("unexpected split result piece=%s rest=%s", piece, coin)
	}
	if _, err := coin.Split(big.NewInt(101)); !errors.Is(err, ErrInsufficientCoin) {
		t.Fatalf("expected insufficient coin, got %v", err)
	}
	if coin.Value().Int64() != 100 {
		t.Fatalf("failed split must not change the coin, got %s", coin)
	}
	if _, err := coin.Split(big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
}

func TestCoinJoinDrainsOther(t *testing.T) {
	a, _ := NewCoin(big.NewInt(7))
	b, _ := NewCoin(big.NewInt(5))
	if err := a.Join(b); err != nil {
		t.Fatalf("join: %v", err)
	}
	if a.Value().Int64() != 12 {
		t.Fatalf("expected 12, got %s", a)
	}
	if !b.IsZero() {
		t.Fatalf("joined coin must be empty, got %s", b)
	}
	if got := a.Drain(); got.Int64() != 12 || !a.IsZero() {
		t.Fatalf("drain returned %s, remaining %s", got, a)
	}
}

func TestNewCoinRejectsNegative(t *testing.T) {
	if _, err := NewCoin(big.NewInt(-3)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
	zero, err := NewCoin(nil)
	if err != nil || !zero.IsZero() {
		t.Fatalf("nil amount should yield zero coin, got %v %v", zero, err)
	}
}
