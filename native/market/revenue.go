package market

import (
	"errors"
	"fmt"
	"math/big"

	"datamarket/native/bank"
	"datamarket/native/fees"
)

// PurchaseReceipt summarises a completed purchase.
type PurchaseReceipt struct {
	Token       *AccessToken `json:"token"`
	Price       *big.Int     `json:"price"`
	PlatformFee *big.Int     `json:"platformFee"`
	Producer    *big.Int     `json:"producerAmount"`
	Refund      *big.Int     `json:"refund"`
}

// partition splits the payment coin into fee, refund and producer pieces. The
// producer piece is whatever remains of the payment once the fee and refund
// have been taken, so the payment coin is always fully consumed.
func partition(payment *bank.Coin, split fees.Split) (fee, refund, producer *bank.Coin, err error) {
	if total := split.Total(); payment.Value().Cmp(total) != 0 {
		return nil, nil, nil, fmt.Errorf("market: payment %s does not match split total %s", payment, total)
	}
	fee, err = payment.Split(split.PlatformFee)
	if err != nil {
		return nil, nil, nil, err
	}
	refund, err = payment.Split(split.Refund)
	if err != nil {
		return nil, nil, nil, err
	}
	producer = bank.Zero()
	if err := producer.Join(payment); err != nil {
		return nil, nil, nil, err
	}
	if producer.Value().Cmp(split.Producer) != 0 {
		return nil, nil, nil, fmt.Errorf("market: producer share %s does not match expected %s", producer, split.Producer)
	}
	return fee, refund, producer, nil
}

// Purchase exchanges payment from the buyer's account for an access token.
// The platform fee goes to the treasury, the producer's share to the dataset's
// reward pool and any overpayment straight back to the buyer.
func (e *Engine) Purchase(buyer [20]byte, datasetID uint64, payment *big.Int) (*PurchaseReceipt, error) {
	var out *PurchaseReceipt
	err := e.update(func(tx *txn) error {
		m, err := tx.activeMarketplace()
		if err != nil {
			return err
		}
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		if !ds.Active {
			return fmt.Errorf("%w: %d", ErrDatasetNotActive, ds.ID)
		}
		if ds.Pricing == PricingFree || ds.Price == nil {
			return fmt.Errorf("%w: dataset %d is free", ErrInvalidPricingModel, ds.ID)
		}
		if payment == nil || payment.Cmp(ds.Price) < 0 {
			return fmt.Errorf("%w: price %s, paid %s", ErrInsufficientPayment, ds.Price, formatAmount(payment))
		}
		split, err := fees.Compute(ds.Price, payment, m.PlatformFeePct)
		if err != nil {
			if errors.Is(err, fees.ErrOverflow) {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return err
		}
		paid, err := withdrawFunds(tx, buyer, payment)
		if err != nil {
			return err
		}
		feeCoin, refundCoin, producerCoin, err := partition(paid, split)
		if err != nil {
			return err
		}

		treasury, err := bank.NewCoin(m.Treasury)
		if err != nil {
			return err
		}
		if err := treasury.Join(feeCoin); err != nil {
			return err
		}
		m.Treasury = treasury.Value()
		if err := creditPool(ds, producerCoin); err != nil {
			return err
		}
		if err := tx.ledger.Deposit(buyer, refundCoin); err != nil {
			return err
		}

		ds.SaleCount++
		ds.TotalRevenue = new(big.Int).Add(ds.TotalRevenue, ds.Price)
		ds.UpdatedAt = tx.now
		m.SaleCount++
		m.RevenueTotal = new(big.Int).Add(m.RevenueTotal, ds.Price)

		token, err := grantToken(tx, ds, buyer)
		if err != nil {
			return err
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		if err := tx.state.MarketplacePut(m); err != nil {
			return err
		}
		tx.record(DatasetPurchasedEvent(ds, token, split.Price))
		tx.record(RevenueDistributedEvent(ds.ID, ds.Producer, split.PlatformFee, split.Producer, split.Refund))
		out = &PurchaseReceipt{
			Token:       token,
			Price:       split.Price,
			PlatformFee: split.PlatformFee,
			Producer:    split.Producer,
			Refund:      split.Refund,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Token = out.Token.Clone()
	return out, nil
}

// WithdrawProducerReward moves amount from the dataset's reward pool to the
// producer's account. The dataset keeps its identifier; only the pool balance
// is debited.
func (e *Engine) WithdrawProducerReward(producer [20]byte, datasetID uint64, amount *big.Int) (*Dataset, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *Dataset
	err := e.update(func(tx *txn) error {
		if _, err := tx.activeMarketplace(); err != nil {
			return err
		}
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		if ds.Producer != producer {
			return fmt.Errorf("%w: only the producer may withdraw from dataset %d", ErrUnauthorized, datasetID)
		}
		if ds.RewardPool.Cmp(amount) < 0 {
			return fmt.Errorf("%w: pool holds %s, requested %s", ErrInsufficientFunds, ds.RewardPool, amount)
		}
		coin, err := debitPool(ds, amount)
		if err != nil {
			return err
		}
		if err := tx.ledger.Deposit(producer, coin); err != nil {
			return err
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		tx.record(RewardWithdrawnEvent(ds, amount))
		out = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
