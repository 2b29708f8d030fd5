package fees

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxPercent is the upper bound for fee and royalty percentages.
const MaxPercent = 100

var (
	ErrInvalidPercent = errors.New("fees: percentage must be between 0 and 100")
	ErrInvalidPrice   = errors.New("fees: price must be positive")
	ErrUnderpaid      = errors.New("fees: payment below price")
	ErrOverflow       = errors.New("fees: amount exceeds 256 bits")
)

// Split summarises how a payment is divided between the platform treasury,
// the producer's reward pool and the payer. PlatformFee + Producer + Refund
// always equals Payment.
type Split struct {
	Price       *big.Int
	Payment     *big.Int
	PlatformFee *big.Int
	Producer    *big.Int
	Refund      *big.Int
}

// Compute evaluates the fee policy for a purchase at price paid with payment.
// The platform fee is floor(price * feePct / 100), the producer receives the
// remainder of the price and any overpayment is refunded. Arithmetic is done on
// 256-bit integers so intermediate products cannot silently wrap.
func Compute(price, payment *big.Int, feePct uint8) (Split, error) {
	if feePct > MaxPercent {
		return Split{}, ErrInvalidPercent
	}
	if price == nil || price.Sign() <= 0 {
		return Split{}, ErrInvalidPrice
	}
	if payment == nil || payment.Cmp(price) < 0 {
		return Split{}, ErrUnderpaid
	}
	p, overflow := uint256.FromBig(price)
	if overflow {
		return Split{}, ErrOverflow
	}
	paid, overflow := uint256.FromBig(payment)
	if overflow {
		return Split{}, ErrOverflow
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(p, uint256.NewInt(uint64(feePct)), uint256.NewInt(MaxPercent))
	if overflow {
		return Split{}, ErrOverflow
	}
	producer := new(uint256.Int).Sub(p, fee)
	refund := new(uint256.Int).Sub(paid, p)
	return Split{
		Price:       p.ToBig(),
		Payment:     paid.ToBig(),
		PlatformFee: fee.ToBig(),
		Producer:    producer.ToBig(),
		Refund:      refund.ToBig(),
	}, nil
}

// Total returns PlatformFee + Producer + Refund.
func (s Split) Total() *big.Int {
	total := big.NewInt(0)
	for _, part := range []*big.Int{s.PlatformFee, s.Producer, s.Refund} {
		if part != nil {
			total.Add(total, part)
		}
	}
	return total
}
