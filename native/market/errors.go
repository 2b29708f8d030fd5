package market

import "errors"

var (
	ErrInvalidInput        = errors.New("market: invalid input")
	ErrInvalidAmount       = errors.New("market: amount must be positive")
	ErrUnauthorized        = errors.New("market: unauthorized")
	ErrInsufficientPayment = errors.New("market: insufficient payment")
	ErrInsufficientFunds   = errors.New("market: insufficient funds")
	ErrInsufficientRewards = errors.New("market: insufficient rewards in pool")
	ErrDatasetNotActive    = errors.New("market: dataset not active")
	ErrAccessExpired       = errors.New("market: access expired")
	ErrAccessLimitReached  = errors.New("market: access limit reached")
	ErrInvalidPricingModel = errors.New("market: invalid pricing model")

	ErrDatasetNotFound = errors.New("market: dataset not found")
	ErrTokenNotFound   = errors.New("market: access token not found")
	ErrStakeNotFound   = errors.New("market: stake not found")

	ErrNotInitialized = errors.New("market: marketplace not initialised")
	ErrPoolImbalance  = errors.New("market: reward pool does not reconcile")

	errNilState = errors.New("market engine: state not configured")
)
