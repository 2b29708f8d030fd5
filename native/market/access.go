package market

import "fmt"

// grantToken mints the entitlement a purchase of ds buys at now. Subscriptions
// expire after their duration, per-access purchases allow a single use and
// fixed purchases are unlimited.
func grantToken(tx *txn, ds *Dataset, buyer [20]byte) (*AccessToken, error) {
	id, err := tx.state.NextID(SequenceToken)
	if err != nil {
		return nil, err
	}
	token := &AccessToken{
		ID:          id,
		DatasetID:   ds.ID,
		Owner:       buyer,
		PurchasedAt: tx.now,
	}
	switch ds.Pricing {
	case PricingSubscription:
		if ds.SubscriptionDuration == nil || *ds.SubscriptionDuration <= 0 {
			return nil, fmt.Errorf("%w: dataset %d has no subscription duration", ErrInvalidPricingModel, ds.ID)
		}
		expires := tx.now + *ds.SubscriptionDuration
		token.ExpiresAt = &expires
	case PricingPerAccess:
		maxUses := uint64(1)
		token.MaxUses = &maxUses
	}
	if err := tx.state.TokenPut(token); err != nil {
		return nil, err
	}
	return token, nil
}

func (tx *txn) token(id uint64) (*AccessToken, error) {
	token, ok, err := tx.state.TokenGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return token, nil
}

// authorize checks ownership, dataset binding and the expiry and use limits.
func authorize(token *AccessToken, caller [20]byte, datasetID uint64, now int64) error {
	if token.Owner != caller {
		return fmt.Errorf("%w: token %d is not owned by caller", ErrUnauthorized, token.ID)
	}
	if token.DatasetID != datasetID {
		return fmt.Errorf("%w: token %d does not grant dataset %d", ErrUnauthorized, token.ID, datasetID)
	}
	switch token.Status(now) {
	case TokenExpired:
		return fmt.Errorf("%w: token %d expired at %d", ErrAccessExpired, token.ID, *token.ExpiresAt)
	case TokenExhausted:
		return fmt.Errorf("%w: token %d used %d of %d times", ErrAccessLimitReached, token.ID, token.UseCount, *token.MaxUses)
	}
	return nil
}

// ConsumeAccess records one use of a token against datasetID. Validity is
// evaluated on every call; nothing is cached on the token.
func (e *Engine) ConsumeAccess(caller [20]byte, tokenID uint64, datasetID uint64) (*AccessToken, error) {
	var out *AccessToken
	err := e.update(func(tx *txn) error {
		if _, err := tx.activeMarketplace(); err != nil {
			return err
		}
		token, err := tx.token(tokenID)
		if err != nil {
			return err
		}
		if err := authorize(token, caller, datasetID, tx.now); err != nil {
			return err
		}
		ds, err := tx.dataset(datasetID)
		if err != nil {
			return err
		}
		token.UseCount++
		ds.ViewCount++
		if err := tx.state.TokenPut(token); err != nil {
			return err
		}
		if err := tx.state.DatasetPut(ds); err != nil {
			return err
		}
		tx.record(AccessUsedEvent(token, tx.now))
		out = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// CheckAccess runs the same validation as ConsumeAccess without recording a use.
func (e *Engine) CheckAccess(caller [20]byte, tokenID uint64, datasetID uint64) (*AccessToken, error) {
	var out *AccessToken
	err := e.view(func(tx *txn) error {
		token, err := tx.token(tokenID)
		if err != nil {
			return err
		}
		if err := authorize(token, caller, datasetID, tx.now); err != nil {
			return err
		}
		out = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}
