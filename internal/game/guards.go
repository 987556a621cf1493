package game

// The referral and purchase preconditions are factored out of the
// transaction closures so the precondition ordering is testable without a
// database. Each guard receives exactly what the service reads under its
// row locks.

// activateGuard checks referral activation against a locked pair of rows.
// referredReferrer is the referred player's current link, nil when unset;
// referrerExists reports whether the code's embedded id matched a row.
func activateGuard(referredReferrer *int64, referredID, referrerID int64, referrerExists bool, activeCount, maxReferrals int64) error {
	if referredReferrer != nil {
		return ErrAlreadyReferred
	}
	if referrerID == referredID {
		return ErrSelfReferral
	}
	if !referrerExists {
		return ErrReferrerNotFound
	}
	if activeCount >= maxReferrals {
		return ErrReferralCapacity
	}
	return nil
}

// claimGuard checks the one-time reward claim against the locked rows.
func claimGuard(claimed bool, level, minLevel int64, referrerExists bool) error {
	if claimed {
		return ErrAlreadyClaimed
	}
	if level < minLevel {
		return ErrLevelTooLow
	}
	if !referrerExists {
		return ErrReferrerNotFound
	}
	return nil
}

// purchaseGuard checks an upgrade purchase against the locked state.
// timesOwned counts tiers of this upgrade already in the sequence.
func purchaseGuard(timesOwned int, stackable bool, currency, price int64) error {
	if timesOwned > 0 && !stackable {
		return ErrAlreadyOwned
	}
	if currency < price {
		return ErrInsufficientFunds
	}
	return nil
}
