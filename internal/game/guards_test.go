package game

import (
	"errors"
	"testing"
)

func ref(id int64) *int64 { return &id }

func TestActivateGuard(t *testing.T) {
	const self, referrer = int64(2), int64(1)
	tests := []struct {
		name             string
		referredReferrer *int64
		referrerID       int64
		referrerExists   bool
		count            int64
		want             error
	}{
		{name: "ok", referrerID: referrer, referrerExists: true, count: 0, want: nil},
		{name: "ok at last slot", referrerID: referrer, referrerExists: true, count: 9, want: nil},
		{name: "already referred", referredReferrer: ref(99), referrerID: referrer, referrerExists: true, want: ErrAlreadyReferred},
		{name: "self referral", referrerID: self, referrerExists: true, want: ErrSelfReferral},
		{name: "referrer missing", referrerID: referrer, referrerExists: false, want: ErrReferrerNotFound},
		{name: "capacity full", referrerID: referrer, referrerExists: true, count: 10, want: ErrReferralCapacity},
		{name: "capacity overrun", referrerID: referrer, referrerExists: true, count: 11, want: ErrReferralCapacity},
		// a linked player is rejected before the self check
		{name: "already referred wins over self", referredReferrer: ref(99), referrerID: self, referrerExists: true, want: ErrAlreadyReferred},
	}
	for _, tc := range tests {
		got := activateGuard(tc.referredReferrer, self, tc.referrerID, tc.referrerExists, tc.count, DefaultMaxReferrals)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestClaimGuard(t *testing.T) {
	tests := []struct {
		name           string
		claimed        bool
		level          int64
		referrerExists bool
		want           error
	}{
		{name: "ok at min level", level: 5, referrerExists: true, want: nil},
		{name: "ok above min level", level: 12, referrerExists: true, want: nil},
		{name: "double claim", claimed: true, level: 12, referrerExists: true, want: ErrAlreadyClaimed},
		{name: "level too low", level: 4, referrerExists: true, want: ErrLevelTooLow},
		{name: "referrer row gone", level: 5, referrerExists: false, want: ErrReferrerNotFound},
		// a completed claim wins over every later check
		{name: "double claim at low level", claimed: true, level: 1, referrerExists: true, want: ErrAlreadyClaimed},
	}
	for _, tc := range tests {
		got := claimGuard(tc.claimed, tc.level, DefaultMinLevelForReward, tc.referrerExists)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPurchaseGuard(t *testing.T) {
	tests := []struct {
		name      string
		owned     int
		stackable bool
		currency  int64
		price     int64
		want      error
	}{
		{name: "exact funds", owned: 0, stackable: true, currency: 100, price: 100, want: nil},
		{name: "one short", owned: 0, stackable: true, currency: 99, price: 100, want: ErrInsufficientFunds},
		{name: "restack allowed", owned: 3, stackable: true, currency: 1000, price: 337, want: nil},
		{name: "non-stackable repeat", owned: 1, stackable: false, currency: 10_000, price: 2000, want: ErrAlreadyOwned},
		{name: "non-stackable first buy", owned: 0, stackable: false, currency: 2000, price: 2000, want: nil},
		// ownership is checked before affordability
		{name: "repeat wins over funds", owned: 1, stackable: false, currency: 0, price: 2000, want: ErrAlreadyOwned},
	}
	for _, tc := range tests {
		got := purchaseGuard(tc.owned, tc.stackable, tc.currency, tc.price)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
