package game

type LoadResult struct {
	State State `json:"state"`
	// OfflineReward is the passive credit granted by this load for the gap
	// since the last save, already included in State.Currency.
	OfflineReward int64 `json:"offline_reward"`
}

type ClickInput struct {
	TelegramID     int64
	Taps           int64
	IdempotencyKey string
}

type ClickResult struct {
	Reward       int64 `json:"reward"`
	LevelsGained int   `json:"levels_gained"`
	State        State `json:"state"`
}

type PurchaseInput struct {
	TelegramID     int64
	UpgradeID      string
	IdempotencyKey string
}

type PurchaseResult struct {
	UpgradeID string `json:"upgrade_id"`
	Price     int64  `json:"price"`
	Tier      int    `json:"tier"`
	State     State  `json:"state"`
}

type ActivateInput struct {
	TelegramID     int64
	Code           string
	IdempotencyKey string
}

type ActivateResult struct {
	ReferrerID       int64  `json:"referrer_id"`
	ReferrerUsername string `json:"referrer_username"`
	Bonus            int64  `json:"bonus"`
}

type ClaimInput struct {
	TelegramID     int64
	IdempotencyKey string
}

type ClaimResult struct {
	PlayerReward   int64 `json:"player_reward"`
	ReferrerReward int64 `json:"referrer_reward"`
}

type ReferralInfo struct {
	Code          string `json:"referral_code"`
	ReferralCount int64  `json:"referral_count"`
	MaxReferrals  int64  `json:"max_referrals"`
	RewardClaimed bool   `json:"reward_claimed"`
}

type ReferralRow struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	Level      int64  `json:"level"`
	Currency   int64  `json:"roxy"`
}

type LeaderboardRow struct {
	Rank       int64  `json:"rank"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	Currency   int64  `json:"roxy"`
	Level      int64  `json:"level"`
}
