package game

import (
	"errors"
	"math"
	"time"
)

const (
	// DefaultMaxReferrals caps how many players one referrer can recruit.
	DefaultMaxReferrals = int64(10)

	DefaultReferralReward    = int64(100)
	DefaultFriendReward      = int64(50)
	DefaultMinLevelForReward = int64(5)

	DefaultBaseClickReward    = int64(1)
	DefaultExperiencePerLevel = int64(100)
	DefaultMultiplierStep     = 0.1
	DefaultOfflineInterval    = 5 * time.Minute

	// MaxTapsPerClick bounds one click batch; the row lock is held for the
	// whole batch, so it has to stay small.
	MaxTapsPerClick = int64(10_000)

	// maxSaveExperience bounds client-submitted experience. Engine writes
	// never leave more than one threshold pending, so anything beyond this
	// is a corrupt blob, and the linear curve resolves a burst level by
	// level.
	maxSaveExperience = int64(1_000_000_000)
)

var (
	ErrPlayerNotFound       = errors.New("player not found")
	ErrUnknownUpgrade       = errors.New("unknown upgrade")
	ErrAlreadyOwned         = errors.New("upgrade already owned")
	ErrInsufficientFunds    = errors.New("insufficient roxy")
	ErrInvalidCode          = errors.New("invalid referral code")
	ErrSelfReferral         = errors.New("cannot activate your own referral code")
	ErrAlreadyReferred      = errors.New("player already has a referrer")
	ErrReferrerNotFound     = errors.New("referrer not found")
	ErrReferralCapacity     = errors.New("referrer has reached maximum referrals")
	ErrNoReferrer           = errors.New("player has no referrer")
	ErrAlreadyClaimed       = errors.New("referral reward already claimed")
	ErrLevelTooLow          = errors.New("level too low to claim referral reward")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrTooManyTaps          = errors.New("too many taps in one batch")
)

// State is one player's full progression snapshot. Currency is whole ROXY;
// click rewards are floored before crediting so nothing fractional is lost.
// Multiplier carries only the level-derived bonus; upgrade multipliers are
// applied at reward time from the owned sequence.
type State struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`

	Currency   int64   `json:"roxy"`
	Clicks     int64   `json:"clicks"`
	Level      int64   `json:"level"`
	Experience int64   `json:"experience"`
	Multiplier float64 `json:"multiplier"`

	// Upgrades is the ordered purchase sequence; a repeated id is a higher
	// tier instance of the same upgrade.
	Upgrades []string `json:"upgrades"`

	ReferralCode          string `json:"referral_code,omitempty"`
	ReferrerID            int64  `json:"referrer_id,omitempty"`
	ReferralRewardClaimed bool   `json:"referral_reward_claimed"`
}

// NewState returns the default state for a first-contact player.
func NewState(telegramID int64, username string) State {
	return State{
		TelegramID: telegramID,
		Username:   username,
		Level:      1,
		Multiplier: 1.0,
	}
}

// CurveKind selects the leveling threshold strategy.
type CurveKind string

const (
	// CurveFixed uses a constant experience threshold per level.
	CurveFixed CurveKind = "fixed"
	// CurveLinear scales the threshold with the current level.
	CurveLinear CurveKind = "linear"
)

// Curve computes the experience required to leave a given level.
type Curve struct {
	Kind CurveKind
	Base int64
}

func (c Curve) ThresholdFor(level int64) int64 {
	base := c.Base
	if base <= 0 {
		base = DefaultExperiencePerLevel
	}
	if c.Kind == CurveLinear {
		return level * base
	}
	return base
}

// Rules holds every tunable the progression engine and referral ledger use.
type Rules struct {
	BaseClickReward int64
	MultiplierStep  float64
	Curve           Curve
	OfflineInterval time.Duration

	MaxReferrals      int64
	ReferralReward    int64
	FriendReward      int64
	MinLevelForReward int64
	// ActivationBonus, when positive, is granted to the referred player the
	// moment a code activates. Zero keeps activation reward-free and leaves
	// the one-time claim as the only payout path.
	ActivationBonus int64
}

// DefaultRules mirrors the shipped game balance.
func DefaultRules() Rules {
	return Rules{
		BaseClickReward:   DefaultBaseClickReward,
		MultiplierStep:    DefaultMultiplierStep,
		Curve:             Curve{Kind: CurveFixed, Base: DefaultExperiencePerLevel},
		OfflineInterval:   DefaultOfflineInterval,
		MaxReferrals:      DefaultMaxReferrals,
		ReferralReward:    DefaultReferralReward,
		FriendReward:      DefaultFriendReward,
		MinLevelForReward: DefaultMinLevelForReward,
		ActivationBonus:   0,
	}
}

// ClickReward computes the payout of a single tap without mutating state:
// base reward times the level multiplier times the product of every owned
// upgrade's multiplier, floored to whole ROXY. The product saturates at
// MaxInt64; a deep enough upgrade stack must never wrap the conversion
// negative.
func ClickReward(st *State, r Rules, cat *Catalog) int64 {
	reward := float64(r.BaseClickReward) * st.Multiplier
	for _, id := range st.Upgrades {
		if up, ok := cat.Get(id); ok {
			reward *= up.Multiplier
		}
	}
	if reward >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	if reward < 0 {
		return 0
	}
	return int64(math.Floor(reward))
}

// ApplyClick credits one tap and returns the reward granted. Callers are
// expected to follow with ResolveLevelUps.
func ApplyClick(st *State, r Rules, cat *Catalog) int64 {
	reward := ClickReward(st, r, cat)
	st.Currency = saturatingAdd(st.Currency, reward)
	st.Clicks++
	st.Experience++
	return reward
}

// validateTaps bounds one click batch.
func validateTaps(taps int64) error {
	if taps <= 0 {
		return errors.New("taps must be > 0")
	}
	if taps > MaxTapsPerClick {
		return ErrTooManyTaps
	}
	return nil
}

// saturatingAdd adds two non-negative amounts, clamping at MaxInt64 instead
// of wrapping.
func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ResolveLevelUps drains accumulated experience across as many thresholds as
// it covers, carrying the remainder forward. Returns the number of levels
// gained. Post-condition: Experience < ThresholdFor(Level). The fixed curve
// resolves a whole burst in one division, so a huge experience value costs
// the same as a small one.
func ResolveLevelUps(st *State, r Rules) int {
	var gained int64
	if r.Curve.Kind == CurveLinear {
		for st.Experience >= r.Curve.ThresholdFor(st.Level) {
			st.Experience -= r.Curve.ThresholdFor(st.Level)
			st.Level++
			gained++
		}
	} else if th := r.Curve.ThresholdFor(st.Level); st.Experience >= th {
		gained = st.Experience / th
		st.Experience -= gained * th
		st.Level += gained
	}
	st.Multiplier += r.MultiplierStep * float64(gained)
	return int(gained)
}

// OfflineReward is the passive credit for time spent away: one base click
// reward per full interval elapsed. Below one interval it pays nothing.
func OfflineReward(elapsed time.Duration, r Rules) int64 {
	if r.OfflineInterval <= 0 || elapsed < r.OfflineInterval {
		return 0
	}
	return int64(elapsed/r.OfflineInterval) * r.BaseClickReward
}

// Normalize clamps a client-submitted snapshot back into the invariant
// envelope: no negative counters, level at least 1, any experience overflow
// resolved into levels, and the multiplier rebuilt from the level so a
// doctored snapshot cannot smuggle one in.
func Normalize(st *State, r Rules) {
	if st.Currency < 0 {
		st.Currency = 0
	}
	if st.Clicks < 0 {
		st.Clicks = 0
	}
	if st.Experience < 0 {
		st.Experience = 0
	}
	if st.Experience > maxSaveExperience {
		st.Experience = maxSaveExperience
	}
	if st.Level < 1 {
		st.Level = 1
	}
	ResolveLevelUps(st, r)
	st.Multiplier = 1.0 + r.MultiplierStep*float64(st.Level-1)
}

// Achievement is a derived badge, never stored: it is recomputed from the
// snapshot on every read.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type achievementDef struct {
	id, name, description string
	test                  func(*State) bool
}

var achievementDefs = []achievementDef{
	{"clicks_100", "Beginner Clicker", "Make 100 clicks", func(s *State) bool { return s.Clicks >= 100 }},
	{"clicks_1000", "Seasoned Clicker", "Make 1,000 clicks", func(s *State) bool { return s.Clicks >= 1000 }},
	{"level_10", "First Steps", "Reach level 10", func(s *State) bool { return s.Level >= 10 }},
	{"roxy_1000", "High Roller", "Hold 1,000 ROXY", func(s *State) bool { return s.Currency >= 1000 }},
	{"upgrades_3", "Collector", "Buy 3 upgrades", func(s *State) bool { return len(s.Upgrades) >= 3 }},
}

// Achievements evaluates every badge against the snapshot.
func Achievements(st *State) []Achievement {
	out := make([]Achievement, 0, len(achievementDefs))
	for _, def := range achievementDefs {
		out = append(out, Achievement{
			ID:          def.id,
			Name:        def.name,
			Description: def.description,
			Completed:   def.test(st),
		})
	}
	return out
}
