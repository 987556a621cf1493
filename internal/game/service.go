package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Events receives best-effort notifications after a transaction commits.
// Implementations must not block for long and must never fail the operation.
type Events interface {
	ReferralActivated(ctx context.Context, referrerID int64, referredUsername string)
	RewardClaimed(ctx context.Context, referrerID, referredID, referrerReward int64)
	LeveledUp(ctx context.Context, telegramID, newLevel int64)
}

type Service struct {
	db     *pgxpool.Pool
	log    *slog.Logger
	rules  Rules
	cat    *Catalog
	events Events
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, rules Rules, cat *Catalog) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = DefaultCatalog()
	}
	return &Service{
		db:    db,
		log:   logger,
		rules: rules,
		cat:   cat,
	}
}

// SetEvents wires the post-commit notification sink. Nil disables it.
func (s *Service) SetEvents(ev Events) { s.events = ev }

// Rules exposes the active game balance (read-only).
func (s *Service) Rules() Rules { return s.rules }

// Catalog exposes the upgrade table (read-only).
func (s *Service) Catalog() *Catalog { return s.cat }

// EnsurePlayer creates the row for a first-contact principal, with defaults
// and a referral code, and refreshes the username on later contacts.
func (s *Service) EnsurePlayer(ctx context.Context, telegramID int64, username string) error {
	code, err := GenerateCode(telegramID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO players (telegram_id, username, level, multiplier, referral_code)
		VALUES ($1, $2, 1, 1.0, $3)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = COALESCE(NULLIF(EXCLUDED.username, ''), players.username)
	`, telegramID, strings.TrimSpace(username), code)
	return err
}

// LoadState reads one player's snapshot. When the gap since the last save
// exceeds the offline interval, the proportional passive reward is credited
// inside the same transaction before the state is returned.
func (s *Service) LoadState(ctx context.Context, telegramID int64) (LoadResult, error) {
	var out LoadResult
	err := s.inTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		st, lastActive, err := lockPlayerTx(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		out.OfflineReward = OfflineReward(time.Since(lastActive), s.rules)
		st.Currency += out.OfflineReward
		if _, err := tx.Exec(ctx, `
			UPDATE players SET currency = $1, last_active = now()
			WHERE telegram_id = $2
		`, st.Currency, telegramID); err != nil {
			return err
		}
		out.State = st
		return nil
	})
	return out, err
}

// SaveState accepts a client-submitted progression blob wholesale, clamped
// back into the invariant envelope. Referral fields are server-owned and
// ignored; unknown upgrade ids are dropped.
func (s *Service) SaveState(ctx context.Context, telegramID int64, st State) (State, error) {
	st.TelegramID = telegramID
	Normalize(&st, s.rules)
	owned := make([]string, 0, len(st.Upgrades))
	for _, id := range st.Upgrades {
		if _, ok := s.cat.Get(id); ok {
			owned = append(owned, id)
		}
	}
	st.Upgrades = owned

	err := s.inTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		cur, _, err := lockPlayerTx(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		if err := writeProgressionTx(ctx, tx, &st); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM upgrade_purchases WHERE telegram_id = $1`, telegramID); err != nil {
			return err
		}
		for _, id := range owned {
			if _, err := tx.Exec(ctx, `
				INSERT INTO upgrade_purchases (telegram_id, upgrade_id)
				VALUES ($1, $2)
			`, telegramID, id); err != nil {
				return err
			}
		}
		// server-owned fields flow back to the caller untouched
		st.Username = cur.Username
		st.ReferralCode = cur.ReferralCode
		st.ReferrerID = cur.ReferrerID
		st.ReferralRewardClaimed = cur.ReferralRewardClaimed
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return st, nil
}

// Click applies a batch of taps through the progression engine.
func (s *Service) Click(ctx context.Context, in ClickInput) (ClickResult, error) {
	var out ClickResult
	if err := validateTaps(in.Taps); err != nil {
		return out, err
	}
	err := s.inTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.TelegramID, in.IdempotencyKey, "click"); err != nil {
			return err
		}
		st, _, err := lockPlayerTx(ctx, tx, in.TelegramID)
		if err != nil {
			return err
		}
		out = ClickResult{}
		for i := int64(0); i < in.Taps; i++ {
			out.Reward += ApplyClick(&st, s.rules, s.cat)
			out.LevelsGained += ResolveLevelUps(&st, s.rules)
		}
		if err := writeProgressionTx(ctx, tx, &st); err != nil {
			return err
		}
		out.State = st
		return nil
	})
	if err != nil {
		return ClickResult{}, err
	}
	if out.LevelsGained > 0 && s.events != nil {
		s.events.LeveledUp(ctx, in.TelegramID, out.State.Level)
	}
	return out, nil
}

// Purchase buys the next tier of an upgrade. Currency is never partially
// deducted: price, tier row and state commit together or not at all.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	var out PurchaseResult
	up, ok := s.cat.Get(in.UpgradeID)
	if !ok {
		return out, ErrUnknownUpgrade
	}
	err := s.inTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.TelegramID, in.IdempotencyKey, "purchase"); err != nil {
			return err
		}
		st, _, err := lockPlayerTx(ctx, tx, in.TelegramID)
		if err != nil {
			return err
		}
		owned := 0
		for _, id := range st.Upgrades {
			if id == up.ID {
				owned++
			}
		}
		price, err := s.cat.PriceOf(up.ID, owned)
		if err != nil {
			return err
		}
		if err := purchaseGuard(owned, up.Stackable, st.Currency, price); err != nil {
			return err
		}
		st.Currency -= price
		st.Upgrades = append(st.Upgrades, up.ID)
		if _, err := tx.Exec(ctx, `
			INSERT INTO upgrade_purchases (telegram_id, upgrade_id)
			VALUES ($1, $2)
		`, in.TelegramID, up.ID); err != nil {
			return err
		}
		if err := writeProgressionTx(ctx, tx, &st); err != nil {
			return err
		}
		out = PurchaseResult{UpgradeID: up.ID, Price: price, Tier: owned + 1, State: st}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return out, nil
}

// Prices returns the next-tier cost of every catalog upgrade for one player.
func (s *Service) Prices(ctx context.Context, telegramID int64) (map[string]int64, error) {
	if err := s.playerExists(ctx, telegramID); err != nil {
		return nil, err
	}
	owned, err := s.ownedUpgrades(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.cat.Prices(owned), nil
}

// ReferralInfo returns the player's shareable code (generated and persisted
// lazily on first need) plus recruit count and capacity.
func (s *Service) ReferralInfo(ctx context.Context, telegramID int64) (ReferralInfo, error) {
	var out ReferralInfo
	var code *string
	err := s.db.QueryRow(ctx, `
		SELECT p.referral_code,
		       (SELECT COUNT(*) FROM players r WHERE r.referrer_id = p.telegram_id),
		       p.referral_reward_claimed
		FROM players p
		WHERE p.telegram_id = $1
	`, telegramID).Scan(&code, &out.ReferralCount, &out.RewardClaimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, ErrPlayerNotFound
		}
		return out, err
	}
	out.MaxReferrals = s.rules.MaxReferrals
	if code != nil && *code != "" {
		out.Code = *code
		return out, nil
	}
	generated, err := GenerateCode(telegramID)
	if err != nil {
		return out, err
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE players SET referral_code = $1
		WHERE telegram_id = $2 AND referral_code IS NULL
	`, generated, telegramID); err != nil {
		return out, err
	}
	// re-read in case a concurrent request won the lazy generation
	if err := s.db.QueryRow(ctx, `
		SELECT referral_code FROM players WHERE telegram_id = $1
	`, telegramID).Scan(&out.Code); err != nil {
		return out, err
	}
	return out, nil
}

// Activate links a referred player to the referrer embedded in the code.
// Both player rows are locked in id order before the capacity check, so
// concurrent activations racing for the last slot serialize instead of
// overrunning the cap.
func (s *Service) Activate(ctx context.Context, in ActivateInput) (ActivateResult, error) {
	var out ActivateResult
	referrerID, err := ParseCode(in.Code)
	if err != nil {
		return out, err
	}
	err = s.inTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.TelegramID, in.IdempotencyKey, "referral_activate"); err != nil {
			return err
		}
		type row struct {
			id       int64
			username string
			referrer *int64
		}
		rows, err := tx.Query(ctx, `
			SELECT telegram_id, username, referrer_id
			FROM players
			WHERE telegram_id = ANY($1::bigint[])
			ORDER BY telegram_id
			FOR UPDATE
		`, []int64{in.TelegramID, referrerID})
		if err != nil {
			return err
		}
		found := make(map[int64]row, 2)
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.username, &r.referrer); err != nil {
				rows.Close()
				return err
			}
			found[r.id] = r
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		referred, ok := found[in.TelegramID]
		if !ok {
			return ErrPlayerNotFound
		}
		referrer, referrerExists := found[referrerID]

		var count int64
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM players WHERE referrer_id = $1
		`, referrerID).Scan(&count); err != nil {
			return err
		}
		if err := activateGuard(referred.referrer, in.TelegramID, referrerID, referrerExists, count, s.rules.MaxReferrals); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE players
			SET referrer_id = $1, currency = currency + $2
			WHERE telegram_id = $3
		`, referrerID, s.rules.ActivationBonus, in.TelegramID); err != nil {
			return err
		}
		out = ActivateResult{
			ReferrerID:       referrerID,
			ReferrerUsername: referrer.username,
			Bonus:            s.rules.ActivationBonus,
		}
		return nil
	})
	if err != nil {
		return ActivateResult{}, err
	}
	if s.events != nil {
		var username string
		_ = s.db.QueryRow(ctx, `SELECT username FROM players WHERE telegram_id = $1`, in.TelegramID).Scan(&username)
		s.events.ReferralActivated(ctx, referrerID, username)
	}
	return out, nil
}

// Claim converts a pending referral link into the one-time two-sided payout.
// A repeat call fails AlreadyClaimed and changes no balance.
func (s *Service) Claim(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	var out ClaimResult
	var referrerID int64
	err := s.inTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.TelegramID, in.IdempotencyKey, "referral_claim"); err != nil {
			return err
		}
		var ref *int64
		if err := tx.QueryRow(ctx, `
			SELECT referrer_id FROM players WHERE telegram_id = $1
		`, in.TelegramID).Scan(&ref); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPlayerNotFound
			}
			return err
		}
		if ref == nil {
			return ErrNoReferrer
		}
		referrerID = *ref

		// lock both rows in id order, then re-verify under the lock
		rows, err := tx.Query(ctx, `
			SELECT telegram_id, level, referral_reward_claimed
			FROM players
			WHERE telegram_id = ANY($1::bigint[])
			ORDER BY telegram_id
			FOR UPDATE
		`, []int64{in.TelegramID, referrerID})
		if err != nil {
			return err
		}
		var level int64
		var claimed bool
		referrerLocked := false
		for rows.Next() {
			var id, lvl int64
			var cl bool
			if err := rows.Scan(&id, &lvl, &cl); err != nil {
				rows.Close()
				return err
			}
			if id == in.TelegramID {
				level, claimed = lvl, cl
			} else {
				referrerLocked = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if err := claimGuard(claimed, level, s.rules.MinLevelForReward, referrerLocked); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE players
			SET currency = currency + $1, referral_reward_claimed = TRUE
			WHERE telegram_id = $2
		`, s.rules.FriendReward, in.TelegramID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE players
			SET currency = currency + $1
			WHERE telegram_id = $2
		`, s.rules.ReferralReward, referrerID); err != nil {
			return err
		}
		out = ClaimResult{PlayerReward: s.rules.FriendReward, ReferrerReward: s.rules.ReferralReward}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	if s.events != nil {
		s.events.RewardClaimed(ctx, referrerID, in.TelegramID, s.rules.ReferralReward)
	}
	return out, nil
}

// ListReferrals returns the players this principal has recruited.
func (s *Service) ListReferrals(ctx context.Context, telegramID int64) ([]ReferralRow, error) {
	if err := s.playerExists(ctx, telegramID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT telegram_id, username, level, currency
		FROM players
		WHERE referrer_id = $1
		ORDER BY created_at
	`, telegramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ReferralRow, 0)
	for rows.Next() {
		var r ReferralRow
		if err := rows.Scan(&r.TelegramID, &r.Username, &r.Level, &r.Currency); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Leaderboard returns the richest players, rank assigned in order.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT telegram_id, username, currency, level
		FROM players
		ORDER BY currency DESC, telegram_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LeaderboardRow, 0, limit)
	var rank int64 = 1
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.TelegramID, &r.Username, &r.Currency, &r.Level); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlayerAchievements evaluates the badge list against the stored snapshot.
func (s *Service) PlayerAchievements(ctx context.Context, telegramID int64) ([]Achievement, error) {
	st, err := s.readState(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return Achievements(&st), nil
}

// Credit adds an earned amount (minigame payouts) and returns the balance.
func (s *Service) Credit(ctx context.Context, telegramID, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be >= 0")
	}
	var balance int64
	err := s.db.QueryRow(ctx, `
		UPDATE players SET currency = currency + $1
		WHERE telegram_id = $2
		RETURNING currency
	`, amount, telegramID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPlayerNotFound
	}
	return balance, err
}

// RunAutoClickTick performs one passive payout pass. Every owned
// auto-clicker tier contributes one engine click for its owner.
func (s *Service) RunAutoClickTick(ctx context.Context) error {
	autoIDs := s.cat.AutoClickerIDs()
	if len(autoIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT telegram_id, COUNT(*)
			FROM upgrade_purchases
			WHERE upgrade_id = ANY($1::text[])
			GROUP BY telegram_id
			ORDER BY telegram_id
		`, autoIDs)
		if err != nil {
			return err
		}
		type owner struct {
			id    int64
			tiers int64
		}
		var owners []owner
		for rows.Next() {
			var o owner
			if err := rows.Scan(&o.id, &o.tiers); err != nil {
				rows.Close()
				return err
			}
			owners = append(owners, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, o := range owners {
			st, _, err := lockPlayerTx(ctx, tx, o.id)
			if err != nil {
				if errors.Is(err, ErrPlayerNotFound) {
					continue
				}
				return err
			}
			for i := int64(0); i < o.tiers; i++ {
				ApplyClick(&st, s.rules, s.cat)
				ResolveLevelUps(&st, s.rules)
			}
			if err := writeProgressionTx(ctx, tx, &st); err != nil {
				return err
			}
		}
		s.log.Info("auto-click tick complete", "owners", len(owners))
		return nil
	})
}

func (s *Service) readState(ctx context.Context, telegramID int64) (State, error) {
	var st State
	var code *string
	var referrer *int64
	err := s.db.QueryRow(ctx, `
		SELECT telegram_id, username, currency, clicks, level, experience,
		       multiplier, referral_code, referrer_id, referral_reward_claimed
		FROM players
		WHERE telegram_id = $1
	`, telegramID).Scan(
		&st.TelegramID, &st.Username, &st.Currency, &st.Clicks, &st.Level,
		&st.Experience, &st.Multiplier, &code, &referrer, &st.ReferralRewardClaimed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, ErrPlayerNotFound
		}
		return st, err
	}
	if code != nil {
		st.ReferralCode = *code
	}
	if referrer != nil {
		st.ReferrerID = *referrer
	}
	st.Upgrades, err = s.ownedUpgrades(ctx, telegramID)
	return st, err
}

func (s *Service) ownedUpgrades(ctx context.Context, telegramID int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT upgrade_id FROM upgrade_purchases
		WHERE telegram_id = $1
		ORDER BY id
	`, telegramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Service) playerExists(ctx context.Context, telegramID int64) error {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM players WHERE telegram_id = $1`, telegramID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPlayerNotFound
	}
	return err
}

// lockPlayerTx reads one player's full state under FOR UPDATE.
func lockPlayerTx(ctx context.Context, tx pgx.Tx, telegramID int64) (State, time.Time, error) {
	var st State
	var lastActive time.Time
	var code *string
	var referrer *int64
	err := tx.QueryRow(ctx, `
		SELECT telegram_id, username, currency, clicks, level, experience,
		       multiplier, referral_code, referrer_id, referral_reward_claimed,
		       last_active
		FROM players
		WHERE telegram_id = $1
		FOR UPDATE
	`, telegramID).Scan(
		&st.TelegramID, &st.Username, &st.Currency, &st.Clicks, &st.Level,
		&st.Experience, &st.Multiplier, &code, &referrer,
		&st.ReferralRewardClaimed, &lastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, lastActive, ErrPlayerNotFound
		}
		return st, lastActive, err
	}
	if code != nil {
		st.ReferralCode = *code
	}
	if referrer != nil {
		st.ReferrerID = *referrer
	}

	rows, err := tx.Query(ctx, `
		SELECT upgrade_id FROM upgrade_purchases
		WHERE telegram_id = $1
		ORDER BY id
	`, telegramID)
	if err != nil {
		return st, lastActive, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return st, lastActive, err
		}
		st.Upgrades = append(st.Upgrades, id)
	}
	return st, lastActive, rows.Err()
}

func writeProgressionTx(ctx context.Context, tx pgx.Tx, st *State) error {
	_, err := tx.Exec(ctx, `
		UPDATE players
		SET currency = $1, clicks = $2, level = $3, experience = $4,
		    multiplier = $5, last_active = now()
		WHERE telegram_id = $6
	`, st.Currency, st.Clicks, st.Level, st.Experience, st.Multiplier, st.TelegramID)
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, telegramID int64, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (telegram_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (telegram_id, key) DO NOTHING
	`, telegramID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// inTx runs fn inside a transaction, retrying serialization failures with
// backoff. Precondition and validation errors pass through untouched.
func (s *Service) inTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
