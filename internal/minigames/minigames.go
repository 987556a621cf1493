package minigames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNoSession     = errors.New("no active game session")
	ErrSessionActive = errors.New("game session already active")
	ErrOutOfAttempts = errors.New("no attempts left")
	ErrBadGuess      = errors.New("guess out of range")
)

const (
	guessMin      = 1
	guessMax      = 100
	guessAttempts = 7
	guessTTL      = 10 * time.Minute
	guessBase     = 100

	speedWindow   = 10 * time.Second
	speedPerClick = 2
	// speedMaxClicks is 30 clicks/s over the window; anything above is a
	// doctored client, not a fast finger.
	speedMaxClicks = 300
)

// Wallet is the slice of the game service the minigames need.
type Wallet interface {
	Credit(ctx context.Context, telegramID, amount int64) (int64, error)
}

// Service runs short redis-backed game sessions. Session state lives in
// redis with a TTL, so abandoned games clean themselves up.
type Service struct {
	rdb    *redis.Client
	wallet Wallet
	log    *slog.Logger
	now    func() time.Time
	randFn func(n int) int
}

func NewService(rdb *redis.Client, wallet Wallet, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rdb:    rdb,
		wallet: wallet,
		log:    logger,
		now:    time.Now,
		randFn: rand.Intn,
	}
}

type guessSession struct {
	Target   int `json:"target"`
	Attempts int `json:"attempts"`
}

type GuessStartResult struct {
	Min         int `json:"min"`
	Max         int `json:"max"`
	MaxAttempts int `json:"max_attempts"`
}

type GuessResult struct {
	Hint         string `json:"hint"` // "higher", "lower" or "correct"
	AttemptsLeft int    `json:"attempts_left"`
	Won          bool   `json:"won"`
	Over         bool   `json:"over"`
	Reward       int64  `json:"reward,omitempty"`
	Balance      int64  `json:"balance,omitempty"`
}

// StartGuess opens a number-guessing session. An existing live session is
// an error; the player has to play it out or let it expire.
func (s *Service) StartGuess(ctx context.Context, telegramID int64) (GuessStartResult, error) {
	key := guessKey(telegramID)
	sess := guessSession{
		Target:   guessMin + s.randFn(guessMax-guessMin+1),
		Attempts: 0,
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return GuessStartResult{}, err
	}
	ok, err := s.rdb.SetNX(ctx, key, payload, guessTTL).Result()
	if err != nil {
		return GuessStartResult{}, fmt.Errorf("start guess session: %w", err)
	}
	if !ok {
		return GuessStartResult{}, ErrSessionActive
	}
	return GuessStartResult{Min: guessMin, Max: guessMax, MaxAttempts: guessAttempts}, nil
}

// Guess consumes one attempt. A win pays more the fewer attempts it took:
// base * (1 + remaining/max), floored.
func (s *Service) Guess(ctx context.Context, telegramID int64, guess int) (GuessResult, error) {
	if guess < guessMin || guess > guessMax {
		return GuessResult{}, ErrBadGuess
	}
	key := guessKey(telegramID)
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return GuessResult{}, ErrNoSession
	}
	if err != nil {
		return GuessResult{}, fmt.Errorf("load guess session: %w", err)
	}
	var sess guessSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return GuessResult{}, fmt.Errorf("decode guess session: %w", err)
	}
	if sess.Attempts >= guessAttempts {
		_ = s.rdb.Del(ctx, key).Err()
		return GuessResult{}, ErrOutOfAttempts
	}
	sess.Attempts++

	out := GuessResult{AttemptsLeft: guessAttempts - sess.Attempts}
	switch {
	case guess == sess.Target:
		out.Hint = "correct"
		out.Won = true
		out.Over = true
		out.Reward = guessReward(sess.Attempts)
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return GuessResult{}, err
		}
		balance, err := s.wallet.Credit(ctx, telegramID, out.Reward)
		if err != nil {
			return GuessResult{}, err
		}
		out.Balance = balance
		s.log.Info("guess game won", "telegram_id", telegramID, "attempts", sess.Attempts, "reward", out.Reward)
	case sess.Attempts >= guessAttempts:
		out.Over = true
		if guess < sess.Target {
			out.Hint = "higher"
		} else {
			out.Hint = "lower"
		}
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return GuessResult{}, err
		}
	default:
		if guess < sess.Target {
			out.Hint = "higher"
		} else {
			out.Hint = "lower"
		}
		payload, err := json.Marshal(sess)
		if err != nil {
			return GuessResult{}, err
		}
		if err := s.rdb.Set(ctx, key, payload, redis.KeepTTL).Err(); err != nil {
			return GuessResult{}, fmt.Errorf("save guess session: %w", err)
		}
	}
	return out, nil
}

type SpeedStartResult struct {
	WindowSeconds int    `json:"window_seconds"`
	Deadline      int64  `json:"deadline"`
	Note          string `json:"note"`
}

type SpeedResult struct {
	Clicks  int64 `json:"clicks"`
	Reward  int64 `json:"reward"`
	Balance int64 `json:"balance"`
}

// StartSpeed opens a speed-clicking window. The session key's TTL is the
// window itself plus a small grace for network latency on the finish call.
func (s *Service) StartSpeed(ctx context.Context, telegramID int64) (SpeedStartResult, error) {
	deadline := s.now().Add(speedWindow)
	ok, err := s.rdb.SetNX(ctx, speedKey(telegramID), deadline.Unix(), speedWindow+3*time.Second).Result()
	if err != nil {
		return SpeedStartResult{}, fmt.Errorf("start speed session: %w", err)
	}
	if !ok {
		return SpeedStartResult{}, ErrSessionActive
	}
	return SpeedStartResult{
		WindowSeconds: int(speedWindow.Seconds()),
		Deadline:      deadline.Unix(),
		Note:          "click as fast as you can",
	}, nil
}

// FinishSpeed settles a speed session: 2 currency per reported click, with
// the click count capped server-side.
func (s *Service) FinishSpeed(ctx context.Context, telegramID int64, clicks int64) (SpeedResult, error) {
	key := speedKey(telegramID)
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return SpeedResult{}, fmt.Errorf("finish speed session: %w", err)
	}
	if deleted == 0 {
		return SpeedResult{}, ErrNoSession
	}
	reward := speedReward(clicks)
	balance, err := s.wallet.Credit(ctx, telegramID, reward)
	if err != nil {
		return SpeedResult{}, err
	}
	s.log.Info("speed game settled", "telegram_id", telegramID, "clicks", clicks, "reward", reward)
	return SpeedResult{Clicks: clicks, Reward: reward, Balance: balance}, nil
}

// guessReward scales the base payout by how many attempts were left:
// base * (1 + remaining/max), with integer flooring.
func guessReward(attemptsUsed int) int64 {
	remaining := guessAttempts - attemptsUsed
	if remaining < 0 {
		remaining = 0
	}
	return int64(guessBase * (guessAttempts + remaining) / guessAttempts)
}

func speedReward(clicks int64) int64 {
	if clicks < 0 {
		clicks = 0
	}
	if clicks > speedMaxClicks {
		clicks = speedMaxClicks
	}
	return clicks * speedPerClick
}

func guessKey(telegramID int64) string {
	return fmt.Sprintf("minigame:guess:%d", telegramID)
}

func speedKey(telegramID int64) string {
	return fmt.Sprintf("minigame:speed:%d", telegramID)
}
