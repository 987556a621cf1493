package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/askirya/roxort-app/internal/game"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	BotToken        string
	CatalogPath     string
	InitDataMaxAge  time.Duration
	AutoClickEvery  time.Duration
	RateLimit       int64
	RateLimitWindow time.Duration
	RunOnce         bool
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadAPIFromEnv reads the server configuration. A .env file in the
// working directory is folded in first, without overriding real env vars.
func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("ROXORT_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:       envDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		BotToken:        strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		CatalogPath:     strings.TrimSpace(os.Getenv("ROXORT_CATALOG_PATH")),
		InitDataMaxAge:  envDurationDefault("ROXORT_INITDATA_MAX_AGE", 24*time.Hour),
		AutoClickEvery:  envDurationDefault("ROXORT_AUTOCLICK_EVERY", 5*time.Minute),
		RateLimit:       int64(envIntDefault("ROXORT_RATE_LIMIT", 100)),
		RateLimitWindow: envDurationDefault("ROXORT_RATE_LIMIT_WINDOW", 15*time.Minute),
		RunOnce:         envBoolDefault("RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadRulesFromEnv builds the game balance, starting from the defaults and
// overlaying any env overrides.
func LoadRulesFromEnv() game.Rules {
	r := game.DefaultRules()
	r.BaseClickReward = int64(envIntDefault("ROXORT_CLICK_REWARD", int(r.BaseClickReward)))
	r.ReferralReward = int64(envIntDefault("ROXORT_REFERRAL_REWARD", int(r.ReferralReward)))
	r.FriendReward = int64(envIntDefault("ROXORT_FRIEND_REWARD", int(r.FriendReward)))
	r.ActivationBonus = int64(envIntDefault("ROXORT_ACTIVATION_BONUS", int(r.ActivationBonus)))
	r.MinLevelForReward = int64(envIntDefault("ROXORT_REFERRAL_MIN_LEVEL", int(r.MinLevelForReward)))
	r.MaxReferrals = int64(envIntDefault("ROXORT_MAX_REFERRALS", int(r.MaxReferrals)))
	r.MultiplierStep = envFloatDefault("ROXORT_MULTIPLIER_STEP", r.MultiplierStep)
	r.OfflineInterval = envDurationDefault("ROXORT_OFFLINE_INTERVAL", r.OfflineInterval)

	r.Curve.Base = int64(envIntDefault("ROXORT_CURVE_BASE", int(r.Curve.Base)))
	switch strings.ToLower(envDefault("ROXORT_CURVE", "fixed")) {
	case "linear":
		r.Curve.Kind = game.CurveLinear
	default:
		r.Curve.Kind = game.CurveFixed
	}
	return r
}

func LoadCLIFromEnv() CLIConfig {
	_ = godotenv.Load()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("ROXY_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
