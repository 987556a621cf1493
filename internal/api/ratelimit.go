package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed per authenticated player.
// Redis being down must never take the game down with it, so any limiter
// error lets the request through.
type RateLimiter struct {
	rdb    *redis.Client
	log    *slog.Logger
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, logger *slog.Logger, limit int64, window time.Duration) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{rdb: rdb, log: logger, limit: limit, window: window}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		window := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("ratelimit:%d:%d", user.TelegramID, window)

		pipe := rl.rdb.TxPipeline()
		count := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, rl.window)
		if _, err := pipe.Exec(r.Context()); err != nil {
			rl.log.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count.Val() > rl.limit {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
