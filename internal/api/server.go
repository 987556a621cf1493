package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/askirya/roxort-app/internal/auth"
	"github.com/askirya/roxort-app/internal/config"
	"github.com/askirya/roxort-app/internal/game"
	"github.com/askirya/roxort-app/internal/minigames"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	TelegramID int64
	Username   string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	verifier *auth.Verifier
	game     *game.Service
	games    *minigames.Service
	limiter  *RateLimiter
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, verifier *auth.Verifier, gameSvc *game.Service, miniSvc *minigames.Service, limiter *RateLimiter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		verifier: verifier,
		game:     gameSvc,
		games:    miniSvc,
		limiter:  limiter,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Get("/state", s.handleState)
		r.Post("/state/save", s.handleSaveState)
		r.Post("/click", s.handleClick)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/achievements", s.handleAchievements)

		r.Get("/shop/upgrades", s.handleShopUpgrades)
		r.Get("/shop/prices", s.handleShopPrices)
		r.Post("/shop/buy/{upgradeID}", s.handleShopBuy)

		r.Get("/referral/code", s.handleReferralCode)
		r.Post("/referral/activate", s.handleReferralActivate)
		r.Get("/referral/list", s.handleReferralList)
		r.Post("/referral/claim", s.handleReferralClaim)

		r.Post("/minigames/guess/start", s.handleGuessStart)
		r.Post("/minigames/guess/attempt", s.handleGuessAttempt)
		r.Post("/minigames/speed/start", s.handleSpeedStart)
		r.Post("/minigames/speed/finish", s.handleSpeedFinish)
	})
}

// authMiddleware authenticates Telegram Mini App init data carried as
// "Authorization: tma <initData>" and upserts the player row on first
// contact. When no bot token is configured (local dev), a plain numeric
// X-Debug-User header stands in for the whole handshake.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user auth.TelegramUser
		if s.verifier == nil {
			id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Debug-User")), 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusUnauthorized, "auth not configured; set X-Debug-User")
				return
			}
			user = auth.TelegramUser{ID: id, Username: fmt.Sprintf("debug%d", id)}
		} else {
			initData := tmaToken(r.Header.Get("Authorization"))
			if initData == "" {
				writeError(w, http.StatusUnauthorized, "missing tma authorization")
				return
			}
			var err error
			user, err = s.verifier.Verify(initData)
			if err != nil {
				writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid init data: %v", err))
				return
			}
		}
		if err := s.game.EnsurePlayer(r.Context(), user.ID, user.DisplayName()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			TelegramID: user.ID,
			Username:   user.DisplayName(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.TelegramID == 0 {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.LoadState(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in game.State
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.SaveState(r.Context(), user.TelegramID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Taps int64 `json:"taps"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Taps <= 0 {
		in.Taps = 1
	}
	out, err := s.game.Click(r.Context(), game.ClickInput{
		TelegramID:     user.TelegramID,
		Taps:           in.Taps,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	out, err := s.game.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.PlayerAchievements(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": out})
}

func (s *Server) handleShopUpgrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": s.game.Catalog().List()})
}

func (s *Server) handleShopPrices(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Prices(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}

func (s *Server) handleShopBuy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Purchase(r.Context(), game.PurchaseInput{
		TelegramID:     user.TelegramID,
		UpgradeID:      chi.URLParam(r, "upgradeID"),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferralCode(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ReferralInfo(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferralActivate(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Activate(r.Context(), game.ActivateInput{
		TelegramID:     user.TelegramID,
		Code:           strings.TrimSpace(in.Code),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferralList(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListReferrals(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"referrals": out})
}

func (s *Server) handleReferralClaim(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Claim(r.Context(), game.ClaimInput{
		TelegramID:     user.TelegramID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGuessStart(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.games.StartGuess(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGuessAttempt(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Guess int `json:"guess"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.games.Guess(r.Context(), user.TelegramID, in.Guess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpeedStart(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.games.StartSpeed(r.Context(), user.TelegramID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpeedFinish(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Clicks int64 `json:"clicks"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.games.FinishSpeed(r.Context(), user.TelegramID, in.Clicks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrUnknownUpgrade):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrAlreadyOwned),
		errors.Is(err, game.ErrInvalidCode),
		errors.Is(err, game.ErrSelfReferral),
		errors.Is(err, game.ErrTooManyTaps),
		errors.Is(err, game.ErrLevelTooLow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrAlreadyReferred),
		errors.Is(err, game.ErrAlreadyClaimed),
		errors.Is(err, game.ErrReferralCapacity),
		errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrReferrerNotFound),
		errors.Is(err, game.ErrNoReferrer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, minigames.ErrNoSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, minigames.ErrSessionActive),
		errors.Is(err, minigames.ErrOutOfAttempts):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, minigames.ErrBadGuess):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func tmaToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "tma") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
