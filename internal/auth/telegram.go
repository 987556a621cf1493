package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("init data signature mismatch")
	ErrExpired      = errors.New("init data too old")
	ErrMalformed    = errors.New("init data malformed")
)

// TelegramUser is the subset of the WebApp user payload the game needs.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName prefers the handle, then the human name, then the raw id.
func (u TelegramUser) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return fmt.Sprintf("player%d", u.ID)
}

// Verifier checks Telegram Mini App init data against a bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier derives the signing secret from the bot token the way the
// Mini Apps protocol defines it: HMAC-SHA256 of the token keyed with the
// constant string "WebAppData".
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Verifier{secret: mac.Sum(nil), maxAge: maxAge, now: time.Now}
}

// Verify authenticates a raw initData query string and returns the embedded
// user. The signature covers every field except hash itself, joined as
// key=value lines in lexicographic key order.
func (v *Verifier) Verify(initData string) (TelegramUser, error) {
	var user TelegramUser
	values, err := url.ParseQuery(initData)
	if err != nil {
		return user, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return user, fmt.Errorf("%w: missing hash", ErrMalformed)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(gotHash)) {
		return user, ErrBadSignature
	}

	if authDate := values.Get("auth_date"); authDate != "" {
		var unix int64
		if _, err := fmt.Sscanf(authDate, "%d", &unix); err != nil {
			return user, fmt.Errorf("%w: bad auth_date", ErrMalformed)
		}
		if v.now().Sub(time.Unix(unix, 0)) > v.maxAge {
			return user, ErrExpired
		}
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return user, fmt.Errorf("%w: missing user", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return user, fmt.Errorf("%w: bad user payload: %v", ErrMalformed, err)
	}
	if user.ID <= 0 {
		return user, fmt.Errorf("%w: bad user id", ErrMalformed)
	}
	return user, nil
}

// Sign produces the hash for a set of init data fields. Exposed so tests
// and local tooling can mint valid init data without a real Telegram client.
func (v *Verifier) Sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
