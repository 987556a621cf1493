package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	session Session
}

func NewClient(baseURL string, session Session) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		session: session,
	}
}

func (c *Client) State(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/state", nil, &out, "")
	return out, err
}

func (c *Client) SaveState(ctx context.Context, state map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/state/save", state, &out, "")
	return out, err
}

func (c *Client) Click(ctx context.Context, taps int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/click", map[string]any{
		"taps": taps,
	}, &out, idem)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/api/leaderboard?limit=%d", limit), nil, &out, "")
	return out, err
}

func (c *Client) Achievements(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/achievements", nil, &out, "")
	return out, err
}

func (c *Client) ShopUpgrades(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/shop/upgrades", nil, &out, "")
	return out, err
}

func (c *Client) ShopPrices(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/shop/prices", nil, &out, "")
	return out, err
}

func (c *Client) BuyUpgrade(ctx context.Context, upgradeID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/shop/buy/"+url.PathEscape(upgradeID), map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) ReferralCode(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/referral/code", nil, &out, "")
	return out, err
}

func (c *Client) ActivateReferral(ctx context.Context, code, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/referral/activate", map[string]any{
		"code": code,
	}, &out, idem)
	return out, err
}

func (c *Client) ListReferrals(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/referral/list", nil, &out, "")
	return out, err
}

func (c *Client) ClaimReferral(ctx context.Context, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/referral/claim", map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) GuessStart(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/minigames/guess/start", map[string]any{}, &out, "")
	return out, err
}

func (c *Client) GuessAttempt(ctx context.Context, guess int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/minigames/guess/attempt", map[string]any{
		"guess": guess,
	}, &out, "")
	return out, err
}

func (c *Client) SpeedStart(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/minigames/speed/start", map[string]any{}, &out, "")
	return out, err
}

func (c *Client) SpeedFinish(ctx context.Context, clicks int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/api/minigames/speed/finish", map[string]any{
		"clicks": clicks,
	}, &out, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.InitData != "" {
		req.Header.Set("Authorization", "tma "+c.session.InitData)
	} else if c.session.DebugUserID > 0 {
		req.Header.Set("X-Debug-User", fmt.Sprintf("%d", c.session.DebugUserID))
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
