package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "github.com/askirya/roxort-app/internal/cli"
	"github.com/askirya/roxort-app/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type statePayload struct {
	State         game.State `json:"state"`
	OfflineReward int64      `json:"offline_reward"`
}

type clickPayload struct {
	Reward       int64      `json:"reward"`
	LevelsGained int        `json:"levels_gained"`
	State        game.State `json:"state"`
}

type purchasePayload struct {
	UpgradeID string     `json:"upgrade_id"`
	Price     int64      `json:"price"`
	Tier      int        `json:"tier"`
	State     game.State `json:"state"`
}

type shopPayload struct {
	Upgrades []game.Upgrade `json:"upgrades"`
}

type pricesPayload struct {
	Prices map[string]int64 `json:"prices"`
}

type leaderboardPayload struct {
	Rows []game.LeaderboardRow `json:"rows"`
}

type achievementsPayload struct {
	Achievements []game.Achievement `json:"achievements"`
}

type referralListPayload struct {
	Referrals []game.ReferralRow `json:"referrals"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt(label string, min, max int) (int, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min || v > max {
			printWarn(fmt.Sprintf("Value must be between %d and %d.", min, max))
			continue
		}
		return v, nil
	}
}

func renderState(raw map[string]any) error {
	out, err := decodeInto[statePayload](raw)
	if err != nil {
		return err
	}
	st := out.State
	accent.Printf("\n== %s ==\n", strings.ToUpper(st.Username))
	fmt.Printf("ROXY:        %s\n", comma(st.Currency))
	fmt.Printf("Level:       %d\n", st.Level)
	fmt.Printf("Experience:  %d\n", st.Experience)
	fmt.Printf("Clicks:      %s\n", comma(st.Clicks))
	fmt.Printf("Multiplier:  x%.1f\n", st.Multiplier)
	if len(st.Upgrades) > 0 {
		fmt.Printf("Upgrades:    %s\n", strings.Join(st.Upgrades, ", "))
	}
	if out.OfflineReward > 0 {
		printSuccess(fmt.Sprintf("Welcome back! +%s roxy earned while you were away.", comma(out.OfflineReward)))
	}
	fmt.Println()
	return nil
}

func renderClick(raw map[string]any, taps int64) error {
	out, err := decodeInto[clickPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Tapped %d times: +%s roxy (balance %s).", taps, comma(out.Reward), comma(out.State.Currency)))
	if out.LevelsGained > 0 {
		accent.Printf("⭐ Level up! Now level %d (x%.1f multiplier).\n", out.State.Level, out.State.Multiplier)
	}
	return nil
}

func renderShop(rawUpgrades, rawPrices map[string]any) error {
	ups, err := decodeInto[shopPayload](rawUpgrades)
	if err != nil {
		return err
	}
	prices, err := decodeInto[pricesPayload](rawPrices)
	if err != nil {
		return err
	}
	accent.Println("\n== UPGRADE SHOP ==")
	if len(ups.Upgrades) == 0 {
		printInfo("The shop is empty.")
		return nil
	}
	fmt.Printf("%-16s %-22s %12s %8s %-6s\n", "ID", "NAME", "NEXT PRICE", "MULT", "STACK")
	for _, up := range ups.Upgrades {
		stack := "no"
		if up.Stackable {
			stack = "yes"
		}
		fmt.Printf("%-16s %-22s %12s %7.2f %-6s\n",
			up.ID,
			truncate(up.Name, 22),
			comma(prices.Prices[up.ID]),
			up.Multiplier,
			stack,
		)
	}
	fmt.Println()
	return nil
}

func renderPurchase(raw map[string]any) error {
	out, err := decodeInto[purchasePayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Bought %s (tier %d) for %s roxy. Balance: %s.",
		out.UpgradeID, out.Tier, comma(out.Price), comma(out.State.Currency)))
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TOP PLAYERS ==")
	if len(out.Rows) == 0 {
		printInfo("No players yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %14s %8s\n", "RANK", "PLAYER", "ROXY", "LEVEL")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-20s %14s %8d\n",
			row.Rank,
			truncate(row.Username, 20),
			comma(row.Currency),
			row.Level,
		)
	}
	fmt.Println()
	return nil
}

func renderAchievements(raw map[string]any) error {
	out, err := decodeInto[achievementsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== ACHIEVEMENTS ==")
	for _, a := range out.Achievements {
		mark := neutral.Sprint("[ ]")
		if a.Completed {
			mark = success.Sprint("[x]")
		}
		fmt.Printf("%s %-24s %s\n", mark, a.Name, a.Description)
	}
	fmt.Println()
	return nil
}

func renderReferralInfo(raw map[string]any) error {
	out, err := decodeInto[game.ReferralInfo](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== REFERRAL PROGRAM ==")
	fmt.Printf("Your code:  %s\n", out.Code)
	fmt.Printf("Recruited:  %d / %d\n", out.ReferralCount, out.MaxReferrals)
	if out.RewardClaimed {
		printInfo("Referral reward already claimed.")
	}
	fmt.Println()
	return nil
}

func renderActivate(raw map[string]any) error {
	out, err := decodeInto[game.ActivateResult](raw)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Referral activated! You are now linked to %s.", out.ReferrerUsername)
	if out.Bonus > 0 {
		msg += fmt.Sprintf(" Welcome bonus: +%s roxy.", comma(out.Bonus))
	}
	printSuccess(msg)
	return nil
}

func renderReferralList(raw map[string]any) error {
	out, err := decodeInto[referralListPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== YOUR RECRUITS ==")
	if len(out.Referrals) == 0 {
		printInfo("Nobody has used your code yet.")
		return nil
	}
	fmt.Printf("%-20s %8s %14s\n", "PLAYER", "LEVEL", "ROXY")
	for _, r := range out.Referrals {
		fmt.Printf("%-20s %8d %14s\n", truncate(r.Username, 20), r.Level, comma(r.Currency))
	}
	fmt.Println()
	return nil
}

func renderClaim(raw map[string]any) error {
	out, err := decodeInto[game.ClaimResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Reward claimed: +%s roxy for you, +%s for your referrer.",
		comma(out.PlayerReward), comma(out.ReferrerReward)))
	return nil
}

func playGuess(ctx context.Context, client *cl.Client) error {
	start, err := client.GuessStart(ctx)
	if err != nil {
		return err
	}
	s, err := decodeInto[struct {
		Min         int `json:"min"`
		Max         int `json:"max"`
		MaxAttempts int `json:"max_attempts"`
	}](start)
	if err != nil {
		return err
	}
	accent.Printf("\n== GUESS THE NUMBER (%d-%d, %d attempts) ==\n", s.Min, s.Max, s.MaxAttempts)
	for {
		guess, err := promptInt("Your guess", s.Min, s.Max)
		if err != nil {
			return err
		}
		raw, err := client.GuessAttempt(ctx, guess)
		if err != nil {
			return err
		}
		out, err := decodeInto[struct {
			Hint         string `json:"hint"`
			AttemptsLeft int    `json:"attempts_left"`
			Won          bool   `json:"won"`
			Over         bool   `json:"over"`
			Reward       int64  `json:"reward"`
			Balance      int64  `json:"balance"`
		}](raw)
		if err != nil {
			return err
		}
		if out.Won {
			printSuccess(fmt.Sprintf("Correct! +%s roxy (balance %s).", comma(out.Reward), comma(out.Balance)))
			return nil
		}
		if out.Over {
			printError("Out of attempts. Better luck next time!")
			return nil
		}
		printInfo(fmt.Sprintf("Go %s (%d attempts left).", out.Hint, out.AttemptsLeft))
	}
}

func playSpeed(ctx context.Context, client *cl.Client) error {
	start, err := client.SpeedStart(ctx)
	if err != nil {
		return err
	}
	s, err := decodeInto[struct {
		WindowSeconds int `json:"window_seconds"`
	}](start)
	if err != nil {
		return err
	}
	accent.Printf("\n== SPEED CLICKS: press Enter as fast as you can for %d seconds ==\n", s.WindowSeconds)
	deadline := time.Now().Add(time.Duration(s.WindowSeconds) * time.Second)
	var clicks int64
	for time.Now().Before(deadline) {
		if _, err := stdinReader.ReadString('\n'); err != nil {
			break
		}
		clicks++
	}
	raw, err := client.SpeedFinish(ctx, clicks)
	if err != nil {
		return err
	}
	out, err := decodeInto[struct {
		Reward  int64 `json:"reward"`
		Balance int64 `json:"balance"`
	}](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%d clicks: +%s roxy (balance %s).", clicks, comma(out.Reward), comma(out.Balance)))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return sign + b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
