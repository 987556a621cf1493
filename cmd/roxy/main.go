package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "github.com/askirya/roxort-app/internal/cli"
	"github.com/askirya/roxort-app/internal/config"
	"github.com/askirya/roxort-app/internal/game"
	"github.com/askirya/roxort-app/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "roxy",
		Short:        "ROXORT clicker game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatsCmd(&apiBase),
		newTapCmd(&apiBase),
		newShopCmd(&apiBase),
		newTopCmd(&apiBase),
		newReferralCmd(&apiBase),
		newAchievementsCmd(&apiBase),
		newPlayCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) (*cl.Client, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("login required: %w", err)
	}
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"), sess), nil
}

func newLoginCmd() *cobra.Command {
	var debugID int64
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for the API",
		Long:  "Paste the init data string from the Telegram mini app, or use --debug-user against a server running without a bot token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debugID > 0 {
				if err := cl.SaveSession(cl.Session{DebugUserID: debugID}); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Session saved for debug user %d.", debugID))
				return nil
			}
			initData, err := promptRequired("Init data")
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{InitData: initData}); err != nil {
				return err
			}
			printSuccess("Session saved.")
			return nil
		},
	}
	cmd.Flags().Int64Var(&debugID, "debug-user", 0, "authenticate as a numeric debug user id")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStatsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show your progression",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.State(ctx)
			if err != nil {
				return err
			}
			return renderState(out)
		},
	}
}

func newTapCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tap [count]",
		Short: "Tap the roxor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taps := int64(1)
			if len(args) > 0 {
				v, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil || v <= 0 || v > 10_000 {
					return fmt.Errorf("tap count must be between 1 and 10000")
				}
				taps = v
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Click(ctx, taps, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Kind:           syncq.KindTap,
					Taps:           taps,
					IdempotencyKey: idem,
					QueuedAt:       time.Now(),
				})
			}
			return renderClick(out, taps)
		},
	}
}

func newShopCmd(apiBase *string) *cobra.Command {
	shop := &cobra.Command{
		Use:   "shop",
		Short: "Upgrade shop commands",
	}
	shop.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List upgrades and your next-tier prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ups, err := client.ShopUpgrades(ctx)
			if err != nil {
				return err
			}
			prices, err := client.ShopPrices(ctx)
			if err != nil {
				return err
			}
			return renderShop(ups, prices)
		},
	})
	shop.AddCommand(&cobra.Command{
		Use:   "buy [upgrade_id]",
		Short: "Buy the next tier of an upgrade",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upgradeID := ""
			if len(args) > 0 {
				upgradeID = strings.TrimSpace(args[0])
			} else {
				var err error
				upgradeID, err = promptRequired("Upgrade id")
				if err != nil {
					return err
				}
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.BuyUpgrade(ctx, upgradeID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Kind:           syncq.KindBuy,
					UpgradeID:      upgradeID,
					IdempotencyKey: idem,
					QueuedAt:       time.Now(),
				})
			}
			return renderPurchase(out)
		},
	})
	return shop
}

func newTopCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the richest players",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows")
	return cmd
}

func newReferralCmd(apiBase *string) *cobra.Command {
	ref := &cobra.Command{
		Use:     "referral",
		Short:   "Referral program commands",
		Aliases: []string{"ref"},
	}
	ref.AddCommand(&cobra.Command{
		Use:   "code",
		Short: "Show your shareable referral code",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ReferralCode(ctx)
			if err != nil {
				return err
			}
			return renderReferralInfo(out)
		},
	})
	ref.AddCommand(&cobra.Command{
		Use:   "activate [code]",
		Short: "Activate a friend's referral code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) > 0 {
				code = strings.TrimSpace(args[0])
			} else {
				var err error
				code, err = promptRequired("Referral code")
				if err != nil {
					return err
				}
			}
			if !game.ValidateCode(code) {
				return fmt.Errorf("that does not look like a referral code")
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ActivateReferral(ctx, code, uuid.NewString())
			if err != nil {
				return err
			}
			return renderActivate(out)
		},
	})
	ref.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List players you recruited",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ListReferrals(ctx)
			if err != nil {
				return err
			}
			return renderReferralList(out)
		},
	})
	ref.AddCommand(&cobra.Command{
		Use:   "claim",
		Short: "Claim the one-time referral reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ClaimReferral(ctx, uuid.NewString())
			if err != nil {
				return err
			}
			return renderClaim(out)
		},
	})
	return ref
}

func newAchievementsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "Show your badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Achievements(ctx)
			if err != nil {
				return err
			}
			return renderAchievements(out)
		},
	}
}

func newPlayCmd(apiBase *string) *cobra.Command {
	play := &cobra.Command{
		Use:   "play",
		Short: "Minigames",
	}
	play.AddCommand(&cobra.Command{
		Use:   "guess",
		Short: "Guess the number (7 attempts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			return playGuess(ctx, client)
		},
	})
	play.AddCommand(&cobra.Command{
		Use:   "speed",
		Short: "Speed clicking (10 seconds)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return playSpeed(ctx, client)
		},
	})
	return play
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued offline commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				if err := replayCommand(ctx, client, q); err != nil {
					if isAPIStructuredError(err) || errors.Is(err, errUnknownCommand) {
						// the server rejected it; replaying again will not help
						printWarn(fmt.Sprintf("Dropped %s: %v", q.Describe(), err))
						continue
					}
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s: %v", q.Describe(), err))
					continue
				}
				replayed++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

var errUnknownCommand = errors.New("unknown queued command")

// replayCommand re-issues one queued action with its original idempotency
// key, so a command that actually landed before the network dropped is a
// server-side duplicate, not a double-apply.
func replayCommand(ctx context.Context, client *cl.Client, q syncq.Command) error {
	switch q.Kind {
	case syncq.KindTap:
		_, err := client.Click(ctx, q.Taps, q.IdempotencyKey)
		return err
	case syncq.KindBuy:
		_, err := client.BuyUpgrade(ctx, q.UpgradeID, q.IdempotencyKey)
		return err
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, q.Kind)
	}
}

// queueOnNetworkError stores write commands locally when the API is
// unreachable; structured API rejections surface immediately instead.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if isAPIStructuredError(err) {
		return err
	}
	if qErr := syncq.Push(cmd); qErr != nil {
		return fmt.Errorf("request failed and could not be queued: %v (queue error: %w)", err, qErr)
	}
	printWarn(fmt.Sprintf("API unreachable, queued %q for roxy sync.", cmd.Describe()))
	return nil
}

func isAPIStructuredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "api status")
}
