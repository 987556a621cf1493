package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier pushes game events to players through the Telegram bot.
// Every send is best effort: a delivery failure is logged and dropped,
// never surfaced to the transaction that produced the event.
type Notifier struct {
	bot *telego.Bot
	log *slog.Logger
}

// New builds a Notifier, or returns nil when no bot token is configured.
// A nil *Notifier is safe to use; every method no-ops on it.
func New(botToken string, logger *slog.Logger) (*Notifier, error) {
	if botToken == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := telego.NewBot(botToken, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Notifier{bot: bot, log: logger}, nil
}

func (n *Notifier) ReferralActivated(ctx context.Context, referrerID int64, referredUsername string) {
	if referredUsername == "" {
		referredUsername = "someone"
	}
	n.send(ctx, referrerID, fmt.Sprintf("🎉 %s joined using your referral code!", referredUsername))
}

func (n *Notifier) RewardClaimed(ctx context.Context, referrerID, referredID, referrerReward int64) {
	n.send(ctx, referrerID, fmt.Sprintf("💰 Referral reward claimed: +%d roxy for you!", referrerReward))
}

func (n *Notifier) LeveledUp(ctx context.Context, telegramID, newLevel int64) {
	n.send(ctx, telegramID, fmt.Sprintf("⭐ Level up! You are now level %d.", newLevel))
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string) {
	if n == nil {
		return
	}
	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		n.log.Warn("telegram notification failed", "chat_id", chatID, "error", err)
	}
}
