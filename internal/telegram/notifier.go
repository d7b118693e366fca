package telegram

import (
	"context"
	"fmt"
	"log"

	"matrix-sync/internal/services"

	"github.com/PaulSonOfLars/gotgbot/v2"
)

// Notifier posts signup announcements to a telegram chat
type Notifier struct {
	api    *gotgbot.Bot
	chatID int64
}

// NewNotifier connects the bot. It returns nil when no token or chat is configured.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		log.Println("Telegram not configured, signup notifications disabled")
		return nil, nil
	}

	api, err := gotgbot.NewBot(token, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Printf("Telegram bot @%s ready for signup notifications", api.Username)
	return &Notifier{api: api, chatID: chatID}, nil
}

// NotifySignup sends one message describing the new user
func (n *Notifier) NotifySignup(ctx context.Context, signup *services.UserSignup) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.api.SendMessage(n.chatID, FormatSignup(signup), &gotgbot.SendMessageOpts{
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	return err
}

// FormatSignup renders the notification text
func FormatSignup(signup *services.UserSignup) string {
	referrer := "none"
	if signup.ReferrerID != nil {
		referrer = fmt.Sprintf("#%d", *signup.ReferrerID)
	}

	name := signup.FullName
	if name == "" {
		name = "-"
	}

	return fmt.Sprintf("New registration #%d\nName: %s\nWallet: %s\nReferrer: %s",
		signup.UserID, name, signup.WalletAddress, referrer)
}
