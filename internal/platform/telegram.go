package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotClient is the subset of the Telegram bot API the adapter needs.
// *tgbotapi.BotAPI satisfies it.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram delivers platform notifications through a Telegram bot.
// For private chats the chat ID equals the user ID, so no directory is
// needed. Authorization maps onto the bot relationship: a user who can
// receive messages is "granted", a user who blocked the bot is "denied",
// and a user we never probed is "default".
type Telegram struct {
	bot    BotClient
	appURL string
	logger *zerolog.Logger

	mu    sync.Mutex
	perms map[int64]Permission
}

// NewTelegram creates a Telegram-backed platform API. appURL is the link
// opened when the user taps a notification.
func NewTelegram(bot BotClient, appURL string, logger *zerolog.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		appURL: appURL,
		logger: logger,
		perms:  make(map[int64]Permission),
	}
}

// Permission returns the last known authorization value for the user.
func (t *Telegram) Permission(ctx context.Context, userID int64) (Permission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.perms[userID]; ok {
		return p, nil
	}
	return PermissionDefault, nil
}

// Request probes the chat with a typing action. Delivery success means
// the user granted the bot; a 403 means they blocked it.
func (t *Telegram) Request(ctx context.Context, userID int64) (Permission, error) {
	action := tgbotapi.NewChatAction(userID, tgbotapi.ChatTyping)
	if _, err := t.bot.Request(action); err != nil {
		if isBlocked(err) {
			t.setPermission(userID, PermissionDenied)
			return PermissionDenied, nil
		}
		return PermissionDefault, fmt.Errorf("probe chat %d: %w", userID, err)
	}

	t.setPermission(userID, PermissionGranted)
	return PermissionGranted, nil
}

// Show sends the notification as a message with an inline button that
// opens the application.
func (t *Telegram) Show(ctx context.Context, userID int64, n Notification) (Live, error) {
	text := n.Title
	if n.Body != "" {
		text += "\n" + n.Body
	}

	msg := tgbotapi.NewMessage(userID, text)
	if t.appURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Open Revia", t.appURL),
			),
		)
	}

	sent, err := t.bot.Send(msg)
	if err != nil {
		if isBlocked(err) {
			t.setPermission(userID, PermissionDenied)
		}
		return nil, fmt.Errorf("send notification to %d: %w", userID, err)
	}

	return &telegramLive{bot: t.bot, chatID: userID, messageID: sent.MessageID, tag: n.Tag}, nil
}

// SetPermission overrides the cached value, e.g. when the bot observes a
// /start or a block event through its update stream.
func (t *Telegram) SetPermission(userID int64, p Permission) {
	t.setPermission(userID, p)
}

func (t *Telegram) setPermission(userID int64, p Permission) {
	t.mu.Lock()
	t.perms[userID] = p
	t.mu.Unlock()
}

func isBlocked(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == 403
}

type telegramLive struct {
	bot       BotClient
	chatID    int64
	messageID int
	tag       string

	mu     sync.Mutex
	closed bool
}

func (l *telegramLive) Tag() string {
	return l.tag
}

func (l *telegramLive) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	del := tgbotapi.NewDeleteMessage(l.chatID, l.messageID)
	if _, err := l.bot.Request(del); err != nil {
		return fmt.Errorf("delete message %d in chat %d: %w", l.messageID, l.chatID, err)
	}
	return nil
}
