// Package telegram hosts the optional Telegram stats bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"chain_stats/internal/config"
	"chain_stats/internal/logging"
	"chain_stats/internal/store"
)

type botRunner interface {
	Start(ctx context.Context)
}

// QueryScope hands out request-scoped access to the statistics queries.
type QueryScope interface {
	Scope(ctx context.Context, fn func(context.Context, store.Queries) error) error
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}

	sendMessage = func(ctx context.Context, b *bot.Bot, params *bot.SendMessageParams) error {
		if b == nil {
			return errors.New("telegram bot is not initialized")
		}
		_, err := b.SendMessage(ctx, params)
		return err
	}
)

// Option configures optional dependencies on the Client.
type Option func(*Client)

// WithQueryScope wires the statistics queries answered by bot commands.
func WithQueryScope(scope QueryScope) Option {
	return func(c *Client) {
		c.scope = scope
	}
}

// Client wraps the Telegram bot instance and its dependencies.
type Client struct {
	bot    botRunner
	logger *logrus.Entry
	scope  QueryScope
}

// NewClient initializes the Telegram bot with long polling and the stats
// command handler.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.defaultHandler()),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func (c *Client) defaultHandler() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}

		if meta.text != "" {
			fields["text"] = meta.text
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		c.logger.WithFields(fields).Info("telegram update received")

		if meta.updateType != "message" || meta.chatID == 0 || !strings.HasPrefix(meta.text, "/") {
			return
		}

		reply := c.answer(ctx, meta.chatID, meta.text)
		if err := sendMessage(ctx, b, &bot.SendMessageParams{ChatID: meta.chatID, Text: reply}); err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "telegram_reply_error",
				"chat_id": meta.chatID,
			}).WithError(err).Warn("failed to send command reply")
		}
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     update.Message.Chat.ID,
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     update.EditedMessage.Chat.ID,
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}
