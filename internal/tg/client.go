package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bot-payout/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config holds configuration to initialise the Telegram client.
type Config struct {
	Token   string
	Debug   bool
	Metrics *metrics.Metrics
}

// Client wraps the Telegram Bot API client and associated dependencies.
type Client struct {
	api       *tgbotapi.BotAPI
	logger    *slog.Logger
	metrics   *metrics.Metrics
	processor UpdateProcessor
}

// UpdateProcessor handles inbound Telegram updates.
type UpdateProcessor interface {
	ProcessUpdate(ctx context.Context, update tgbotapi.Update)
}

// New creates a new Telegram client instance.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram api: %w", err)
	}
	api.Debug = cfg.Debug

	c := &Client{
		api:     api,
		logger:  logger.With("component", "tg"),
		metrics: cfg.Metrics,
	}
	c.logger.Info("telegram client authorized", "username", api.Self.UserName)
	return c, nil
}

// SetUpdateProcessor registers the update processor callback.
func (c *Client) SetUpdateProcessor(processor UpdateProcessor) {
	c.processor = processor
}

// Start begins long-polling for updates. Updates are handled to completion
// one at a time so operations on the same conversation stay serialized.
func (c *Client) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.api.GetUpdatesChan(u)
	c.logger.Info("telegram long polling started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			c.countUpdate(update)
			if c.processor != nil {
				c.processor.ProcessUpdate(ctx, update)
			}
		}
	}
}

// Close stops receiving updates.
func (c *Client) Close() {
	if c.api != nil {
		c.api.StopReceivingUpdates()
	}
}

func (c *Client) countUpdate(update tgbotapi.Update) {
	if c.metrics == nil {
		return
	}
	switch {
	case update.CallbackQuery != nil:
		c.metrics.TGIncomingUpdates.WithLabelValues("callback").Inc()
	case update.Message != nil && update.Message.IsCommand():
		c.metrics.TGIncomingUpdates.WithLabelValues("command").Inc()
	case update.Message != nil:
		c.metrics.TGIncomingUpdates.WithLabelValues("text").Inc()
	default:
		c.metrics.TGIncomingUpdates.WithLabelValues("other").Inc()
	}
}

// SendText delivers a plain text message to the chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if c.metrics != nil {
		c.metrics.TGOutgoingMessages.WithLabelValues("text").Inc()
	}
	return nil
}

// SendWithKeyboard delivers a text message with an inline keyboard.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send keyboard message: %w", err)
	}
	if c.metrics != nil {
		c.metrics.TGOutgoingMessages.WithLabelValues("keyboard").Inc()
	}
	return nil
}

// EditText replaces the text of an existing message and drops its keyboard.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := c.api.Send(edit); err != nil {
		return fmt.Errorf("edit text: %w", err)
	}
	if c.metrics != nil {
		c.metrics.TGOutgoingMessages.WithLabelValues("edit").Inc()
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally with toast text.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := c.api.Request(cb); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
