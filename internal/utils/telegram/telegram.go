// Package telegram posts committed operations to a Telegram chat used as
// the bank's operations feed.
package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
)

// Feed sends one message per operation to a fixed chat
type Feed struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewFeed connects to the Bot API and checks the token
func NewFeed(token string, chatID int64, logger *logrus.Logger) (*Feed, error) {
	return newFeed(token, tgbotapi.APIEndpoint, http.DefaultClient, chatID, logger)
}

func newFeed(token, endpoint string, client tgbotapi.HTTPClient, chatID int64, logger *logrus.Logger) (*Feed, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	logger.Infof("Telegram feed authorized as @%s", bot.Self.UserName)
	return &Feed{bot: bot, chatID: chatID, logger: logger}, nil
}

var icons = map[models.OperationType]string{
	models.OperationDebit:       "➖",
	models.OperationCredit:      "➕",
	models.OperationTransferOut: "↗️",
	models.OperationTransferIn:  "↘️",
}

func operationText(customer models.Customer, op models.Operation) string {
	text := fmt.Sprintf("%s %s %s\nAccount: %s (%s)\nBalance: %s",
		icons[op.Type], op.Type, op.Amount.StringFixed(2),
		op.AccountID, customer.Name, op.BalanceAfter.StringFixed(2))
	if op.Description != "" {
		text += "\n" + op.Description
	}
	return text
}

// NotifyOperation posts the operation to the feed chat
func (f *Feed) NotifyOperation(ctx context.Context, customer models.Customer, op models.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(f.chatID, operationText(customer, op))
	if _, err := f.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to post to telegram: %w", err)
	}
	f.logger.Debugf("Telegram feed: %s %s", op.Type, op.ID)
	return nil
}
