package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/models"
)

// SMTPConfig holds the outgoing mail server settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    SMTPConfig
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg SMTPConfig, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send:   func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

var subjects = map[models.OperationType]string{
	models.OperationDebit:       "Debit Notification",
	models.OperationCredit:      "Credit Notification",
	models.OperationTransferOut: "Outgoing Transfer Notification",
	models.OperationTransferIn:  "Incoming Transfer Notification",
}

// operationMessage formats the notification for one operation
func (s *Sender) operationMessage(customer models.Customer, op models.Operation) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{customer.Email}
	e.Subject = subjects[op.Type]

	body := fmt.Sprintf("Dear %s,\n\n", customer.Name)
	switch op.Type {
	case models.OperationCredit, models.OperationTransferIn:
		body += fmt.Sprintf("Your account %s has been credited with %s.\n", op.AccountID, op.Amount.StringFixed(2))
	default:
		body += fmt.Sprintf("An amount of %s has been debited from your account %s.\n", op.Amount.StringFixed(2), op.AccountID)
	}
	if op.Description != "" {
		body += fmt.Sprintf("Description: %s\n", op.Description)
	}
	body += fmt.Sprintf("Transaction time: %s\nCurrent balance: %s\n",
		op.CreatedAt.Format("2006-01-02 15:04:05"), op.BalanceAfter.StringFixed(2))
	body += "\nBest regards,\nDigital Banking"
	e.Text = []byte(body)
	return e
}

// NotifyOperation e-mails the account owner about a committed operation.
// Customers without an address are skipped.
func (s *Sender) NotifyOperation(ctx context.Context, customer models.Customer, op models.Operation) error {
	if customer.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.operationMessage(customer, op)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send %s to %s: %v", op.Type, customer.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", customer.Email, e.Subject)
	return nil
}
