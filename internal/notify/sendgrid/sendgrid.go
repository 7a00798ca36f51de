// Package sendgrid delivers tier-change emails through SendGrid.
package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/notify"
)

const fromName = "Dreams Saver"

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type Notifier struct {
	client sender
	from   string
	logger *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

func New(apiKey, fromEmail string, logger *slog.Logger) (*Notifier, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	if fromEmail == "" {
		return nil, errors.New("sendgrid: from address is required")
	}
	return &Notifier{
		client: sg.NewSendClient(apiKey),
		from:   fromEmail,
		logger: logger,
	}, nil
}

// SubscriptionChanged emails the account owner. Accounts without an email
// on file are skipped.
func (n *Notifier) SubscriptionChanged(ctx context.Context, account *model.Account, premium bool) error {
	if account.Email == "" {
		n.logger.Debug("skipping subscription email, no address", slog.String("accountID", account.ID))
		return nil
	}

	msg := subscriptionMessage(n.from, account, premium)
	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: sending subscription email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}

	n.logger.Info("subscription email sent",
		slog.String("accountID", account.ID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

func subscriptionMessage(from string, account *model.Account, premium bool) *mail.SGMailV3 {
	var subject, body string
	if premium {
		subject = "Welcome to Dreams Saver Premium"
		body = "Your subscription is active. You now have unlimited dream insights."
	} else {
		subject = "Your Dreams Saver subscription has ended"
		body = fmt.Sprintf("Your account is back on the free plan with %d dream insights.", account.Limit())
	}

	return mail.NewSingleEmail(
		mail.NewEmail(fromName, from),
		subject,
		mail.NewEmail("", account.Email),
		body,
		"<p>"+body+"</p>",
	)
}
