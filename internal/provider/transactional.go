package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// emailsAPI is the part of the resend client used here.
type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// TransactionalConfig configures the account-wide email API sender.
type TransactionalConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
}

// TransactionalProvider sends through the email API. The visible sender is
// always the service-owned address; the account's from-address only becomes
// the reply-to.
type TransactionalProvider struct {
	emails  emailsAPI
	from    string
	timeout time.Duration
}

func NewTransactionalProvider(cfg TransactionalConfig) *TransactionalProvider {
	return newTransactionalProvider(resend.NewClient(cfg.APIKey).Emails, cfg)
}

func newTransactionalProvider(api emailsAPI, cfg TransactionalConfig) *TransactionalProvider {
	from := cfg.SenderEmail
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.SenderName, cfg.SenderEmail)
	}
	return &TransactionalProvider{emails: api, from: from, timeout: cfg.Timeout}
}

func (p *TransactionalProvider) Kind() model.ProviderKind { return model.ProviderTransactional }

func (p *TransactionalProvider) Send(ctx context.Context, msg Message) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.From,
	}
	if _, err := p.emails.SendWithContext(ctx, req); err != nil {
		return classifyTransactional(err)
	}
	return nil
}
