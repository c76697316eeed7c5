package provider

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/resend/resend-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type fakeEmails struct {
	requests []*resend.SendEmailRequest
	err      error
}

func (f *fakeEmails) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "msg_1"}, nil
}

func TestTransactionalUsesServiceSenderAndReplyTo(t *testing.T) {
	api := &fakeEmails{}
	p := newTransactionalProvider(api, TransactionalConfig{
		SenderEmail: "noreply@mail.example.com",
		SenderName:  "Email Automation",
	})

	err := p.Send(context.Background(), Message{
		To:      "sam@example.com",
		Subject: "Offer",
		HTML:    "Hi Sam",
		From:    "owner@acme.test",
	})
	require.NoError(t, err)
	require.Len(t, api.requests, 1)

	req := api.requests[0]
	assert.Equal(t, "Email Automation <noreply@mail.example.com>", req.From)
	assert.Equal(t, "owner@acme.test", req.ReplyTo)
	assert.Equal(t, []string{"sam@example.com"}, req.To)
	assert.Equal(t, "Offer", req.Subject)
	assert.Equal(t, "Hi Sam", req.Html)
	assert.Equal(t, model.ProviderTransactional, p.Kind())
}

func TestTransactionalErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.FailureKind
	}{
		{"invalid key", errors.New("[ERROR]: API key is invalid"), model.FailureAuthentication},
		{"forbidden", errors.New("403 Forbidden: restricted key"), model.FailureAuthentication},
		{"status line", errors.New("[ERROR]: 401 "), model.FailureAuthentication},
		{"code inside address", errors.New("[ERROR]: Recipient 403@example.com is suppressed"), model.FailureProviderRejected},
		{"code inside number", errors.New("[ERROR]: Attachment of 40100 bytes exceeds the limit"), model.FailureProviderRejected},
		{"deadline", context.DeadlineExceeded, model.FailureTimeout},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, model.FailureConnectionRefused},
		{"rejected", errors.New("The to address is invalid"), model.FailureProviderRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTransactionalProvider(&fakeEmails{err: tc.err}, TransactionalConfig{SenderEmail: "noreply@mail.example.com"})
			err := p.Send(context.Background(), Message{To: "sam@example.com"})
			assert.Equal(t, tc.want, failureKind(t, err))
		})
	}
}

func TestTransactionalProviderMessageSurfaced(t *testing.T) {
	p := newTransactionalProvider(&fakeEmails{err: errors.New("domain is not verified")}, TransactionalConfig{SenderEmail: "noreply@mail.example.com"})
	err := p.Send(context.Background(), Message{To: "sam@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is not verified")
}
