package provider

import (
	"context"
	"errors"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// Diagnosis explains a failed SMTP test send to the account owner.
type Diagnosis struct {
	Code        string `json:"code"`
	Summary     string `json:"error"`
	Details     string `json:"details"`
	Remediation string `json:"remediation"`
}

// Diagnose maps a send error to a stable code and a hint for fixing it.
func Diagnose(err error, cfg model.SMTPConfig) *Diagnosis {
	if err == nil {
		return nil
	}
	var df *appErrors.DeliveryFailure
	kind := model.FailureProviderRejected
	if errors.As(err, &df) {
		kind = df.Kind
	}
	d := &Diagnosis{Details: err.Error()}
	switch kind {
	case model.FailureConnectionRefused:
		d.Code = "SMTP_CONNECTION_REFUSED"
		d.Summary = "Could not connect to SMTP server"
		d.Remediation = "Check that the host and port are correct and that the server accepts connections from this service."
	case model.FailureAuthentication:
		d.Code = "SMTP_AUTH_FAILED"
		d.Summary = "SMTP authentication failed"
		d.Remediation = "Check the username and password. Some providers require an app-specific password."
	case model.FailureTimeout:
		d.Code = "SMTP_CONNECTION_TIMEOUT"
		d.Summary = "Connection to SMTP server timed out"
		d.Remediation = "The server did not answer in time. Check firewalls and that the port is reachable."
	case model.FailureEncryptionMismatch:
		d.Code = "SMTP_TLS_VERSION_MISMATCH"
		d.Summary = "TLS/SSL negotiation failed"
		if cfg.Encryption == model.EncryptionSSL {
			d.Remediation = "The server does not speak implicit TLS on this port. Try encryption \"tls\" (STARTTLS), usually on port 587."
		} else {
			d.Remediation = "The encryption mode does not match the server. Use \"ssl\" for port 465 or \"tls\" for port 587."
		}
	default:
		d.Code = "SMTP_GENERIC_ERROR"
		d.Summary = "Failed to send test email"
		d.Remediation = "Review the server response in the details and the SMTP settings."
	}
	return d
}

// TestSMTP sends a test message through cfg without saving it. A nil
// result means the message was accepted.
func (s *Selector) TestSMTP(ctx context.Context, cfg model.SMTPConfig, to string) *Diagnosis {
	p := s.newSMTP(cfg)
	err := p.Send(ctx, Message{
		To:      to,
		Subject: "SMTP Configuration Test",
		HTML:    "<p>Your SMTP settings are working. This is a test message.</p>",
		From:    cfg.FromEmail,
	})
	return Diagnose(err, cfg)
}
