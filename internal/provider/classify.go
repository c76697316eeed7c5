package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"syscall"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// errStartTLSUnsupported is returned when STARTTLS is configured but the
// server does not advertise it.
var errStartTLSUnsupported = errors.New("smtp: server does not support STARTTLS")

// tls handshake text from servers that speak plain SMTP on a TLS port, or the
// reverse
var tlsMismatchMarkers = []string{
	"wrong version number",
	"tls_validate_record_header",
	"first record does not look like a tls handshake",
	"unexpected eof while reading",
	"oversized record received",
}

// classifyNetwork maps transport-level errors shared by both providers.
// ok is false when err is not a recognizable network failure.
func classifyNetwork(err error) (model.FailureKind, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return model.FailureTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FailureTimeout, true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return model.FailureTimeout, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) {
		return model.FailureConnectionRefused, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.FailureConnectionRefused, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.FailureConnectionRefused, true
	}
	return "", false
}

func isTLSMismatch(err error) bool {
	if errors.Is(err, errStartTLSUnsupported) {
		return true
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range tlsMismatchMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &verifyErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &invalid)
}

// smtpStage names the protocol step an SMTP error came from.
type smtpStage string

const (
	stageConnect smtpStage = "connect"
	stageTLS     smtpStage = "tls"
	stageAuth    smtpStage = "auth"
	stageSend    smtpStage = "send"
)

// classifySMTP maps an error from the given protocol stage to a failure kind.
func classifySMTP(stage smtpStage, err error) *appErrors.DeliveryFailure {
	if err == nil {
		return nil
	}
	var df *appErrors.DeliveryFailure
	if errors.As(err, &df) {
		return df
	}
	if isTLSMismatch(err) {
		return appErrors.NewDeliveryFailure(model.FailureEncryptionMismatch, err)
	}
	if kind, ok := classifyNetwork(err); ok {
		return appErrors.NewDeliveryFailure(kind, err)
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == 530 || protoErr.Code == 534 || protoErr.Code == 535:
			return appErrors.NewDeliveryFailure(model.FailureAuthentication, err)
		case stage == stageAuth && protoErr.Code >= 500:
			return appErrors.NewDeliveryFailure(model.FailureAuthentication, err)
		}
		return appErrors.NewDeliveryFailure(model.FailureProviderRejected, err)
	}
	if stage == stageAuth {
		return appErrors.NewDeliveryFailure(model.FailureAuthentication, err)
	}
	if stage == stageTLS {
		return appErrors.NewDeliveryFailure(model.FailureEncryptionMismatch, err)
	}
	return appErrors.NewDeliveryFailure(model.FailureProviderRejected, err)
}

var authMarkers = []string{
	"api key",
	"api_key",
	"unauthorized",
	"forbidden",
}

// authStatus matches the bare HTTP status line the client reports when the
// API answers without a JSON body, e.g. "[ERROR]: 401 Unauthorized".
var authStatus = regexp.MustCompile(`^(\[error\]: )?(401|403)\b`)

// classifyTransactional maps errors returned by the email API client.
func classifyTransactional(err error) *appErrors.DeliveryFailure {
	if err == nil {
		return nil
	}
	if kind, ok := classifyNetwork(err); ok {
		return appErrors.NewDeliveryFailure(kind, err)
	}
	msg := strings.ToLower(err.Error())
	if authStatus.MatchString(msg) {
		return appErrors.NewDeliveryFailure(model.FailureAuthentication, err)
	}
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return appErrors.NewDeliveryFailure(model.FailureAuthentication, err)
		}
	}
	return appErrors.NewDeliveryFailure(model.FailureProviderRejected, err)
}
