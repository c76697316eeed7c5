package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

const DefaultSMTPTimeout = 10 * time.Second

// SMTPProvider delivers directly through the account's own SMTP server.
type SMTPProvider struct {
	cfg        model.SMTPConfig
	senderName string
	heloName   string
	timeout    time.Duration
	log        *zap.Logger
}

type SMTPOptions struct {
	SenderName string
	HeloName   string
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewSMTPProvider(cfg model.SMTPConfig, opts SMTPOptions) *SMTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSMTPTimeout
	}
	if opts.HeloName == "" {
		opts.HeloName = "localhost"
	}
	return &SMTPProvider{
		cfg:        cfg,
		senderName: opts.SenderName,
		heloName:   opts.HeloName,
		timeout:    opts.Timeout,
		log:        logger.OrNop(opts.Logger),
	}
}

func (p *SMTPProvider) Kind() model.ProviderKind { return model.ProviderSMTP }

func (p *SMTPProvider) addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

// Send performs one SMTP transaction. The configured from-address is the
// envelope sender and the visible From.
func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = p.cfg.FromEmail
	}

	client, err := p.connect(ctx, false)
	if err != nil && isCertificateError(err) {
		p.log.Warn("SMTP certificate rejected, retrying without verification",
			zap.String("host", p.cfg.Host), zap.Error(err))
		client, err = p.connect(ctx, true)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return classifySMTP(stageSend, fmt.Errorf("MAIL FROM: %w", err))
	}
	if err := client.Rcpt(msg.To); err != nil {
		return classifySMTP(stageSend, fmt.Errorf("RCPT TO: %w", err))
	}
	w, err := client.Data()
	if err != nil {
		return classifySMTP(stageSend, fmt.Errorf("DATA: %w", err))
	}
	if _, err := w.Write(p.buildMessage(from, msg)); err != nil {
		return classifySMTP(stageSend, fmt.Errorf("write: %w", err))
	}
	if err := w.Close(); err != nil {
		return classifySMTP(stageSend, fmt.Errorf("DATA close: %w", err))
	}
	_ = client.Quit()
	return nil
}

// connect dials, negotiates encryption and authenticates. Every socket
// operation shares a single deadline bounded by p.timeout.
func (p *SMTPProvider) connect(ctx context.Context, insecure bool) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: p.timeout}
	tlsCfg := &tls.Config{ServerName: p.cfg.Host, InsecureSkipVerify: insecure}

	var conn net.Conn
	var err error
	if p.cfg.Encryption == model.EncryptionSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", p.addr())
		if err != nil {
			if isCertificateError(err) {
				return nil, err
			}
			return nil, classifySMTP(stageConnect, fmt.Errorf("SMTP connect to %s: %w", p.addr(), err))
		}
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.addr())
		if err != nil {
			return nil, classifySMTP(stageConnect, fmt.Errorf("SMTP connect to %s: %w", p.addr(), err))
		}
	}
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, classifySMTP(stageConnect, fmt.Errorf("SMTP greeting: %w", err))
	}
	if err := c.Hello(p.heloName); err != nil {
		c.Close()
		return nil, classifySMTP(stageConnect, fmt.Errorf("EHLO: %w", err))
	}

	if p.cfg.Encryption == model.EncryptionSTARTTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, classifySMTP(stageTLS, errStartTLSUnsupported)
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			c.Close()
			if isCertificateError(err) {
				return nil, err
			}
			return nil, classifySMTP(stageTLS, fmt.Errorf("STARTTLS: %w", err))
		}
	}

	if p.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(&plainAuth{user: p.cfg.Username, pass: p.cfg.Password}); err != nil {
				c.Close()
				return nil, classifySMTP(stageAuth, fmt.Errorf("AUTH: %w", err))
			}
		}
	}
	return c, nil
}

func (p *SMTPProvider) buildMessage(from string, msg Message) []byte {
	fromHeader := (&mail.Address{Name: p.senderName, Address: from}).String()
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), domain)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	// rendered bodies are a single line; quoted-printable keeps every line
	// under the 998 octet limit
	qp := quotedprintable.NewWriter(&buf)
	_, _ = qp.Write([]byte(normalizeCRLF(msg.HTML)))
	_ = qp.Close()
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// plainAuth is PLAIN without net/smtp's refusal to authenticate over an
// unencrypted connection; "none" encryption is an explicit account choice.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.pass), nil
}

func (a *plainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return nil, fmt.Errorf("unexpected server challenge")
	}
	return nil, nil
}
