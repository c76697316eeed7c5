package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/provider"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

// SMTPTester sends a test message through an unsaved configuration.
type SMTPTester interface {
	TestSMTP(ctx context.Context, cfg model.SMTPConfig, to string) *provider.Diagnosis
}

// SMTPController manages an account's SMTP settings and provider preference.
type SMTPController struct {
	Configs  repository.SMTPConfigRepositoryInterface
	Accounts repository.AccountRepositoryInterface
	Tester   SMTPTester
	Logger   *zap.Logger
}

type smtpConfigBody struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Encryption string `json:"encryption"`
	FromEmail  string `json:"from_email"`
	TestEmail  string `json:"test_email,omitempty"`
}

// toConfig trims and validates the body. Every field is required.
func (b smtpConfigBody) toConfig(accountID int) (model.SMTPConfig, error) {
	cfg := model.SMTPConfig{
		AccountID:  accountID,
		Host:       strings.TrimSpace(b.Host),
		Port:       b.Port,
		Username:   strings.TrimSpace(b.Username),
		Password:   strings.TrimSpace(b.Password),
		Encryption: model.Encryption(strings.ToLower(strings.TrimSpace(b.Encryption))),
		FromEmail:  strings.TrimSpace(b.FromEmail),
	}
	switch {
	case cfg.Host == "", cfg.Username == "", cfg.Password == "", cfg.FromEmail == "", cfg.Encryption == "":
		return cfg, fmt.Errorf("%w: host, port, username, password, encryption and from_email are required", appErrors.ErrInvalidInput)
	case cfg.Port < 1 || cfg.Port > 65535:
		return cfg, fmt.Errorf("%w: port must be between 1 and 65535", appErrors.ErrInvalidInput)
	case !cfg.Encryption.Valid():
		return cfg, fmt.Errorf("%w: encryption must be one of none, ssl, tls", appErrors.ErrInvalidInput)
	case !service.IsValidEmail(cfg.FromEmail):
		return cfg, fmt.Errorf("%w: from_email is not a valid address", appErrors.ErrInvalidInput)
	}
	return cfg, nil
}

func (c *SMTPController) GetConfig(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	cfg, err := c.Configs.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Public())
}

func (c *SMTPController) SaveConfig(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var body smtpConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	cfg, err := body.toConfig(accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	if err := c.Configs.Save(r.Context(), &cfg); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "SMTP configuration saved",
		"config":  cfg.Public(),
	})
}

// TestConfig sends a test email to test_email, or to from_email when unset.
func (c *SMTPController) TestConfig(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var body smtpConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	cfg, err := body.toConfig(accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	to := strings.TrimSpace(body.TestEmail)
	if to == "" {
		to = cfg.FromEmail
	}
	if !service.IsValidEmail(to) {
		writeMessage(w, http.StatusBadRequest, "test_email is not a valid address")
		return
	}

	if diag := c.Tester.TestSMTP(r.Context(), cfg, to); diag != nil {
		logger.OrNop(c.Logger).Info("smtp test failed",
			zap.Int("account_id", accountID),
			zap.String("code", diag.Code))
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":     false,
			"code":        diag.Code,
			"error":       diag.Summary,
			"details":     diag.Details,
			"remediation": diag.Remediation,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Test email sent successfully",
	})
}

func (c *SMTPController) GetProvider(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	kind, err := c.Accounts.GetProviderPreference(r.Context(), accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	configured := true
	if _, err := c.Configs.Get(r.Context(), accountID); err != nil {
		if !errors.Is(err, appErrors.ErrSMTPConfigNotFound) {
			writeError(w, c.Logger, err)
			return
		}
		configured = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":        kind,
		"smtp_configured": configured,
	})
}

func (c *SMTPController) SetProvider(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	kind := model.ProviderKind(strings.ToLower(strings.TrimSpace(body.Provider)))
	if !kind.Valid() {
		writeMessage(w, http.StatusBadRequest, "provider must be transactional or smtp")
		return
	}
	if err := c.Accounts.SetProviderPreference(r.Context(), accountID, kind); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": kind})
}
