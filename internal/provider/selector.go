package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type PreferenceStore interface {
	GetProviderPreference(ctx context.Context, accountID int) (model.ProviderKind, error)
}

type SMTPConfigStore interface {
	Get(ctx context.Context, accountID int) (*model.SMTPConfig, error)
}

// Selection is the provider chosen for one dispatch and the account's
// from-address to hand it.
type Selection struct {
	Provider Provider
	From     string
}

// Selector resolves an account's provider. It is consulted once at the start
// of every dispatch and caches nothing.
type Selector struct {
	Preferences   PreferenceStore
	SMTPConfigs   SMTPConfigStore
	Transactional Provider
	SMTP          SMTPOptions
	Logger        *zap.Logger

	// NewSMTP builds the SMTP provider; tests replace it.
	NewSMTP func(cfg model.SMTPConfig, opts SMTPOptions) Provider
}

func (s *Selector) Select(ctx context.Context, accountID int) (*Selection, error) {
	kind, err := s.Preferences.GetProviderPreference(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load provider preference: %w", err)
	}
	if !kind.Valid() {
		kind = model.ProviderTransactional
	}

	cfg, err := s.SMTPConfigs.Get(ctx, accountID)
	if err != nil && !errors.Is(err, appErrors.ErrSMTPConfigNotFound) {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}

	sel := &Selection{}
	if cfg != nil {
		sel.From = cfg.FromEmail
	}

	switch kind {
	case model.ProviderSMTP:
		if cfg == nil {
			return nil, appErrors.ErrProviderNotConfigured
		}
		sel.Provider = s.newSMTP(*cfg)
	default:
		if s.Transactional == nil {
			return nil, fmt.Errorf("transactional provider is not configured")
		}
		sel.Provider = s.Transactional
	}

	logger.OrNop(s.Logger).Debug("provider selected",
		zap.Int("account_id", accountID),
		zap.String("provider", string(sel.Provider.Kind())))
	return sel, nil
}

func (s *Selector) newSMTP(cfg model.SMTPConfig) Provider {
	opts := s.SMTP
	if opts.Logger == nil {
		opts.Logger = s.Logger
	}
	if s.NewSMTP != nil {
		return s.NewSMTP(cfg, opts)
	}
	return NewSMTPProvider(cfg, opts)
}
