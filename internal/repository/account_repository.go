package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// The provider preference lives on the users row; the column stores the
// legacy value "sendgrid" for the transactional provider.
const legacyTransactional = "sendgrid"

type AccountRepositoryInterface interface {
	GetProviderPreference(ctx context.Context, accountID int) (model.ProviderKind, error)
	SetProviderPreference(ctx context.Context, accountID int, kind model.ProviderKind) error
}

type AccountRepository struct {
	DB *sql.DB
}

// GetProviderPreference returns the stored preference, defaulting to the
// transactional provider for unknown accounts and unrecognized values.
func (r *AccountRepository) GetProviderPreference(ctx context.Context, accountID int) (model.ProviderKind, error) {
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT email_provider FROM users WHERE id = $1`, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProviderTransactional, nil
		}
		return "", err
	}
	if model.ProviderKind(raw.String) == model.ProviderSMTP {
		return model.ProviderSMTP, nil
	}
	return model.ProviderTransactional, nil
}

func (r *AccountRepository) SetProviderPreference(ctx context.Context, accountID int, kind model.ProviderKind) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid provider %q", kind)
	}
	stored := string(kind)
	if kind == model.ProviderTransactional {
		stored = legacyTransactional
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET email_provider = $1 WHERE id = $2`, stored, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
