package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// SMTPConfigRepositoryInterface defines methods used by the provider selector
// and the settings endpoints.
type SMTPConfigRepositoryInterface interface {
	Get(ctx context.Context, accountID int) (*model.SMTPConfig, error)
	Save(ctx context.Context, cfg *model.SMTPConfig) error
}

// SMTPConfigRepository is the concrete implementation
type SMTPConfigRepository struct {
	DB *sql.DB
}

// Get fetches the account's SMTP settings, including the password.
func (r *SMTPConfigRepository) Get(ctx context.Context, accountID int) (*model.SMTPConfig, error) {
	query := `
        SELECT id, user_id, host, port, username, password, encryption, from_email, updated_at
        FROM smtp_configurations
        WHERE user_id = $1
    `
	var c model.SMTPConfig
	var enc string
	err := r.DB.QueryRowContext(ctx, query, accountID).Scan(
		&c.ID, &c.AccountID, &c.Host, &c.Port, &c.Username, &c.Password, &enc, &c.FromEmail, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSMTPConfigNotFound
		}
		return nil, err
	}
	c.Encryption = model.Encryption(enc)
	return &c, nil
}

// Save upserts on user_id; an account has at most one SMTP configuration.
func (r *SMTPConfigRepository) Save(ctx context.Context, c *model.SMTPConfig) error {
	c.UpdatedAt = time.Now()
	query := `
        INSERT INTO smtp_configurations (user_id, host, port, username, password, encryption, from_email, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            host = EXCLUDED.host,
            port = EXCLUDED.port,
            username = EXCLUDED.username,
            password = EXCLUDED.password,
            encryption = EXCLUDED.encryption,
            from_email = EXCLUDED.from_email,
            updated_at = EXCLUDED.updated_at
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		c.AccountID, c.Host, c.Port, c.Username, c.Password, string(c.Encryption), c.FromEmail, c.UpdatedAt,
	).Scan(&c.ID)
}

var _ SMTPConfigRepositoryInterface = (*SMTPConfigRepository)(nil)
