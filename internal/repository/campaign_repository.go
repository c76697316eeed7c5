package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, accountID, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, accountID, offset, limit int) ([]*model.Campaign, int, error)

	// Dispatch state
	SaveResults(ctx context.Context, accountID, id int, sentAt time.Time, results []model.DeliveryResult) error
	ResetForResend(ctx context.Context, accountID, id, expectedResendCount int) (int, error)

	GetStats(ctx context.Context, accountID int, since time.Time) (*model.CampaignStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, subject, template, recipients, variables, sent_at, send_results, resend_count, database_id, file_name, created_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()

	recipients, err := jsonValue(c.Recipients)
	if err != nil {
		return err
	}
	variables, err := jsonValue(c.VariableNames)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO campaigns (user_id, subject, template, recipients, variables, database_id, file_name, resend_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
        RETURNING id
    `
	err = r.DB.QueryRowContext(ctx, query,
		c.AccountID, c.Subject, c.Template, recipients, variables, c.DatasetID, nullString(c.FileName), c.CreatedAt,
	).Scan(&c.ID)
	return translateWriteError(err)
}

func (r *CampaignRepository) GetByID(ctx context.Context, accountID, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND user_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// ListCampaigns returns one page of the account's campaigns, most recently
// sent first, and the total count.
func (r *CampaignRepository) ListCampaigns(ctx context.Context, accountID, offset, limit int) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id=$1
        ORDER BY sent_at DESC NULLS LAST, id DESC LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE user_id=$1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ====================== Dispatch state ======================

// SaveResults stores the outcome of a finished dispatch.
func (r *CampaignRepository) SaveResults(ctx context.Context, accountID, id int, sentAt time.Time, results []model.DeliveryResult) error {
	if results == nil {
		results = []model.DeliveryResult{}
	}
	payload, err := jsonValue(results)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET sent_at=$1, send_results=$2 WHERE id=$3 AND user_id=$4`,
		sentAt, payload, id, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// ResetForResend bumps resend_count and clears the previous outcome. The
// update only applies while resend_count still equals expectedResendCount;
// otherwise another resend won the race and ErrConcurrentUpdate is returned.
func (r *CampaignRepository) ResetForResend(ctx context.Context, accountID, id, expectedResendCount int) (int, error) {
	query := `
        UPDATE campaigns
        SET resend_count = resend_count + 1, sent_at = NULL, send_results = NULL
        WHERE id=$1 AND user_id=$2 AND resend_count=$3
        RETURNING resend_count
    `
	var count int
	err := r.DB.QueryRowContext(ctx, query, id, accountID, expectedResendCount).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, appErrors.ErrConcurrentUpdate
	}
	return count, err
}

// GetStats aggregates sent campaigns only.
func (r *CampaignRepository) GetStats(ctx context.Context, accountID int, since time.Time) (*model.CampaignStats, error) {
	query := `
        SELECT
            COUNT(*),
            COALESCE(SUM(jsonb_array_length(recipients)), 0),
            COUNT(*) FILTER (WHERE sent_at >= $2),
            COALESCE(SUM(jsonb_array_length(recipients)) FILTER (WHERE sent_at >= $2), 0)
        FROM campaigns
        WHERE user_id = $1 AND sent_at IS NOT NULL
    `
	var s model.CampaignStats
	err := r.DB.QueryRowContext(ctx, query, accountID, since).Scan(
		&s.TotalCampaigns, &s.TotalRecipients, &s.Last30DaysCampaigns, &s.Last30DaysRecipients,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanCampaign(row scanner) (*model.Campaign, error) {
	var (
		c          model.Campaign
		recipients []byte
		variables  []byte
		results    []byte
		sentAt     sql.NullTime
		datasetID  sql.NullInt64
		fileName   sql.NullString
	)
	if err := row.Scan(&c.ID, &c.AccountID, &c.Subject, &c.Template, &recipients, &variables,
		&sentAt, &results, &c.ResendCount, &datasetID, &fileName, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(recipients, &c.Recipients); err != nil {
		return nil, err
	}
	if err := decodeJSON(variables, &c.VariableNames); err != nil {
		return nil, err
	}
	if err := decodeJSON(results, &c.SendResults); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	if datasetID.Valid {
		id := int(datasetID.Int64)
		c.DatasetID = &id
	}
	c.FileName = fileName.String
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
