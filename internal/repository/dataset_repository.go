package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

type DatasetRepositoryInterface interface {
	GetByID(ctx context.Context, accountID, id int) (*model.SavedDataset, error)
	Create(ctx context.Context, ds *model.SavedDataset) error
	List(ctx context.Context, accountID int) ([]*model.DatasetSummary, error)
	Update(ctx context.Context, ds *model.SavedDataset) error
	Delete(ctx context.Context, accountID, id int) error
}

type DatasetRepository struct {
	DB *sql.DB
}

// Create inserts a saved dataset and sets its ID
func (r *DatasetRepository) Create(ctx context.Context, ds *model.SavedDataset) error {
	data, err := jsonValue(ds.Rows)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO saved_databases (user_id, name, email_column, data)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err = r.DB.QueryRowContext(ctx, query, ds.AccountID, ds.Name, ds.EmailColumn, data).Scan(&ds.ID, &ds.CreatedAt)
	return translateWriteError(err)
}

func (r *DatasetRepository) GetByID(ctx context.Context, accountID, id int) (*model.SavedDataset, error) {
	query := `
        SELECT id, user_id, name, email_column, data, created_at
        FROM saved_databases
        WHERE id = $1 AND user_id = $2
    `
	var ds model.SavedDataset
	var raw []byte
	err := r.DB.QueryRowContext(ctx, query, id, accountID).Scan(&ds.ID, &ds.AccountID, &ds.Name, &ds.EmailColumn, &raw, &ds.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDatasetNotFound
		}
		return nil, err
	}
	if err := decodeJSON(raw, &ds.Rows); err != nil {
		return nil, err
	}
	return &ds, nil
}

// List returns the account's datasets, newest first, with contact and
// campaign counts.
func (r *DatasetRepository) List(ctx context.Context, accountID int) ([]*model.DatasetSummary, error) {
	query := `
        SELECT d.id, d.name, d.email_column, d.created_at, d.data,
               (SELECT COUNT(*) FROM campaigns c WHERE c.database_id = d.id AND c.user_id = d.user_id)
        FROM saved_databases d
        WHERE d.user_id = $1
        ORDER BY d.created_at DESC, d.id DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.DatasetSummary{}
	for rows.Next() {
		var ds model.SavedDataset
		var raw []byte
		var campaigns int
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.EmailColumn, &ds.CreatedAt, &raw, &campaigns); err != nil {
			return nil, err
		}
		if err := decodeJSON(raw, &ds.Rows); err != nil {
			return nil, err
		}
		summary := ds.Summary(campaigns)
		list = append(list, &summary)
	}
	return list, rows.Err()
}

// Update replaces name, email column and rows of an owned dataset.
func (r *DatasetRepository) Update(ctx context.Context, ds *model.SavedDataset) error {
	data, err := jsonValue(ds.Rows)
	if err != nil {
		return err
	}
	query := `
        UPDATE saved_databases
        SET name = $1, email_column = $2, data = $3
        WHERE id = $4 AND user_id = $5
        RETURNING created_at
    `
	err = r.DB.QueryRowContext(ctx, query, ds.Name, ds.EmailColumn, data, ds.ID, ds.AccountID).Scan(&ds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrDatasetNotFound
	}
	return err
}

// Delete removes an owned dataset. Campaigns created from it keep their
// recipients; their database_id is cleared by the foreign key.
func (r *DatasetRepository) Delete(ctx context.Context, accountID, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM saved_databases WHERE id = $1 AND user_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrDatasetNotFound
	}
	return nil
}

var _ DatasetRepositoryInterface = (*DatasetRepository)(nil)
