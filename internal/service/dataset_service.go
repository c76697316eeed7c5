package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
)

// DatasetService manages saved recipient lists.
type DatasetService struct {
	Datasets repository.DatasetRepositoryInterface
	Logger   *zap.Logger
}

// DatasetInput is the content of a saved dataset. Headers are taken from
// the first row when empty.
type DatasetInput struct {
	Name        string
	EmailColumn string
	Headers     []string
	Rows        []model.Attributes
}

// normalizeDataset validates the email column and moves a row's first valid
// address from another column into it when the designated value is invalid.
// Rows without any valid address are kept unchanged.
func normalizeDataset(in DatasetInput) (*model.SavedDataset, int, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, 0, fmt.Errorf("%w: name is required", appErrors.ErrInvalidInput)
	}
	column := strings.TrimSpace(in.EmailColumn)
	if column == "" {
		return nil, 0, fmt.Errorf("%w: email column must be specified", appErrors.ErrInvalidInput)
	}
	headers := in.Headers
	if len(headers) == 0 && len(in.Rows) > 0 {
		headers = in.Rows[0].Names()
	}
	if !slices.Contains(headers, column) {
		return nil, 0, fmt.Errorf("%w: email column %q does not exist in the data", appErrors.ErrInvalidInput, column)
	}

	rows := make([]model.Attributes, len(in.Rows))
	for i, row := range in.Rows {
		row = slices.Clone(row)
		if _, found, ok := pickEmail(row, column); ok && !strings.EqualFold(found, column) {
			v, _ := row.Get(found)
			row.Set(column, v)
		}
		rows[i] = row
	}

	ds := &model.SavedDataset{Name: name, EmailColumn: column, Rows: rows}
	res, err := ResolveDataset(*ds)
	if err != nil {
		return nil, 0, err
	}
	return ds, len(res.Recipients), nil
}

// CreateDataset stores a new dataset. It fails with ErrNoValidRecipients
// when no row carries a valid address.
func (s *DatasetService) CreateDataset(ctx context.Context, accountID int, in DatasetInput) (*model.SavedDataset, error) {
	ds, valid, err := normalizeDataset(in)
	if err != nil {
		return nil, err
	}
	ds.AccountID = accountID
	if err := s.Datasets.Create(ctx, ds); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	logger.OrNop(s.Logger).Info("dataset saved",
		zap.Int("account_id", accountID),
		zap.Int("dataset_id", ds.ID),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("valid_emails", valid))
	return ds, nil
}

// UpdateDataset replaces an owned dataset under the same rules as create.
func (s *DatasetService) UpdateDataset(ctx context.Context, accountID, id int, in DatasetInput) (*model.SavedDataset, error) {
	ds, _, err := normalizeDataset(in)
	if err != nil {
		return nil, err
	}
	ds.ID = id
	ds.AccountID = accountID
	if err := s.Datasets.Update(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *DatasetService) ListDatasets(ctx context.Context, accountID int) ([]*model.DatasetSummary, error) {
	return s.Datasets.List(ctx, accountID)
}

func (s *DatasetService) GetDataset(ctx context.Context, accountID, id int) (*model.SavedDataset, error) {
	return s.Datasets.GetByID(ctx, accountID, id)
}

func (s *DatasetService) DeleteDataset(ctx context.Context, accountID, id int) error {
	if err := s.Datasets.Delete(ctx, accountID, id); err != nil {
		return err
	}
	logger.OrNop(s.Logger).Info("dataset deleted", zap.Int("account_id", accountID), zap.Int("dataset_id", id))
	return nil
}
