package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

// Datasets is the saved-dataset surface the HTTP layer needs.
type Datasets interface {
	CreateDataset(ctx context.Context, accountID int, in service.DatasetInput) (*model.SavedDataset, error)
	UpdateDataset(ctx context.Context, accountID, id int, in service.DatasetInput) (*model.SavedDataset, error)
	ListDatasets(ctx context.Context, accountID int) ([]*model.DatasetSummary, error)
	GetDataset(ctx context.Context, accountID, id int) (*model.SavedDataset, error)
	DeleteDataset(ctx context.Context, accountID, id int) error
}

type DatasetController struct {
	DatasetService Datasets
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// datasetBody carries either CSV text or already structured rows.
type datasetBody struct {
	Name        string             `json:"name"`
	EmailColumn string             `json:"email_column"`
	CSVData     string             `json:"csv_data"`
	Data        []model.Attributes `json:"data"`
}

func (b datasetBody) input() (service.DatasetInput, error) {
	in := service.DatasetInput{Name: b.Name, EmailColumn: b.EmailColumn, Rows: b.Data}
	if strings.TrimSpace(b.CSVData) == "" {
		return in, nil
	}
	table, err := service.ParseCSV(strings.NewReader(b.CSVData))
	if err != nil {
		return in, fmt.Errorf("%w: %v", appErrors.ErrInvalidInput, err)
	}
	in.Headers, in.Rows = table.Headers, table.Rows
	return in, nil
}

// readInput accepts a multipart upload (file, name, email_column) or JSON.
func (c *DatasetController) readInput(w http.ResponseWriter, r *http.Request) (service.DatasetInput, error) {
	if isMultipart(r) {
		table, fileName, err := readUpload(w, r, uploadLimit(c.MaxUploadBytes))
		if err != nil {
			return service.DatasetInput{}, err
		}
		name := r.FormValue("name")
		if strings.TrimSpace(name) == "" {
			name = strings.TrimSuffix(fileName, ".csv")
		}
		return service.DatasetInput{
			Name:        name,
			EmailColumn: r.FormValue("email_column"),
			Headers:     table.Headers,
			Rows:        table.Rows,
		}, nil
	}

	var body datasetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return service.DatasetInput{}, fmt.Errorf("%w: invalid body", appErrors.ErrInvalidInput)
	}
	return body.input()
}

func (c *DatasetController) CreateDataset(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	in, err := c.readInput(w, r)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	ds, err := c.DatasetService.CreateDataset(r.Context(), accountID, in)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ds.Summary(0))
}

func (c *DatasetController) ListDatasets(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	list, err := c.DatasetService.ListDatasets(r.Context(), accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *DatasetController) GetDataset(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	ds, err := c.DatasetService.GetDataset(r.Context(), accountID, id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (c *DatasetController) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	in, err := c.readInput(w, r)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	ds, err := c.DatasetService.UpdateDataset(r.Context(), accountID, id, in)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (c *DatasetController) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	if err := c.DatasetService.DeleteDataset(r.Context(), accountID, id); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
