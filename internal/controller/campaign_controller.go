// internal/controller/campaign_controller.go
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

// Campaigns is the campaign use-case surface the HTTP layer needs.
type Campaigns interface {
	CreateAndDispatch(ctx context.Context, accountID int, in service.CreateCampaignInput) (*service.SendResult, error)
	SendCampaign(ctx context.Context, accountID, campaignID int) (*service.SendResult, error)
	ResendCampaign(ctx context.Context, accountID, campaignID int) (*service.ResendResult, error)
	EnqueueResend(ctx context.Context, accountID, campaignID int) error
	GetCampaign(ctx context.Context, accountID, campaignID int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, accountID, page, pageSize int) ([]model.Campaign, map[string]int, error)
	GetCampaignStats(ctx context.Context, accountID int) (*model.CampaignStats, error)
	ExportResults(ctx context.Context, accountID, campaignID int, w io.Writer) error
}

type CampaignController struct {
	CampaignService Campaigns
	Logger          *zap.Logger

	// MaxUploadBytes bounds multipart bodies; zero means 10 MiB.
	MaxUploadBytes int64
}

func (c *CampaignController) maxUpload() int64 { return uploadLimit(c.MaxUploadBytes) }

func uploadLimit(n int64) int64 {
	if n > 0 {
		return n
	}
	return 10 << 20
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readUpload parses the "file" part of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (model.Table, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return model.Table{}, "", fmt.Errorf("%w: %v", appErrors.ErrInvalidInput, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return model.Table{}, "", fmt.Errorf("%w: file is required", appErrors.ErrInvalidInput)
	}
	defer file.Close()

	table, err := service.ParseCSV(file)
	if err != nil {
		if errors.Is(err, service.ErrEmptyUpload) {
			return model.Table{}, "", err
		}
		return model.Table{}, "", fmt.Errorf("%w: %v", appErrors.ErrInvalidInput, err)
	}
	return table, header.Filename, nil
}

// CreateCampaign accepts a multipart upload (file, subject, template) or a
// JSON body naming a saved dataset, then sends immediately.
func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var in service.CreateCampaignInput
	if isMultipart(r) {
		table, name, err := readUpload(w, r, c.maxUpload())
		if err != nil {
			writeError(w, c.Logger, err)
			return
		}
		in = service.CreateCampaignInput{
			Subject:  r.FormValue("subject"),
			Template: r.FormValue("template"),
			Upload:   &table,
			FileName: name,
		}
	} else {
		var body struct {
			Subject    string `json:"subject"`
			Template   string `json:"template"`
			DatabaseID *int   `json:"database_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid body")
			return
		}
		in = service.CreateCampaignInput{
			Subject:   body.Subject,
			Template:  body.Template,
			DatasetID: body.DatabaseID,
		}
	}

	result, err := c.CampaignService.CreateAndDispatch(r.Context(), accountID, in)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ParseCSV previews an upload without storing anything.
func (c *CampaignController) ParseCSV(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAccount(w, r); !ok {
		return
	}
	table, _, err := readUpload(w, r, c.maxUpload())
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	preview := map[string]any{
		"headers":          table.Headers,
		"rows":             table.Rows,
		"email_column":     service.GuessEmailColumn(table.Headers),
		"valid_recipients": 0,
		"variables":        []string{},
	}
	if res, err := service.ResolveUpload(table); err == nil {
		preview["email_column"] = res.EmailColumn
		preview["valid_recipients"] = len(res.Recipients)
		preview["variables"] = res.VariableNames
	}
	writeJSON(w, http.StatusOK, preview)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), accountID, page, pageSize)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetStats(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	stats, err := c.CampaignService.GetCampaignStats(r.Context(), accountID)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.GetCampaign(r.Context(), accountID, id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	result, err := c.CampaignService.SendCampaign(r.Context(), accountID, id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResendCampaign resends inline, or queues the resend when async=true.
func (c *CampaignController) ResendCampaign(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := c.CampaignService.EnqueueResend(r.Context(), accountID, id); err != nil {
			writeError(w, c.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message":     "Resend queued",
			"campaign_id": id,
		})
		return
	}

	result, err := c.CampaignService.ResendCampaign(r.Context(), accountID, id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExportResults downloads the delivery results as CSV.
func (c *CampaignController) ExportResults(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := c.CampaignService.ExportResults(r.Context(), accountID, id, &buf); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="campaign-%d-results.csv"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
