package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

// --- Mock service ---

type mockCampaigns struct {
	created  *service.CreateCampaignInput
	err      error
	enqueued []int
	page     int
	pageSize int
}

func (m *mockCampaigns) CreateAndDispatch(ctx context.Context, accountID int, in service.CreateCampaignInput) (*service.SendResult, error) {
	m.created = &in
	if m.err != nil {
		return nil, m.err
	}
	return &service.SendResult{Sent: 2, Campaign: &model.Campaign{ID: 9, AccountID: accountID}}, nil
}

func (m *mockCampaigns) SendCampaign(ctx context.Context, accountID, campaignID int) (*service.SendResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.SendResult{Sent: 1, Campaign: &model.Campaign{ID: campaignID}}, nil
}

func (m *mockCampaigns) ResendCampaign(ctx context.Context, accountID, campaignID int) (*service.ResendResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.ResendResult{Sent: 1, ResendCount: 3, Campaign: &model.Campaign{ID: campaignID}}, nil
}

func (m *mockCampaigns) EnqueueResend(ctx context.Context, accountID, campaignID int) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, campaignID)
	return nil
}

func (m *mockCampaigns) GetCampaign(ctx context.Context, accountID, campaignID int) (*model.Campaign, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Campaign{ID: campaignID, AccountID: accountID, Subject: "Hello"}, nil
}

func (m *mockCampaigns) ListCampaigns(ctx context.Context, accountID, page, pageSize int) ([]model.Campaign, map[string]int, error) {
	m.page, m.pageSize = page, pageSize
	return []model.Campaign{{ID: 2}, {ID: 1}}, map[string]int{"page": 1, "page_size": 20, "total_count": 2, "total_pages": 1}, nil
}

func (m *mockCampaigns) GetCampaignStats(ctx context.Context, accountID int) (*model.CampaignStats, error) {
	return &model.CampaignStats{TotalCampaigns: 3, TotalRecipients: 12}, nil
}

func (m *mockCampaigns) ExportResults(ctx context.Context, accountID, campaignID int, w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	_, err := io.WriteString(w, "Email,Status,Timestamp,Error\na@example.com,Sent,2024-01-01T00:00:00Z,\n")
	return err
}

func campaignRouter(ctrl *controller.CampaignController, accountID int) http.Handler {
	r := chi.NewRouter()
	if accountID > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(controller.WithAccountID(req.Context(), accountID)))
			})
		})
	}
	r.Post("/campaigns", ctrl.CreateCampaign)
	r.Post("/campaigns/parse-csv", ctrl.ParseCSV)
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Get("/campaigns/stats", ctrl.GetStats)
	r.Get("/campaigns/{id}", ctrl.GetCampaignDetails)
	r.Get("/campaigns/{id}/export", ctrl.ExportResults)
	r.Post("/campaigns/{id}/send", ctrl.SendCampaign)
	r.Post("/campaigns/{id}/resend", ctrl.ResendCampaign)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if csv != "" {
		fw, err := mw.CreateFormFile("file", "list.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var res map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	return res
}

// --- Tests ---

func TestCreateCampaignMultipart(t *testing.T) {
	svc := &mockCampaigns{}
	router := campaignRouter(&controller.CampaignController{CampaignService: svc}, 5)

	body, ct := multipartBody(t, map[string]string{"subject": "Hi", "template": "Hello {name}"},
		"name,email\nAnn,ann@example.com\n")
	req := httptest.NewRequest(http.MethodPost, "/campaigns", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "Hi", svc.created.Subject)
	assert.Equal(t, "list.csv", svc.created.FileName)
	require.NotNil(t, svc.created.Upload)
	assert.Equal(t, []string{"name", "email"}, svc.created.Upload.Headers)

	res := decode(t, w)
	assert.EqualValues(t, 2, res["sent"])
}

func TestCreateCampaignFromDataset(t *testing.T) {
	svc := &mockCampaigns{}
	router := campaignRouter(&controller.CampaignController{CampaignService: svc}, 5)

	req := httptest.NewRequest(http.MethodPost, "/campaigns",
		strings.NewReader(`{"subject":"Hi","template":"Hello","database_id":4}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created.DatasetID)
	assert.Equal(t, 4, *svc.created.DatasetID)
	assert.Nil(t, svc.created.Upload)
}

func TestCreateCampaignErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{appErrors.ErrNoValidRecipients, http.StatusUnprocessableEntity},
		{appErrors.ErrProviderNotConfigured, http.StatusPreconditionFailed},
		{fmt.Errorf("%w: subject is required", appErrors.ErrInvalidInput), http.StatusBadRequest},
		{appErrors.ErrDatasetNotFound, http.StatusNotFound},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &mockCampaigns{err: tc.err}
		router := campaignRouter(&controller.CampaignController{CampaignService: svc}, 5)

		req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"subject":"x","template":"y","database_id":1}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestParseCSVPreview(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 5)

	body, ct := multipartBody(t, nil, "Name,Email,City\nAnn,ann@example.com,Oslo\nBob,nope,Rome\n")
	req := httptest.NewRequest(http.MethodPost, "/campaigns/parse-csv", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, []any{"Name", "Email", "City"}, res["headers"])
	assert.EqualValues(t, 1, res["valid_recipients"])
	assert.Equal(t, "Email", res["email_column"])
	assert.Equal(t, []any{"Name", "City"}, res["variables"])
}

func TestParseCSVRequiresFile(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 5)

	body, ct := multipartBody(t, map[string]string{"subject": "x"}, "")
	req := httptest.NewRequest(http.MethodPost, "/campaigns/parse-csv", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCampaignsPassesPaging(t *testing.T) {
	svc := &mockCampaigns{}
	router := campaignRouter(&controller.CampaignController{CampaignService: svc}, 5)

	req := httptest.NewRequest(http.MethodGet, "/campaigns?page=2&page_size=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.page)
	assert.Equal(t, 5, svc.pageSize)

	res := decode(t, w)
	assert.Len(t, res["data"], 2)
	assert.EqualValues(t, 2, res["pagination"].(map[string]any)["total_count"])
}

func TestGetStats(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.EqualValues(t, 3, res["totalCampaigns"])
	assert.EqualValues(t, 12, res["totalRecipients"])
}

func TestGetCampaignDetails(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, decode(t, w)["id"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	notFound := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{err: appErrors.NewCampaignNotFound(7)}}, 5)
	w = httptest.NewRecorder()
	notFound.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/7", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendCampaignAlreadySent(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{err: appErrors.ErrCampaignAlreadySent}}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/7/send", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Campaign not found or already sent", decode(t, w)["error"])
}

func TestResendCampaign(t *testing.T) {
	svc := &mockCampaigns{}
	router := campaignRouter(&controller.CampaignController{CampaignService: svc}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/7/resend", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["resendCount"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/7/resend?async=true", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{7}, svc.enqueued)
}

func TestResendInProgress(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{err: appErrors.ErrDispatchInProgress}}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/7/resend", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExportResults(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/7/export", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "campaign-7-results.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "Email,Status,Timestamp,Error\n"))
}

func TestRequestsWithoutAccountAreRejected(t *testing.T) {
	router := campaignRouter(&controller.CampaignController{CampaignService: &mockCampaigns{}}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
