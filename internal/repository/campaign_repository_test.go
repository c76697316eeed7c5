package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var campaignCols = []string{"id", "user_id", "subject", "template", "recipients", "variables", "sent_at", "send_results", "resend_count", "database_id", "file_name", "created_at"}

func TestCampaignCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}

	c := &model.Campaign{
		AccountID:     3,
		Subject:       "Launch",
		Template:      "Hi {first}",
		Recipients:    []model.Recipient{{Email: "sam@example.com", Attributes: model.Attributes{{Name: "first", Value: model.String("Sam")}}}},
		VariableNames: []string{"first"},
		FileName:      "list.csv",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaigns")).
		WithArgs(3, "Launch", "Hi {first}",
			`[{"email":"sam@example.com","attributes":[{"name":"first","value":"Sam"}]}]`,
			`["first"]`, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	require.NoError(t, repo.Create(context.Background(), c))
	assert.Equal(t, 11, c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignCreateUnknownDataset(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}
	datasetID := 404

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaigns")).
		WillReturnError(&pq.Error{Code: "23503", Table: "campaigns"})

	err := repo.Create(context.Background(), &model.Campaign{AccountID: 3, Subject: "s", Template: "t", DatasetID: &datasetID})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}
	sentAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id=$1 AND user_id=$2")).
		WithArgs(11, 3).
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			11, 3, "Launch", "Hi {first}",
			[]byte(`[{"email":"sam@example.com","attributes":[{"name":"first","value":"Sam"}]}]`),
			[]byte(`["first"]`),
			sentAt,
			[]byte(`[{"email":"sam@example.com","success":true,"error":null,"timestamp":"2026-03-01T10:00:00Z"}]`),
			2, nil, "list.csv", sentAt,
		))

	c, err := repo.GetByID(context.Background(), 3, 11)
	require.NoError(t, err)
	assert.Equal(t, "Launch", c.Subject)
	require.Len(t, c.Recipients, 1)
	assert.Equal(t, "Sam", c.Recipients[0].Attributes[0].Value.Str)
	require.Len(t, c.SendResults, 1)
	assert.True(t, c.SendResults[0].Success)
	assert.Equal(t, 2, c.ResendCount)
	assert.Nil(t, c.DatasetID)
	require.NotNil(t, c.SentAt)
	assert.True(t, c.SentAt.Equal(sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}

	mock.ExpectQuery("FROM campaigns").WithArgs(99, 3).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 3, 99)
	var nf *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 99, nf.CampaignID)
}

func TestCampaignSaveResults(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET sent_at=$1, send_results=$2 WHERE id=$3 AND user_id=$4")).
		WithArgs(now, sqlmock.AnyArg(), 11, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SaveResults(context.Background(), 3, 11, now, []model.DeliveryResult{{Email: "a@b.com", Success: true}}))

	mock.ExpectExec("UPDATE campaigns SET sent_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SaveResults(context.Background(), 3, 12, now, nil)
	assert.True(t, appErrors.IsCampaignNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignResetForResend(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("SET resend_count = resend_count + 1, sent_at = NULL, send_results = NULL")).
		WithArgs(11, 3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"resend_count"}).AddRow(2))

	n, err := repo.ResetForResend(context.Background(), 3, 11, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mock.ExpectQuery("SET resend_count").WithArgs(11, 3, 1).WillReturnError(sql.ErrNoRows)
	_, err = repo.ResetForResend(context.Background(), 3, 11, 1)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignListCampaigns(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY sent_at DESC NULLS LAST, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(3, 2, 0).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(5, 3, "B", "t", []byte(`[]`), []byte(`[]`), now, nil, 0, 8, nil, now).
			AddRow(4, 3, "A", "t", []byte(`[]`), []byte(`[]`), nil, nil, 0, nil, nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM campaigns WHERE user_id=$1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	list, total, err := repo.ListCampaigns(context.Background(), 3, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].DatasetID)
	assert.Equal(t, 8, *list[0].DatasetID)
	assert.Nil(t, list[1].SentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetStats(t *testing.T) {
	db, mock := newMock(t)
	repo := &CampaignRepository{DB: db}
	since := time.Now().AddDate(0, 0, -30)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND sent_at IS NOT NULL")).
		WithArgs(3, since).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d"}).AddRow(4, 120, 1, 30))

	stats, err := repo.GetStats(context.Background(), 3, since)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStats{TotalCampaigns: 4, TotalRecipients: 120, Last30DaysCampaigns: 1, Last30DaysRecipients: 30}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
