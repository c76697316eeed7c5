package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

func TestCreateDatasetMovesFallbackEmail(t *testing.T) {
	repo := memDatasetRepo{}
	svc := &service.DatasetService{Datasets: repo}

	ds, err := svc.CreateDataset(context.Background(), 1, service.DatasetInput{
		Name:        " Customers ",
		EmailColumn: "email",
		Headers:     []string{"name", "email", "contact"},
		Rows: []model.Attributes{
			row("name", "Ann", "email", "ann@example.com", "contact", ""),
			row("name", "Bob", "email", "n/a", "contact", "bob@example.com"),
			row("name", "Cy", "email", "", "contact", "none"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Customers", ds.Name)
	assert.Equal(t, 1, ds.AccountID)
	require.Len(t, ds.Rows, 3)

	v, _ := ds.Rows[1].Get("email")
	assert.Equal(t, "bob@example.com", v.Text())
	v, _ = ds.Rows[2].Get("email")
	assert.Empty(t, v.Text())

	stored, err := svc.GetDataset(context.Background(), 1, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ContactCount())
}

func TestCreateDatasetValidation(t *testing.T) {
	svc := &service.DatasetService{Datasets: memDatasetRepo{}}
	rows := []model.Attributes{row("name", "Ann", "email", "ann@example.com")}

	cases := map[string]service.DatasetInput{
		"no name":         {EmailColumn: "email", Rows: rows},
		"no email column": {Name: "x", Rows: rows},
		"unknown column":  {Name: "x", EmailColumn: "mail", Rows: rows},
	}
	for name, in := range cases {
		_, err := svc.CreateDataset(context.Background(), 1, in)
		assert.ErrorIs(t, err, appErrors.ErrInvalidInput, name)
	}

	_, err := svc.CreateDataset(context.Background(), 1, service.DatasetInput{
		Name:        "x",
		EmailColumn: "email",
		Rows:        []model.Attributes{row("name", "Ann", "email", "nobody")},
	})
	assert.ErrorIs(t, err, appErrors.ErrNoValidRecipients)
}

func TestDatasetLifecycle(t *testing.T) {
	repo := memDatasetRepo{}
	svc := &service.DatasetService{Datasets: repo}
	ctx := context.Background()

	ds, err := svc.CreateDataset(ctx, 1, service.DatasetInput{
		Name:        "List",
		EmailColumn: "email",
		Rows:        []model.Attributes{row("email", "ann@example.com", "city", "Oslo")},
	})
	require.NoError(t, err)

	list, err := svc.ListDatasets(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"email", "city"}, list[0].Variables)

	_, err = svc.UpdateDataset(ctx, 2, ds.ID, service.DatasetInput{
		Name:        "Stolen",
		EmailColumn: "email",
		Rows:        []model.Attributes{row("email", "eve@example.com")},
	})
	assert.ErrorIs(t, err, appErrors.ErrDatasetNotFound)

	updated, err := svc.UpdateDataset(ctx, 1, ds.ID, service.DatasetInput{
		Name:        "Renamed",
		EmailColumn: "email",
		Rows:        []model.Attributes{row("email", "ann@example.com"), row("email", "bo@example.com")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ContactCount())

	assert.ErrorIs(t, svc.DeleteDataset(ctx, 2, ds.ID), appErrors.ErrDatasetNotFound)
	require.NoError(t, svc.DeleteDataset(ctx, 1, ds.ID))
	_, err = svc.GetDataset(ctx, 1, ds.ID)
	assert.ErrorIs(t, err, appErrors.ErrDatasetNotFound)
}
