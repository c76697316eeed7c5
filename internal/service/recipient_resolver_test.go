package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

func TestIsValidEmail(t *testing.T) {
	assert.True(t, service.IsValidEmail("a@b.co"))
	assert.True(t, service.IsValidEmail("  a@b.co "))
	assert.False(t, service.IsValidEmail("a@b"))
	assert.False(t, service.IsValidEmail("a b@c.com"))
	assert.False(t, service.IsValidEmail(""))
}

func TestGuessEmailColumn(t *testing.T) {
	assert.Equal(t, "Work Email", service.GuessEmailColumn([]string{"Name", "Example Email", "Work Email"}))
	assert.Empty(t, service.GuessEmailColumn([]string{"Name", "Phone"}))
	assert.Equal(t, "work_email", service.GuessEmailColumn([]string{"email", "name", "work_email"}))
}

func TestResolveUploadUsesDesignatedColumn(t *testing.T) {
	table := model.Table{
		Headers: []string{"Name", "Email", "City"},
		Rows: []model.Attributes{
			row("Name", "Ann", "Email", "ann@example.com", "City", "Oslo"),
			row("Name", "Bob", "Email", "not-an-email", "City", "Rome"),
			row("Name", "Cy", "Email", "cy@example.com", "City", "Lima"),
		},
	}

	res, err := service.ResolveUpload(table)
	require.NoError(t, err)
	require.Len(t, res.Recipients, 2)
	assert.Equal(t, "ann@example.com", res.Recipients[0].Email)
	assert.Equal(t, "cy@example.com", res.Recipients[1].Email)
	assert.Equal(t, "Email", res.EmailColumn)
	assert.Equal(t, []string{"Name", "City"}, res.VariableNames)
	assert.Equal(t, table.Rows[0], res.Recipients[0].Attributes)
}

func TestResolveFallsBackToAnyValidColumn(t *testing.T) {
	rows := []model.Attributes{
		row("Name", "Ann", "Email", "", "Contact", "ann@example.com"),
	}

	res, err := service.ResolveRecipients([]string{"Name", "Email", "Contact"}, rows, "Email")
	require.NoError(t, err)
	require.Len(t, res.Recipients, 1)
	assert.Equal(t, "ann@example.com", res.Recipients[0].Email)
	assert.Equal(t, "Contact", res.EmailColumn)
	assert.Equal(t, []string{"Name", "Email"}, res.VariableNames)
}

func TestResolveWithoutValidEmails(t *testing.T) {
	rows := []model.Attributes{row("Name", "Ann", "Email", "nope")}

	_, err := service.ResolveRecipients([]string{"Name", "Email"}, rows, "Email")
	assert.ErrorIs(t, err, appErrors.ErrNoValidRecipients)

	_, err = service.ResolveUpload(model.Table{Headers: []string{"Email"}})
	assert.ErrorIs(t, err, appErrors.ErrNoValidRecipients)
}

func TestResolveDatasetMatchesColumnCaseInsensitively(t *testing.T) {
	ds := model.SavedDataset{
		EmailColumn: "email",
		Rows: []model.Attributes{
			row("EMAIL", "ann@example.com", "first", "Ann"),
		},
	}

	res, err := service.ResolveDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.Recipients[0].Email)
	assert.Equal(t, "email", res.EmailColumn)
	assert.Equal(t, []string{"first"}, res.VariableNames)
}

func TestResolveTrimsEmail(t *testing.T) {
	rows := []model.Attributes{row("Email", "  ann@example.com ")}

	res, err := service.ResolveRecipients([]string{"Email"}, rows, "Email")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.Recipients[0].Email)
}
