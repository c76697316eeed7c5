package service

import (
	"regexp"
	"strings"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

// Deliberately loose: one @, a dot somewhere after it, no whitespace.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether v looks like local@domain.tld.
func IsValidEmail(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && emailPattern.MatchString(v)
}

// Resolution is the uniform recipient list produced from any source.
type Resolution struct {
	Recipients    []model.Recipient `json:"recipients"`
	VariableNames []string          `json:"variables"`
	EmailColumn   string            `json:"email_column"`
}

// ResolveUpload resolves a freshly parsed upload. The designated email column
// is the first header that mentions "email" but not "example".
func ResolveUpload(t model.Table) (*Resolution, error) {
	return ResolveRecipients(t.Headers, t.Rows, GuessEmailColumn(t.Headers))
}

// ResolveDataset resolves a saved dataset with its stored email column.
func ResolveDataset(ds model.SavedDataset) (*Resolution, error) {
	var headers []string
	if len(ds.Rows) > 0 {
		headers = ds.Rows[0].Names()
	}
	return ResolveRecipients(headers, ds.Rows, ds.EmailColumn)
}

// GuessEmailColumn returns the last header naming an email column. Headers
// mentioning "example" are skipped.
func GuessEmailColumn(headers []string) string {
	var column string
	for _, h := range headers {
		l := strings.ToLower(h)
		if strings.Contains(l, "email") && !strings.Contains(l, "example") {
			column = h
		}
	}
	return column
}

// ResolveRecipients picks an email for every row. The designated column
// (matched case-insensitively) wins when it validates; otherwise the row's
// other columns are scanned in order and the first valid one is adopted.
// Rows without any valid address are dropped. The whole row is kept as the
// recipient's attributes.
func ResolveRecipients(headers []string, rows []model.Attributes, emailColumn string) (*Resolution, error) {
	res := &Resolution{}
	var usedDesignated bool
	var fallbackColumn string

	for _, row := range rows {
		email, column, ok := pickEmail(row, emailColumn)
		if !ok {
			continue
		}
		if emailColumn != "" && strings.EqualFold(column, emailColumn) {
			usedDesignated = true
		} else if fallbackColumn == "" {
			fallbackColumn = column
		}
		res.Recipients = append(res.Recipients, model.Recipient{
			Email:      email,
			Attributes: row,
		})
	}

	if len(res.Recipients) == 0 {
		return nil, appErrors.ErrNoValidRecipients
	}

	res.EmailColumn = fallbackColumn
	if usedDesignated {
		res.EmailColumn = emailColumn
	}
	if len(headers) == 0 {
		headers = res.Recipients[0].Attributes.Names()
	}
	res.VariableNames = variableNames(headers, res.EmailColumn)
	return res, nil
}

func pickEmail(row model.Attributes, emailColumn string) (email, column string, ok bool) {
	if emailColumn != "" {
		if attr, found := row.Lookup(emailColumn); found && attr.Value.IsString() && IsValidEmail(attr.Value.Str) {
			return strings.TrimSpace(attr.Value.Str), attr.Name, true
		}
	}
	for _, attr := range row {
		if emailColumn != "" && strings.EqualFold(attr.Name, emailColumn) {
			continue
		}
		if attr.Value.IsString() && IsValidEmail(attr.Value.Str) {
			return strings.TrimSpace(attr.Value.Str), attr.Name, true
		}
	}
	return "", "", false
}

func variableNames(headers []string, emailColumn string) []string {
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		if emailColumn != "" && strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(emailColumn)) {
			continue
		}
		if n := strings.TrimSpace(h); n != "" {
			names = append(names, n)
		}
	}
	return names
}
