// internal/model/recipient.go
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Attribute is a single named column of a source row.
type Attribute struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Attributes keeps the source-column order of a row. It is stored as a JSON
// array because JSONB does not preserve object key order.
type Attributes []Attribute

// UnmarshalJSON accepts the stored array form and also a
// plain object row, keeping the object's key order as it appears in the text.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '[' {
		var list []Attribute
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*a = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("model: attributes must be an array or object")
	}
	out := Attributes{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("model: attribute %q: %w", name, err)
		}
		out = append(out, Attribute{Name: name, Value: v})
	}
	*a = out
	return nil
}

// Get returns the first attribute with the given name.
func (a Attributes) Get(name string) (Value, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return Value{}, false
}

// Lookup is Get with a case-insensitive name match.
func (a Attributes) Lookup(name string) (Attribute, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Name, name) {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Set replaces the value of the named column, appending it when absent.
func (a *Attributes) Set(name string, v Value) {
	for i := range *a {
		if (*a)[i].Name == name {
			(*a)[i].Value = v
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: v})
}

// Names lists column names in source order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, attr := range a {
		names[i] = attr.Name
	}
	return names
}

// Recipient is a resolved campaign target.
type Recipient struct {
	Email      string     `json:"email"`
	Attributes Attributes `json:"attributes"`
}

// Table is a parsed tabular upload.
type Table struct {
	Headers []string     `json:"headers"`
	Rows    []Attributes `json:"rows"`
}

// SavedDataset is a previously stored recipient list.
type SavedDataset struct {
	ID          int          `db:"id" json:"id"`
	AccountID   int          `db:"user_id" json:"user_id"`
	Name        string       `db:"name" json:"name"`
	EmailColumn string       `db:"email_column" json:"email_column"`
	Rows        []Attributes `db:"data" json:"data"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// ContactCount counts rows with a non-blank value in the email column.
func (ds SavedDataset) ContactCount() int {
	if ds.EmailColumn == "" {
		return 0
	}
	n := 0
	for _, row := range ds.Rows {
		if v, ok := row.Get(ds.EmailColumn); ok && strings.TrimSpace(v.Text()) != "" {
			n++
		}
	}
	return n
}

// Variables lists the column names of the first row.
func (ds SavedDataset) Variables() []string {
	if len(ds.Rows) == 0 {
		return []string{}
	}
	return ds.Rows[0].Names()
}

// Summary describes the dataset without its rows.
func (ds SavedDataset) Summary(campaignCount int) DatasetSummary {
	return DatasetSummary{
		ID:            ds.ID,
		Name:          ds.Name,
		EmailColumn:   ds.EmailColumn,
		CreatedAt:     ds.CreatedAt,
		ContactCount:  ds.ContactCount(),
		Variables:     ds.Variables(),
		CampaignCount: campaignCount,
	}
}

// DatasetSummary is a saved dataset listed without its rows.
type DatasetSummary struct {
	ID            int       `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	EmailColumn   string    `db:"email_column" json:"email_column"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ContactCount  int       `json:"contact_count"`
	Variables     []string  `json:"variables"`
	CampaignCount int       `json:"campaign_count"`
}
